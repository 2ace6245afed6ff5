// Package scheduler sends per-user motivational notifications on cron
// schedules evaluated in each user's timezone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/eatbot/internal/platform/timeouts"
	"github.com/louisbranch/eatbot/internal/services/nutrition/ai"
	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/message"
)

// Kind names one daily notification.
type Kind string

const (
	KindMorning  Kind = "morning"
	KindMidday   Kind = "midday"
	KindEvening  Kind = "evening"
	KindReminder Kind = "reminder"
)

// Schedule pairs a notification kind with its cron expression.
type Schedule struct {
	Kind Kind
	Spec string
}

// Schedules lists the entries registered for every user.
var Schedules = []Schedule{
	{Kind: KindMorning, Spec: "0 7 * * *"},
	{Kind: KindMidday, Spec: "0 12 * * *"},
	{Kind: KindEvening, Spec: "0 19 * * *"},
	{Kind: KindReminder, Spec: "0 */4 * * *"},
}

const (
	reminderWindow = 4 * time.Hour
	maxLunchIdeas  = 3
)

// Store is the persistence the scheduler reads and writes.
type Store interface {
	GetUser(ctx context.Context, id int64) (storage.UserRecord, error)
	ListNotifiableUsers(ctx context.Context) ([]storage.UserRecord, error)
	ListMealsForDay(ctx context.Context, userID int64, date string) ([]storage.MealRecord, error)
	CountMealsSince(ctx context.Context, userID int64, since time.Time) (int, error)
	RecordDelivery(ctx context.Context, delivery storage.DeliveryRecord) error
}

// Notifier delivers a text to a Telegram chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Motivator writes motivational messages.
type Motivator interface {
	Motivation(ctx context.Context, req ai.MotivationRequest) (string, error)
}

// Suggester proposes meal ideas for the midday check-in.
type Suggester interface {
	SuggestMeal(ctx context.Context, req ai.MealSuggestionRequest) (ai.MealSuggestion, error)
}

// Printers resolves a message printer for a user language.
type Printers interface {
	Printer(lang string) *message.Printer
}

// Config holds scheduler collaborators.
type Config struct {
	Store           Store
	Notifier        Notifier
	Motivator       Motivator
	Suggester       Suggester
	Printers        Printers
	DefaultTimezone string
	Clock           func() time.Time
}

// Scheduler owns one cron runner with four entries per enabled user.
type Scheduler struct {
	cron      *cron.Cron
	store     Store
	notifier  Notifier
	motivator Motivator
	suggester Suggester
	printers  Printers
	timezone  string
	clock     func() time.Time

	mu      sync.Mutex
	entries map[int64][]cron.EntryID
}

// New builds a scheduler. Run must be called to fire entries.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("scheduler store is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("scheduler notifier is required")
	}
	if cfg.Printers == nil {
		return nil, fmt.Errorf("scheduler printers are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Scheduler{
		cron:      cron.New(),
		store:     cfg.Store,
		notifier:  cfg.Notifier,
		motivator: cfg.Motivator,
		suggester: cfg.Suggester,
		printers:  cfg.Printers,
		timezone:  cfg.DefaultTimezone,
		clock:     cfg.Clock,
		entries:   map[int64][]cron.EntryID{},
	}, nil
}

// Run fires scheduled entries until ctx is done, then waits for running
// jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(timeouts.Shutdown):
		log.Printf("scheduler: jobs still running after %s", timeouts.Shutdown)
	}
	return nil
}

// Start (re)registers the user's entries. Missing users and users with
// notifications disabled end up with no entries.
func (s *Scheduler) Start(ctx context.Context, userID int64) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.Stop(userID)
			return nil
		}
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	return s.startUser(user)
}

func (s *Scheduler) startUser(user storage.UserRecord) error {
	s.Stop(user.ID)
	if !user.NotificationsEnabled {
		return nil
	}

	timezone := user.Location(s.timezone).String()
	ids := make([]cron.EntryID, 0, len(Schedules))
	for _, schedule := range Schedules {
		userID, kind := user.ID, schedule.Kind
		id, err := s.cron.AddFunc("CRON_TZ="+timezone+" "+schedule.Spec, func() {
			if err := s.Deliver(context.Background(), userID, kind); err != nil {
				log.Printf("scheduler: %s notification for user %d: %v", kind, userID, err)
			}
		})
		if err != nil {
			for _, added := range ids {
				s.cron.Remove(added)
			}
			return fmt.Errorf("schedule %s for user %d: %w", kind, user.ID, err)
		}
		ids = append(ids, id)
	}

	s.mu.Lock()
	s.entries[user.ID] = ids
	s.mu.Unlock()
	return nil
}

// Stop removes every entry of the user.
func (s *Scheduler) Stop(userID int64) {
	s.mu.Lock()
	ids := s.entries[userID]
	delete(s.entries, userID)
	s.mu.Unlock()
	for _, id := range ids {
		s.cron.Remove(id)
	}
}

// Active reports whether the user has registered entries.
func (s *Scheduler) Active(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[userID]) > 0
}

// StartAll registers entries for every notifiable user and returns how
// many were scheduled.
func (s *Scheduler) StartAll(ctx context.Context) (int, error) {
	users, err := s.store.ListNotifiableUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list notifiable users: %w", err)
	}
	started := 0
	for _, user := range users {
		if err := s.startUser(user); err != nil {
			log.Printf("scheduler: start user %d: %v", user.ID, err)
			continue
		}
		started++
	}
	return started, nil
}

// Deliver composes and sends one notification, recording the outcome.
// Users that are gone or opted out are skipped, as are reminders for users
// who logged a meal recently.
func (s *Scheduler) Deliver(ctx context.Context, userID int64, kind Kind) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.Stop(userID)
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}
	if !user.NotificationsEnabled {
		return nil
	}

	text, skip, err := s.Compose(ctx, user, kind)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}

	delivery := storage.DeliveryRecord{
		UserID:  user.ID,
		Kind:    string(kind),
		Message: text,
		Status:  storage.DeliverySent,
		SentAt:  s.clock(),
	}
	sendErr := s.notifier.Notify(ctx, user.TelegramID, text)
	if sendErr != nil {
		delivery.Status = storage.DeliveryFailed
		delivery.LastError = sendErr.Error()
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.BackgroundWrite)
	defer cancel()
	if err := s.store.RecordDelivery(recordCtx, delivery); err != nil {
		log.Printf("scheduler: record %s delivery for user %d: %v", kind, user.ID, err)
	}
	if sendErr != nil {
		return fmt.Errorf("send notification: %w", sendErr)
	}
	return nil
}

// Compose renders the notification text. skip is true when nothing should
// be sent.
func (s *Scheduler) Compose(ctx context.Context, user storage.UserRecord, kind Kind) (string, bool, error) {
	p := s.printers.Printer(user.Language)
	switch kind {
	case KindMorning:
		return s.morning(ctx, p, user), false, nil
	case KindMidday:
		progress, err := s.today(ctx, user)
		if err != nil {
			return "", false, err
		}
		text := midday(p, progress)
		if ideas := s.lunchIdeas(ctx, user, progress); len(ideas) > 0 {
			text += "\n\n" + p.Sprintf("notify.midday.ideas") + "\n• " + strings.Join(ideas, "\n• ")
		}
		return text, false, nil
	case KindEvening:
		progress, err := s.today(ctx, user)
		if err != nil {
			return "", false, err
		}
		return evening(p, user, progress), false, nil
	case KindReminder:
		recent, err := s.store.CountMealsSince(ctx, user.ID, s.clock().Add(-reminderWindow))
		if err != nil {
			return "", false, fmt.Errorf("count recent meals: %w", err)
		}
		if recent > 0 {
			return "", true, nil
		}
		return p.Sprintf("notify.reminder"), false, nil
	default:
		return "", false, fmt.Errorf("notification kind %q is invalid", kind)
	}
}

func (s *Scheduler) today(ctx context.Context, user storage.UserRecord) (domain.DayProgress, error) {
	date := s.clock().In(user.Location(s.timezone)).Format(time.DateOnly)
	meals, err := s.store.ListMealsForDay(ctx, user.ID, date)
	if err != nil {
		return domain.DayProgress{}, fmt.Errorf("list today's meals: %w", err)
	}
	return domain.NewDayProgress(storage.TotalsOf(meals), user.Targets), nil
}

func (s *Scheduler) morning(ctx context.Context, p *message.Printer, user storage.UserRecord) string {
	name := strings.TrimSpace(user.FirstName)
	if name == "" {
		name = p.Sprintf("notify.friend")
	}
	motivation := p.Sprintf("notify.morning.fallback")
	if s.motivator != nil {
		text, err := s.motivator.Motivation(ctx, ai.MotivationRequest{
			Kind:    ai.MotivationMorning,
			Profile: user.Profile(),
			Targets: user.Targets,
		})
		switch {
		case err != nil:
			log.Printf("scheduler: morning motivation for user %d: %v", user.ID, err)
		case strings.TrimSpace(text) != "":
			motivation = strings.TrimSpace(text)
		}
	}
	return p.Sprintf("notify.morning", name, motivation)
}

// lunchIdeas asks for lunch ideas while less than half of the day's
// calories are eaten. Failures only drop the ideas.
func (s *Scheduler) lunchIdeas(ctx context.Context, user storage.UserRecord, progress domain.DayProgress) []string {
	if s.suggester == nil || progress.CaloriesPct >= 50 {
		return nil
	}
	suggestion, err := s.suggester.SuggestMeal(ctx, ai.MealSuggestionRequest{
		MealType:       domain.MealLunch,
		Profile:        user.Profile(),
		DailyCalories:  user.Targets.Calories,
		RemainingToday: max(progress.RemainingCalories, 0),
	})
	if err != nil {
		log.Printf("scheduler: lunch ideas for user %d: %v", user.ID, err)
		return nil
	}
	return suggestion.Ideas[:min(len(suggestion.Ideas), maxLunchIdeas)]
}
