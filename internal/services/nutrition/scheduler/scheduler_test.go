package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/eatbot/internal/platform/i18n/catalog"
	"github.com/louisbranch/eatbot/internal/services/nutrition/ai"
	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage/sqlite"
)

var fixedNow = time.Date(2026, 5, 4, 16, 0, 0, 0, time.UTC)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

type fakeMotivator struct {
	text string
	err  error
}

func (m fakeMotivator) Motivation(context.Context, ai.MotivationRequest) (string, error) {
	return m.text, m.err
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatal("expected missing store error")
	}
}

func TestStartRegistersFourEntriesAndStopRemovesThem(t *testing.T) {
	t.Parallel()

	store, user := openStore(t, true)
	s := newTestScheduler(t, store, &fakeNotifier{}, nil)

	if err := s.Start(context.Background(), user.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.Active(user.ID) || len(s.cron.Entries()) != len(Schedules) {
		t.Fatalf("entries = %d, want %d", len(s.cron.Entries()), len(Schedules))
	}

	// Restarting replaces rather than duplicates.
	if err := s.Start(context.Background(), user.ID); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if len(s.cron.Entries()) != len(Schedules) {
		t.Fatalf("entries after restart = %d", len(s.cron.Entries()))
	}

	s.Stop(user.ID)
	if s.Active(user.ID) || len(s.cron.Entries()) != 0 {
		t.Fatalf("entries after stop = %d", len(s.cron.Entries()))
	}
}

func TestStartSkipsDisabledAndMissingUsers(t *testing.T) {
	t.Parallel()

	store, user := openStore(t, false)
	s := newTestScheduler(t, store, &fakeNotifier{}, nil)

	if err := s.Start(context.Background(), user.ID); err != nil {
		t.Fatalf("start disabled: %v", err)
	}
	if s.Active(user.ID) {
		t.Fatal("disabled user should not be scheduled")
	}
	if err := s.Start(context.Background(), 9999); err != nil {
		t.Fatalf("start missing: %v", err)
	}
}

func TestStartAllSchedulesNotifiableUsers(t *testing.T) {
	t.Parallel()

	store, user := openStore(t, true)
	s := newTestScheduler(t, store, &fakeNotifier{}, nil)

	started, err := s.StartAll(context.Background())
	if err != nil {
		t.Fatalf("start all: %v", err)
	}
	if started != 1 || !s.Active(user.ID) {
		t.Fatalf("started = %d, active = %v", started, s.Active(user.ID))
	}
}

func TestDeliverMorningUsesMotivationAndRecords(t *testing.T) {
	t.Parallel()

	store, user := openStore(t, true)
	notifier := &fakeNotifier{}
	s := newTestScheduler(t, store, notifier, fakeMotivator{text: "Сегодня отличный день для овощей!"})

	if err := s.Deliver(context.Background(), user.ID, KindMorning); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].chatID != user.TelegramID {
		t.Fatalf("sent = %+v", notifier.sent)
	}
	text := notifier.sent[0].text
	if !strings.Contains(text, "Анна") || !strings.Contains(text, "Сегодня отличный день для овощей!") {
		t.Fatalf("morning text = %q", text)
	}

	deliveries, err := store.ListDeliveries(context.Background(), user.ID, 10)
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(deliveries) != 1 || deliveries[0].Status != storage.DeliverySent || deliveries[0].Kind != string(KindMorning) {
		t.Fatalf("deliveries = %+v", deliveries)
	}
}

func TestMorningFallsBackWhenMotivationFails(t *testing.T) {
	t.Parallel()

	store, user := openStore(t, true)
	s := newTestScheduler(t, store, &fakeNotifier{}, fakeMotivator{err: errors.New("boom")})

	text, skip, err := s.Compose(context.Background(), user, KindMorning)
	if err != nil || skip {
		t.Fatalf("compose = %v, %v", skip, err)
	}
	p := catalog.Default().Printer(user.Language)
	if !strings.Contains(text, p.Sprintf("notify.morning.fallback")) {
		t.Fatalf("morning text = %q", text)
	}
}

func TestDeliverRecordsFailure(t *testing.T) {
	t.Parallel()

	store, user := openStore(t, true)
	s := newTestScheduler(t, store, &fakeNotifier{err: errors.New("forbidden: bot was blocked by the user")}, nil)

	if err := s.Deliver(context.Background(), user.ID, KindEvening); err == nil {
		t.Fatal("expected send error")
	}
	deliveries, err := store.ListDeliveries(context.Background(), user.ID, 10)
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(deliveries) != 1 || deliveries[0].Status != storage.DeliveryFailed || !strings.Contains(deliveries[0].LastError, "blocked") {
		t.Fatalf("deliveries = %+v", deliveries)
	}
}

func TestDeliverSkipsDisabledUser(t *testing.T) {
	t.Parallel()

	store, user := openStore(t, false)
	notifier := &fakeNotifier{}
	s := newTestScheduler(t, store, notifier, nil)

	if err := s.Deliver(context.Background(), user.ID, KindMidday); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("sent = %+v, want none", notifier.sent)
	}
}

func TestMiddayProgress(t *testing.T) {
	t.Parallel()

	store, user := openStore(t, true)
	s := newTestScheduler(t, store, &fakeNotifier{}, nil)
	p := catalog.Default().Printer(user.Language)

	addMeal(t, store, user.ID, fixedNow.Add(-5*time.Hour), 500)
	text, _, err := s.Compose(context.Background(), user, KindMidday)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if !strings.Contains(text, p.Sprintf("notify.midday.progress", 500, 2000, 1500)) {
		t.Fatalf("midday text = %q", text)
	}

	addMeal(t, store, user.ID, fixedNow.Add(-4*time.Hour), 700)
	text, _, err = s.Compose(context.Background(), user, KindMidday)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if !strings.Contains(text, p.Sprintf("notify.midday.half")) {
		t.Fatalf("midday text = %q", text)
	}
}

func TestEveningTiersAndMotivationType(t *testing.T) {
	t.Parallel()

	store, user := openStore(t, true)
	s := newTestScheduler(t, store, &fakeNotifier{}, nil)
	p := catalog.Default().Printer(user.Language)

	text, _, err := s.Compose(context.Background(), user, KindEvening)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if !strings.Contains(text, p.Sprintf("notify.evening.start")) || !strings.Contains(text, p.Sprintf("notify.evening.type.health")) {
		t.Fatalf("evening text = %q", text)
	}

	addMeal(t, store, user.ID, fixedNow.Add(-time.Hour), 1700)
	text, _, err = s.Compose(context.Background(), user, KindEvening)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if !strings.Contains(text, p.Sprintf("notify.evening.great")) {
		t.Fatalf("evening text = %q", text)
	}
}

func TestReminderSkipsRecentMeals(t *testing.T) {
	t.Parallel()

	store, user := openStore(t, true)
	s := newTestScheduler(t, store, &fakeNotifier{}, nil)

	addMeal(t, store, user.ID, fixedNow.Add(-5*time.Hour), 300)
	if _, skip, err := s.Compose(context.Background(), user, KindReminder); err != nil || skip {
		t.Fatalf("old meal: skip = %v, err = %v; want reminder", skip, err)
	}

	addMeal(t, store, user.ID, fixedNow.Add(-time.Hour), 300)
	if _, skip, err := s.Compose(context.Background(), user, KindReminder); err != nil || !skip {
		t.Fatalf("recent meal: skip = %v, err = %v; want skip", skip, err)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()

	store, _ := openStore(t, true)
	s := newTestScheduler(t, store, &fakeNotifier{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func newTestScheduler(t *testing.T, store Store, notifier Notifier, motivator Motivator) *Scheduler {
	t.Helper()
	s, err := New(Config{
		Store:           store,
		Notifier:        notifier,
		Motivator:       motivator,
		Printers:        catalog.Default(),
		DefaultTimezone: "UTC",
		Clock:           func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func openStore(t *testing.T, notifications bool) (*sqlite.Store, storage.UserRecord) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "eatbot.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	user, err := store.CreateUser(context.Background(), storage.UserRecord{TelegramID: 7001, FirstName: "Анна", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	user.Targets = domain.Targets{Calories: 2000, Protein: 120, Fat: 60, Carbs: 240}
	user.MotivationType = domain.MotivationHealth
	user.NotificationsEnabled = notifications
	if err := store.PutUser(context.Background(), user); err != nil {
		t.Fatalf("put user: %v", err)
	}
	user, err = store.GetUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return store, user
}

func addMeal(t *testing.T, store *sqlite.Store, userID int64, eatenAt time.Time, calories int) {
	t.Helper()
	if _, err := store.CreateMeal(context.Background(), storage.MealRecord{
		UserID:      userID,
		MealDate:    eatenAt.Format(time.DateOnly),
		EatenAt:     eatenAt,
		Calories:    calories,
		Description: "Еда",
	}); err != nil {
		t.Fatalf("create meal: %v", err)
	}
}

type fakeSuggester struct {
	ideas []string
	err   error
	got   []ai.MealSuggestionRequest
}

func (f *fakeSuggester) SuggestMeal(_ context.Context, req ai.MealSuggestionRequest) (ai.MealSuggestion, error) {
	f.got = append(f.got, req)
	return ai.MealSuggestion{Ideas: f.ideas}, f.err
}

func TestMiddayAddsLunchIdeasWhileBehind(t *testing.T) {
	t.Parallel()

	store, user := openStore(t, true)
	suggester := &fakeSuggester{ideas: []string{"Суп с фрикадельками", "Плов с курицей", "Салат с тунцом", "Омлет"}}
	s, err := New(Config{
		Store:           store,
		Notifier:        &fakeNotifier{},
		Suggester:       suggester,
		Printers:        catalog.Default(),
		DefaultTimezone: "UTC",
		Clock:           func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	p := catalog.Default().Printer(user.Language)

	addMeal(t, store, user.ID, fixedNow.Add(-5*time.Hour), 500)
	text, _, err := s.Compose(context.Background(), user, KindMidday)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	want := p.Sprintf("notify.midday.ideas") + "\n• Суп с фрикадельками\n• Плов с курицей\n• Салат с тунцом"
	if !strings.HasSuffix(text, want) {
		t.Fatalf("midday text = %q, want suffix %q", text, want)
	}
	if len(suggester.got) != 1 || suggester.got[0].MealType != domain.MealLunch || suggester.got[0].RemainingToday != 1500 {
		t.Fatalf("suggestion requests = %+v", suggester.got)
	}

	suggester.err = errors.New("timeout")
	text, _, err = s.Compose(context.Background(), user, KindMidday)
	if err != nil {
		t.Fatalf("compose after failure: %v", err)
	}
	if strings.Contains(text, p.Sprintf("notify.midday.ideas")) {
		t.Fatalf("ideas kept after failure: %q", text)
	}

	suggester.err = nil
	addMeal(t, store, user.ID, fixedNow.Add(-4*time.Hour), 700)
	if _, _, err := s.Compose(context.Background(), user, KindMidday); err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(suggester.got) != 2 {
		t.Fatalf("suggested past half the day: %d requests", len(suggester.got))
	}
}
