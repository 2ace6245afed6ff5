// Package bot routes Telegram updates through the nutrition dialogues:
// onboarding, settings, food logging, recipes and commands.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/louisbranch/eatbot/internal/platform/i18n/catalog"
	platformotel "github.com/louisbranch/eatbot/internal/platform/otel"
	"github.com/louisbranch/eatbot/internal/services/nutrition/ai"
	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/fooddb"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
	"github.com/louisbranch/eatbot/internal/services/nutrition/voice"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/message"
)

const (
	// DefaultMaxPhotoSize is the largest photo accepted for analysis.
	DefaultMaxPhotoSize = 10 << 20
	// foodDetailsTTL bounds how long a food clarification stays open.
	foodDetailsTTL = 10 * time.Minute
	// maxPortionGrams caps a portion weight reply.
	maxPortionGrams = 5000
)

// Sender is the subset of the Telegram Bot API the router uses.
// *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Store is the persistence the router needs.
type Store interface {
	storage.UserStore
	storage.MealStore
	storage.ProgressStore
	SaveAnalyzedFood(ctx context.Context, dataType string, analysis domain.Analysis) (int64, error)
}

// Analyzer estimates nutrition for text and photos.
type Analyzer interface {
	AnalyzeText(ctx context.Context, text string) (domain.Analysis, error)
	AnalyzePhoto(ctx context.Context, imageURL, caption string) (domain.Analysis, error)
}

// FoodFinder resolves foods from the reference databases.
type FoodFinder interface {
	Find(ctx context.Context, text string) (fooddb.Result, bool, error)
}

// Recipes generates and stores recipes.
type Recipes interface {
	FromUserFoods(ctx context.Context, user storage.UserRecord) (storage.RecipeRecord, error)
	WithNewIngredient(ctx context.Context, user storage.UserRecord) (storage.RecipeRecord, ai.NewIngredient, error)
	UnderCalories(ctx context.Context, user storage.UserRecord) (storage.RecipeRecord, int, error)
	Get(ctx context.Context, id int64) (storage.RecipeRecord, error)
	Popular(ctx context.Context) ([]storage.RecipeRecord, error)
	Favorites(ctx context.Context, userID int64) ([]storage.RecipeRecord, error)
	IsFavorite(ctx context.Context, userID, recipeID int64) (bool, error)
	ToggleFavorite(ctx context.Context, userID, recipeID int64) (bool, error)
}

// Scheduler manages per-user notification schedules.
type Scheduler interface {
	Start(ctx context.Context, userID int64) error
	Stop(userID int64)
}

// Printers resolves a message printer for a user language and looks up
// raw catalog messages.
type Printers interface {
	Printer(lang string) *message.Printer
	Message(locale, key string) (string, bool)
}

// Config wires the router's collaborators. Lookup, Transcriber, Recipes and
// Scheduler are optional; the features they back reply with an
// "unavailable" message when missing.
type Config struct {
	Sender      Sender
	Store       Store
	Analyzer    Analyzer
	Lookup      FoodFinder
	Transcriber voice.Transcriber
	Recipes     Recipes
	Scheduler   Scheduler
	Printers    Printers
	HTTPClient  *http.Client

	DefaultTimezone  string
	MaxPhotoSize     int
	MaxVoiceDuration time.Duration
	Clock            func() time.Time
}

// Router handles Telegram updates. Updates of different users run
// concurrently; updates of one user are serialized.
type Router struct {
	sender      Sender
	store       Store
	analyzer    Analyzer
	lookup      FoodFinder
	transcriber voice.Transcriber
	recipes     Recipes
	scheduler   Scheduler
	printers    Printers
	httpClient  *http.Client

	defaultTimezone  string
	maxPhotoSize     int
	maxVoiceDuration time.Duration
	now              func() time.Time

	tracer     trace.Tracer
	locks      *userLocks
	background sync.WaitGroup
}

// New builds a router.
func New(cfg Config) (*Router, error) {
	if cfg.Sender == nil {
		return nil, errors.New("telegram sender is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if cfg.Printers == nil {
		return nil, errors.New("printers are required")
	}
	if err := checkDialogueMessages(cfg.Printers); err != nil {
		return nil, err
	}
	r := &Router{
		sender:           cfg.Sender,
		store:            cfg.Store,
		analyzer:         cfg.Analyzer,
		lookup:           cfg.Lookup,
		transcriber:      cfg.Transcriber,
		recipes:          cfg.Recipes,
		scheduler:        cfg.Scheduler,
		printers:         cfg.Printers,
		httpClient:       cfg.HTTPClient,
		defaultTimezone:  strings.TrimSpace(cfg.DefaultTimezone),
		maxPhotoSize:     cfg.MaxPhotoSize,
		maxVoiceDuration: cfg.MaxVoiceDuration,
		now:              cfg.Clock,
		tracer:           platformotel.Tracer("bot"),
		locks:            newUserLocks(),
	}
	if r.httpClient == nil {
		r.httpClient = http.DefaultClient
	}
	if r.maxPhotoSize <= 0 {
		r.maxPhotoSize = DefaultMaxPhotoSize
	}
	if r.maxVoiceDuration <= 0 {
		r.maxVoiceDuration = voice.DefaultMaxDuration
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// checkDialogueMessages fails when an onboarding prompt has no base locale
// text.
func checkDialogueMessages(p Printers) error {
	var missing []string
	for _, keys := range []map[domain.State]string{onboardingQuestions, onboardingRetries} {
		for _, key := range keys {
			if _, ok := p.Message(catalog.BaseLocale, key); !ok {
				missing = append(missing, key)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("catalog %s is missing dialogue messages: %s", catalog.BaseLocale, strings.Join(missing, ", "))
}

// session carries the per-update conversation context.
type session struct {
	chatID int64
	user   storage.UserRecord
	p      *message.Printer
}

func (s *session) t(key string, args ...any) string {
	return s.p.Sprintf(key, args...)
}

// HandleUpdate processes one update. Errors are logged and reported to the
// user as a generic failure; HandleUpdate never panics on handler errors.
func (r *Router) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	from := update.SentFrom()
	if from == nil {
		return
	}
	ctx, span := r.tracer.Start(ctx, "bot.HandleUpdate", trace.WithAttributes(
		attribute.Int("telegram.update_id", update.UpdateID),
		attribute.Int64("telegram.user_id", from.ID),
	))
	defer span.End()

	unlock := r.locks.lock(from.ID)
	defer unlock()

	var (
		chatID int64
		err    error
	)
	switch {
	case update.CallbackQuery != nil:
		span.SetAttributes(attribute.String("telegram.update_kind", "callback"))
		if update.CallbackQuery.Message != nil {
			chatID = update.CallbackQuery.Message.Chat.ID
		}
		err = r.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		span.SetAttributes(attribute.String("telegram.update_kind", "message"))
		chatID = update.Message.Chat.ID
		err = r.handleMessage(ctx, update.Message)
	default:
		return
	}
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "handle update")
	log.Printf("bot: update %d from %d: %v", update.UpdateID, from.ID, err)
	if chatID != 0 {
		p := r.printers.Printer(from.LanguageCode)
		r.reply(chatID, p.Sprintf("core.error.general"))
	}
}

// Wait blocks until detached background work finishes.
func (r *Router) Wait() {
	r.background.Wait()
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil {
		return nil
	}
	if msg.IsCommand() && msg.Command() == "start" {
		return r.start(ctx, msg)
	}

	user, err := r.store.GetUserByTelegramID(ctx, msg.From.ID)
	if errors.Is(err, storage.ErrNotFound) {
		p := r.printers.Printer(msg.From.LanguageCode)
		return r.send(msg.Chat.ID, p.Sprintf("core.start_first"))
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	s := &session{chatID: msg.Chat.ID, user: user, p: r.printer(user)}

	if msg.IsCommand() {
		return r.command(ctx, s, msg.Command())
	}
	switch {
	case len(msg.Photo) > 0:
		return r.photo(ctx, s, msg)
	case msg.Voice != nil:
		return r.voice(ctx, s, msg.Voice)
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	if handled, err := r.menuButton(ctx, s, text); handled {
		return err
	}

	switch state := s.user.State; {
	case state.IsFoodClarification():
		return r.foodReply(ctx, s, text, "")
	case state.IsSettingsInput():
		return r.settingsInput(ctx, s, text)
	case state.IsOnboarding():
		return r.onboardingAnswer(ctx, s, text)
	case state != domain.StateNone:
		log.Printf("bot: user %d has unknown state %q, resetting", s.user.ID, state)
		s.user.State = domain.StateNone
		if err := r.saveUser(ctx, s); err != nil {
			return err
		}
	}
	return r.analyzeFood(ctx, s, text, media{})
}

func (r *Router) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q.From == nil || q.Message == nil || q.Message.Chat == nil {
		return nil
	}
	user, err := r.store.GetUserByTelegramID(ctx, q.From.ID)
	if errors.Is(err, storage.ErrNotFound) {
		p := r.printers.Printer(q.From.LanguageCode)
		r.answer(q.ID, p.Sprintf("core.start_first"))
		return nil
	}
	if err != nil {
		r.answer(q.ID, "")
		return fmt.Errorf("load user: %w", err)
	}
	s := &session{chatID: q.Message.Chat.ID, user: user, p: r.printer(user)}

	var toast string
	data := q.Data
	switch {
	case data == callbackSaveMeal || data == callbackCancelMeal:
		toast, err = r.confirmationCallback(ctx, s, q)
	case data == callbackCancelClarification:
		toast, err = r.cancelClarificationCallback(ctx, s, q)
	case strings.HasPrefix(data, recipePrefix):
		toast, err = r.recipeCallback(ctx, s, q)
	case strings.HasPrefix(data, settingsPrefix):
		toast, err = r.settingsCallback(ctx, s, q)
	default:
		toast = s.t("core.unknown_action")
	}
	if err != nil {
		toast = s.t("core.error.toast")
	}
	r.answer(q.ID, toast)
	return err
}

func (r *Router) printer(user storage.UserRecord) *message.Printer {
	return r.printers.Printer(user.Language)
}

func (r *Router) location(user storage.UserRecord) *time.Location {
	return user.Location(r.defaultTimezone)
}

// today returns the user's calendar date.
func (r *Router) today(user storage.UserRecord) string {
	return r.now().In(r.location(user)).Format(time.DateOnly)
}

func (r *Router) todayTotals(ctx context.Context, user storage.UserRecord) (domain.DayTotals, error) {
	meals, err := r.store.ListMealsForDay(ctx, user.ID, r.today(user))
	if err != nil {
		return domain.DayTotals{}, fmt.Errorf("list today's meals: %w", err)
	}
	return storage.TotalsOf(meals), nil
}

func (r *Router) saveUser(ctx context.Context, s *session) error {
	if err := r.store.PutUser(ctx, s.user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (r *Router) send(chatID int64, text string) error {
	return r.sendWithMarkup(chatID, text, nil)
}

func (r *Router) sendWithMarkup(chatID int64, text string, markup any) error {
	_, err := r.sendMessage(chatID, text, markup)
	return err
}

func (r *Router) sendMessage(chatID int64, text string, markup any) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := r.sender.Send(msg)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("send message: %w", err)
	}
	return sent, nil
}

// reply sends a best-effort message and only logs failures.
func (r *Router) reply(chatID int64, text string) {
	if err := r.send(chatID, text); err != nil {
		log.Printf("bot: reply to %d: %v", chatID, err)
	}
}

// edit replaces a message's text; a nil markup drops its inline keyboard.
func (r *Router) edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	cfg.ReplyMarkup = markup
	if _, err := r.sender.Request(cfg); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

func (r *Router) answer(callbackID, text string) {
	if _, err := r.sender.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.Printf("bot: answer callback: %v", err)
	}
}

// detach runs fn after the update finishes, bounded by timeout.
func (r *Router) detach(ctx context.Context, timeout time.Duration, fn func(context.Context)) {
	r.background.Add(1)
	go func() {
		defer r.background.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		fn(bg)
	}()
}

// userLocks serializes updates per Telegram user.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: map[int64]*userLock{}}
}

func (l *userLocks) lock(id int64) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &userLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
