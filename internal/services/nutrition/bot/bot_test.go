package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/louisbranch/eatbot/internal/platform/i18n/catalog"
	"github.com/louisbranch/eatbot/internal/services/nutrition/ai"
	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage/sqlite"
	"golang.org/x/text/message"
)

const testUserID int64 = 5001

var testNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
	fileBase string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) GetFileDirectURL(fileID string) (string, error) {
	base := f.fileBase
	if base == "" {
		base = "https://files.test"
	}
	return base + "/" + fileID, nil
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeSender) lastMessage(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	msgs := f.messages()
	if len(msgs) == 0 {
		t.Fatal("no messages sent")
	}
	return msgs[len(msgs)-1]
}

func (f *fakeSender) edits() []tgbotapi.EditMessageTextConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.EditMessageTextConfig
	for _, c := range f.requests {
		if edit, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, edit)
		}
	}
	return out
}

func (f *fakeSender) answers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb.Text)
		}
	}
	return out
}

func (f *fakeSender) lastAnswer(t *testing.T) string {
	t.Helper()
	answers := f.answers()
	if len(answers) == 0 {
		t.Fatal("callback was not answered")
	}
	return answers[len(answers)-1]
}

type fakeAnalyzer struct {
	mu         sync.Mutex
	text       map[string]domain.Analysis
	photo      domain.Analysis
	photoErr   error
	textCalls  []string
	photoCalls []string
}

func (a *fakeAnalyzer) AnalyzeText(_ context.Context, text string) (domain.Analysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.textCalls = append(a.textCalls, text)
	if result, ok := a.text[text]; ok {
		return result, nil
	}
	return domain.Analysis{}, ai.ErrInvalidReply
}

func (a *fakeAnalyzer) AnalyzePhoto(_ context.Context, imageURL, _ string) (domain.Analysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.photoCalls = append(a.photoCalls, imageURL)
	return a.photo, a.photoErr
}

type fakeScheduler struct {
	mu      sync.Mutex
	started []int64
	stopped []int64
	err     error
}

func (s *fakeScheduler) Start(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.started = append(s.started, userID)
	return nil
}

func (s *fakeScheduler) Stop(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, userID)
}

type harness struct {
	router    *Router
	sender    *fakeSender
	store     *sqlite.Store
	analyzer  *fakeAnalyzer
	scheduler *fakeScheduler
	p         *message.Printer
	now       time.Time
}

func newHarness(t *testing.T, configure ...func(*Config)) *harness {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "eatbot.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		sender:    &fakeSender{},
		store:     store,
		analyzer:  &fakeAnalyzer{text: map[string]domain.Analysis{}},
		scheduler: &fakeScheduler{},
		p:         catalog.Default().Printer("ru"),
		now:       testNow,
	}
	cfg := Config{
		Sender:          h.sender,
		Store:           store,
		Analyzer:        h.analyzer,
		Scheduler:       h.scheduler,
		Printers:        catalog.Default(),
		DefaultTimezone: "UTC",
		Clock:           func() time.Time { return h.now },
	}
	for _, fn := range configure {
		fn(&cfg)
	}
	h.router, err = New(cfg)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(h.router.Wait)
	return h
}

func (h *harness) onboardedUser(t *testing.T) storage.UserRecord {
	t.Helper()
	ctx := context.Background()
	user, err := h.store.CreateUser(ctx, storage.UserRecord{
		TelegramID:           testUserID,
		FirstName:            "Анна",
		Timezone:             "UTC",
		NotificationsEnabled: true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	user.Gender = domain.GenderFemale
	user.Age = 30
	user.HeightCM = 168
	user.WeightKG = 62
	user.Activity = domain.ActivityMedium
	user.Goal = domain.GoalMaintain
	user.MotivationLevel = domain.MotivationHigh
	user.Targets = domain.Targets{Calories: 2000, Protein: 120, Fat: 60, Carbs: 240}
	if err := h.store.PutUser(ctx, user); err != nil {
		t.Fatalf("put user: %v", err)
	}
	return h.user(t)
}

func (h *harness) user(t *testing.T) storage.UserRecord {
	t.Helper()
	user, err := h.store.GetUserByTelegramID(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return user
}

func (h *harness) text(text string) {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: testUserID, FirstName: "Анна", LanguageCode: "ru"},
		Chat:      &tgbotapi.Chat{ID: testUserID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		command := strings.Fields(text)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}}
	}
	h.message(msg)
}

func (h *harness) message(msg *tgbotapi.Message) {
	if msg.From == nil {
		msg.From = &tgbotapi.User{ID: testUserID, FirstName: "Анна", LanguageCode: "ru"}
	}
	if msg.Chat == nil {
		msg.Chat = &tgbotapi.Chat{ID: testUserID}
	}
	h.router.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: 1, Message: msg})
}

func (h *harness) callback(messageID int, messageText, data string, markup *tgbotapi.InlineKeyboardMarkup) {
	h.router.HandleUpdate(context.Background(), tgbotapi.Update{
		UpdateID: 2,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb-1",
			From: &tgbotapi.User{ID: testUserID, LanguageCode: "ru"},
			Message: &tgbotapi.Message{
				MessageID:   messageID,
				Chat:        &tgbotapi.Chat{ID: testUserID},
				Text:        messageText,
				ReplyMarkup: markup,
			},
			Data: data,
		},
	})
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatal("expected missing sender error")
	}
	if _, err := New(Config{Sender: &fakeSender{}}); err == nil {
		t.Fatal("expected missing store error")
	}
}

type partialCatalog struct {
	*catalog.Bundle
	drop string
}

func (c partialCatalog) Message(locale, key string) (string, bool) {
	if key == c.drop {
		return "", false
	}
	return c.Bundle.Message(locale, key)
}

func TestNewRejectsMissingDialogueMessages(t *testing.T) {
	t.Parallel()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "eatbot.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := Config{
		Sender:   &fakeSender{},
		Store:    store,
		Analyzer: &fakeAnalyzer{text: map[string]domain.Analysis{}},
		Printers: partialCatalog{Bundle: catalog.Default(), drop: "onboarding.invalid.age"},
	}
	_, err = New(cfg)
	if err == nil || !strings.Contains(err.Error(), "onboarding.invalid.age") {
		t.Fatalf("error = %v, want missing onboarding.invalid.age", err)
	}

	cfg.Printers = catalog.Default()
	if _, err := New(cfg); err != nil {
		t.Fatalf("new router with full catalog: %v", err)
	}
}

func TestUnknownUserIsAskedToStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.text("привет")

	if got, want := h.sender.lastMessage(t).Text, h.p.Sprintf("core.start_first"); got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}

func TestStartRegistersUserAndAsksGender(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.text("/start")

	user := h.user(t)
	if user.State != domain.StateGender || user.FirstName != "Анна" || !user.NotificationsEnabled {
		t.Fatalf("user = %+v", user)
	}
	want := h.p.Sprintf("onboarding.welcome") + "\n\n" + h.p.Sprintf("onboarding.ask.gender")
	if got := h.sender.lastMessage(t).Text; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}

func TestStartWelcomesBackOnboardedUser(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	user := h.onboardedUser(t)
	user.State = domain.StateSettingsWeight
	if err := h.store.PutUser(context.Background(), user); err != nil {
		t.Fatalf("put user: %v", err)
	}

	h.text("/start")

	if got := h.user(t).State; got != domain.StateNone {
		t.Fatalf("state = %q, want none", got)
	}
	last := h.sender.lastMessage(t)
	if last.Text != h.p.Sprintf("core.welcome_back", "Анна") {
		t.Fatalf("reply = %q", last.Text)
	}
	if _, ok := last.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup); !ok {
		t.Fatalf("markup = %T, want reply keyboard", last.ReplyMarkup)
	}
}

func TestOnboardingInvalidAnswerRepeatsQuestion(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.text("/start")
	h.text("Мужчина")

	h.text("двести")
	if got, want := h.sender.lastMessage(t).Text, h.p.Sprintf("onboarding.invalid.age"); got != want {
		t.Fatalf("invalid reply = %q, want %q", got, want)
	}
	if state := h.user(t).State; state != domain.StateAge {
		t.Fatalf("state = %v, want %v", state, domain.StateAge)
	}

	h.text("35")
	if got, want := h.sender.lastMessage(t).Text, h.p.Sprintf("onboarding.ask.height"); got != want {
		t.Fatalf("next question = %q, want %q", got, want)
	}
}

func TestOnboardingDialogueCompletesAndSchedules(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.text("/start")

	h.text("кот")
	if got, want := h.sender.lastMessage(t).Text, h.p.Sprintf("onboarding.invalid.gender"); got != want {
		t.Fatalf("invalid reply = %q, want %q", got, want)
	}

	answers := []struct {
		text string
		next string
	}{
		{"Женщина", "onboarding.ask.age"},
		{"28", "onboarding.ask.height"},
		{"165", "onboarding.ask.weight"},
		{"60,5", "onboarding.ask.goal"},
		{"похудеть", "onboarding.ask.motivation_level"},
		{"2", "onboarding.ask.motivation_type"},
		{"здоровье", "onboarding.ask.workout_frequency"},
		{"3", "onboarding.ask.diet_method"},
		{"без системы", "onboarding.ask.favorite_foods"},
		{"творог, гречка", "onboarding.ask.disliked_foods"},
	}
	for _, answer := range answers {
		h.text(answer.text)
		if got, want := h.sender.lastMessage(t).Text, h.p.Sprintf(answer.next); got != want {
			t.Fatalf("after %q reply = %q, want %q", answer.text, got, want)
		}
	}
	h.text("печень")

	user := h.user(t)
	if user.State != domain.StateNone {
		t.Fatalf("state = %q, want none", user.State)
	}
	want := domain.OnboardingTargets(user.Profile())
	if user.Targets != want || want.IsZero() {
		t.Fatalf("targets = %+v, want %+v", user.Targets, want)
	}
	summary := h.p.Sprintf("onboarding.complete", want.Calories, want.Protein, want.Fat, want.Carbs)
	if got := h.sender.lastMessage(t).Text; got != summary {
		t.Fatalf("summary = %q, want %q", got, summary)
	}
	if len(h.scheduler.started) != 1 || h.scheduler.started[0] != user.ID {
		t.Fatalf("scheduler started = %v", h.scheduler.started)
	}
}

func TestUnknownStateIsResetBeforeFoodFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.text("/start")
	user := h.user(t)
	user.State = "mystery"
	if err := h.store.PutUser(context.Background(), user); err != nil {
		t.Fatalf("put user: %v", err)
	}
	h.analyzer.text["яблоко 100 г"] = domain.Analysis{Description: "Яблоко 100г", Calories: 52, Carbs: 14}

	h.text("яблоко 100 г")

	if got := h.user(t).State; got != domain.StateNone {
		t.Fatalf("state = %q, want none", got)
	}
	if len(h.analyzer.textCalls) != 1 {
		t.Fatalf("analyzer calls = %v", h.analyzer.textCalls)
	}
}

func TestStatsShowsTargetsAndRemaining(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	user := h.onboardedUser(t)
	if _, err := h.store.CreateMeal(context.Background(), storage.MealRecord{
		UserID:   user.ID,
		MealDate: "2026-05-04",
		EatenAt:  testNow,
		MealType: domain.MealSnack,
		Calories: 500,
		Protein:  20,
		Fat:      10,
		Carbs:    60,
	}); err != nil {
		t.Fatalf("create meal: %v", err)
	}

	h.text("/stats")

	text := h.sender.lastMessage(t).Text
	for _, want := range []string{
		h.p.Sprintf("stats.targets", 2000, 120, 60, 240),
		h.p.Sprintf("stats.goal", h.p.Sprintf("core.goal.maintain")),
		h.p.Sprintf("stats.today", 500, 20.0, 10.0, 60.0),
		h.p.Sprintf("stats.remaining", 1500),
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("stats missing %q:\n%s", want, text)
		}
	}
}

func TestStatsWithoutTargets(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.text("/start")
	h.text("/stats")

	want := h.p.Sprintf("stats.title") + "\n\n" + h.p.Sprintf("stats.no_targets")
	if got := h.sender.lastMessage(t).Text; got != want {
		t.Fatalf("stats = %q, want %q", got, want)
	}
}

func TestMenuButtonRoutesToHandler(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.onboardedUser(t)
	h.text(h.p.Sprintf("core.button.help"))

	if got, want := h.sender.lastMessage(t).Text, h.p.Sprintf("core.help"); got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}

func TestNotificationCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	user := h.onboardedUser(t)

	h.text("/disable_notifications")
	if h.user(t).NotificationsEnabled {
		t.Fatal("notifications still enabled")
	}
	if len(h.scheduler.stopped) != 1 || h.scheduler.stopped[0] != user.ID {
		t.Fatalf("stopped = %v", h.scheduler.stopped)
	}

	h.scheduler.err = errors.New("cron down")
	h.text("/enable_notifications")
	if got, want := h.sender.lastMessage(t).Text, h.p.Sprintf("core.notifications.enable_failed"); got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
	if !h.user(t).NotificationsEnabled {
		t.Fatal("flag should be saved even when scheduling fails")
	}
}

func TestMenuCommandsAreLocalized(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	commands := h.router.MenuCommands("ru")
	if len(commands) != len(Commands) {
		t.Fatalf("commands = %d, want %d", len(commands), len(Commands))
	}
	for _, command := range commands {
		if command.Description == "" || strings.HasPrefix(command.Description, "core.command.") {
			t.Fatalf("command %q has description %q", command.Command, command.Description)
		}
	}
}

type failingMealsStore struct {
	*sqlite.Store
}

func (failingMealsStore) ListMealsForDay(context.Context, int64, string) ([]storage.MealRecord, error) {
	return nil, errors.New("disk on fire")
}

func TestHandlerErrorRepliesGenericError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.router.store = failingMealsStore{Store: h.store}
	h.onboardedUser(t)

	h.text("/stats")

	if got, want := h.sender.lastMessage(t).Text, h.p.Sprintf("core.error.general"); got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}

func TestUnknownCallbackIsAnswered(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.onboardedUser(t)
	h.callback(10, "", "mystery", nil)

	if got, want := h.sender.lastAnswer(t), h.p.Sprintf("core.unknown_action"); got != want {
		t.Fatalf("answer = %q, want %q", got, want)
	}
}

func TestUserLocksSerializeSameUser(t *testing.T) {
	t.Parallel()

	locks := newUserLocks()
	unlock := locks.lock(1)
	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		release := locks.lock(1)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(20 * time.Millisecond):
	}
	unlockOther := locks.lock(2)
	unlockOther()

	unlock()
	<-acquired
	locks.mu.Lock()
	defer locks.mu.Unlock()
	if len(locks.locks) != 0 {
		t.Fatalf("locks left = %d", len(locks.locks))
	}
}
