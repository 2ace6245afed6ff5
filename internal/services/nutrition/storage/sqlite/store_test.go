package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenIsIdempotentAcrossRestarts(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "eatbot.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close first: %v", err)
	}
	second, err := Open(path)
	if err != nil {
		t.Fatalf("open second: %v", err)
	}
	if err := second.Close(); err != nil {
		t.Fatalf("close second: %v", err)
	}
}

func TestOpenAppliesConnectionPragmas(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	var journalMode string
	var busyTimeout, foreignKeys int
	if err := store.sqlDB.QueryRow(`PRAGMA journal_mode`).Scan(&journalMode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if err := store.sqlDB.QueryRow(`PRAGMA busy_timeout`).Scan(&busyTimeout); err != nil {
		t.Fatalf("read busy_timeout: %v", err)
	}
	if err := store.sqlDB.QueryRow(`PRAGMA foreign_keys`).Scan(&foreignKeys); err != nil {
		t.Fatalf("read foreign_keys: %v", err)
	}
	if journalMode != "wal" || busyTimeout != 5000 || foreignKeys != 1 {
		t.Fatalf("journal_mode=%q busy_timeout=%d foreign_keys=%d", journalMode, busyTimeout, foreignKeys)
	}
}

func TestConcurrentWritesWaitForLock(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, 11)
	eatenAt := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

	const writers = 8
	errs := make(chan error, writers*2)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.CreateMeal(ctx, storage.MealRecord{
				UserID:      user.ID,
				MealDate:    "2026-02-21",
				EatenAt:     eatenAt,
				Calories:    100 + i,
				Description: fmt.Sprintf("Гречка %d", i),
			})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := store.SaveAnalyzedFood(ctx, storage.FoodTypeAIAnalysis, domain.Analysis{
				Description: fmt.Sprintf("Блюдо %d", i),
				Calories:    150,
				Protein:     5,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent write: %v", err)
		}
	}

	meals, err := store.ListMealsForDay(ctx, user.ID, "2026-02-21")
	if err != nil {
		t.Fatalf("list meals: %v", err)
	}
	if len(meals) != writers {
		t.Fatalf("meals = %d, want %d", len(meals), writers)
	}
}

func TestCreateGetAndPutUser(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	expires := time.Date(2026, 2, 21, 12, 10, 0, 0, time.UTC)

	created, err := store.CreateUser(ctx, storage.UserRecord{
		TelegramID:           1001,
		Username:             " eater ",
		FirstName:            "Анна",
		NotificationsEnabled: true,
		State:                domain.StateGender,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.ID <= 0 {
		t.Fatalf("created id = %d, want positive", created.ID)
	}
	if created.Timezone != "Europe/Moscow" || created.Language != "ru" {
		t.Fatalf("defaults = %q/%q, want Europe/Moscow/ru", created.Timezone, created.Language)
	}

	if _, err := store.CreateUser(ctx, storage.UserRecord{TelegramID: 1001}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate create error = %v, want ErrConflict", err)
	}

	created.SetProfile(domain.Profile{
		Age:              30,
		Gender:           domain.GenderFemale,
		HeightCM:         165.5,
		WeightKG:         62,
		Goal:             domain.GoalLoseWeight,
		MotivationLevel:  domain.MotivationHigh,
		MotivationType:   domain.MotivationHealth,
		WorkoutFrequency: 3,
		DietMethod:       "интервальное голодание",
		FavoriteFoods:    []string{"гречка", "творог"},
		DislikedFoods:    []string{"печень"},
	})
	created.Targets = domain.Targets{Calories: 1800, Protein: 112, Fat: 40, Carbs: 250}
	created.State = domain.StateAwaitingFoodWeight
	created.FoodDetailsExpiresAt = &expires
	created.PendingAnalysis = &storage.PendingAnalysis{
		Query:    "банан",
		Source:   storage.SourceAI,
		Analysis: domain.Analysis{Description: "Банан 100г", Calories: 89, Protein: 1.1, Fat: 0.3, Carbs: 22.8},
	}
	created.PendingConfirmation = &storage.PendingConfirmation{
		Analysis: domain.Analysis{Description: "Банан 150г", Calories: 134},
		Source:   storage.SourceAI,
	}
	created.PendingConfirmationMessageID = 77
	if err := store.PutUser(ctx, created); err != nil {
		t.Fatalf("put user: %v", err)
	}

	got, err := store.GetUserByTelegramID(ctx, 1001)
	if err != nil {
		t.Fatalf("get user by telegram id: %v", err)
	}
	if got.Username != "eater" {
		t.Fatalf("username = %q, want %q", got.Username, "eater")
	}
	if got.HeightCM != 165.5 || got.Gender != domain.GenderFemale || got.Goal != domain.GoalLoseWeight {
		t.Fatalf("profile = %+v", got.Profile())
	}
	if got.Targets != created.Targets {
		t.Fatalf("targets = %+v, want %+v", got.Targets, created.Targets)
	}
	if len(got.FavoriteFoods) != 2 || got.FavoriteFoods[1] != "творог" {
		t.Fatalf("favorite foods = %v", got.FavoriteFoods)
	}
	if got.FoodDetailsExpiresAt == nil || !got.FoodDetailsExpiresAt.Equal(expires) {
		t.Fatalf("expires at = %v, want %v", got.FoodDetailsExpiresAt, expires)
	}
	if got.PendingAnalysis == nil || got.PendingAnalysis.Analysis.Carbs != 22.8 {
		t.Fatalf("pending analysis = %+v", got.PendingAnalysis)
	}
	if got.PendingConfirmation == nil || got.PendingConfirmation.Analysis.Calories != 134 {
		t.Fatalf("pending confirmation = %+v", got.PendingConfirmation)
	}
	if got.PendingConfirmationMessageID != 77 {
		t.Fatalf("confirmation message id = %d, want 77", got.PendingConfirmationMessageID)
	}
	if !got.Onboarded() {
		t.Fatal("expected onboarded user")
	}

	got.ClearFoodDialogue()
	got.PendingConfirmation = nil
	if err := store.PutUser(ctx, got); err != nil {
		t.Fatalf("put cleared user: %v", err)
	}
	cleared, err := store.GetUser(ctx, got.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if cleared.State != domain.StateNone || cleared.PendingAnalysis != nil || cleared.PendingConfirmation != nil || cleared.FoodDetailsExpiresAt != nil {
		t.Fatalf("cleared user = %+v", cleared)
	}
}

func TestGetUserNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.GetUserByTelegramID(context.Background(), 42); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if err := store.PutUser(context.Background(), storage.UserRecord{ID: 42, TelegramID: 42}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("put missing error = %v, want ErrNotFound", err)
	}
}

func TestListNotifiableUsers(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	onboarded := storage.UserRecord{TelegramID: 1, NotificationsEnabled: true, Targets: domain.Targets{Calories: 2000}}
	muted := storage.UserRecord{TelegramID: 2, NotificationsEnabled: false, Targets: domain.Targets{Calories: 2000}}
	fresh := storage.UserRecord{TelegramID: 3, NotificationsEnabled: true}
	for _, user := range []storage.UserRecord{onboarded, muted, fresh} {
		if _, err := store.CreateUser(ctx, user); err != nil {
			t.Fatalf("create user %d: %v", user.TelegramID, err)
		}
	}

	users, err := store.ListNotifiableUsers(ctx)
	if err != nil {
		t.Fatalf("list notifiable users: %v", err)
	}
	if len(users) != 1 || users[0].TelegramID != 1 {
		t.Fatalf("users = %+v, want only telegram id 1", users)
	}
}

func TestMealsForDayRecentAndCount(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, 5)
	base := time.Date(2026, 2, 21, 8, 0, 0, 0, time.UTC)

	for i, meal := range []storage.MealRecord{
		{MealDate: "2026-02-21", EatenAt: base, Calories: 300, Protein: 20, Fat: 10, Carbs: 30, Description: "Овсянка 200г"},
		{MealDate: "2026-02-21", EatenAt: base.Add(4 * time.Hour), Calories: 500, Protein: 40, Fat: 15, Carbs: 50, Description: "Курица с рисом"},
		{MealDate: "2026-02-22", EatenAt: base.Add(24 * time.Hour), Calories: 200, Description: "Яблоко"},
	} {
		meal.UserID = user.ID
		created, err := store.CreateMeal(ctx, meal)
		if err != nil {
			t.Fatalf("create meal %d: %v", i, err)
		}
		if created.MealType != domain.MealSnack {
			t.Fatalf("meal type = %q, want snack", created.MealType)
		}
	}

	day, err := store.ListMealsForDay(ctx, user.ID, "2026-02-21")
	if err != nil {
		t.Fatalf("list meals for day: %v", err)
	}
	if len(day) != 2 || day[0].Description != "Овсянка 200г" {
		t.Fatalf("day meals = %+v", day)
	}
	totals := storage.TotalsOf(day)
	if totals.Calories != 800 || totals.Protein != 60 || totals.Meals != 2 {
		t.Fatalf("totals = %+v", totals)
	}

	recent, err := store.ListRecentMeals(ctx, user.ID, 2)
	if err != nil {
		t.Fatalf("list recent meals: %v", err)
	}
	if len(recent) != 2 || recent[0].Description != "Яблоко" {
		t.Fatalf("recent meals = %+v", recent)
	}

	count, err := store.CountMealsSince(ctx, user.ID, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("count meals: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	if _, err := store.CreateMeal(ctx, storage.MealRecord{UserID: 999, Calories: 1}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("meal for missing user error = %v, want ErrNotFound", err)
	}
	if _, err := store.ListMealsForDay(ctx, user.ID, "21.02.2026"); err == nil {
		t.Fatal("expected invalid date error")
	}
}

func TestPutAndGetProgress(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, 6)

	if _, err := store.GetProgress(ctx, user.ID, "2026-02-21"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing progress error = %v, want ErrNotFound", err)
	}
	progress := storage.ProgressRecord{
		UserID:   user.ID,
		Date:     "2026-02-21",
		WeightKG: 80,
		Totals:   domain.DayTotals{Calories: 1200, Protein: 80, Fat: 40, Carbs: 120, Meals: 3},
	}
	if err := store.PutProgress(ctx, progress); err != nil {
		t.Fatalf("put progress: %v", err)
	}
	progress.WeightKG = 79.5
	progress.Totals.Meals = 4
	if err := store.PutProgress(ctx, progress); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	got, err := store.GetProgress(ctx, user.ID, "2026-02-21")
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if got.WeightKG != 79.5 || got.Totals.Meals != 4 || got.Totals.Calories != 1200 {
		t.Fatalf("progress = %+v", got)
	}
}

func TestRecordAndListDeliveries(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, 7)
	now := time.Date(2026, 2, 21, 7, 0, 0, 0, time.UTC)

	if err := store.RecordDelivery(ctx, storage.DeliveryRecord{UserID: user.ID, Kind: "morning", Message: "Доброе утро", Status: storage.DeliverySent, SentAt: now}); err != nil {
		t.Fatalf("record sent delivery: %v", err)
	}
	if err := store.RecordDelivery(ctx, storage.DeliveryRecord{UserID: user.ID, Kind: "midday", Status: storage.DeliveryFailed, LastError: "blocked", SentAt: now.Add(5 * time.Hour)}); err != nil {
		t.Fatalf("record failed delivery: %v", err)
	}
	if err := store.RecordDelivery(ctx, storage.DeliveryRecord{UserID: user.ID, Kind: "evening", Status: "queued"}); err == nil {
		t.Fatal("expected invalid status error")
	}

	deliveries, err := store.ListDeliveries(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(deliveries) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(deliveries))
	}
	if deliveries[0].Kind != "midday" || deliveries[0].LastError != "blocked" {
		t.Fatalf("newest delivery = %+v", deliveries[0])
	}
	if deliveries[1].ID == "" {
		t.Fatal("expected generated delivery id")
	}
}

func TestRecipesAndFavorites(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, 8)

	popular, err := store.CreateRecipe(ctx, storage.RecipeRecord{
		Title:       "Гречка с грибами",
		Ingredients: []storage.Ingredient{{Name: "гречка", Amount: "100", Unit: "г"}},
		Nutrition:   storage.RecipeNutrition{Calories: 350, Protein: 12, Fat: 6, Carbs: 60},
		Tags:        []string{"ужин"},
		IsPopular:   true,
	})
	if err != nil {
		t.Fatalf("create popular recipe: %v", err)
	}
	if popular.Difficulty != storage.DifficultyEasy || popular.Servings != 1 {
		t.Fatalf("recipe defaults = %q/%d", popular.Difficulty, popular.Servings)
	}
	own, err := store.CreateRecipe(ctx, storage.RecipeRecord{Title: "Омлет", UserID: user.ID, Difficulty: storage.DifficultyMedium})
	if err != nil {
		t.Fatalf("create user recipe: %v", err)
	}
	if _, err := store.CreateRecipe(ctx, storage.RecipeRecord{Title: "x", Difficulty: "extreme"}); err == nil {
		t.Fatal("expected invalid difficulty error")
	}

	got, err := store.GetRecipe(ctx, popular.ID)
	if err != nil {
		t.Fatalf("get recipe: %v", err)
	}
	if len(got.Ingredients) != 1 || got.Ingredients[0].Name != "гречка" || got.Nutrition.Calories != 350 {
		t.Fatalf("recipe = %+v", got)
	}
	if _, err := store.GetRecipe(ctx, 999); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing recipe error = %v, want ErrNotFound", err)
	}

	list, err := store.ListPopularRecipes(ctx, 10)
	if err != nil {
		t.Fatalf("list popular: %v", err)
	}
	if len(list) != 1 || list[0].ID != popular.ID {
		t.Fatalf("popular = %+v", list)
	}

	if err := store.SetFavorite(ctx, user.ID, own.ID, true); err != nil {
		t.Fatalf("set favorite: %v", err)
	}
	favorite, err := store.IsFavorite(ctx, user.ID, own.ID)
	if err != nil || !favorite {
		t.Fatalf("is favorite = %v, %v; want true", favorite, err)
	}
	favorites, err := store.ListFavoriteRecipes(ctx, user.ID)
	if err != nil {
		t.Fatalf("list favorites: %v", err)
	}
	if len(favorites) != 1 || favorites[0].Title != "Омлет" {
		t.Fatalf("favorites = %+v", favorites)
	}
	if err := store.SetFavorite(ctx, user.ID, own.ID, false); err != nil {
		t.Fatalf("unset favorite: %v", err)
	}
	favorites, err = store.ListFavoriteRecipes(ctx, user.ID)
	if err != nil {
		t.Fatalf("list favorites after unset: %v", err)
	}
	if len(favorites) != 0 {
		t.Fatalf("favorites after unset = %d, want 0", len(favorites))
	}
	if err := store.SetFavorite(ctx, user.ID, 999, true); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("favorite missing recipe error = %v, want ErrNotFound", err)
	}
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.GetUser(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func createTestUser(t *testing.T, store *Store, telegramID int64) storage.UserRecord {
	t.Helper()
	user, err := store.CreateUser(context.Background(), storage.UserRecord{TelegramID: telegramID, NotificationsEnabled: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	storePath := filepath.Join(t.TempDir(), "eatbot.db")
	store, err := Open(storePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := store.Close(); closeErr != nil {
			t.Fatalf("close store: %v", closeErr)
		}
	})
	return store
}
