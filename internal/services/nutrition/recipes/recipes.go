// Package recipes generates, stores and renders recipe suggestions.
package recipes

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/louisbranch/eatbot/internal/services/nutrition/ai"
	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
)

const (
	recentMealsLimit  = 50
	minIngredients    = 3
	minCaloriesBudget = 50
	popularLimit      = 10
)

var (
	// ErrNoMeals means the user has not logged anything yet.
	ErrNoMeals = errors.New("no meals logged")
	// ErrNotEnoughFoods means recent meals mention fewer than three foods.
	ErrNotEnoughFoods = errors.New("not enough distinct foods")
	// ErrNoCaloriesLeft means at most 50 kcal remain for today.
	ErrNoCaloriesLeft = errors.New("no calories left today")
)

// Generator produces recipes.
type Generator interface {
	Recipe(ctx context.Context, req ai.RecipeRequest) (storage.RecipeRecord, error)
}

// NewIngredients is the catalog offered by WithNewIngredient.
var NewIngredients = []ai.NewIngredient{
	{Name: "квиноа", Category: "крупы", Benefit: "богата белком и клетчаткой"},
	{Name: "фуа-гра", Category: "деликатесы", Benefit: "источник витамина A и железа"},
	{Name: "семена чиа", Category: "семена", Benefit: "омега-3 и клетчатка"},
	{Name: "голубика", Category: "ягоды", Benefit: "антиоксиданты для иммунитета"},
	{Name: "гречка", Category: "крупы", Benefit: "безглютеновый источник железа"},
	{Name: "манго", Category: "фрукты", Benefit: "витамин C и каротин"},
	{Name: "куркума", Category: "специи", Benefit: "противовоспалительное действие"},
	{Name: "кокосовое масло", Category: "масла", Benefit: "среднецепочечные жирные кислоты"},
	{Name: "брокколи", Category: "овощи", Benefit: "витамины B и K, сульфорафан"},
	{Name: "имбирь", Category: "специи", Benefit: "уменьшает воспаления"},
}

// Service coordinates recipe generation with persistence.
type Service struct {
	recipes         storage.RecipeStore
	meals           storage.MealStore
	generator       Generator
	defaultTimezone string
	now             func() time.Time
	pick            func(n int) int
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPicker overrides the random catalog picker.
func WithPicker(pick func(n int) int) Option {
	return func(s *Service) {
		if pick != nil {
			s.pick = pick
		}
	}
}

// WithDefaultTimezone sets the zone used when a user has none.
func WithDefaultTimezone(name string) Option {
	return func(s *Service) {
		s.defaultTimezone = name
	}
}

// New builds a recipe service.
func New(recipes storage.RecipeStore, meals storage.MealStore, generator Generator, opts ...Option) *Service {
	s := &Service{
		recipes:   recipes,
		meals:     meals,
		generator: generator,
		now:       time.Now,
		pick:      rand.IntN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ready(ctx context.Context) error {
	if s == nil || s.recipes == nil || s.meals == nil || s.generator == nil {
		return fmt.Errorf("recipe service is not configured")
	}
	return ctx.Err()
}

// FromUserFoods builds a recipe from foods the user logged recently.
func (s *Service) FromUserFoods(ctx context.Context, user storage.UserRecord) (storage.RecipeRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.RecipeRecord{}, err
	}
	meals, err := s.meals.ListRecentMeals(ctx, user.ID, recentMealsLimit)
	if err != nil {
		return storage.RecipeRecord{}, fmt.Errorf("list recent meals: %w", err)
	}
	if len(meals) == 0 {
		return storage.RecipeRecord{}, ErrNoMeals
	}
	ingredients := IngredientsFromMeals(meals)
	if len(ingredients) < minIngredients {
		return storage.RecipeRecord{}, ErrNotEnoughFoods
	}
	return s.generate(ctx, user, ai.RecipeRequest{
		Mode:        ai.RecipeFromIngredients,
		Ingredients: ingredients,
		Profile:     user.Profile(),
	})
}

// WithNewIngredient builds a recipe around a random catalog product and
// returns the product alongside it.
func (s *Service) WithNewIngredient(ctx context.Context, user storage.UserRecord) (storage.RecipeRecord, ai.NewIngredient, error) {
	if err := s.ready(ctx); err != nil {
		return storage.RecipeRecord{}, ai.NewIngredient{}, err
	}
	ingredient := NewIngredients[s.pick(len(NewIngredients))]
	recipe, err := s.generate(ctx, user, ai.RecipeRequest{
		Mode:          ai.RecipeWithNewIngredient,
		NewIngredient: ingredient,
		Profile:       user.Profile(),
	})
	if err != nil {
		return storage.RecipeRecord{}, ai.NewIngredient{}, err
	}
	return recipe, ingredient, nil
}

// RemainingCalories returns today's target minus eaten calories in the
// user's timezone.
func (s *Service) RemainingCalories(ctx context.Context, user storage.UserRecord) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	today := s.now().In(user.Location(s.defaultTimezone)).Format(time.DateOnly)
	meals, err := s.meals.ListMealsForDay(ctx, user.ID, today)
	if err != nil {
		return 0, fmt.Errorf("list today's meals: %w", err)
	}
	return user.Targets.Calories - storage.TotalsOf(meals).Calories, nil
}

// UnderCalories builds a balanced recipe that fits the rest of today's
// calorie budget.
func (s *Service) UnderCalories(ctx context.Context, user storage.UserRecord) (storage.RecipeRecord, int, error) {
	remaining, err := s.RemainingCalories(ctx, user)
	if err != nil {
		return storage.RecipeRecord{}, 0, err
	}
	if remaining <= minCaloriesBudget {
		return storage.RecipeRecord{}, remaining, ErrNoCaloriesLeft
	}
	recipe, err := s.generate(ctx, user, ai.RecipeRequest{
		Mode:           ai.RecipeForCalories,
		TargetCalories: remaining,
		Profile:        user.Profile(),
	})
	if err != nil {
		return storage.RecipeRecord{}, remaining, err
	}
	if len(recipe.Tags) == 0 {
		recipe.Tags = []string{"сбалансированное питание", "здоровое питание"}
	}
	return recipe, remaining, nil
}

func (s *Service) generate(ctx context.Context, user storage.UserRecord, req ai.RecipeRequest) (storage.RecipeRecord, error) {
	recipe, err := s.generator.Recipe(ctx, req)
	if err != nil {
		return storage.RecipeRecord{}, fmt.Errorf("generate recipe: %w", err)
	}
	recipe.UserID = user.ID
	saved, err := s.recipes.CreateRecipe(ctx, recipe)
	if err != nil {
		return storage.RecipeRecord{}, fmt.Errorf("save recipe: %w", err)
	}
	return saved, nil
}

// Get loads one recipe.
func (s *Service) Get(ctx context.Context, id int64) (storage.RecipeRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.RecipeRecord{}, err
	}
	return s.recipes.GetRecipe(ctx, id)
}

// Popular lists recipes flagged as popular.
func (s *Service) Popular(ctx context.Context) ([]storage.RecipeRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.recipes.ListPopularRecipes(ctx, popularLimit)
}

// Favorites lists the user's favorite recipes.
func (s *Service) Favorites(ctx context.Context, userID int64) ([]storage.RecipeRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.recipes.ListFavoriteRecipes(ctx, userID)
}

// IsFavorite reports whether the user starred the recipe.
func (s *Service) IsFavorite(ctx context.Context, userID, recipeID int64) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	return s.recipes.IsFavorite(ctx, userID, recipeID)
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *Service) ToggleFavorite(ctx context.Context, userID, recipeID int64) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if _, err := s.recipes.GetRecipe(ctx, recipeID); err != nil {
		return false, err
	}
	favorite, err := s.recipes.IsFavorite(ctx, userID, recipeID)
	if err != nil {
		return false, err
	}
	if err := s.recipes.SetFavorite(ctx, userID, recipeID, !favorite); err != nil {
		return false, fmt.Errorf("set favorite: %w", err)
	}
	return !favorite, nil
}

var stopWords = map[string]struct{}{
	"грамм":  {},
	"г":      {},
	"ккал":   {},
	"приема": {},
	"прием":  {},
}

// IngredientsFromMeals extracts distinct lowercase words longer than two
// letters from meal descriptions, in first-seen order. Amounts are skipped.
func IngredientsFromMeals(meals []storage.MealRecord) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, meal := range meals {
		words := strings.FieldsFunc(strings.ToLower(meal.Description), func(r rune) bool {
			return r == ',' || r == '.' || unicode.IsSpace(r)
		})
		for _, word := range words {
			if utf8.RuneCountInString(word) <= 2 || domain.HasDigits(word) {
				continue
			}
			if _, skip := stopWords[word]; skip {
				continue
			}
			if _, dup := seen[word]; dup {
				continue
			}
			seen[word] = struct{}{}
			out = append(out, word)
		}
	}
	return out
}
