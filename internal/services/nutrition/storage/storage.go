// Package storage defines persistence records and store contracts for the
// nutrition bot.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write conflicts with a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
)

// AnalysisSource identifies where a pending per-100 g analysis came from.
type AnalysisSource string

const (
	SourceLocal AnalysisSource = "local"
	SourceUSDA  AnalysisSource = "usda"
	SourceAI    AnalysisSource = "ai"
	SourcePhoto AnalysisSource = "photo"
)

// PendingAnalysis is a per-100 g estimate waiting for the user to send a
// portion weight.
type PendingAnalysis struct {
	Query    string          `json:"query"`
	Source   AnalysisSource  `json:"source"`
	Analysis domain.Analysis `json:"analysis"`
	PhotoID  string          `json:"photo_id,omitempty"`
	AudioID  string          `json:"audio_id,omitempty"`
}

// PendingConfirmation is a portion estimate waiting for save/cancel.
type PendingConfirmation struct {
	Analysis domain.Analysis `json:"analysis"`
	Source   AnalysisSource  `json:"source"`
	PhotoID  string          `json:"photo_id,omitempty"`
	AudioID  string          `json:"audio_id,omitempty"`
}

// UserRecord stores one Telegram user with profile, targets and dialogue
// state.
type UserRecord struct {
	ID         int64
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string

	Age              int
	Gender           domain.Gender
	HeightCM         float64
	WeightKG         float64
	Activity         domain.ActivityLevel
	TargetWeightKG   float64
	Targets          domain.Targets
	MotivationLevel  domain.MotivationLevel
	Goal             domain.Goal
	DietMethod       string
	FavoriteFoods    []string
	DislikedFoods    []string
	MotivationType   domain.MotivationType
	SetbackPatterns  string
	WorkoutFrequency int
	TrainingMethod   string

	Timezone             string
	Language             string
	NotificationsEnabled bool

	State                        domain.State
	PendingFoodDescription       string
	FoodDetailsExpiresAt         *time.Time
	PendingAnalysis              *PendingAnalysis
	PendingConfirmation          *PendingConfirmation
	PendingConfirmationMessageID int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile projects the formula-relevant fields.
func (u UserRecord) Profile() domain.Profile {
	return domain.Profile{
		Age:              u.Age,
		Gender:           u.Gender,
		HeightCM:         u.HeightCM,
		WeightKG:         u.WeightKG,
		Activity:         u.Activity,
		Goal:             u.Goal,
		MotivationLevel:  u.MotivationLevel,
		MotivationType:   u.MotivationType,
		WorkoutFrequency: u.WorkoutFrequency,
		DietMethod:       u.DietMethod,
		FavoriteFoods:    append([]string(nil), u.FavoriteFoods...),
		DislikedFoods:    append([]string(nil), u.DislikedFoods...),
	}
}

// SetProfile copies profile fields back onto the record.
func (u *UserRecord) SetProfile(p domain.Profile) {
	u.Age = p.Age
	u.Gender = p.Gender
	u.HeightCM = p.HeightCM
	u.WeightKG = p.WeightKG
	u.Activity = p.Activity
	u.Goal = p.Goal
	u.MotivationLevel = p.MotivationLevel
	u.MotivationType = p.MotivationType
	u.WorkoutFrequency = p.WorkoutFrequency
	u.DietMethod = p.DietMethod
	u.FavoriteFoods = append([]string(nil), p.FavoriteFoods...)
	u.DislikedFoods = append([]string(nil), p.DislikedFoods...)
}

// Onboarded reports whether the user finished onboarding.
func (u UserRecord) Onboarded() bool {
	return !u.Targets.IsZero() && !u.State.IsOnboarding()
}

// ClearFoodDialogue drops every pending food clarification value.
func (u *UserRecord) ClearFoodDialogue() {
	if u.State.IsFoodClarification() {
		u.State = domain.StateNone
	}
	u.PendingFoodDescription = ""
	u.FoodDetailsExpiresAt = nil
	u.PendingAnalysis = nil
}

// Location resolves the user's timezone, falling back to fallback and then
// UTC.
func (u UserRecord) Location(fallback string) *time.Location {
	for _, name := range []string{u.Timezone, fallback} {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

// MealRecord stores one logged meal.
type MealRecord struct {
	ID           int64
	UserID       int64
	MealDate     string
	EatenAt      time.Time
	MealType     domain.MealType
	Calories     int
	Protein      float64
	Fat          float64
	Carbs        float64
	Description  string
	PhotoFileID  string
	AudioFileID  string
	AnalysisJSON string
	CreatedAt    time.Time
}

// TotalsOf sums meals into day totals.
func TotalsOf(meals []MealRecord) domain.DayTotals {
	var totals domain.DayTotals
	for _, meal := range meals {
		totals.Add(domain.Analysis{
			Calories: float64(meal.Calories),
			Protein:  meal.Protein,
			Fat:      meal.Fat,
			Carbs:    meal.Carbs,
		})
	}
	return totals
}

// Ingredient is one line of a recipe ingredient list.
type Ingredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
}

// RecipeNutrition is per-serving nutrition of a recipe.
type RecipeNutrition struct {
	Calories int     `json:"calories"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
	Carbs    float64 `json:"carbs"`
}

// Recipe difficulty levels.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// RecipeRecord stores one recipe; UserID is zero for catalog recipes.
type RecipeRecord struct {
	ID             int64
	Title          string
	Description    string
	Ingredients    []Ingredient
	Instructions   string
	Nutrition      RecipeNutrition
	Difficulty     string
	CookingTimeMin int
	Servings       int
	Tags           []string
	UserID         int64
	IsPopular      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProgressRecord stores one day of body measurements and nutrition totals.
type ProgressRecord struct {
	UserID        int64
	Date          string
	WeightKG      float64
	BodyFatPct    float64
	MuscleMassKG  float64
	ChestCM       float64
	WaistCM       float64
	HipsCM        float64
	Totals        domain.DayTotals
	WorkoutsCount int
	Notes         string
	UpdatedAt     time.Time
}

// Food data types.
const (
	FoodTypeFoundation  = "foundation_food"
	FoodTypeLocalImport = "local_import"
	FoodTypeAIAnalysis  = "ai_analysis"
	FoodTypeUSDASearch  = "usda_search"
)

// Nutrient numbers in the FoodData Central numbering.
const (
	NutrientProtein      = 203
	NutrientFat          = 204
	NutrientCarbs        = 205
	NutrientEnergy       = 208
	NutrientEnergyAtwood = 957
)

// FoodRecord stores one reference food.
type FoodRecord struct {
	ID               int64
	FDCID            int64
	DataType         string
	Description      string
	DescriptionEN    string
	DescriptionRU    string
	DescriptionLower string
	FoodCategoryID   int64
	PublishedAt      time.Time
}

// NutrientRecord stores one nutrient definition.
type NutrientRecord struct {
	ID             int64
	FDCNutrientID  int64
	Name           string
	UnitName       string
	NutrientNumber int
	Rank           float64
}

// FoodNutrientRecord stores one nutrient amount per 100 g of a food.
type FoodNutrientRecord struct {
	FoodDataID   int64
	NutrientID   int64
	Amount       float64
	DerivationID int64
	Min          *float64
	Max          *float64
	Units        string
}

// FoodMatch is a search hit with nutrition per 100 g.
type FoodMatch struct {
	Food    FoodRecord
	Per100g domain.Analysis
}

// DisplayName prefers the Russian name.
func (m FoodMatch) DisplayName() string {
	if name := strings.TrimSpace(m.Food.DescriptionRU); name != "" {
		return name
	}
	return m.Food.Description
}

// Delivery statuses.
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// DeliveryRecord stores one scheduled notification attempt.
type DeliveryRecord struct {
	ID        string
	UserID    int64
	Kind      string
	Message   string
	Status    string
	LastError string
	SentAt    time.Time
}

// UserStore persists users and their dialogue state.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (UserRecord, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (UserRecord, error)
	CreateUser(ctx context.Context, user UserRecord) (UserRecord, error)
	PutUser(ctx context.Context, user UserRecord) error
	ListNotifiableUsers(ctx context.Context) ([]UserRecord, error)
}

// MealStore persists logged meals.
type MealStore interface {
	CreateMeal(ctx context.Context, meal MealRecord) (MealRecord, error)
	ListMealsForDay(ctx context.Context, userID int64, date string) ([]MealRecord, error)
	ListRecentMeals(ctx context.Context, userID int64, limit int) ([]MealRecord, error)
	CountMealsSince(ctx context.Context, userID int64, since time.Time) (int, error)
}

// RecipeStore persists recipes and per-user favorites.
type RecipeStore interface {
	CreateRecipe(ctx context.Context, recipe RecipeRecord) (RecipeRecord, error)
	GetRecipe(ctx context.Context, id int64) (RecipeRecord, error)
	ListPopularRecipes(ctx context.Context, limit int) ([]RecipeRecord, error)
	ListFavoriteRecipes(ctx context.Context, userID int64) ([]RecipeRecord, error)
	SetFavorite(ctx context.Context, userID int64, recipeID int64, favorite bool) error
	IsFavorite(ctx context.Context, userID int64, recipeID int64) (bool, error)
}

// FoodStore persists the food reference tables.
type FoodStore interface {
	SearchFoods(ctx context.Context, term string, limit int) ([]FoodMatch, error)
	SaveAnalyzedFood(ctx context.Context, dataType string, analysis domain.Analysis) (int64, error)
	UpsertNutrient(ctx context.Context, nutrient NutrientRecord) (int64, error)
	PutFood(ctx context.Context, food FoodRecord) (int64, error)
	PutFoodNutrient(ctx context.Context, record FoodNutrientRecord) error
}

// ProgressStore persists daily progress rows.
type ProgressStore interface {
	PutProgress(ctx context.Context, progress ProgressRecord) error
	GetProgress(ctx context.Context, userID int64, date string) (ProgressRecord, error)
}

// DeliveryStore persists scheduled notification attempts.
type DeliveryStore interface {
	RecordDelivery(ctx context.Context, delivery DeliveryRecord) error
	ListDeliveries(ctx context.Context, userID int64, limit int) ([]DeliveryRecord, error)
}
