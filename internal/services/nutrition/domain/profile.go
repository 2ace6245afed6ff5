package domain

import (
	"strings"
)

// Gender is the biological sex used by the BMR formula.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Goal is the user's main nutrition goal.
type Goal string

const (
	GoalLoseWeight Goal = "lose_weight"
	GoalGainMuscle Goal = "gain_muscle"
	GoalMaintain   Goal = "maintain"
	GoalHealth     Goal = "health"
)

// Goals lists goals in menu order.
var Goals = []Goal{GoalLoseWeight, GoalGainMuscle, GoalMaintain, GoalHealth}

// MotivationLevel is the self-reported motivation level.
type MotivationLevel string

const (
	MotivationLow    MotivationLevel = "low"
	MotivationMedium MotivationLevel = "medium"
	MotivationHigh   MotivationLevel = "high"
)

// MotivationLevels lists levels in menu order.
var MotivationLevels = []MotivationLevel{MotivationLow, MotivationMedium, MotivationHigh}

// MotivationType is what drives the user.
type MotivationType string

const (
	MotivationAchievement MotivationType = "achievement"
	MotivationHealth      MotivationType = "health"
	MotivationAppearance  MotivationType = "appearance"
	MotivationComfort     MotivationType = "comfort"
)

// MotivationTypes lists motivation types in menu order.
var MotivationTypes = []MotivationType{MotivationAchievement, MotivationHealth, MotivationAppearance, MotivationComfort}

// ActivityLevel is the everyday activity level.
type ActivityLevel string

const (
	ActivityLow    ActivityLevel = "low"
	ActivityMedium ActivityLevel = "medium"
	ActivityHigh   ActivityLevel = "high"
)

// MealType classifies a logged meal.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

// Share returns the fraction of daily calories planned for the meal.
func (m MealType) Share() float64 {
	switch m {
	case MealBreakfast:
		return 0.25
	case MealLunch:
		return 0.35
	case MealDinner:
		return 0.3
	default:
		return 0.1
	}
}

// Profile holds the user attributes the nutrition formulas and dialogues
// work with. Zero values mean "not provided".
type Profile struct {
	Age              int
	Gender           Gender
	HeightCM         float64
	WeightKG         float64
	Activity         ActivityLevel
	Goal             Goal
	MotivationLevel  MotivationLevel
	MotivationType   MotivationType
	WorkoutFrequency int
	DietMethod       string
	FavoriteFoods    []string
	DislikedFoods    []string
}

// HasBodyMetrics reports whether BMR can be computed.
func (p Profile) HasBodyMetrics() bool {
	return p.Age > 0 && p.Gender != "" && p.HeightCM > 0 && p.WeightKG > 0
}

var genderWords = map[string]Gender{
	"муж":     GenderMale,
	"мужчина": GenderMale,
	"мужской": GenderMale,
	"male":    GenderMale,
	"жен":     GenderFemale,
	"женщина": GenderFemale,
	"женский": GenderFemale,
	"female":  GenderFemale,
}

// ParseGender matches a free-text gender answer exactly.
func ParseGender(text string) (Gender, bool) {
	gender, ok := genderWords[normalize(text)]
	return gender, ok
}

type keyword[T any] struct {
	word  string
	value T
}

var goalWords = []keyword[Goal]{
	{"похудеть", GoalLoseWeight},
	{"снизить вес", GoalLoseWeight},
	{"lose_weight", GoalLoseWeight},
	{"набрать", GoalGainMuscle},
	{"мышечную", GoalGainMuscle},
	{"gain_muscle", GoalGainMuscle},
	{"поддерживать", GoalMaintain},
	{"maintain", GoalMaintain},
	{"здоровье", GoalHealth},
	{"health", GoalHealth},
}

// ParseGoal matches a goal answer exactly first, then by substring.
func ParseGoal(text string) (Goal, bool) {
	value := normalize(text)
	if value == "" {
		return "", false
	}
	for _, kw := range goalWords {
		if value == kw.word {
			return kw.value, true
		}
	}
	for _, kw := range goalWords {
		if strings.Contains(value, kw.word) {
			return kw.value, true
		}
	}
	return "", false
}

var motivationLevelWords = map[string]MotivationLevel{
	"1":       MotivationLow,
	"низкий":  MotivationLow,
	"low":     MotivationLow,
	"2":       MotivationMedium,
	"средний": MotivationMedium,
	"medium":  MotivationMedium,
	"3":       MotivationHigh,
	"высокий": MotivationHigh,
	"high":    MotivationHigh,
}

// ParseMotivationLevel matches a motivation level answer exactly.
func ParseMotivationLevel(text string) (MotivationLevel, bool) {
	level, ok := motivationLevelWords[normalize(text)]
	return level, ok
}

var motivationTypeWords = []keyword[MotivationType]{
	{"достижени", MotivationAchievement},
	{"результат", MotivationAchievement},
	{"achievement", MotivationAchievement},
	{"здоровье", MotivationHealth},
	{"health", MotivationHealth},
	{"внешн", MotivationAppearance},
	{"вид", MotivationAppearance},
	{"appearance", MotivationAppearance},
	{"удобств", MotivationComfort},
	{"комфорт", MotivationComfort},
	{"comfort", MotivationComfort},
}

// ParseMotivationType matches a motivation type answer by substring.
func ParseMotivationType(text string) (MotivationType, bool) {
	value := normalize(text)
	if value == "" {
		return "", false
	}
	for _, kw := range motivationTypeWords {
		if strings.Contains(value, kw.word) {
			return kw.value, true
		}
	}
	return "", false
}

// ParseActivityLevel accepts the canonical activity level values.
func ParseActivityLevel(text string) (ActivityLevel, bool) {
	switch ActivityLevel(normalize(text)) {
	case ActivityLow:
		return ActivityLow, true
	case ActivityMedium:
		return ActivityMedium, true
	case ActivityHigh:
		return ActivityHigh, true
	}
	return "", false
}

// ParseFoodList splits a comma-separated list into trimmed, non-empty items.
func ParseFoodList(text string) ([]string, error) {
	var items []string
	for _, part := range strings.Split(text, ",") {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 || len(items) > 10 {
		return nil, ErrInvalidFoodList
	}
	return items, nil
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
