package domain

import "strings"

// State is the persisted dialogue state of one user. The empty state means
// the user is not inside any dialogue.
type State string

const (
	StateNone State = ""

	StateGender           State = "gender"
	StateAge              State = "age"
	StateHeight           State = "height"
	StateWeight           State = "weight"
	StateMainGoal         State = "main_goal"
	StateMotivationLevel  State = "current_motivation_level"
	StateMotivationType   State = "motivation_type"
	StateWorkoutFrequency State = "workout_frequency"
	StateDietMethod       State = "current_diet_method"
	StateFavoriteFoods    State = "favorite_foods"
	StateDislikedFoods    State = "disliked_foods"

	StateAwaitingFoodType   State = "awaiting_food_type"
	StateAwaitingFoodWeight State = "awaiting_food_weight"

	StateSettingsWeight        State = "settings_waiting_weight"
	StateSettingsHeight        State = "settings_waiting_height"
	StateSettingsAge           State = "settings_waiting_age"
	StateSettingsCalories      State = "settings_waiting_calories"
	StateSettingsProtein       State = "settings_waiting_protein"
	StateSettingsFat           State = "settings_waiting_fat"
	StateSettingsCarbs         State = "settings_waiting_carbs"
	StateSettingsFavoriteFoods State = "settings_waiting_favorite_foods"
	StateSettingsDislikedFoods State = "settings_waiting_disliked_foods"
	StateSettingsTimezone      State = "settings_waiting_timezone"
)

var onboardingOrder = []State{
	StateGender,
	StateAge,
	StateHeight,
	StateWeight,
	StateMainGoal,
	StateMotivationLevel,
	StateMotivationType,
	StateWorkoutFrequency,
	StateDietMethod,
	StateFavoriteFoods,
	StateDislikedFoods,
}

// IsOnboarding reports whether the state is an onboarding question.
func (s State) IsOnboarding() bool {
	for _, step := range onboardingOrder {
		if s == step {
			return true
		}
	}
	return false
}

// IsFoodClarification reports whether the bot is waiting for food details.
func (s State) IsFoodClarification() bool {
	return s == StateAwaitingFoodType || s == StateAwaitingFoodWeight
}

// IsSettingsInput reports whether the bot is waiting for a settings value.
func (s State) IsSettingsInput() bool {
	return strings.HasPrefix(string(s), "settings_waiting_")
}

// NextOnboardingState returns the question after s, or StateNone after the
// last one.
func NextOnboardingState(s State) State {
	for i, step := range onboardingOrder {
		if step == s && i+1 < len(onboardingOrder) {
			return onboardingOrder[i+1]
		}
	}
	return StateNone
}
