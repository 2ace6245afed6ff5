package domain

import "math"

const (
	minDailyCalories     = 1200
	fallbackCalories     = 2000
	defaultBodyWeightKG  = 70
	caloriesPerWorkout   = 400
	kcalPerGramProtein   = 4
	kcalPerGramCarbs     = 4
	kcalPerGramFat       = 9
	macroTolerancePct    = 0.10
	minProteinGrams      = 50
	maxProteinGrams      = 400
	minFatGrams          = 35
	maxFatGrams          = 200
	minCarbsGrams        = 100
	maxCarbsGrams        = 800
	defaultWorkoutFactor = 1.55
)

// Targets are daily calorie and macro goals in kcal and grams.
type Targets struct {
	Calories int
	Protein  int
	Fat      int
	Carbs    int
}

// IsZero reports whether no targets have been calculated.
func (t Targets) IsZero() bool {
	return t.Calories == 0
}

// BMR returns the Mifflin-St Jeor basal metabolic rate.
func BMR(gender Gender, weightKG, heightCM float64, age int) float64 {
	base := 10*weightKG + 6.25*heightCM - 5*float64(age)
	if gender == GenderMale {
		return base + 5
	}
	return base - 161
}

var workoutFactors = map[int]float64{
	0: 1.2,
	1: 1.375,
	2: 1.55,
	3: 1.725,
	4: 1.725,
	5: 1.725,
}

// OnboardingTargets computes the first targets right after onboarding from
// body metrics and weekly workouts.
func OnboardingTargets(p Profile) Targets {
	bmr := math.Round(BMR(p.Gender, p.WeightKG, p.HeightCM, p.Age))
	factor, ok := workoutFactors[p.WorkoutFrequency]
	if !ok {
		factor = defaultWorkoutFactor
	}
	calories := math.Round(bmr * factor)
	return Targets{
		Calories: int(calories),
		Protein:  int(math.Round(p.WeightKG * 1.8)),
		Fat:      int(math.Round(calories * 0.25 / kcalPerGramFat)),
		Carbs:    int(math.Round(calories * 0.55 / kcalPerGramCarbs)),
	}
}

func activityFactor(level ActivityLevel) float64 {
	switch level {
	case ActivityMedium:
		return 1.55
	case ActivityHigh:
		return 1.725
	default:
		return 1.2
	}
}

func workoutBonus(freq int) float64 {
	f := float64(freq)
	switch {
	case freq <= 0:
		return 0
	case freq <= 2:
		return f * caloriesPerWorkout / 7
	case freq <= 4:
		return f * caloriesPerWorkout * 0.8 / 7
	default:
		return f * caloriesPerWorkout * 0.6 / 7
	}
}

// DailyCalories computes the calorie target used when settings change.
// Profiles without body metrics get a flat 2000 kcal.
func DailyCalories(p Profile) int {
	if !p.HasBodyMetrics() {
		return fallbackCalories
	}
	tdee := BMR(p.Gender, p.WeightKG, p.HeightCM, p.Age)*activityFactor(p.Activity) + workoutBonus(p.WorkoutFrequency)

	adjusted := tdee
	switch p.Goal {
	case GoalLoseWeight:
		deficit := math.Min(750, math.Max(500, tdee*0.15))
		adjusted = tdee - deficit
	case GoalGainMuscle:
		adjusted = tdee * 1.12
	}

	switch p.MotivationLevel {
	case MotivationHigh:
		switch p.Goal {
		case GoalLoseWeight:
			adjusted -= tdee * 0.05
		case GoalGainMuscle:
			adjusted += tdee * 0.05
		}
	case MotivationLow:
		adjusted = (adjusted + tdee) / 2
	}

	return max(minDailyCalories, int(math.Round(adjusted)))
}

// CalculateTargets splits a calorie target into macros for the goal.
// weightKG <= 0 uses a 70 kg default. Carbs take the calories left by the
// unclamped protein and fat; the clamps apply afterwards, and carbs are
// recomputed from the clamped macros when the sum drifts past tolerance.
func CalculateTargets(calories int, goal Goal, weightKG float64) Targets {
	if weightKG <= 0 {
		weightKG = defaultBodyWeightKG
	}

	proteinPerKG, fatShare := 1.6, 0.25
	switch goal {
	case GoalLoseWeight:
		proteinPerKG, fatShare = 1.8, 0.20
	case GoalGainMuscle:
		proteinPerKG, fatShare = 2.0, 0.25
	case GoalHealth:
		proteinPerKG, fatShare = 1.4, 0.30
	}

	protein := int(math.Round(weightKG * proteinPerKG))
	fat := int(math.Round(float64(calories) * fatShare / kcalPerGramFat))
	carbs := remainingCarbs(float64(calories), protein, fat)

	calories = max(minDailyCalories, calories)
	cal := float64(calories)
	protein = clamp(protein, minProteinGrams, maxProteinGrams)
	fat = clamp(fat, minFatGrams, maxFatGrams)
	carbs = clamp(carbs, minCarbsGrams, maxCarbsGrams)

	total := float64(protein*kcalPerGramProtein + fat*kcalPerGramFat + carbs*kcalPerGramCarbs)
	if math.Abs(total-cal) > cal*macroTolerancePct {
		carbs = max(minCarbsGrams, remainingCarbs(cal, protein, fat))
	}

	return Targets{Calories: calories, Protein: protein, Fat: fat, Carbs: carbs}
}

// RecalculateTargets runs DailyCalories and CalculateTargets for p.
func RecalculateTargets(p Profile) Targets {
	return CalculateTargets(DailyCalories(p), p.Goal, p.WeightKG)
}

func remainingCarbs(cal float64, protein, fat int) int {
	return int(math.Round((cal - float64(protein*kcalPerGramProtein) - float64(fat*kcalPerGramFat)) / kcalPerGramCarbs))
}

func clamp(value, lo, hi int) int {
	return min(max(value, lo), hi)
}
