package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ApplyOnboardingAnswer validates the answer to the question identified by
// state, writes it into p, and returns the next question. StateNone means
// onboarding is complete. p is left untouched on error.
func ApplyOnboardingAnswer(state State, text string, p *Profile) (State, error) {
	if p == nil {
		return state, ErrUnknownState
	}
	text = strings.TrimSpace(text)

	switch state {
	case StateGender:
		gender, ok := ParseGender(text)
		if !ok {
			return state, ErrInvalidGender
		}
		p.Gender = gender
	case StateAge:
		age, err := strconv.Atoi(text)
		if err != nil || age < 0 || age > 120 {
			return state, ErrInvalidAge
		}
		p.Age = age
	case StateHeight:
		height, err := ParseDecimal(text)
		if err != nil || height < 100 || height > 250 {
			return state, ErrInvalidHeight
		}
		p.HeightCM = height
	case StateWeight:
		weight, err := ParseDecimal(text)
		if err != nil || weight < 20 || weight > 300 {
			return state, ErrInvalidWeight
		}
		p.WeightKG = weight
	case StateMainGoal:
		goal, ok := ParseGoal(text)
		if !ok {
			return state, ErrInvalidGoal
		}
		p.Goal = goal
	case StateMotivationLevel:
		level, ok := ParseMotivationLevel(text)
		if !ok {
			return state, ErrInvalidMotivationLevel
		}
		p.MotivationLevel = level
	case StateMotivationType:
		kind, ok := ParseMotivationType(text)
		if !ok {
			return state, ErrInvalidMotivationType
		}
		p.MotivationType = kind
	case StateWorkoutFrequency:
		freq, err := strconv.Atoi(text)
		if err != nil || freq < 0 || freq > 7 {
			return state, ErrInvalidWorkoutFrequency
		}
		p.WorkoutFrequency = freq
	case StateDietMethod:
		if n := utf8.RuneCountInString(text); n < 2 || n > 100 {
			return state, ErrInvalidDietMethod
		}
		p.DietMethod = text
	case StateFavoriteFoods:
		foods, err := ParseFoodList(text)
		if err != nil {
			return state, err
		}
		p.FavoriteFoods = foods
	case StateDislikedFoods:
		foods, err := ParseFoodList(text)
		if err != nil {
			return state, err
		}
		p.DislikedFoods = foods
	default:
		return state, ErrUnknownState
	}
	return NextOnboardingState(state), nil
}

// ParseDecimal parses a finite float that may use a comma as decimal
// separator.
func ParseDecimal(text string) (float64, error) {
	value, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(text), ",", "."), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("parse decimal %q: not a finite number", text)
	}
	return value, nil
}
