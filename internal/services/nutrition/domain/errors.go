package domain

import "errors"

var (
	// ErrInvalidGender indicates an unrecognized gender answer.
	ErrInvalidGender = errors.New("invalid gender")
	// ErrInvalidAge indicates an age outside the accepted range.
	ErrInvalidAge = errors.New("invalid age")
	// ErrInvalidHeight indicates a height outside the accepted range.
	ErrInvalidHeight = errors.New("invalid height")
	// ErrInvalidWeight indicates a body weight outside the accepted range.
	ErrInvalidWeight = errors.New("invalid weight")
	// ErrInvalidGoal indicates an unrecognized goal answer.
	ErrInvalidGoal = errors.New("invalid goal")
	// ErrInvalidMotivationLevel indicates an unrecognized motivation level.
	ErrInvalidMotivationLevel = errors.New("invalid motivation level")
	// ErrInvalidMotivationType indicates an unrecognized motivation type.
	ErrInvalidMotivationType = errors.New("invalid motivation type")
	// ErrInvalidWorkoutFrequency indicates workouts per week outside 0..7.
	ErrInvalidWorkoutFrequency = errors.New("invalid workout frequency")
	// ErrInvalidDietMethod indicates a diet description of the wrong length.
	ErrInvalidDietMethod = errors.New("invalid diet method")
	// ErrInvalidFoodList indicates an empty or oversized food list.
	ErrInvalidFoodList = errors.New("invalid food list")
	// ErrUnknownState indicates a dialogue state with no onboarding step.
	ErrUnknownState = errors.New("unknown dialogue state")

	// ErrInvalidPortion indicates a portion weight that could not be parsed
	// or is out of range.
	ErrInvalidPortion = errors.New("invalid portion weight")

	// ErrEmptyAnalysis indicates an analysis with every value at zero.
	ErrEmptyAnalysis = errors.New("empty nutrition analysis")
	// ErrInvalidAnalysis indicates an analysis with out-of-range values.
	ErrInvalidAnalysis = errors.New("invalid nutrition analysis")
	// ErrInconsistentAnalysis indicates the analysis names a different
	// product than the user asked about.
	ErrInconsistentAnalysis = errors.New("analysis does not match requested product")
)
