package domain

import (
	"errors"
	"slices"
	"testing"
)

func TestApplyOnboardingAnswer_FullDialogue(t *testing.T) {
	t.Parallel()

	answers := []struct {
		state State
		text  string
	}{
		{StateGender, "Мужчина"},
		{StateAge, "30"},
		{StateHeight, "180,5"},
		{StateWeight, "80"},
		{StateMainGoal, "Хочу похудеть к лету"},
		{StateMotivationLevel, "3"},
		{StateMotivationType, "Улучшение внешнего вида"},
		{StateWorkoutFrequency, "4"},
		{StateDietMethod, "Считаю калории"},
		{StateFavoriteFoods, "гречка, курица, , творог"},
		{StateDislikedFoods, "печень"},
	}

	var p Profile
	state := StateGender
	for _, answer := range answers {
		if state != answer.state {
			t.Fatalf("state = %q, want %q", state, answer.state)
		}
		next, err := ApplyOnboardingAnswer(state, answer.text, &p)
		if err != nil {
			t.Fatalf("answer %q at %q: %v", answer.text, state, err)
		}
		state = next
	}

	if state != StateNone {
		t.Fatalf("final state = %q, want none", state)
	}
	if p.Gender != GenderMale || p.Age != 30 || p.HeightCM != 180.5 || p.WeightKG != 80 {
		t.Fatalf("unexpected body metrics: %+v", p)
	}
	if p.Goal != GoalLoseWeight || p.MotivationLevel != MotivationHigh || p.MotivationType != MotivationAppearance {
		t.Fatalf("unexpected goals: %+v", p)
	}
	if !slices.Equal(p.FavoriteFoods, []string{"гречка", "курица", "творог"}) {
		t.Fatalf("favorite foods = %v", p.FavoriteFoods)
	}
}

func TestApplyOnboardingAnswer_RejectsInvalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state State
		text  string
		want  error
	}{
		{StateGender, "кот", ErrInvalidGender},
		{StateAge, "121", ErrInvalidAge},
		{StateAge, "тридцать", ErrInvalidAge},
		{StateHeight, "99", ErrInvalidHeight},
		{StateHeight, "NaN", ErrInvalidHeight},
		{StateWeight, "301", ErrInvalidWeight},
		{StateMainGoal, "не знаю", ErrInvalidGoal},
		{StateMotivationLevel, "4", ErrInvalidMotivationLevel},
		{StateMotivationType, "деньги", ErrInvalidMotivationType},
		{StateWorkoutFrequency, "8", ErrInvalidWorkoutFrequency},
		{StateDietMethod, "x", ErrInvalidDietMethod},
		{StateFavoriteFoods, " , ", ErrInvalidFoodList},
		{StateFavoriteFoods, "a,b,c,d,e,f,g,h,i,j,k", ErrInvalidFoodList},
		{StateAwaitingFoodType, "мясо", ErrUnknownState},
	}

	for _, tc := range cases {
		var p Profile
		next, err := ApplyOnboardingAnswer(tc.state, tc.text, &p)
		if !errors.Is(err, tc.want) {
			t.Fatalf("ApplyOnboardingAnswer(%q, %q) err = %v, want %v", tc.state, tc.text, err, tc.want)
		}
		if next != tc.state {
			t.Fatalf("state changed on error: %q -> %q", tc.state, next)
		}
	}
}

func TestParseGoal(t *testing.T) {
	t.Parallel()

	cases := map[string]Goal{
		"похудеть":               GoalLoseWeight,
		"снизить вес":            GoalLoseWeight,
		"Набрать мышечную массу": GoalGainMuscle,
		"maintain":               GoalMaintain,
		"поддерживать форму":     GoalMaintain,
		"улучшить здоровье":      GoalHealth,
	}
	for text, want := range cases {
		got, ok := ParseGoal(text)
		if !ok || got != want {
			t.Fatalf("ParseGoal(%q) = %q, %v; want %q", text, got, ok, want)
		}
	}
	if _, ok := ParseGoal(""); ok {
		t.Fatal("expected empty goal to be rejected")
	}
}

func TestParseGenderIsExact(t *testing.T) {
	t.Parallel()

	if got, ok := ParseGender(" Жен "); !ok || got != GenderFemale {
		t.Fatalf("ParseGender = %q, %v", got, ok)
	}
	if _, ok := ParseGender("мужчина средних лет"); ok {
		t.Fatal("expected substring gender to be rejected")
	}
}

func TestStatePredicates(t *testing.T) {
	t.Parallel()

	if !StateWeight.IsOnboarding() || StateSettingsWeight.IsOnboarding() {
		t.Fatal("onboarding predicate mismatch")
	}
	if !StateSettingsTimezone.IsSettingsInput() || StateAwaitingFoodType.IsSettingsInput() {
		t.Fatal("settings predicate mismatch")
	}
	if !StateAwaitingFoodWeight.IsFoodClarification() || StateNone.IsFoodClarification() {
		t.Fatal("food clarification predicate mismatch")
	}
	if NextOnboardingState(StateDislikedFoods) != StateNone {
		t.Fatal("expected onboarding to end after disliked foods")
	}
}
