package bot

import (
	"context"
	"errors"
	"log"

	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
)

var onboardingQuestions = map[domain.State]string{
	domain.StateGender:           "onboarding.ask.gender",
	domain.StateAge:              "onboarding.ask.age",
	domain.StateHeight:           "onboarding.ask.height",
	domain.StateWeight:           "onboarding.ask.weight",
	domain.StateMainGoal:         "onboarding.ask.goal",
	domain.StateMotivationLevel:  "onboarding.ask.motivation_level",
	domain.StateMotivationType:   "onboarding.ask.motivation_type",
	domain.StateWorkoutFrequency: "onboarding.ask.workout_frequency",
	domain.StateDietMethod:       "onboarding.ask.diet_method",
	domain.StateFavoriteFoods:    "onboarding.ask.favorite_foods",
	domain.StateDislikedFoods:    "onboarding.ask.disliked_foods",
}

var onboardingRetries = map[domain.State]string{
	domain.StateGender:           "onboarding.invalid.gender",
	domain.StateAge:              "onboarding.invalid.age",
	domain.StateHeight:           "onboarding.invalid.height",
	domain.StateWeight:           "onboarding.invalid.weight",
	domain.StateMainGoal:         "onboarding.invalid.goal",
	domain.StateMotivationLevel:  "onboarding.invalid.motivation_level",
	domain.StateMotivationType:   "onboarding.invalid.motivation_type",
	domain.StateWorkoutFrequency: "onboarding.invalid.workout_frequency",
	domain.StateDietMethod:       "onboarding.invalid.diet_method",
	domain.StateFavoriteFoods:    "onboarding.invalid.foods",
	domain.StateDislikedFoods:    "onboarding.invalid.foods",
}

// onboardingAnswer applies one answer and asks the next question, finishing
// with target calculation once the last question is answered.
func (r *Router) onboardingAnswer(ctx context.Context, s *session, text string) error {
	profile := s.user.Profile()
	next, err := domain.ApplyOnboardingAnswer(s.user.State, text, &profile)
	if errors.Is(err, domain.ErrUnknownState) {
		s.user.State = domain.StateGender
		if err := r.saveUser(ctx, s); err != nil {
			return err
		}
		return r.send(s.chatID, s.t("onboarding.reset")+"\n\n"+s.t("onboarding.ask.gender"))
	}
	if err != nil {
		return r.send(s.chatID, s.t(onboardingRetries[s.user.State]))
	}

	s.user.SetProfile(profile)
	s.user.State = next
	if next == domain.StateNone {
		return r.completeOnboarding(ctx, s)
	}
	if err := r.saveUser(ctx, s); err != nil {
		return err
	}
	return r.send(s.chatID, s.t(onboardingQuestions[next]))
}

func (r *Router) completeOnboarding(ctx context.Context, s *session) error {
	targets := domain.OnboardingTargets(s.user.Profile())
	s.user.Targets = targets
	s.user.State = domain.StateNone
	if err := r.saveUser(ctx, s); err != nil {
		return err
	}

	summary := s.t("onboarding.complete", targets.Calories, targets.Protein, targets.Fat, targets.Carbs)
	if err := r.sendWithMarkup(s.chatID, summary, mainKeyboard(s)); err != nil {
		return err
	}
	if r.scheduler != nil && s.user.NotificationsEnabled {
		if err := r.scheduler.Start(ctx, s.user.ID); err != nil {
			log.Printf("bot: start schedule for user %d: %v", s.user.ID, err)
		}
	}
	return nil
}
