package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/tidwall/gjson"
)

// MotivationKind selects the occasion of a motivational message.
type MotivationKind string

const (
	MotivationMorning MotivationKind = "morning"
	MotivationEvening MotivationKind = "evening"
)

// MotivationRequest describes the user and the day so far.
type MotivationRequest struct {
	Kind    MotivationKind
	Profile domain.Profile
	Totals  domain.DayTotals
	Targets domain.Targets
}

// Motivation writes a short personal motivational message. Callers fall
// back to a canned text on error.
func (c *Client) Motivation(ctx context.Context, req MotivationRequest) (string, error) {
	var b strings.Builder
	b.WriteString("Напиши короткое персональное мотивационное сообщение")
	if req.Kind == MotivationMorning {
		b.WriteString(" на начало дня")
	}
	b.WriteString(".\n\nПрофиль:\n")
	writeProfile(&b, req.Profile)
	if !req.Totals.IsEmpty() {
		fmt.Fprintf(&b, "\nСъедено сегодня: %d ккал, белки %.0f г, жиры %.0f г, углеводы %.0f г.\n",
			req.Totals.Calories, req.Totals.Protein, req.Totals.Fat, req.Totals.Carbs)
	}
	if !req.Targets.IsZero() {
		fmt.Fprintf(&b, "Цель на день: %d ккал.\n", req.Targets.Calories)
	}
	b.WriteString("\nСообщение позитивное, конкретное, не длиннее 200 символов, без кавычек.")

	content, err := c.complete(ctx, completion{
		operation:   "Motivation",
		model:       c.model,
		temperature: 0.7,
		maxTokens:   200,
		messages:    systemUser("Ты поддерживающий коуч по здоровому питанию.", b.String()),
	})
	if err != nil {
		return "", err
	}
	return strings.Trim(content, "\"« »"), nil
}

// MealSuggestionRequest asks for ideas for one meal.
type MealSuggestionRequest struct {
	MealType       domain.MealType
	Profile        domain.Profile
	DailyCalories  int
	RemainingToday int
}

// MealSuggestion is a list of ideas plus one short recipe.
type MealSuggestion struct {
	Ideas        []string
	RecipeName   string
	Ingredients  []string
	Instructions string
	Calories     int
}

// SuggestMeal proposes ideas for a meal sized to its share of the daily
// calories.
func (c *Client) SuggestMeal(ctx context.Context, req MealSuggestionRequest) (MealSuggestion, error) {
	daily := req.DailyCalories
	if daily <= 0 {
		daily = domain.DailyCalories(req.Profile)
	}
	mealCalories := int(float64(daily) * req.MealType.Share())
	if req.RemainingToday > 0 && req.RemainingToday < mealCalories {
		mealCalories = req.RemainingToday
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Предложи идеи для приёма пищи %q примерно на %d ккал.\n\nПрофиль:\n", req.MealType, mealCalories)
	writeProfile(&b, req.Profile)
	b.WriteString(`
Ответь только JSON:
{"ideas": ["идея 1", "идея 2", "идея 3"], "recipe": {"name": "название", "ingredients": ["ингредиент"], "instructions": "шаги", "calories": число}}`)

	content, err := c.complete(ctx, completion{
		operation:   "SuggestMeal",
		model:       c.model,
		temperature: 0.7,
		maxTokens:   800,
		messages:    systemUser("Ты шеф-повар и диетолог. Предлагай полезные блюда.", b.String()),
	})
	if err != nil {
		return MealSuggestion{}, err
	}
	cleaned := stripFences(content)
	if !gjson.Valid(cleaned) {
		return MealSuggestion{}, ErrInvalidReply
	}
	parsed := gjson.Parse(cleaned)
	out := MealSuggestion{
		RecipeName:   parsed.Get("recipe.name").String(),
		Instructions: joinSteps(parsed.Get("recipe.instructions")),
		Calories:     int(parsed.Get("recipe.calories").Int()),
	}
	for _, idea := range parsed.Get("ideas").Array() {
		if text := strings.TrimSpace(idea.String()); text != "" {
			out.Ideas = append(out.Ideas, text)
		}
	}
	for _, ingredient := range parsed.Get("recipe.ingredients").Array() {
		if text := strings.TrimSpace(ingredient.String()); text != "" {
			out.Ingredients = append(out.Ingredients, text)
		}
	}
	if len(out.Ideas) == 0 && out.RecipeName == "" {
		return MealSuggestion{}, ErrInvalidReply
	}
	return out, nil
}

func writeProfile(b *strings.Builder, p domain.Profile) {
	if p.Age > 0 {
		fmt.Fprintf(b, "- возраст: %d\n", p.Age)
	}
	switch p.Gender {
	case domain.GenderMale:
		b.WriteString("- пол: мужской\n")
	case domain.GenderFemale:
		b.WriteString("- пол: женский\n")
	}
	if p.HeightCM > 0 {
		fmt.Fprintf(b, "- рост: %.0f см\n", p.HeightCM)
	}
	if p.WeightKG > 0 {
		fmt.Fprintf(b, "- вес: %.1f кг\n", p.WeightKG)
	}
	if p.Goal != "" {
		fmt.Fprintf(b, "- цель: %s\n", p.Goal)
	}
	if p.MotivationType != "" {
		fmt.Fprintf(b, "- мотивация: %s\n", p.MotivationType)
	}
	if len(p.FavoriteFoods) > 0 {
		fmt.Fprintf(b, "- любит: %s\n", strings.Join(p.FavoriteFoods, ", "))
	}
	if len(p.DislikedFoods) > 0 {
		fmt.Fprintf(b, "- не ест: %s\n", strings.Join(p.DislikedFoods, ", "))
	}
}

func joinSteps(value gjson.Result) string {
	if !value.IsArray() {
		return strings.TrimSpace(value.String())
	}
	steps := make([]string, 0, len(value.Array()))
	for _, step := range value.Array() {
		if text := strings.TrimSpace(step.String()); text != "" {
			steps = append(steps, text)
		}
	}
	return strings.Join(steps, "\n")
}
