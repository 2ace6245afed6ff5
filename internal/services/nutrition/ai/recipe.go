package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
	"github.com/tidwall/gjson"
)

// RecipeMode selects how a recipe is generated.
type RecipeMode string

const (
	RecipeFromIngredients   RecipeMode = "from_ingredients"
	RecipeWithNewIngredient RecipeMode = "new_ingredient"
	RecipeForCalories       RecipeMode = "for_calories"
)

// NewIngredient is a product the user has not tried yet.
type NewIngredient struct {
	Name     string
	Category string
	Benefit  string
}

// RecipeRequest describes the recipe to generate.
type RecipeRequest struct {
	Mode           RecipeMode
	Ingredients    []string
	NewIngredient  NewIngredient
	TargetCalories int
	Profile        domain.Profile
}

const recipeReplyFormat = `
Ответь только JSON:
{"title": "название", "description": "кратко о вкусе и пользе", "difficulty": "easy|medium|hard", "cooking_time": минуты, "servings": порции,
 "ingredients": [{"name": "ингредиент", "amount": "количество", "unit": "г"}],
 "instructions": "шаги по порядку, каждый с новой строки",
 "nutrition_per_serving": {"calories": число, "protein": число, "fat": число, "carbs": число},
 "tags": ["тег"]}`

// Recipe generates one recipe. The result is not persisted.
func (c *Client) Recipe(ctx context.Context, req RecipeRequest) (storage.RecipeRecord, error) {
	var (
		system      string
		prompt      strings.Builder
		temperature float32 = 0.7
		maxTokens           = 1500
	)
	switch req.Mode {
	case RecipeFromIngredients:
		if len(req.Ingredients) == 0 {
			return storage.RecipeRecord{}, fmt.Errorf("ingredients are required")
		}
		system = "Ты шеф-повар и нутрициолог. Готовишь вкусные и полезные блюда из того, что есть у человека, и всегда указываешь КБЖУ на порцию."
		temperature = 0.8
		fmt.Fprintf(&prompt, "Придумай рецепт только из этих продуктов (или их очевидных замен): %s.\n", strings.Join(req.Ingredients, ", "))
		if req.TargetCalories > 0 {
			fmt.Fprintf(&prompt, "Порция примерно на %d ккал.\n", req.TargetCalories)
		}
	case RecipeWithNewIngredient:
		name := strings.TrimSpace(req.NewIngredient.Name)
		if name == "" {
			return storage.RecipeRecord{}, fmt.Errorf("new ingredient is required")
		}
		system = "Ты дружелюбный нутрициолог и шеф-повар. Знакомишь людей с полезными продуктами через простые рецепты."
		maxTokens = 1200
		fmt.Fprintf(&prompt, "Придумай простой рецепт для новичка с продуктом %q (%s). Польза: %s. Объясни пользу в описании.\n",
			name, req.NewIngredient.Category, req.NewIngredient.Benefit)
	case RecipeForCalories:
		if req.TargetCalories <= 0 {
			return storage.RecipeRecord{}, fmt.Errorf("target calories are required")
		}
		system = "Ты шеф-повар и нутрициолог. Составляешь сбалансированные рецепты точно по калориям."
		fmt.Fprintf(&prompt, "Придумай сбалансированный рецепт ровно на %d ккал: около 30%% белков, 30%% жиров и 40%% углеводов, из доступных продуктов.\n", req.TargetCalories)
	default:
		return storage.RecipeRecord{}, fmt.Errorf("recipe mode %q is invalid", req.Mode)
	}
	if len(req.Profile.DislikedFoods) > 0 {
		fmt.Fprintf(&prompt, "Не используй: %s.\n", strings.Join(req.Profile.DislikedFoods, ", "))
	}
	prompt.WriteString(recipeReplyFormat)

	content, err := c.complete(ctx, completion{
		operation:   "Recipe",
		model:       c.model,
		temperature: temperature,
		maxTokens:   maxTokens,
		messages:    systemUser(system, prompt.String()),
	})
	if err != nil {
		return storage.RecipeRecord{}, err
	}
	recipe, err := parseRecipe(content)
	if err != nil {
		return storage.RecipeRecord{}, err
	}
	if req.Mode == RecipeWithNewIngredient && !containsTag(recipe.Tags, "новинка") {
		recipe.Tags = append(recipe.Tags, "новинка")
	}
	return recipe, nil
}

func parseRecipe(content string) (storage.RecipeRecord, error) {
	cleaned := stripFences(content)
	if !gjson.Valid(cleaned) {
		return storage.RecipeRecord{}, ErrInvalidReply
	}
	root := gjson.Parse(cleaned)
	if nested := root.Get("recipe"); nested.IsObject() {
		root = nested
	}
	title := strings.TrimSpace(root.Get("title").String())
	if title == "" {
		return storage.RecipeRecord{}, ErrInvalidReply
	}

	nutrition := root.Get("nutrition_per_serving")
	if !nutrition.IsObject() {
		nutrition = root.Get("nutrition")
	}
	recipe := storage.RecipeRecord{
		Title:          title,
		Description:    strings.TrimSpace(root.Get("description").String()),
		Instructions:   joinSteps(root.Get("instructions")),
		Difficulty:     normalizeDifficulty(root.Get("difficulty").String()),
		CookingTimeMin: int(root.Get("cooking_time").Int()),
		Servings:       int(root.Get("servings").Int()),
		Nutrition: storage.RecipeNutrition{
			Calories: int(nutrition.Get("calories").Int()),
			Protein:  nutrition.Get("protein").Float(),
			Fat:      nutrition.Get("fat").Float(),
			Carbs:    nutrition.Get("carbs").Float(),
		},
	}
	for _, item := range root.Get("ingredients").Array() {
		if item.IsObject() {
			recipe.Ingredients = append(recipe.Ingredients, storage.Ingredient{
				Name:   strings.TrimSpace(item.Get("name").String()),
				Amount: strings.TrimSpace(item.Get("amount").String()),
				Unit:   strings.TrimSpace(item.Get("unit").String()),
			})
			continue
		}
		if name := strings.TrimSpace(item.String()); name != "" {
			recipe.Ingredients = append(recipe.Ingredients, storage.Ingredient{Name: name})
		}
	}
	for _, tag := range root.Get("tags").Array() {
		if text := strings.TrimSpace(tag.String()); text != "" {
			recipe.Tags = append(recipe.Tags, text)
		}
	}
	return recipe, nil
}

func normalizeDifficulty(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case storage.DifficultyMedium:
		return storage.DifficultyMedium
	case storage.DifficultyHard:
		return storage.DifficultyHard
	default:
		return storage.DifficultyEasy
	}
}

func containsTag(tags []string, want string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, want) {
			return true
		}
	}
	return false
}
