package recipes

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/louisbranch/eatbot/internal/services/nutrition/ai"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
	"golang.org/x/text/message"
)

// Localizer prints catalog messages; *message.Printer satisfies it.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// ListLimit is how many recipes a list shows before summarizing the rest.
const ListLimit = 5

const defaultCookingMinutes = 15

var (
	stepPrefix    = regexp.MustCompile(`^\s*(?:\d+[.)]|•|-)\s*`)
	inlineNumbers = regexp.MustCompile(`(?:^|\s)\d+\.\s`)
)

// FormatCard renders a recipe as a chat message.
func FormatCard(p Localizer, recipe storage.RecipeRecord) string {
	var b strings.Builder
	b.WriteString(p.Sprintf("recipes.card.title", recipe.Title))
	if description := strings.TrimSpace(recipe.Description); description != "" {
		b.WriteString("\n\n")
		b.WriteString(description)
	}
	b.WriteString("\n\n")
	b.WriteString(p.Sprintf("recipes.card.time", cookingMinutes(recipe)))
	b.WriteString("\n")
	b.WriteString(p.Sprintf("recipes.card.servings", max(recipe.Servings, 1)))
	b.WriteString("\n")
	b.WriteString(p.Sprintf("recipes.card.difficulty", DifficultyText(p, recipe.Difficulty)))

	b.WriteString("\n\n")
	b.WriteString(p.Sprintf("recipes.card.ingredients"))
	b.WriteString("\n")
	b.WriteString(formatIngredients(p, recipe.Ingredients))

	b.WriteString("\n\n")
	b.WriteString(p.Sprintf("recipes.card.instructions"))
	b.WriteString("\n")
	b.WriteString(formatSteps(p, recipe.Instructions))

	b.WriteString("\n\n")
	b.WriteString(p.Sprintf("recipes.card.nutrition",
		recipe.Nutrition.Calories,
		formatAmount(recipe.Nutrition.Protein),
		formatAmount(recipe.Nutrition.Fat),
		formatAmount(recipe.Nutrition.Carbs)))

	tags := p.Sprintf("recipes.card.no_tags")
	if len(recipe.Tags) > 0 {
		tags = strings.Join(recipe.Tags, ", ")
	}
	b.WriteString("\n\n")
	b.WriteString(p.Sprintf("recipes.card.tags", tags))
	return b.String()
}

// FormatNewIngredientCard prefixes a recipe card with the product intro.
func FormatNewIngredientCard(p Localizer, recipe storage.RecipeRecord, ingredient ai.NewIngredient) string {
	intro := p.Sprintf("recipes.card.new_ingredient", ingredient.Name, ingredient.Category, ingredient.Benefit)
	return intro + "\n\n" + FormatCard(p, recipe)
}

// FormatList renders up to ListLimit recipe titles and a count of the rest.
func FormatList(p Localizer, title string, recipes []storage.RecipeRecord) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	for i, recipe := range recipes {
		if i == ListLimit {
			break
		}
		b.WriteString("\n")
		b.WriteString(p.Sprintf("recipes.list.item", recipe.Title, cookingMinutes(recipe)))
	}
	if extra := len(recipes) - ListLimit; extra > 0 {
		b.WriteString("\n\n")
		b.WriteString(p.Sprintf("recipes.list.more", extra))
	}
	return b.String()
}

// DifficultyText localizes a difficulty level; unknown levels read as medium.
func DifficultyText(p Localizer, difficulty string) string {
	switch difficulty {
	case storage.DifficultyEasy:
		return p.Sprintf("recipes.difficulty.easy")
	case storage.DifficultyHard:
		return p.Sprintf("recipes.difficulty.hard")
	default:
		return p.Sprintf("recipes.difficulty.medium")
	}
}

func cookingMinutes(recipe storage.RecipeRecord) int {
	if recipe.CookingTimeMin > 0 {
		return recipe.CookingTimeMin
	}
	return defaultCookingMinutes
}

func formatIngredients(p Localizer, ingredients []storage.Ingredient) string {
	if len(ingredients) == 0 {
		return p.Sprintf("recipes.card.not_specified")
	}
	lines := make([]string, 0, len(ingredients))
	for _, ingredient := range ingredients {
		amount := strings.TrimSpace(ingredient.Amount + " " + ingredient.Unit)
		if amount == "" {
			lines = append(lines, "• "+ingredient.Name)
			continue
		}
		lines = append(lines, "• "+ingredient.Name+": "+amount)
	}
	return strings.Join(lines, "\n")
}

// Steps splits instructions into steps without their original numbering.
func Steps(instructions string) []string {
	var raw []string
	lines := strings.Split(strings.TrimSpace(instructions), "\n")
	if len(lines) == 1 && len(inlineNumbers.FindAllStringIndex(lines[0], -1)) > 1 {
		raw = inlineNumbers.Split(lines[0], -1)
	} else {
		raw = lines
	}
	steps := make([]string, 0, len(raw))
	for _, step := range raw {
		step = strings.TrimSpace(stepPrefix.ReplaceAllString(step, ""))
		if step != "" {
			steps = append(steps, step)
		}
	}
	return steps
}

func formatSteps(p Localizer, instructions string) string {
	steps := Steps(instructions)
	if len(steps) == 0 {
		return p.Sprintf("recipes.card.not_specified")
	}
	lines := make([]string, len(steps))
	for i, step := range steps {
		lines[i] = strconv.Itoa(i+1) + ". " + step
	}
	return strings.Join(lines, "\n")
}

func formatAmount(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = 0
	}
	return strconv.FormatFloat(math.Round(value*10)/10, 'f', -1, 64)
}
