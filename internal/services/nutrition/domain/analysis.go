package domain

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxAnalysisCalories = 50000

// Analysis is a nutrition estimate for one food description. Values are
// kcal and grams for the amount named in Description.
type Analysis struct {
	Description string  `json:"description"`
	Calories    float64 `json:"calories"`
	Protein     float64 `json:"protein"`
	Fat         float64 `json:"fat"`
	Carbs       float64 `json:"carbs"`
}

// IsEmpty reports whether every nutrition value is zero.
func (a Analysis) IsEmpty() bool {
	return a.Calories == 0 && a.Protein == 0 && a.Fat == 0 && a.Carbs == 0
}

var gramsInDescription = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*г`)

// ScaleTo converts a per-100 g analysis into a portion of grams.
func (a Analysis) ScaleTo(grams float64) Analysis {
	factor := grams / 100
	weight := FormatGrams(grams) + "г"
	description := strings.TrimSpace(a.Description)
	if gramsInDescription.MatchString(description) {
		description = gramsInDescription.ReplaceAllString(description, weight)
	} else {
		description = strings.TrimSpace(description + " " + weight)
	}
	return Analysis{
		Description: description,
		Calories:    math.Round(a.Calories * factor),
		Protein:     round1(a.Protein * factor),
		Fat:         round1(a.Fat * factor),
		Carbs:       round1(a.Carbs * factor),
	}
}

// Sanitized replaces non-finite values with zero.
func (a Analysis) Sanitized() Analysis {
	a.Calories = finiteOrZero(a.Calories)
	a.Protein = finiteOrZero(a.Protein)
	a.Fat = finiteOrZero(a.Fat)
	a.Carbs = finiteOrZero(a.Carbs)
	return a
}

var productGroups = [][]string{
	{"банан", "banana"},
	{"брокколи", "broccoli"},
	{"яблок", "apple"},
	{"молок", "milk"},
	{"куриц", "курин", "chicken"},
	{"рыб", "fish", "salmon", "лосос"},
}

// ValidateAnalysis checks that an AI estimate is plausible for the text the
// user sent.
func ValidateAnalysis(input string, a Analysis) error {
	if a.IsEmpty() {
		return ErrEmptyAnalysis
	}
	if utf8.RuneCountInString(strings.TrimSpace(a.Description)) < 2 {
		return ErrInvalidAnalysis
	}
	for _, v := range []float64{a.Calories, a.Protein, a.Fat, a.Carbs} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return ErrInvalidAnalysis
		}
	}
	if a.Calories <= 0 || a.Calories > maxAnalysisCalories {
		return ErrInvalidAnalysis
	}

	lowerInput := strings.ToLower(input)
	lowerDescription := strings.ToLower(a.Description)
	for _, group := range productGroups {
		if containsAny(lowerInput, group) && !containsAny(lowerDescription, group) {
			return ErrInconsistentAnalysis
		}
	}
	return nil
}

var genericFoods = []string{
	"мясо", "рыба", "сыр", "хлеб", "молоко", "масло", "салат", "макароны",
	"рис", "грибы", "овощи", "фрукты", "яйца", "картофель", "крупа", "мука",
	"сосиски", "колбаса", "пельмени",
}

// NeedsTypeClarification reports whether a short text names only a generic
// food category ("мясо", "сыр 100г") that must be narrowed down first.
func NeedsTypeClarification(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if len(strings.Fields(lower)) > 2 {
		return false
	}
	return containsAny(lower, genericFoods)
}

// NeedsWeightClarification reports whether the text carries no amount.
func NeedsWeightClarification(text string) bool {
	return !HasDigits(text)
}

var trailingGrams = regexp.MustCompile(`\s*\d+(?:[.,]\d+)?\s*г\W*$`)

// CleanFoodName strips a trailing portion ("Банан 100г") from a description.
func CleanFoodName(description string) string {
	return strings.TrimSpace(trailingGrams.ReplaceAllString(strings.TrimSpace(description), ""))
}

// SplitProductAmount splits "гречка 150" or "гречка 150 г" into product and
// grams; texts without an amount default to 100 g.
func SplitProductAmount(text string) (string, float64) {
	if product, grams, ok := ProductAmount(text); ok {
		return product, grams
	}
	return strings.TrimSpace(text), 100
}

func containsAny(text string, words []string) bool {
	for _, word := range words {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
