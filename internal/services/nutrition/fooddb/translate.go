package fooddb

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var russianToEnglish = map[string]string{
	"яблоко":       "apple",
	"яблоки":       "apples",
	"банан":        "banana",
	"бананы":       "bananas",
	"картофель":    "potato",
	"картошка":     "potato",
	"курица":       "chicken",
	"куриная":      "chicken",
	"куриное":      "chicken",
	"хлеб":         "bread",
	"молоко":       "milk",
	"сыр":          "cheese",
	"яйцо":         "egg",
	"яйца":         "eggs",
	"куриные яйца": "chicken eggs",
	"мясо":         "meat",
	"говядина":     "beef",
	"свинина":      "pork",
	"рыба":         "fish",
	"лосось":       "salmon",
	"салат":        "salad",
	"огурец":       "cucumber",
	"огурцы":       "cucumbers",
	"помидор":      "tomato",
	"помидоры":     "tomatoes",
	"лук":          "onion",
	"морковь":      "carrot",
	"рис":          "rice",
	"гречка":       "buckwheat",
	"овсянка":      "oatmeal",
	"творог":       "cottage cheese",
	"йогурт":       "yogurt",
	"орехи":        "nuts",
	"брокколи":     "broccoli",
}

// translationKeys orders dictionary keys longest first so phrases win over
// the words they contain.
var translationKeys = func() []string {
	keys := make([]string, 0, len(russianToEnglish))
	for key := range russianToEnglish {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

var trailingUnit = regexp.MustCompile(`\s+(г|мл|шт)\.?$`)

// IsRussian reports whether text contains Cyrillic letters.
func IsRussian(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

// Translate replaces known Russian food words with English ones. Text with
// no known word is returned unchanged.
func Translate(text string) string {
	result := strings.ToLower(strings.TrimSpace(text))
	replaced := false
	for _, key := range translationKeys {
		if strings.Contains(result, key) {
			result = strings.ReplaceAll(result, key, russianToEnglish[key])
			replaced = true
		}
	}
	if !replaced {
		return text
	}
	return strings.TrimSpace(trailingUnit.ReplaceAllString(result, ""))
}
