package domain

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	minPortionGrams = 1
	maxPortionGrams = 10000
)

const portionUnits = `кг|килограмм\p{L}*|kilogram\p{L}*|kg|г|грамм\p{L}*|gram\p{L}*|g`

var (
	portionWithUnit = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(` + portionUnits + `)`)
	trailingAmount  = regexp.MustCompile(`(?i)^(.+?)\s+(\d+(?:[.,]\d+)?\s*(?:` + portionUnits + `)?)\.?\s*$`)
	leadingAmount   = regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?\s*(?:` + portionUnits + `))\s+(.+)$`)
	portionBare     = regexp.MustCompile(`^\s*(\d+(?:[.,]\d+)?)\s*$`)
	digitPattern    = regexp.MustCompile(`\d`)
)

var numberWords = map[string]int{
	"один": 1, "одна": 1, "одно": 1, "два": 2, "две": 2, "три": 3, "четыре": 4,
	"пять": 5, "шесть": 6, "семь": 7, "восемь": 8, "девять": 9, "десять": 10,
	"одиннадцать": 11, "двенадцать": 12, "тринадцать": 13, "четырнадцать": 14,
	"пятнадцать": 15, "шестнадцать": 16, "семнадцать": 17, "восемнадцать": 18,
	"девятнадцать": 19, "двадцать": 20, "тридцать": 30, "сорок": 40,
	"пятьдесят": 50, "шестьдесят": 60, "семьдесят": 70, "восемьдесят": 80,
	"девяносто": 90, "сто": 100, "двести": 200, "триста": 300, "четыреста": 400,
	"пятьсот": 500, "шестьсот": 600, "семьсот": 700, "восемьсот": 800,
	"девятьсот": 900,
}

// ParsePortion reads a portion weight in grams from replies such as
// "150 г", "0,2 кг", "200 gram", "250" or "двести грамм".
func ParsePortion(text string) (float64, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return 0, ErrInvalidPortion
	}

	grams := 0.0
	if m := portionWithUnit.FindStringSubmatch(lower); m != nil {
		value, err := ParseDecimal(m[1])
		if err != nil {
			return 0, ErrInvalidPortion
		}
		grams = value
		if isKilogramUnit(m[2]) {
			grams *= 1000
		}
	} else if m := portionBare.FindStringSubmatch(lower); m != nil {
		value, err := ParseDecimal(m[1])
		if err != nil {
			return 0, ErrInvalidPortion
		}
		grams = value
	} else {
		grams = float64(sumNumberWords(lower))
		if strings.Contains(lower, "кило") || strings.Contains(lower, "кг") {
			grams *= 1000
		}
	}

	if grams < minPortionGrams || grams > maxPortionGrams {
		return 0, ErrInvalidPortion
	}
	return grams, nil
}

// ProductAmount separates the portion from a food text: a trailing amount
// with or without a unit ("гречка 150 г", "гречка 150") or a leading amount
// with a unit ("0,2 кг творога"). ok is false when the text names no valid
// portion.
func ProductAmount(text string) (product string, grams float64, ok bool) {
	trimmed := strings.TrimSpace(text)
	var amount string
	if m := trailingAmount.FindStringSubmatch(trimmed); m != nil {
		product, amount = m[1], m[2]
	} else if m := leadingAmount.FindStringSubmatch(trimmed); m != nil {
		amount, product = m[1], m[2]
	} else {
		return trimmed, 0, false
	}
	grams, err := ParsePortion(amount)
	if err != nil {
		return trimmed, 0, false
	}
	return strings.TrimSpace(product), grams, true
}

func isKilogramUnit(unit string) bool {
	unit = strings.ToLower(unit)
	return strings.HasPrefix(unit, "к") || strings.HasPrefix(unit, "kilo") || unit == "kg"
}

func sumNumberWords(text string) int {
	total := 0
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '-' || r == '.'
	}) {
		total += numberWords[word]
	}
	return total
}

// HasDigits reports whether text contains an ASCII digit.
func HasDigits(text string) bool {
	return digitPattern.MatchString(text)
}

// FormatGrams renders a gram amount without a trailing ".0".
func FormatGrams(grams float64) string {
	return strconv.FormatFloat(grams, 'f', -1, 64)
}
