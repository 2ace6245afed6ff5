package domain

import "math"

// DayTotals sums the meals logged on one day.
type DayTotals struct {
	Calories int
	Protein  float64
	Fat      float64
	Carbs    float64
	Meals    int
}

// Add accumulates one analysis into the totals.
func (t *DayTotals) Add(a Analysis) {
	t.Calories += int(math.Round(a.Calories))
	t.Protein += a.Protein
	t.Fat += a.Fat
	t.Carbs += a.Carbs
	t.Meals++
}

// IsEmpty reports whether nothing was eaten.
func (t DayTotals) IsEmpty() bool {
	return t.Calories == 0 && t.Protein == 0 && t.Fat == 0 && t.Carbs == 0
}

// DayProgress compares a day's totals with the user's targets.
type DayProgress struct {
	Totals            DayTotals
	Targets           Targets
	CaloriesPct       int
	ProteinPct        int
	FatPct            int
	CarbsPct          int
	RemainingCalories int
}

// NewDayProgress computes percentages of target reached; targets of zero
// report 0%.
func NewDayProgress(totals DayTotals, targets Targets) DayProgress {
	return DayProgress{
		Totals:            totals,
		Targets:           targets,
		CaloriesPct:       percent(float64(totals.Calories), targets.Calories),
		ProteinPct:        percent(totals.Protein, targets.Protein),
		FatPct:            percent(totals.Fat, targets.Fat),
		CarbsPct:          percent(totals.Carbs, targets.Carbs),
		RemainingCalories: targets.Calories - totals.Calories,
	}
}

// Exceeded reports whether the calorie target was overshot.
func (p DayProgress) Exceeded() bool {
	return p.RemainingCalories < 0
}

func percent(value float64, target int) int {
	if target <= 0 {
		return 0
	}
	return int(math.Round(value / float64(target) * 100))
}
