package scheduler

import (
	"math"
	"strings"

	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
	"golang.org/x/text/message"
)

func midday(p *message.Printer, progress domain.DayProgress) string {
	var b strings.Builder
	b.WriteString(p.Sprintf("notify.midday.title"))
	b.WriteString("\n\n")
	if progress.CaloriesPct < 50 {
		b.WriteString(p.Sprintf("notify.midday.progress",
			progress.Totals.Calories,
			progress.Targets.Calories,
			max(progress.RemainingCalories, 0)))
	} else {
		b.WriteString(p.Sprintf("notify.midday.half"))
	}
	b.WriteString("\n\n")
	b.WriteString(p.Sprintf("notify.midday.prompt"))
	return b.String()
}

func evening(p *message.Printer, user storage.UserRecord, progress domain.DayProgress) string {
	var b strings.Builder
	b.WriteString(p.Sprintf("notify.evening.title"))
	b.WriteString("\n\n")
	b.WriteString(p.Sprintf("notify.evening.totals",
		progress.Totals.Calories, progress.CaloriesPct,
		int(math.Round(progress.Totals.Protein)), progress.ProteinPct,
		int(math.Round(progress.Totals.Fat)), progress.FatPct,
		int(math.Round(progress.Totals.Carbs)), progress.CarbsPct))
	b.WriteString("\n\n")
	switch {
	case progress.CaloriesPct >= 80:
		b.WriteString(p.Sprintf("notify.evening.great"))
	case progress.CaloriesPct >= 50:
		b.WriteString(p.Sprintf("notify.evening.good"))
	default:
		b.WriteString(p.Sprintf("notify.evening.start"))
	}
	switch user.MotivationType {
	case domain.MotivationAchievement:
		b.WriteString("\n\n" + p.Sprintf("notify.evening.type.achievement"))
	case domain.MotivationHealth:
		b.WriteString("\n\n" + p.Sprintf("notify.evening.type.health"))
	case domain.MotivationAppearance:
		b.WriteString("\n\n" + p.Sprintf("notify.evening.type.appearance"))
	case domain.MotivationComfort:
		b.WriteString("\n\n" + p.Sprintf("notify.evening.type.comfort"))
	}
	return b.String()
}
