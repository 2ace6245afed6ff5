package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
)

// Commands lists the bot commands in menu order.
var Commands = []string{"start", "help", "stats", "settings", "recipes", "enable_notifications", "disable_notifications"}

// MenuCommands returns the command list registered with Telegram.
func (r *Router) MenuCommands(lang string) []tgbotapi.BotCommand {
	p := r.printers.Printer(lang)
	out := make([]tgbotapi.BotCommand, 0, len(Commands))
	for _, name := range Commands {
		out = append(out, tgbotapi.BotCommand{Command: name, Description: p.Sprintf("core.command." + name)})
	}
	return out
}

func (r *Router) command(ctx context.Context, s *session, name string) error {
	switch name {
	case "help":
		return r.help(s)
	case "stats":
		return r.stats(ctx, s)
	case "settings":
		return r.settingsMenu(s)
	case "recipes":
		return r.recipesMenu(s)
	case "enable_notifications":
		return r.setNotifications(ctx, s, true)
	case "disable_notifications":
		return r.setNotifications(ctx, s, false)
	}
	return nil
}

// menuButton routes reply keyboard texts to their command handlers.
func (r *Router) menuButton(ctx context.Context, s *session, text string) (bool, error) {
	switch text {
	case s.t("core.button.add_food"):
		return true, r.send(s.chatID, s.t("core.add_food_prompt"))
	case s.t("core.button.stats"):
		return true, r.stats(ctx, s)
	case s.t("core.button.recipes"):
		return true, r.recipesMenu(s)
	case s.t("core.button.settings"):
		return true, r.settingsMenu(s)
	case s.t("core.button.help"):
		return true, r.help(s)
	}
	return false, nil
}

func (r *Router) start(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := r.store.GetUserByTelegramID(ctx, msg.From.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		user, err = r.store.CreateUser(ctx, storage.UserRecord{
			TelegramID:           msg.From.ID,
			Username:             msg.From.UserName,
			FirstName:            msg.From.FirstName,
			LastName:             msg.From.LastName,
			Timezone:             r.defaultTimezone,
			NotificationsEnabled: true,
		})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		log.Printf("bot: registered telegram user %d as %d", msg.From.ID, user.ID)
	case err != nil:
		return fmt.Errorf("load user: %w", err)
	}
	s := &session{chatID: msg.Chat.ID, user: user, p: r.printer(user)}

	if !user.Targets.IsZero() {
		s.user.State = domain.StateNone
		s.user.ClearFoodDialogue()
		if err := r.saveUser(ctx, s); err != nil {
			return err
		}
		name := strings.TrimSpace(user.FirstName)
		if name == "" {
			name = s.t("core.friend")
		}
		return r.sendWithMarkup(s.chatID, s.t("core.welcome_back", name), mainKeyboard(s))
	}

	s.user.State = domain.StateGender
	if err := r.saveUser(ctx, s); err != nil {
		return err
	}
	return r.send(s.chatID, s.t("onboarding.welcome")+"\n\n"+s.t("onboarding.ask.gender"))
}

func (r *Router) help(s *session) error {
	return r.send(s.chatID, s.t("core.help"))
}

func (r *Router) stats(ctx context.Context, s *session) error {
	user := s.user
	if user.Targets.IsZero() {
		return r.send(s.chatID, s.t("stats.title")+"\n\n"+s.t("stats.no_targets"))
	}
	totals, err := r.todayTotals(ctx, user)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString(s.t("stats.title"))
	b.WriteString("\n\n")
	b.WriteString(s.t("stats.targets", user.Targets.Calories, user.Targets.Protein, user.Targets.Fat, user.Targets.Carbs))
	if user.Goal != "" {
		b.WriteString("\n\n")
		b.WriteString(s.t("stats.goal", goalLabel(s, user.Goal)))
	}
	if user.MotivationLevel != "" {
		b.WriteString("\n")
		b.WriteString(s.t("stats.motivation", motivationLevelLabel(s, user.MotivationLevel)))
	}
	if totals.Calories > 0 {
		b.WriteString("\n\n")
		b.WriteString(s.t("stats.today", totals.Calories, totals.Protein, totals.Fat, totals.Carbs))
	}
	progress := domain.NewDayProgress(totals, user.Targets)
	switch {
	case progress.RemainingCalories > 0:
		b.WriteString("\n\n")
		b.WriteString(s.t("stats.remaining", progress.RemainingCalories))
	case progress.Exceeded():
		b.WriteString("\n\n")
		b.WriteString(s.t("stats.exceeded", int(math.Abs(float64(progress.RemainingCalories)))))
	}
	return r.send(s.chatID, b.String())
}

func (r *Router) settingsMenu(s *session) error {
	return r.sendWithMarkup(s.chatID, s.t("settings.title"), settingsRootKeyboard(s))
}

func (r *Router) recipesMenu(s *session) error {
	if r.recipes == nil {
		return r.send(s.chatID, s.t("recipes.unavailable"))
	}
	return r.sendWithMarkup(s.chatID, s.t("recipes.menu"), recipesMenuKeyboard(s))
}

// setNotifications persists the flag and starts or stops the user's
// schedule.
func (r *Router) setNotifications(ctx context.Context, s *session, enabled bool) error {
	s.user.NotificationsEnabled = enabled
	if err := r.saveUser(ctx, s); err != nil {
		return err
	}
	if r.scheduler != nil {
		if enabled {
			if err := r.scheduler.Start(ctx, s.user.ID); err != nil {
				log.Printf("bot: start schedule for user %d: %v", s.user.ID, err)
				return r.send(s.chatID, s.t("core.notifications.enable_failed"))
			}
		} else {
			r.scheduler.Stop(s.user.ID)
		}
	}
	if enabled {
		return r.send(s.chatID, s.t("core.notifications.enabled"))
	}
	return r.send(s.chatID, s.t("core.notifications.disabled"))
}

func goalLabel(s *session, goal domain.Goal) string {
	switch goal {
	case domain.GoalLoseWeight:
		return s.t("core.goal.lose_weight")
	case domain.GoalGainMuscle:
		return s.t("core.goal.gain_muscle")
	case domain.GoalMaintain:
		return s.t("core.goal.maintain")
	case domain.GoalHealth:
		return s.t("core.goal.health")
	}
	return s.t("core.not_set")
}

func motivationLevelLabel(s *session, level domain.MotivationLevel) string {
	switch level {
	case domain.MotivationLow:
		return s.t("core.motivation_level.low")
	case domain.MotivationMedium:
		return s.t("core.motivation_level.medium")
	case domain.MotivationHigh:
		return s.t("core.motivation_level.high")
	}
	return s.t("core.not_set")
}

func motivationTypeLabel(s *session, kind domain.MotivationType) string {
	switch kind {
	case domain.MotivationAchievement:
		return s.t("core.motivation_type.achievement")
	case domain.MotivationHealth:
		return s.t("core.motivation_type.health")
	case domain.MotivationAppearance:
		return s.t("core.motivation_type.appearance")
	case domain.MotivationComfort:
		return s.t("core.motivation_type.comfort")
	}
	return s.t("core.not_set")
}

func genderLabel(s *session, gender domain.Gender) string {
	switch gender {
	case domain.GenderMale:
		return s.t("core.gender.male")
	case domain.GenderFemale:
		return s.t("core.gender.female")
	case domain.GenderOther:
		return s.t("core.gender.other")
	}
	return s.t("core.not_set")
}

func activityLabel(s *session, level domain.ActivityLevel) string {
	switch level {
	case domain.ActivityLow:
		return s.t("core.activity.low")
	case domain.ActivityMedium:
		return s.t("core.activity.medium")
	case domain.ActivityHigh:
		return s.t("core.activity.high")
	}
	return s.t("core.not_set")
}

func foodsLabel(s *session, foods []string) string {
	if len(foods) == 0 {
		return s.t("core.not_set")
	}
	return strings.Join(foods, ", ")
}
