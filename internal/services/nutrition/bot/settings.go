package bot

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
)

// settingPrompt switches a user into a settings input state.
type settingPrompt struct {
	state  domain.State
	prompt func(s *session) string
}

func staticPrompt(key string) func(s *session) string {
	return func(s *session) string { return s.t(key) }
}

var settingPrompts = map[string]settingPrompt{
	callbackSettingsWeight:   {domain.StateSettingsWeight, staticPrompt("settings.ask.weight")},
	callbackSettingsHeight:   {domain.StateSettingsHeight, staticPrompt("settings.ask.height")},
	callbackSettingsAge:      {domain.StateSettingsAge, staticPrompt("settings.ask.age")},
	callbackSettingsCalories: {domain.StateSettingsCalories, staticPrompt("settings.ask.calories")},
	callbackSettingsProtein:  {domain.StateSettingsProtein, staticPrompt("settings.ask.protein")},
	callbackSettingsFat:      {domain.StateSettingsFat, staticPrompt("settings.ask.fat")},
	callbackSettingsCarbs:    {domain.StateSettingsCarbs, staticPrompt("settings.ask.carbs")},
	callbackSettingsFavoriteFoods: {domain.StateSettingsFavoriteFoods, func(s *session) string {
		return s.t("settings.ask.favorite_foods", foodsLabel(s, s.user.FavoriteFoods))
	}},
	callbackSettingsDislikedFoods: {domain.StateSettingsDislikedFoods, func(s *session) string {
		return s.t("settings.ask.disliked_foods", foodsLabel(s, s.user.DislikedFoods))
	}},
	callbackSettingsTimezone: {domain.StateSettingsTimezone, func(s *session) string {
		return s.t("settings.ask.timezone", s.user.Timezone)
	}},
}

// numericSetting validates and applies one numeric settings reply.
type numericSetting struct {
	min, max float64
	integer  bool
	invalid  string
	saved    string
	recalc   bool
	apply    func(u *storage.UserRecord, v float64)
}

var numericSettings = map[domain.State]numericSetting{
	domain.StateSettingsWeight: {
		min: 30, max: 300, invalid: "settings.invalid.weight", saved: "settings.saved.weight", recalc: true,
		apply: func(u *storage.UserRecord, v float64) { u.WeightKG = v },
	},
	domain.StateSettingsHeight: {
		min: 100, max: 250, invalid: "settings.invalid.height", saved: "settings.saved.height", recalc: true,
		apply: func(u *storage.UserRecord, v float64) { u.HeightCM = v },
	},
	domain.StateSettingsAge: {
		min: 10, max: 120, integer: true, invalid: "settings.invalid.age", saved: "settings.saved.age", recalc: true,
		apply: func(u *storage.UserRecord, v float64) { u.Age = int(v) },
	},
	domain.StateSettingsCalories: {
		min: 1200, max: 5000, integer: true, invalid: "settings.invalid.calories", saved: "settings.saved.calories",
		apply: func(u *storage.UserRecord, v float64) { u.Targets.Calories = int(v) },
	},
	domain.StateSettingsProtein: {
		min: 50, max: 400, invalid: "settings.invalid.protein", saved: "settings.saved.protein",
		apply: func(u *storage.UserRecord, v float64) { u.Targets.Protein = int(math.Round(v)) },
	},
	domain.StateSettingsFat: {
		min: 35, max: 200, invalid: "settings.invalid.fat", saved: "settings.saved.fat",
		apply: func(u *storage.UserRecord, v float64) { u.Targets.Fat = int(math.Round(v)) },
	},
	domain.StateSettingsCarbs: {
		min: 100, max: 800, invalid: "settings.invalid.carbs", saved: "settings.saved.carbs",
		apply: func(u *storage.UserRecord, v float64) { u.Targets.Carbs = int(math.Round(v)) },
	},
}

var (
	genderChoices = []choice{
		{"core.gender.male", "settings_gender_male"},
		{"core.gender.female", "settings_gender_female"},
		{"core.gender.other", "settings_gender_other"},
	}
	activityChoices = []choice{
		{"core.activity.low", "settings_activity_low"},
		{"core.activity.medium", "settings_activity_medium"},
		{"core.activity.high", "settings_activity_high"},
	}
	goalChoices = []choice{
		{"core.goal.gain_muscle", "settings_goal_gain_muscle"},
		{"core.goal.lose_weight", "settings_goal_lose_weight"},
		{"core.goal.maintain", "settings_goal_maintain"},
		{"core.goal.health", "settings_goal_health"},
	}
	motivationLevelChoices = []choice{
		{"core.motivation_level.low", "settings_motivation_level_low"},
		{"core.motivation_level.medium", "settings_motivation_level_medium"},
		{"core.motivation_level.high", "settings_motivation_level_high"},
	}
	motivationTypeChoices = []choice{
		{"core.motivation_type.achievement", "settings_motivation_type_achievement"},
		{"core.motivation_type.health", "settings_motivation_type_health"},
		{"core.motivation_type.appearance", "settings_motivation_type_appearance"},
		{"core.motivation_type.comfort", "settings_motivation_type_comfort"},
	}
)

// settingsCallback handles every settings_* button and returns the toast
// to answer the callback with.
func (r *Router) settingsCallback(ctx context.Context, s *session, q *tgbotapi.CallbackQuery) (string, error) {
	messageID := q.Message.MessageID
	data := q.Data

	switch data {
	case callbackSettingsBack:
		return "", r.edit(s.chatID, messageID, s.t("settings.title"), settingsRootKeyboard(s))
	case callbackSettingsProfile:
		return "", r.edit(s.chatID, messageID, profileText(s), profileKeyboard(s))
	case callbackSettingsNutrition:
		return "", r.edit(s.chatID, messageID, nutritionText(s), nutritionKeyboard(s))
	case callbackSettingsNotifications:
		return "", r.edit(s.chatID, messageID, notificationsText(s), notificationsKeyboard(s))
	case callbackSettingsPreferences:
		return "", r.edit(s.chatID, messageID, preferencesText(s), preferencesKeyboard(s))
	case callbackSettingsGender:
		text := s.t("settings.choose.gender", genderLabel(s, s.user.Gender))
		return "", r.edit(s.chatID, messageID, text, choiceKeyboard(s, genderChoices, callbackSettingsProfile))
	case callbackSettingsActivity:
		text := s.t("settings.choose.activity", activityLabel(s, s.user.Activity))
		return "", r.edit(s.chatID, messageID, text, choiceKeyboard(s, activityChoices, callbackSettingsProfile))
	case callbackSettingsGoal:
		text := s.t("settings.choose.goal", goalLabel(s, s.user.Goal))
		return "", r.edit(s.chatID, messageID, text, choiceKeyboard(s, goalChoices, callbackSettingsNutrition))
	case callbackMotivationLevel:
		text := s.t("settings.choose.motivation_level", motivationLevelLabel(s, s.user.MotivationLevel))
		return "", r.edit(s.chatID, messageID, text, choiceKeyboard(s, motivationLevelChoices, callbackSettingsPreferences))
	case callbackMotivationType:
		text := s.t("settings.choose.motivation_type", motivationTypeLabel(s, s.user.MotivationType))
		return "", r.edit(s.chatID, messageID, text, choiceKeyboard(s, motivationTypeChoices, callbackSettingsPreferences))
	case callbackSettingsRecalc:
		if !r.recalculate(s) {
			return "", r.send(s.chatID, s.t("settings.recalc_missing"))
		}
		if err := r.saveUser(ctx, s); err != nil {
			return "", err
		}
		return s.t("settings.toast.recalculated"), r.send(s.chatID, s.t("settings.recalculated", s.user.Targets.Calories))
	case callbackNotificationsEnable:
		return s.t("settings.toast.enabled"), r.setNotifications(ctx, s, true)
	case callbackNotificationsDisable:
		return s.t("settings.toast.disabled"), r.setNotifications(ctx, s, false)
	}

	if prompt, ok := settingPrompts[data]; ok {
		s.user.State = prompt.state
		if err := r.saveUser(ctx, s); err != nil {
			return "", err
		}
		return "", r.send(s.chatID, prompt.prompt(s))
	}
	return r.settingsChoice(ctx, s, data)
}

// settingsChoice applies a value picked from one of the choice menus.
func (r *Router) settingsChoice(ctx context.Context, s *session, data string) (string, error) {
	var (
		label  string
		recalc bool
	)
	switch {
	case strings.HasPrefix(data, callbackSettingsGender+"_"):
		gender := domain.Gender(strings.TrimPrefix(data, callbackSettingsGender+"_"))
		if gender != domain.GenderMale && gender != domain.GenderFemale && gender != domain.GenderOther {
			return s.t("core.unknown_action"), nil
		}
		s.user.Gender = gender
		label, recalc = genderLabel(s, gender), true
	case strings.HasPrefix(data, callbackSettingsActivity+"_"):
		level, ok := domain.ParseActivityLevel(strings.TrimPrefix(data, callbackSettingsActivity+"_"))
		if !ok {
			return s.t("core.unknown_action"), nil
		}
		s.user.Activity = level
		label, recalc = activityLabel(s, level), true
	case strings.HasPrefix(data, callbackSettingsGoal+"_"):
		goal := domain.Goal(strings.TrimPrefix(data, callbackSettingsGoal+"_"))
		if !containsValue(domain.Goals, goal) {
			return s.t("core.unknown_action"), nil
		}
		s.user.Goal = goal
		label, recalc = goalLabel(s, goal), true
	case strings.HasPrefix(data, callbackMotivationLevel+"_"):
		level := domain.MotivationLevel(strings.TrimPrefix(data, callbackMotivationLevel+"_"))
		if !containsValue(domain.MotivationLevels, level) {
			return s.t("core.unknown_action"), nil
		}
		s.user.MotivationLevel = level
		label = motivationLevelLabel(s, level)
	case strings.HasPrefix(data, callbackMotivationType+"_"):
		kind := domain.MotivationType(strings.TrimPrefix(data, callbackMotivationType+"_"))
		if !containsValue(domain.MotivationTypes, kind) {
			return s.t("core.unknown_action"), nil
		}
		s.user.MotivationType = kind
		label = motivationTypeLabel(s, kind)
	default:
		return s.t("core.unknown_action"), nil
	}

	text := s.t("settings.saved.choice", label)
	if recalc && r.recalculate(s) {
		text += "\n\n" + s.t("settings.recalculated", s.user.Targets.Calories)
	}
	if err := r.saveUser(ctx, s); err != nil {
		return "", err
	}
	return label, r.send(s.chatID, text)
}

// settingsInput handles a typed reply while the user is in a
// settings_waiting_* state. Invalid values keep the state so the user can
// retry.
func (r *Router) settingsInput(ctx context.Context, s *session, text string) error {
	state := s.user.State
	if setting, ok := numericSettings[state]; ok {
		value, err := parseSetting(text, setting.integer)
		if err != nil || value < setting.min || value > setting.max {
			return r.send(s.chatID, s.t(setting.invalid))
		}
		setting.apply(&s.user, value)
		s.user.State = domain.StateNone
		reply := s.t(setting.saved, strconv.FormatFloat(value, 'f', -1, 64))
		if setting.recalc && r.recalculate(s) {
			reply += "\n\n" + s.t("settings.recalculated", s.user.Targets.Calories)
		}
		if err := r.saveUser(ctx, s); err != nil {
			return err
		}
		return r.send(s.chatID, reply)
	}

	switch state {
	case domain.StateSettingsFavoriteFoods, domain.StateSettingsDislikedFoods:
		foods, err := domain.ParseFoodList(text)
		if err != nil {
			return r.send(s.chatID, s.t("settings.invalid.foods"))
		}
		key := "settings.saved.favorite_foods"
		if state == domain.StateSettingsFavoriteFoods {
			s.user.FavoriteFoods = foods
		} else {
			s.user.DislikedFoods = foods
			key = "settings.saved.disliked_foods"
		}
		s.user.State = domain.StateNone
		if err := r.saveUser(ctx, s); err != nil {
			return err
		}
		return r.send(s.chatID, s.t(key, strings.Join(foods, ", ")))
	case domain.StateSettingsTimezone:
		name := strings.TrimSpace(text)
		if _, err := loadTimezone(name); err != nil {
			return r.send(s.chatID, s.t("settings.invalid.timezone"))
		}
		s.user.Timezone = name
		s.user.State = domain.StateNone
		if err := r.saveUser(ctx, s); err != nil {
			return err
		}
		if r.scheduler != nil && s.user.NotificationsEnabled {
			if err := r.scheduler.Start(ctx, s.user.ID); err != nil {
				log.Printf("bot: reschedule user %d: %v", s.user.ID, err)
			}
		}
		return r.send(s.chatID, s.t("settings.saved.timezone", name))
	}

	log.Printf("bot: user %d has unknown settings state %q", s.user.ID, state)
	s.user.State = domain.StateNone
	if err := r.saveUser(ctx, s); err != nil {
		return err
	}
	return r.send(s.chatID, s.t("core.error.general"))
}

// recalculate refreshes the user's targets from the profile. It reports
// false when body metrics are incomplete and targets were left unchanged.
func (r *Router) recalculate(s *session) bool {
	profile := s.user.Profile()
	if !profile.HasBodyMetrics() {
		return false
	}
	s.user.Targets = domain.RecalculateTargets(profile)
	return true
}

func parseSetting(text string, integer bool) (float64, error) {
	if integer {
		value, err := strconv.Atoi(strings.TrimSpace(text))
		return float64(value), err
	}
	return domain.ParseDecimal(text)
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("timezone %q is not allowed", name)
	}
	return time.LoadLocation(name)
}

func containsValue[T comparable](values []T, want T) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}

func profileText(s *session) string {
	u := s.user
	age, height, weight := s.t("core.not_set"), s.t("core.not_set"), s.t("core.not_set")
	if u.Age > 0 {
		age = s.t("settings.value.age", u.Age)
	}
	if u.HeightCM > 0 {
		height = s.t("settings.value.height", domain.FormatGrams(u.HeightCM))
	}
	if u.WeightKG > 0 {
		weight = s.t("settings.value.weight", domain.FormatGrams(u.WeightKG))
	}
	return s.t("settings.profile", age, height, weight, genderLabel(s, u.Gender), activityLabel(s, u.Activity))
}

func nutritionText(s *session) string {
	t := s.user.Targets
	return s.t("settings.nutrition", t.Calories, t.Protein, t.Fat, t.Carbs, goalLabel(s, s.user.Goal))
}

func notificationsText(s *session) string {
	status := s.t("settings.status.off")
	if s.user.NotificationsEnabled {
		status = s.t("settings.status.on")
	}
	return s.t("settings.notifications", status, s.user.Timezone)
}

func preferencesText(s *session) string {
	u := s.user
	return s.t("settings.preferences",
		motivationLevelLabel(s, u.MotivationLevel),
		motivationTypeLabel(s, u.MotivationType),
		foodsLabel(s, u.FavoriteFoods),
		foodsLabel(s, u.DislikedFoods),
	)
}
