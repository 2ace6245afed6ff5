package bot

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
)

// Callback data.
const (
	callbackSaveMeal            = "save_meal"
	callbackCancelMeal          = "cancel_meal"
	callbackCancelClarification = "cancel_food_clarification"

	recipePrefix                = "recipe_"
	callbackRecipeFromMyFoods   = "recipe_from_my_foods"
	callbackRecipeNewIngredient = "recipe_with_new_ingredient"
	callbackRecipeFavorites     = "recipe_favorites"
	callbackRecipeCalories      = "recipe_under_calories"
	callbackRecipePopular       = "recipe_popular"
	callbackRecipeShow          = "recipe_show_"
	callbackRecipeFavorite      = "recipe_favorite_"

	settingsPrefix                = "settings_"
	callbackSettingsProfile       = "settings_profile"
	callbackSettingsNutrition     = "settings_nutrition"
	callbackSettingsNotifications = "settings_notifications"
	callbackSettingsPreferences   = "settings_preferences"
	callbackSettingsBack          = "settings_back"
	callbackSettingsWeight        = "settings_weight"
	callbackSettingsHeight        = "settings_height"
	callbackSettingsAge           = "settings_age"
	callbackSettingsGender        = "settings_gender"
	callbackSettingsActivity      = "settings_activity"
	callbackSettingsCalories      = "settings_calories"
	callbackSettingsProtein       = "settings_protein"
	callbackSettingsFat           = "settings_fat"
	callbackSettingsCarbs         = "settings_carbs"
	callbackSettingsGoal          = "settings_goal"
	callbackSettingsRecalc        = "settings_recalc"
	callbackNotificationsEnable   = "settings_notifications_enable"
	callbackNotificationsDisable  = "settings_notifications_disable"
	callbackSettingsTimezone      = "settings_timezone"
	callbackSettingsFavoriteFoods = "settings_favorite_foods"
	callbackSettingsDislikedFoods = "settings_disliked_foods"
	callbackMotivationLevel       = "settings_motivation_level"
	callbackMotivationType        = "settings_motivation_type"
)

func button(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func row(buttons ...tgbotapi.InlineKeyboardButton) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(buttons...)
}

func inline(rows ...[]tgbotapi.InlineKeyboardButton) *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// mainKeyboard is the persistent reply keyboard shown after onboarding.
func mainKeyboard(s *session) tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(s.t("core.button.add_food")),
			tgbotapi.NewKeyboardButton(s.t("core.button.stats")),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(s.t("core.button.recipes")),
			tgbotapi.NewKeyboardButton(s.t("core.button.settings")),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(s.t("core.button.help")),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func confirmationKeyboard(s *session) *tgbotapi.InlineKeyboardMarkup {
	return inline(row(
		button(s.t("food.button.save"), callbackSaveMeal),
		button(s.t("food.button.discard"), callbackCancelMeal),
	))
}

func clarificationKeyboard(s *session) *tgbotapi.InlineKeyboardMarkup {
	return inline(row(button(s.t("food.button.cancel"), callbackCancelClarification)))
}

func settingsRootKeyboard(s *session) *tgbotapi.InlineKeyboardMarkup {
	return inline(
		row(
			button(s.t("settings.button.profile"), callbackSettingsProfile),
			button(s.t("settings.button.nutrition"), callbackSettingsNutrition),
		),
		row(
			button(s.t("settings.button.notifications"), callbackSettingsNotifications),
			button(s.t("settings.button.preferences"), callbackSettingsPreferences),
		),
	)
}

func backRow(s *session, data string) []tgbotapi.InlineKeyboardButton {
	return row(button(s.t("settings.button.back"), data))
}

func profileKeyboard(s *session) *tgbotapi.InlineKeyboardMarkup {
	return inline(
		row(
			button(s.t("settings.button.weight"), callbackSettingsWeight),
			button(s.t("settings.button.height"), callbackSettingsHeight),
		),
		row(
			button(s.t("settings.button.activity"), callbackSettingsActivity),
			button(s.t("settings.button.age"), callbackSettingsAge),
		),
		row(button(s.t("settings.button.gender"), callbackSettingsGender)),
		backRow(s, callbackSettingsBack),
	)
}

func nutritionKeyboard(s *session) *tgbotapi.InlineKeyboardMarkup {
	return inline(
		row(
			button(s.t("settings.button.calories"), callbackSettingsCalories),
			button(s.t("settings.button.protein"), callbackSettingsProtein),
		),
		row(
			button(s.t("settings.button.fat"), callbackSettingsFat),
			button(s.t("settings.button.carbs"), callbackSettingsCarbs),
		),
		row(button(s.t("settings.button.goal"), callbackSettingsGoal)),
		row(button(s.t("settings.button.recalc"), callbackSettingsRecalc)),
		backRow(s, callbackSettingsBack),
	)
}

func notificationsKeyboard(s *session) *tgbotapi.InlineKeyboardMarkup {
	toggle := button(s.t("settings.button.enable"), callbackNotificationsEnable)
	if s.user.NotificationsEnabled {
		toggle = button(s.t("settings.button.disable"), callbackNotificationsDisable)
	}
	return inline(
		row(toggle),
		row(button(s.t("settings.button.timezone"), callbackSettingsTimezone)),
		backRow(s, callbackSettingsBack),
	)
}

func preferencesKeyboard(s *session) *tgbotapi.InlineKeyboardMarkup {
	return inline(
		row(
			button(s.t("settings.button.favorite_foods"), callbackSettingsFavoriteFoods),
			button(s.t("settings.button.disliked_foods"), callbackSettingsDislikedFoods),
		),
		row(
			button(s.t("settings.button.motivation_level"), callbackMotivationLevel),
			button(s.t("settings.button.motivation_type"), callbackMotivationType),
		),
		backRow(s, callbackSettingsBack),
	)
}

// choiceKeyboard lists one button per option, each on its own row, with a
// back button to parent.
func choiceKeyboard(s *session, options []choice, parent string) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(options)+1)
	for _, option := range options {
		rows = append(rows, row(button(s.t(option.label), option.data)))
	}
	rows = append(rows, backRow(s, parent))
	return inline(rows...)
}

type choice struct {
	label string
	data  string
}

func recipesMenuKeyboard(s *session) *tgbotapi.InlineKeyboardMarkup {
	return inline(
		row(button(s.t("recipes.button.from_my_foods"), callbackRecipeFromMyFoods)),
		row(button(s.t("recipes.button.new_ingredient"), callbackRecipeNewIngredient)),
		row(button(s.t("recipes.button.under_calories"), callbackRecipeCalories)),
		row(
			button(s.t("recipes.button.favorites"), callbackRecipeFavorites),
			button(s.t("recipes.button.popular"), callbackRecipePopular),
		),
	)
}

func favoriteButton(s *session, recipeID int64, favorite bool) tgbotapi.InlineKeyboardButton {
	label := s.t("recipes.button.favorite_add")
	if favorite {
		label = s.t("recipes.button.favorite_remove")
	}
	return button(label, callbackRecipeFavorite+strconv.FormatInt(recipeID, 10))
}

func recipeCardKeyboard(s *session, recipeID int64, favorite, another bool) *tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{row(favoriteButton(s, recipeID, favorite))}
	if another {
		rows = append(rows, row(button(s.t("recipes.button.another"), callbackRecipeNewIngredient)))
	}
	return inline(rows...)
}

func recipeListKeyboard(s *session, list []storage.RecipeRecord, limit int) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, limit)
	for i, recipe := range list {
		if i == limit {
			break
		}
		rows = append(rows, row(button(s.t("recipes.button.show", recipe.Title), callbackRecipeShow+strconv.FormatInt(recipe.ID, 10))))
	}
	return inline(rows...)
}
