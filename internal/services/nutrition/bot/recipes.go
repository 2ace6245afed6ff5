package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/louisbranch/eatbot/internal/services/nutrition/recipes"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
)

func (r *Router) recipeCallback(ctx context.Context, s *session, q *tgbotapi.CallbackQuery) (string, error) {
	if r.recipes == nil {
		return s.t("recipes.unavailable"), nil
	}
	data := q.Data
	switch {
	case data == callbackRecipeFromMyFoods:
		return r.generateRecipe(ctx, s, func() (string, int64, error) {
			recipe, err := r.recipes.FromUserFoods(ctx, s.user)
			return recipes.FormatCard(s.p, recipe), recipe.ID, err
		})
	case data == callbackRecipeNewIngredient:
		return r.generateRecipe(ctx, s, func() (string, int64, error) {
			recipe, ingredient, err := r.recipes.WithNewIngredient(ctx, s.user)
			return recipes.FormatNewIngredientCard(s.p, recipe, ingredient), recipe.ID, err
		})
	case data == callbackRecipeCalories:
		return r.generateRecipe(ctx, s, func() (string, int64, error) {
			recipe, remaining, err := r.recipes.UnderCalories(ctx, s.user)
			return s.t("recipes.card.budget", remaining) + "\n\n" + recipes.FormatCard(s.p, recipe), recipe.ID, err
		})
	case data == callbackRecipeFavorites:
		list, err := r.recipes.Favorites(ctx, s.user.ID)
		if err != nil {
			return "", fmt.Errorf("list favorite recipes: %w", err)
		}
		return "", r.recipeList(s, list, "recipes.favorites.title", "recipes.favorites.empty")
	case data == callbackRecipePopular:
		list, err := r.recipes.Popular(ctx)
		if err != nil {
			return "", fmt.Errorf("list popular recipes: %w", err)
		}
		return "", r.recipeList(s, list, "recipes.popular.title", "recipes.popular.empty")
	case strings.HasPrefix(data, callbackRecipeShow):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, callbackRecipeShow), 10, 64)
		if err != nil {
			return s.t("core.unknown_action"), nil
		}
		return r.showRecipe(ctx, s, id)
	case strings.HasPrefix(data, callbackRecipeFavorite):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, callbackRecipeFavorite), 10, 64)
		if err != nil {
			return s.t("core.unknown_action"), nil
		}
		return r.toggleFavorite(ctx, s, q, id)
	}
	return s.t("core.unknown_action"), nil
}

// generateRecipe sends a progress note, runs a generator and replies with
// the recipe card or a localized failure.
func (r *Router) generateRecipe(ctx context.Context, s *session, generate func() (string, int64, error)) (string, error) {
	if err := r.send(s.chatID, s.t("recipes.generating")); err != nil {
		return "", err
	}
	card, id, err := generate()
	switch {
	case errors.Is(err, recipes.ErrNoMeals):
		return "", r.send(s.chatID, s.t("recipes.error.no_meals"))
	case errors.Is(err, recipes.ErrNotEnoughFoods):
		return "", r.send(s.chatID, s.t("recipes.error.not_enough"))
	case errors.Is(err, recipes.ErrNoCaloriesLeft):
		return "", r.send(s.chatID, s.t("recipes.error.no_calories"))
	case err != nil:
		log.Printf("bot: generate recipe for user %d: %v", s.user.ID, err)
		return "", r.send(s.chatID, s.t("recipes.error.generate"))
	}
	return s.t("recipes.toast.ready"), r.sendWithMarkup(s.chatID, card, recipeCardKeyboard(s, id, false, true))
}

func (r *Router) recipeList(s *session, list []storage.RecipeRecord, titleKey, emptyKey string) error {
	if len(list) == 0 {
		return r.send(s.chatID, s.t(emptyKey))
	}
	text := recipes.FormatList(s.p, s.t(titleKey), list)
	return r.sendWithMarkup(s.chatID, text, recipeListKeyboard(s, list, recipes.ListLimit))
}

func (r *Router) showRecipe(ctx context.Context, s *session, id int64) (string, error) {
	recipe, err := r.recipes.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return s.t("recipes.error.not_found"), nil
	}
	if err != nil {
		return "", fmt.Errorf("get recipe %d: %w", id, err)
	}
	favorite, err := r.recipes.IsFavorite(ctx, s.user.ID, id)
	if err != nil {
		return "", fmt.Errorf("check favorite: %w", err)
	}
	return "", r.sendWithMarkup(s.chatID, recipes.FormatCard(s.p, recipe), recipeCardKeyboard(s, id, favorite, false))
}

// toggleFavorite flips the favorite flag and swaps the card's button.
func (r *Router) toggleFavorite(ctx context.Context, s *session, q *tgbotapi.CallbackQuery, id int64) (string, error) {
	favorite, err := r.recipes.ToggleFavorite(ctx, s.user.ID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return s.t("recipes.error.not_found"), nil
	}
	if err != nil {
		return "", fmt.Errorf("toggle favorite: %w", err)
	}

	markup := favoriteMarkup(s, q.Message.ReplyMarkup, id, favorite)
	if _, err := r.sender.Request(tgbotapi.NewEditMessageReplyMarkup(s.chatID, q.Message.MessageID, markup)); err != nil {
		log.Printf("bot: edit recipe card: %v", err)
	}
	if favorite {
		return s.t("recipes.toast.added"), nil
	}
	return s.t("recipes.toast.removed"), nil
}

// favoriteMarkup rebuilds a card keyboard with the favorite button flipped,
// keeping any other rows.
func favoriteMarkup(s *session, current *tgbotapi.InlineKeyboardMarkup, id int64, favorite bool) tgbotapi.InlineKeyboardMarkup {
	if current == nil || len(current.InlineKeyboard) == 0 {
		return *recipeCardKeyboard(s, id, favorite, false)
	}
	prefix := callbackRecipeFavorite + strconv.FormatInt(id, 10)
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(current.InlineKeyboard))
	for _, buttons := range current.InlineKeyboard {
		updated := make([]tgbotapi.InlineKeyboardButton, len(buttons))
		for i, b := range buttons {
			if b.CallbackData != nil && *b.CallbackData == prefix {
				b = favoriteButton(s, id, favorite)
			}
			updated[i] = b
		}
		rows = append(rows, updated)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
