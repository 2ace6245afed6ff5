package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
)

const nutritionistSystemPrompt = `Ты нутрициолог. Перед анализом исправляй типичные ошибки распознавания речи: "шаренная" и "шареная" означают "жареная", "шарений" означает "жареный", "фарри" означает "фри", "чикены" означает "курица", "картоско" означает "картофель". Опирайся на справочные данные USDA и аналогичных источников. Отвечай строго JSON без пояснений.`

const textAnalysisPrompt = `Рассчитай КБЖУ продукта или блюда "%s" весом %sг.

Ответь только JSON:
{"description": "название на русском с весом", "calories": число, "protein": число, "fat": число, "carbs": число}`

const photoAnalysisPrompt = `Определи продукты на фото и рассчитай КБЖУ строго на 100 грамм, не учитывая видимый объём порции.

Ответь только JSON:
{"description": "что на фото, без веса", "calories": число, "protein": число, "fat": число, "carbs": число}`

var refusalMarkers = []string{
	"сожалению", "извин", "не удалось", "не могу", "не разбер", "неверный", "cannot", "can't", "sorry",
}

// AnalyzeText estimates nutrition for a free-text food description. A
// trailing amount ("150", "150 г") is read as the portion; 100 g otherwise.
func (c *Client) AnalyzeText(ctx context.Context, text string) (domain.Analysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Analysis{}, fmt.Errorf("food text is required")
	}
	product, grams := domain.SplitProductAmount(text)
	content, err := c.complete(ctx, completion{
		operation:   "AnalyzeText",
		model:       c.model,
		temperature: 0.1,
		maxTokens:   1000,
		messages:    systemUser(nutritionistSystemPrompt, fmt.Sprintf(textAnalysisPrompt, product, domain.FormatGrams(grams))),
	})
	if err != nil {
		return domain.Analysis{}, err
	}
	return parseAnalysis(content)
}

// AnalyzePhoto estimates nutrition per 100 g for the food on a photo.
func (c *Client) AnalyzePhoto(ctx context.Context, imageURL, caption string) (domain.Analysis, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return domain.Analysis{}, fmt.Errorf("image url is required")
	}
	prompt := photoAnalysisPrompt
	if caption = strings.TrimSpace(caption); caption != "" {
		prompt += "\n\nПодпись пользователя: " + caption
	}
	content, err := c.complete(ctx, completion{
		operation:   "AnalyzePhoto",
		model:       c.visionModel,
		temperature: 0.1,
		maxTokens:   2000,
		messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    imageURL,
					Detail: openai.ImageURLDetailHigh,
				}},
			},
		}},
	})
	if err != nil {
		return domain.Analysis{}, err
	}
	analysis, err := parseAnalysis(content)
	if err != nil {
		return domain.Analysis{}, err
	}
	if strings.TrimSpace(analysis.Description) == "" {
		analysis.Description = "Продукты с фото"
	}
	return analysis, nil
}

// parseAnalysis accepts the flat reply shape as well as the nested
// {"analysis": {"total": {...}}} and {"analysis": {"total_per_100g": {...}}}
// shapes some models fall back to.
func parseAnalysis(content string) (domain.Analysis, error) {
	cleaned := stripFences(content)
	if !gjson.Valid(cleaned) {
		lower := strings.ToLower(cleaned)
		for _, marker := range refusalMarkers {
			if strings.Contains(lower, marker) {
				return domain.Analysis{}, ErrRefused
			}
		}
		return domain.Analysis{}, ErrInvalidReply
	}
	parsed := gjson.Parse(cleaned)
	if success := parsed.Get("success"); success.Exists() && !success.Bool() {
		return domain.Analysis{}, ErrRefused
	}

	values := parsed
	for _, path := range []string{"analysis.total", "analysis.total_per_100g", "total"} {
		if nested := parsed.Get(path); nested.IsObject() {
			values = nested
			break
		}
	}
	description := firstString(parsed, "description", "analysis.description")
	analysis := domain.Analysis{
		Description: description,
		Calories:    values.Get("calories").Float(),
		Protein:     values.Get("protein").Float(),
		Fat:         values.Get("fat").Float(),
		Carbs:       values.Get("carbs").Float(),
	}
	if !values.Get("calories").Exists() {
		return domain.Analysis{}, ErrInvalidReply
	}
	return analysis, nil
}

func firstString(result gjson.Result, paths ...string) string {
	for _, path := range paths {
		if value := strings.TrimSpace(result.Get(path).String()); value != "" {
			return value
		}
	}
	return ""
}
