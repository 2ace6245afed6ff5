package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/louisbranch/eatbot/internal/platform/timeouts"
	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
	"github.com/louisbranch/eatbot/internal/services/nutrition/voice"
)

// media links a food entry to the Telegram file it came from.
type media struct {
	photoID string
	audioID string
}

// analyzeFood runs the food text flow: generic names are narrowed down
// first, then the reference databases are searched, then the AI estimates.
// Texts without an amount end with a portion weight question.
func (r *Router) analyzeFood(ctx context.Context, s *session, text string, m media) error {
	text = strings.TrimSpace(text)
	if domain.NeedsTypeClarification(text) {
		s.user.ClearFoodDialogue()
		s.user.State = domain.StateAwaitingFoodType
		s.user.PendingFoodDescription = text
		r.extendFoodDialogue(s)
		if err := r.saveUser(ctx, s); err != nil {
			return err
		}
		return r.sendWithMarkup(s.chatID, s.t("food.clarify.type", text), clarificationKeyboard(s))
	}

	if r.lookup != nil {
		result, ok, err := r.lookup.Find(ctx, text)
		if err != nil {
			log.Printf("bot: food lookup %q: %v", text, err)
		}
		if err == nil && ok {
			pending := storage.PendingAnalysis{
				Query:    result.Name,
				Source:   result.Source,
				Analysis: result.Per100g,
				PhotoID:  m.photoID,
				AudioID:  m.audioID,
			}
			if !result.HasAmount {
				return r.askWeight(ctx, s, pending)
			}
			return r.confirm(ctx, s, storage.PendingConfirmation{
				Analysis: result.Portion(),
				Source:   result.Source,
				PhotoID:  m.photoID,
				AudioID:  m.audioID,
			})
		}
	}

	if err := r.send(s.chatID, s.t("food.analyzing")); err != nil {
		return err
	}
	analysis, err := r.analyzer.AnalyzeText(ctx, text)
	if err != nil {
		log.Printf("bot: analyze %q: %v", text, err)
		return r.send(s.chatID, analysisErrorText(s))
	}
	if err := domain.ValidateAnalysis(text, analysis); err != nil {
		log.Printf("bot: rejected analysis for %q: %v", text, err)
		return r.send(s.chatID, analysisErrorText(s))
	}

	if !domain.HasDigits(text) {
		return r.askWeight(ctx, s, storage.PendingAnalysis{
			Query:    text,
			Source:   storage.SourceAI,
			Analysis: analysis,
			PhotoID:  m.photoID,
			AudioID:  m.audioID,
		})
	}
	if grams, ok := portionGrams(text); ok {
		r.rememberFood(ctx, storage.FoodTypeAIAnalysis, perHundredGrams(analysis, grams))
	}
	return r.confirm(ctx, s, storage.PendingConfirmation{
		Analysis: analysis,
		Source:   storage.SourceAI,
		PhotoID:  m.photoID,
		AudioID:  m.audioID,
	})
}

// foodReply handles text sent while a food clarification is open.
func (r *Router) foodReply(ctx context.Context, s *session, text string, audioID string) error {
	if text == s.t("food.button.cancel") {
		s.user.ClearFoodDialogue()
		if err := r.saveUser(ctx, s); err != nil {
			return err
		}
		return r.send(s.chatID, s.t("food.clarify.cancelled"))
	}
	if expires := s.user.FoodDetailsExpiresAt; expires != nil && r.now().After(*expires) {
		s.user.ClearFoodDialogue()
		if err := r.saveUser(ctx, s); err != nil {
			return err
		}
		return r.analyzeFood(ctx, s, text, media{audioID: audioID})
	}

	switch s.user.State {
	case domain.StateAwaitingFoodType:
		if domain.NeedsTypeClarification(text) {
			return r.send(s.chatID, s.t("food.clarify.still_generic", text))
		}
		if err := r.send(s.chatID, s.t("food.analyzing")); err != nil {
			return err
		}
		analysis, err := r.analyzer.AnalyzeText(ctx, perHundredQuery(text))
		if err != nil {
			log.Printf("bot: analyze clarified %q: %v", text, err)
			return r.send(s.chatID, analysisErrorText(s))
		}
		if err := domain.ValidateAnalysis(text, analysis); err != nil {
			log.Printf("bot: rejected clarified analysis for %q: %v", text, err)
			return r.send(s.chatID, analysisErrorText(s))
		}
		return r.askWeight(ctx, s, storage.PendingAnalysis{
			Query:    text,
			Source:   storage.SourceAI,
			Analysis: analysis,
			AudioID:  audioID,
		})

	case domain.StateAwaitingFoodWeight:
		pending := s.user.PendingAnalysis
		if pending == nil {
			s.user.ClearFoodDialogue()
			if err := r.saveUser(ctx, s); err != nil {
				return err
			}
			return r.analyzeFood(ctx, s, text, media{audioID: audioID})
		}
		grams, err := domain.ParsePortion(text)
		if err != nil || grams > maxPortionGrams {
			return r.send(s.chatID, s.t("food.clarify.weight_invalid", maxPortionGrams))
		}
		base := *pending
		if base.Source != storage.SourceLocal {
			dataType := storage.FoodTypeAIAnalysis
			if base.Source == storage.SourceUSDA {
				dataType = storage.FoodTypeUSDASearch
			}
			r.rememberFood(ctx, dataType, base.Analysis)
		}
		if base.AudioID == "" {
			base.AudioID = audioID
		}
		s.user.ClearFoodDialogue()
		return r.confirm(ctx, s, storage.PendingConfirmation{
			Analysis: base.Analysis.ScaleTo(grams),
			Source:   base.Source,
			PhotoID:  base.PhotoID,
			AudioID:  base.AudioID,
		})
	}
	return nil
}

// askWeight stores a per-100 g analysis and asks for the portion weight.
func (r *Router) askWeight(ctx context.Context, s *session, pending storage.PendingAnalysis) error {
	name := domain.CleanFoodName(pending.Analysis.Description)
	if name == "" {
		name = pending.Query
	}
	s.user.State = domain.StateAwaitingFoodWeight
	s.user.PendingFoodDescription = pending.Query
	s.user.PendingAnalysis = &pending
	r.extendFoodDialogue(s)
	if err := r.saveUser(ctx, s); err != nil {
		return err
	}
	return r.sendWithMarkup(s.chatID, s.t("food.clarify.weight", name), clarificationKeyboard(s))
}

func (r *Router) extendFoodDialogue(s *session) {
	expires := r.now().Add(foodDetailsTTL)
	s.user.FoodDetailsExpiresAt = &expires
}

// confirm shows a portion estimate with save and cancel buttons and
// remembers it until one is pressed.
func (r *Router) confirm(ctx context.Context, s *session, pending storage.PendingConfirmation) error {
	pending.Analysis = pending.Analysis.Sanitized()
	sent, err := r.sendMessage(s.chatID, confirmationText(s, pending.Analysis), confirmationKeyboard(s))
	if err != nil {
		return err
	}
	s.user.PendingConfirmation = &pending
	s.user.PendingConfirmationMessageID = sent.MessageID
	return r.saveUser(ctx, s)
}

func confirmationText(s *session, a domain.Analysis) string {
	return s.t("food.confirm", a.Description, math.Round(a.Calories), a.Protein, a.Fat, a.Carbs)
}

func analysisErrorText(s *session) string {
	return s.t("food.error.analysis") + "\n\n" + s.t("food.error.examples")
}

// confirmationCallback saves or discards the pending confirmation.
func (r *Router) confirmationCallback(ctx context.Context, s *session, q *tgbotapi.CallbackQuery) (string, error) {
	pending := s.user.PendingConfirmation
	if pending == nil || s.user.PendingConfirmationMessageID != q.Message.MessageID {
		return s.t("food.confirm.none"), nil
	}

	var toast, mark string
	if q.Data == callbackSaveMeal {
		if err := r.saveMeal(ctx, s, *pending); err != nil {
			return "", err
		}
		toast, mark = s.t("food.saved.toast"), s.t("food.saved")
	} else {
		toast, mark = s.t("food.not_saved.toast"), s.t("food.not_saved")
	}

	s.user.PendingConfirmation = nil
	s.user.PendingConfirmationMessageID = 0
	if err := r.saveUser(ctx, s); err != nil {
		return "", err
	}
	if err := r.edit(s.chatID, q.Message.MessageID, q.Message.Text+"\n\n"+mark, nil); err != nil {
		log.Printf("bot: edit confirmation: %v", err)
	}
	return toast, nil
}

func (r *Router) saveMeal(ctx context.Context, s *session, pending storage.PendingConfirmation) error {
	analysis := pending.Analysis.Sanitized()
	raw, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode meal analysis: %w", err)
	}
	now := r.now()
	if _, err := r.store.CreateMeal(ctx, storage.MealRecord{
		UserID:       s.user.ID,
		MealDate:     r.today(s.user),
		EatenAt:      now,
		MealType:     domain.MealSnack,
		Calories:     int(math.Round(analysis.Calories)),
		Protein:      analysis.Protein,
		Fat:          analysis.Fat,
		Carbs:        analysis.Carbs,
		Description:  analysis.Description,
		PhotoFileID:  pending.PhotoID,
		AudioFileID:  pending.AudioID,
		AnalysisJSON: string(raw),
	}); err != nil {
		return fmt.Errorf("create meal: %w", err)
	}
	if err := r.updateProgress(ctx, s.user); err != nil {
		log.Printf("bot: update progress for user %d: %v", s.user.ID, err)
	}
	return nil
}

// updateProgress refreshes the day's nutrition totals in the progress log,
// keeping any body measurements already recorded for the day.
func (r *Router) updateProgress(ctx context.Context, user storage.UserRecord) error {
	date := r.today(user)
	totals, err := r.todayTotals(ctx, user)
	if err != nil {
		return err
	}
	progress, err := r.store.GetProgress(ctx, user.ID, date)
	if errors.Is(err, storage.ErrNotFound) {
		progress = storage.ProgressRecord{UserID: user.ID, Date: date, WeightKG: user.WeightKG}
	} else if err != nil {
		return fmt.Errorf("get progress: %w", err)
	}
	progress.Totals = totals
	return r.store.PutProgress(ctx, progress)
}

func (r *Router) cancelClarificationCallback(ctx context.Context, s *session, q *tgbotapi.CallbackQuery) (string, error) {
	if !s.user.State.IsFoodClarification() {
		return s.t("food.clarify.none"), nil
	}
	s.user.ClearFoodDialogue()
	if err := r.saveUser(ctx, s); err != nil {
		return "", err
	}
	if err := r.edit(s.chatID, q.Message.MessageID, q.Message.Text+"\n\n"+s.t("food.clarify.cancelled_mark"), nil); err != nil {
		log.Printf("bot: edit clarification: %v", err)
	}
	return s.t("food.clarify.cancelled_toast"), nil
}

// rememberFood stores a per-100 g analysis in the food reference tables
// after the update finishes. Duplicates are ignored.
func (r *Router) rememberFood(ctx context.Context, dataType string, per100g domain.Analysis) {
	name := domain.CleanFoodName(per100g.Description)
	if name == "" || per100g.Calories <= 0 {
		return
	}
	per100g.Description = name
	r.detach(ctx, timeouts.BackgroundWrite, func(ctx context.Context) {
		if _, err := r.store.SaveAnalyzedFood(ctx, dataType, per100g); err != nil && !errors.Is(err, storage.ErrConflict) {
			log.Printf("bot: save analyzed food %q: %v", name, err)
		}
	})
}

// perHundredQuery rewrites a food text to ask for exactly 100 g.
func perHundredQuery(text string) string {
	product, _ := domain.SplitProductAmount(text)
	return domain.CleanFoodName(product) + " 100"
}

// portionGrams reads the weight named in a food text, either with a unit
// ("рис 150 г") or as a trailing number ("гречка 150").
func portionGrams(text string) (float64, bool) {
	_, grams, ok := domain.ProductAmount(text)
	return grams, ok
}

// perHundredGrams converts a portion analysis back to 100 g.
func perHundredGrams(a domain.Analysis, grams float64) domain.Analysis {
	if grams <= 0 {
		return domain.Analysis{}
	}
	factor := 100 / grams
	return domain.Analysis{
		Description: domain.CleanFoodName(a.Description),
		Calories:    math.Round(a.Calories * factor),
		Protein:     math.Round(a.Protein*factor*10) / 10,
		Fat:         math.Round(a.Fat*factor*10) / 10,
		Carbs:       math.Round(a.Carbs*factor*10) / 10,
	}
}

func secondsDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// photo analyses the largest photo size per 100 g and asks for the portion
// weight. When the vision model fails, a caption is analysed as text.
func (r *Router) photo(ctx context.Context, s *session, msg *tgbotapi.Message) error {
	largest := msg.Photo[len(msg.Photo)-1]
	if largest.FileSize > r.maxPhotoSize {
		return r.send(s.chatID, s.t("food.photo.too_large", r.maxPhotoSize>>20))
	}
	if err := r.send(s.chatID, s.t("food.photo.analyzing")); err != nil {
		return err
	}
	fileURL, err := r.sender.GetFileDirectURL(largest.FileID)
	if err != nil {
		log.Printf("bot: photo file url: %v", err)
		return r.send(s.chatID, s.t("food.photo.download_failed"))
	}

	caption := strings.TrimSpace(msg.Caption)
	analysis, err := r.analyzer.AnalyzePhoto(ctx, fileURL, caption)
	if err == nil {
		err = domain.ValidateAnalysis(analysis.Description, analysis)
	}
	if err != nil {
		log.Printf("bot: analyze photo for user %d: %v", s.user.ID, err)
		if caption != "" {
			return r.analyzeFood(ctx, s, caption, media{photoID: largest.FileID})
		}
		return r.send(s.chatID, s.t("food.photo.failed"))
	}
	return r.askWeight(ctx, s, storage.PendingAnalysis{
		Query:    analysis.Description,
		Source:   storage.SourcePhoto,
		Analysis: analysis,
		PhotoID:  largest.FileID,
	})
}

// voice transcribes a voice message. The transcript answers an open weight
// question or runs through the food text flow.
func (r *Router) voice(ctx context.Context, s *session, v *tgbotapi.Voice) error {
	if r.transcriber == nil {
		return r.send(s.chatID, s.t("food.voice.unavailable"))
	}
	if err := voice.Validate(secondsDuration(v.Duration), v.MimeType, r.maxVoiceDuration); err != nil {
		switch {
		case errors.Is(err, voice.ErrTooShort):
			return r.send(s.chatID, s.t("food.voice.too_short"))
		case errors.Is(err, voice.ErrTooLong):
			return r.send(s.chatID, s.t("food.voice.too_long", int(r.maxVoiceDuration.Seconds())))
		default:
			return r.send(s.chatID, s.t("food.voice.unsupported"))
		}
	}
	if err := r.send(s.chatID, s.t("food.voice.processing")); err != nil {
		return err
	}

	fileURL, err := r.sender.GetFileDirectURL(v.FileID)
	if err != nil {
		log.Printf("bot: voice file url: %v", err)
		return r.send(s.chatID, s.t("food.voice.download_failed"))
	}
	audio, err := voice.Download(ctx, r.httpClient, fileURL)
	if err != nil {
		log.Printf("bot: download voice: %v", err)
		return r.send(s.chatID, s.t("food.voice.download_failed"))
	}
	text, err := r.transcriber.Transcribe(ctx, audio)
	if errors.Is(err, voice.ErrEmptyTranscript) {
		return r.send(s.chatID, s.t("food.voice.empty"))
	}
	if err != nil {
		log.Printf("bot: transcribe voice for user %d: %v", s.user.ID, err)
		return r.send(s.chatID, s.t("food.voice.failed"))
	}
	if err := r.send(s.chatID, s.t("food.voice.recognized", text)); err != nil {
		return err
	}

	if s.user.State.IsFoodClarification() {
		return r.foodReply(ctx, s, text, v.FileID)
	}
	return r.analyzeFood(ctx, s, text, media{audioID: v.FileID})
}
