package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const notifyMaxTries = 3

// Notifier delivers scheduled messages through the Telegram API, retrying
// transient failures and honoring flood-control waits.
type Notifier struct {
	sender          Sender
	initialInterval time.Duration
}

// NewNotifier builds a notifier over sender.
func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender, initialInterval: 500 * time.Millisecond}
}

// Notify sends text to chatID.
func (n *Notifier) Notify(ctx context.Context, chatID int64, text string) error {
	if n == nil || n.sender == nil {
		return errors.New("telegram sender is not configured")
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = n.initialInterval
	_, err := backoff.Retry(ctx, func() (tgbotapi.Message, error) {
		msg, err := n.sender.Send(tgbotapi.NewMessage(chatID, text))
		if err == nil {
			return msg, nil
		}
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			if apiErr.RetryAfter > 0 {
				return tgbotapi.Message{}, backoff.RetryAfter(apiErr.RetryAfter)
			}
			if apiErr.Code >= 400 && apiErr.Code < 500 {
				return tgbotapi.Message{}, backoff.Permanent(err)
			}
		}
		return tgbotapi.Message{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(notifyMaxTries))
	if err != nil {
		return fmt.Errorf("notify chat %d: %w", chatID, err)
	}
	return nil
}
