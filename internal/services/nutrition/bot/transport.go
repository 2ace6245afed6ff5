package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/louisbranch/eatbot/internal/platform/timeouts"
)

// UpdateHandler processes one Telegram update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// UpdateDecoder parses a webhook request into an update.
// *tgbotapi.BotAPI satisfies it.
type UpdateDecoder interface {
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}

// Poll receives updates by long polling until ctx is done. Each update runs
// in its own goroutine; Poll waits for in-flight updates up to
// timeouts.Shutdown before returning.
func Poll(ctx context.Context, api *tgbotapi.BotAPI, handler UpdateHandler) error {
	if api == nil {
		return errors.New("telegram api is required")
	}
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := api.GetUpdatesChan(cfg)
	log.Printf("bot: polling updates as @%s", api.Self.UserName)

	var inflight sync.WaitGroup
	dispatch(ctx, updates, handler, &inflight)
	api.StopReceivingUpdates()
	waitInflight(&inflight, timeouts.Shutdown)
	return nil
}

// dispatch hands updates to handler until the channel closes or ctx is done.
func dispatch(ctx context.Context, updates <-chan tgbotapi.Update, handler UpdateHandler, inflight *sync.WaitGroup) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				handler.HandleUpdate(context.WithoutCancel(ctx), update)
			}()
		}
	}
}

func waitInflight(inflight *sync.WaitGroup, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Printf("bot: gave up waiting for in-flight updates after %s", timeout)
	}
}

// WebhookPath is the path Telegram posts updates to.
func WebhookPath(token string) string {
	return "/bot" + token
}

// RegisterWebhook points Telegram at baseURL + WebhookPath(token).
func RegisterWebhook(api *tgbotapi.BotAPI, baseURL string) error {
	link := strings.TrimRight(baseURL, "/") + WebhookPath(api.Token)
	cfg, err := tgbotapi.NewWebhook(link)
	if err != nil {
		return fmt.Errorf("webhook config: %w", err)
	}
	if _, err := api.Request(cfg); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// NewWebhookHandler serves POST WebhookPath(token). Updates are acknowledged
// once decoded and processed in the background.
func NewWebhookHandler(ctx context.Context, token string, decoder UpdateDecoder, handler UpdateHandler, inflight *sync.WaitGroup) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+WebhookPath(token), func(w http.ResponseWriter, req *http.Request) {
		update, err := decoder.HandleUpdate(req)
		if err != nil {
			log.Printf("bot: decode webhook update: %v", err)
			http.Error(w, "invalid update", http.StatusBadRequest)
			return
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			handler.HandleUpdate(context.WithoutCancel(ctx), *update)
		}()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// ServeWebhook registers the webhook and serves updates on lis until ctx is
// done.
func ServeWebhook(ctx context.Context, api *tgbotapi.BotAPI, baseURL string, lis net.Listener, handler UpdateHandler) error {
	if api == nil {
		return errors.New("telegram api is required")
	}
	if err := RegisterWebhook(api, baseURL); err != nil {
		return err
	}

	var inflight sync.WaitGroup
	server := &http.Server{
		Handler:           NewWebhookHandler(ctx, api.Token, api, handler, &inflight),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()
	log.Printf("bot: webhook listening on %s", lis.Addr())

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve webhook: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("bot: shutdown webhook server: %v", err)
	}
	waitInflight(&inflight, timeouts.Shutdown)
	return nil
}
