// Package app wires the nutrition bot runtime: storage, AI clients, food
// databases, the notification scheduler and the Telegram transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/louisbranch/eatbot/internal/platform/i18n/catalog"
	"github.com/louisbranch/eatbot/internal/platform/timeouts"
	"github.com/louisbranch/eatbot/internal/services/nutrition/ai"
	"github.com/louisbranch/eatbot/internal/services/nutrition/bot"
	"github.com/louisbranch/eatbot/internal/services/nutrition/fooddb"
	"github.com/louisbranch/eatbot/internal/services/nutrition/recipes"
	"github.com/louisbranch/eatbot/internal/services/nutrition/scheduler"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage/sqlite"
	"github.com/louisbranch/eatbot/internal/services/nutrition/voice"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name of the runtime.
const HealthService = "eatbot.runtime"

const (
	defaultPort        = 8095
	defaultWebhookPort = 3000
	defaultDBPath      = "data/eatbot.db"
	defaultTimezone    = "Europe/Moscow"
)

// RuntimeConfig controls bot startup and its external dependencies.
type RuntimeConfig struct {
	Port int

	BotToken    string
	WebhookURL  string
	WebhookPort int

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIVisionModel string
	TranscribeModel   string
	TranscribeCommand string

	USDAAPIKey string

	DBPath           string
	DefaultTimezone  string
	MaxPhotoSize     int
	MaxAudioDuration time.Duration
}

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if cfg.WebhookPort <= 0 {
		cfg.WebhookPort = defaultWebhookPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}
	if strings.TrimSpace(cfg.DefaultTimezone) == "" {
		cfg.DefaultTimezone = defaultTimezone
	}
	if cfg.MaxPhotoSize <= 0 {
		cfg.MaxPhotoSize = bot.DefaultMaxPhotoSize
	}
	if cfg.MaxAudioDuration <= 0 {
		cfg.MaxAudioDuration = voice.DefaultMaxDuration
	}
	return cfg
}

func (cfg RuntimeConfig) validate() error {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return errors.New("bot token is required")
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return errors.New("openai api key is required")
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return fmt.Errorf("default timezone: %w", err)
	}
	return nil
}

// Run starts the bot and blocks until ctx is done.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.normalized()
	if err := cfg.validate(); err != nil {
		return err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create eatbot storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open eatbot sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close eatbot sqlite store: %v", closeErr)
		}
	}()

	printers := catalog.Default()

	aiClient, err := ai.New(ai.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		VisionModel: cfg.OpenAIVisionModel,
		HTTPClient:  &http.Client{Timeout: timeouts.AIRequest},
	})
	if err != nil {
		return fmt.Errorf("create ai client: %w", err)
	}
	transcriber, err := newTranscriber(cfg)
	if err != nil {
		return err
	}
	lookup := fooddb.NewLookup(store, fooddb.NewUSDA(fooddb.USDAConfig{
		APIKey:     cfg.USDAAPIKey,
		HTTPClient: &http.Client{Timeout: timeouts.FoodDBRequest},
	}))
	recipeService := recipes.New(store, store, aiClient, recipes.WithDefaultTimezone(cfg.DefaultTimezone))

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("connect telegram bot api: %w", err)
	}
	sched, err := scheduler.New(scheduler.Config{
		Store:           store,
		Notifier:        bot.NewNotifier(api),
		Motivator:       aiClient,
		Suggester:       aiClient,
		Printers:        printers,
		DefaultTimezone: cfg.DefaultTimezone,
	})
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	router, err := bot.New(bot.Config{
		Sender:           api,
		Store:            store,
		Analyzer:         aiClient,
		Lookup:           lookup,
		Transcriber:      transcriber,
		Recipes:          recipeService,
		Scheduler:        sched,
		Printers:         printers,
		HTTPClient:       &http.Client{Timeout: timeouts.FileDownload},
		DefaultTimezone:  cfg.DefaultTimezone,
		MaxPhotoSize:     cfg.MaxPhotoSize,
		MaxVoiceDuration: cfg.MaxAudioDuration,
	})
	if err != nil {
		return fmt.Errorf("create bot router: %w", err)
	}
	defer router.Wait()
	if _, err := api.Request(tgbotapi.NewSetMyCommands(router.MenuCommands(catalog.BaseLocale)...)); err != nil {
		log.Printf("set bot commands: %v", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on eatbot health port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()
	log.Printf("eatbot health server listening at %v", listener.Addr())

	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- sched.Run(schedulerCtx)
	}()
	defer func() {
		stopScheduler()
		if err := <-schedulerDone; err != nil {
			log.Printf("scheduler stopped: %v", err)
		}
	}()
	started, err := sched.StartAll(ctx)
	if err != nil {
		log.Printf("start notification schedules: %v", err)
	}
	log.Printf("notification schedules started for %d users", started)

	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return bot.Poll(ctx, api, router)
	}
	webhookListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.WebhookPort))
	if err != nil {
		return fmt.Errorf("listen on webhook port %d: %w", cfg.WebhookPort, err)
	}
	return bot.ServeWebhook(ctx, api, cfg.WebhookURL, webhookListener, router)
}

// newTranscriber prefers a local transcription command over the Whisper
// API.
func newTranscriber(cfg RuntimeConfig) (voice.Transcriber, error) {
	if command := strings.TrimSpace(cfg.TranscribeCommand); command != "" {
		transcriber, err := voice.NewCommand(command)
		if err != nil {
			return nil, fmt.Errorf("create transcribe command: %w", err)
		}
		return transcriber, nil
	}
	transcriber, err := voice.NewWhisper(voice.WhisperConfig{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.TranscribeModel,
		HTTPClient: &http.Client{Timeout: timeouts.AIRequest},
	})
	if err != nil {
		return nil, fmt.Errorf("create whisper transcriber: %w", err)
	}
	return transcriber, nil
}
