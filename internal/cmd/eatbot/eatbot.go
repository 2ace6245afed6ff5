// Package eatbot parses bot command configuration and launches the runtime.
package eatbot

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/eatbot/internal/platform/cmd"
	nutritionapp "github.com/louisbranch/eatbot/internal/services/nutrition/app"
)

// Config holds bot command configuration.
type Config struct {
	Port              int           `env:"EATBOT_PORT" envDefault:"8095"`
	BotToken          string        `env:"BOT_TOKEN"`
	WebhookURL        string        `env:"WEBHOOK_URL"`
	WebhookPort       int           `env:"WEBHOOK_PORT" envDefault:"3000"`
	OpenAIAPIKey      string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `env:"OPENAI_BASE_URL"`
	OpenAIModel       string        `env:"OPENAI_MODEL"`
	OpenAIVisionModel string        `env:"OPENAI_VISION_MODEL" envDefault:"openai/gpt-4o"`
	TranscribeModel   string        `env:"TRANSCRIBE_MODEL" envDefault:"whisper-1"`
	TranscribeCommand string        `env:"TRANSCRIBE_COMMAND"`
	USDAAPIKey        string        `env:"USDA_API_KEY" envDefault:"DEMO_KEY"`
	DBPath            string        `env:"DB_PATH" envDefault:"data/eatbot.db"`
	DefaultTimezone   string        `env:"DEFAULT_TIMEZONE" envDefault:"Europe/Moscow"`
	MaxPhotoSize      int           `env:"MAX_PHOTO_SIZE" envDefault:"10485760"`
	MaxAudioDuration  time.Duration `env:"MAX_AUDIO_DURATION" envDefault:"30s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The health gRPC server port")
	fs.StringVar(&cfg.WebhookURL, "webhook-url", cfg.WebhookURL, "Public base URL for Telegram webhooks; empty uses long polling")
	fs.IntVar(&cfg.WebhookPort, "webhook-port", cfg.WebhookPort, "The webhook HTTP server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The bot SQLite database path")
	fs.StringVar(&cfg.DefaultTimezone, "timezone", cfg.DefaultTimezone, "Timezone for users without one")
	fs.StringVar(&cfg.TranscribeCommand, "transcribe-command", cfg.TranscribeCommand, "Local speech-to-text command; empty uses the Whisper API")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the bot runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEatBot, func(ctx context.Context) error {
		return nutritionapp.Run(ctx, nutritionapp.RuntimeConfig{
			Port:              cfg.Port,
			BotToken:          cfg.BotToken,
			WebhookURL:        cfg.WebhookURL,
			WebhookPort:       cfg.WebhookPort,
			OpenAIAPIKey:      cfg.OpenAIAPIKey,
			OpenAIBaseURL:     cfg.OpenAIBaseURL,
			OpenAIModel:       cfg.OpenAIModel,
			OpenAIVisionModel: cfg.OpenAIVisionModel,
			TranscribeModel:   cfg.TranscribeModel,
			TranscribeCommand: cfg.TranscribeCommand,
			USDAAPIKey:        cfg.USDAAPIKey,
			DBPath:            cfg.DBPath,
			DefaultTimezone:   cfg.DefaultTimezone,
			MaxPhotoSize:      cfg.MaxPhotoSize,
			MaxAudioDuration:  cfg.MaxAudioDuration,
		})
	})
}
