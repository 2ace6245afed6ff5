// Package voice validates, downloads and transcribes Telegram voice
// messages.
package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/louisbranch/eatbot/internal/platform/timeouts"
	openai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
)

// DefaultMaxDuration is the longest accepted voice message.
const DefaultMaxDuration = 30 * time.Second

const maxDownloadBytes = 20 << 20

var (
	ErrTooShort          = errors.New("voice message is too short")
	ErrTooLong           = errors.New("voice message is too long")
	ErrUnsupportedFormat = errors.New("voice message format is not supported")
	ErrEmptyTranscript   = errors.New("transcription is empty")
)

// Validate checks duration and mime type of a voice message.
func Validate(duration time.Duration, mimeType string, maxDuration time.Duration) error {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	if duration < time.Second {
		return ErrTooShort
	}
	if duration > maxDuration {
		return ErrTooLong
	}
	mimeType = strings.ToLower(mimeType)
	if !strings.Contains(mimeType, "audio/") && !strings.Contains(mimeType, "ogg") {
		return ErrUnsupportedFormat
	}
	return nil
}

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Download fetches a file, refusing bodies over 20 MiB.
func Download(ctx context.Context, client *http.Client, fileURL string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.FileDownload)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", redactURL(err))
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", res.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxDownloadBytes)
	}
	return data, nil
}

// redactURL drops the request URL, which embeds the bot token.
func redactURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// WhisperConfig configures the OpenAI transcription endpoint.
type WhisperConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Language   string
	HTTPClient *http.Client
}

// Whisper transcribes with the OpenAI audio API.
type Whisper struct {
	api      *openai.Client
	model    string
	language string
}

// NewWhisper builds a Whisper transcriber; language defaults to Russian.
func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}
	w := &Whisper{
		api:      openai.NewClientWithConfig(clientConfig),
		model:    strings.TrimSpace(cfg.Model),
		language: strings.TrimSpace(cfg.Language),
	}
	if w.model == "" {
		w.model = openai.Whisper1
	}
	if w.language == "" {
		w.language = "ru"
	}
	return w, nil
}

// Transcribe uploads the audio as an ogg file.
func (w *Whisper) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Transcription)
	defer cancel()

	resp, err := w.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "voice.ogg",
		Reader:   bytes.NewReader(audio),
		Language: w.language,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("transcribe: api status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return finish(resp.Text)
}

// Command transcribes with a local program. The program reads
// {"audio": "<base64>"} on stdin and writes {"success", "text", "error"}.
type Command struct {
	Name string
	Args []string
	// Env is appended to the process environment.
	Env []string
}

// NewCommand parses a command line such as "python3 transcribe.py".
func NewCommand(commandLine string) (*Command, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("transcribe command is required")
	}
	return &Command{Name: fields[0], Args: fields[1:]}, nil
}

// Transcribe runs the program with a three minute limit.
func (c *Command) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Transcription)
	defer cancel()

	input, err := json.Marshal(map[string]string{"audio": base64.StdEncoding.EncodeToString(audio)})
	if err != nil {
		return "", fmt.Errorf("encode transcribe input: %w", err)
	}
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("transcribe command: %w", ctx.Err())
		}
		return "", fmt.Errorf("transcribe command: %w: %s", err, lastLine(stderr.String()))
	}

	output := strings.TrimSpace(stdout.String())
	if !gjson.Valid(output) {
		return "", fmt.Errorf("transcribe command: invalid output")
	}
	result := gjson.Parse(output)
	if !result.Get("success").Bool() {
		message := strings.TrimSpace(result.Get("error").String())
		if message == "" {
			message = "unknown error"
		}
		return "", fmt.Errorf("transcribe command: %s", message)
	}
	return finish(result.Get("text").String())
}

var corrections = strings.NewReplacer(
	"шаренная", "жареная",
	"шареная", "жареная",
	"шарений", "жареный",
	"картоско", "картофель",
	"картофко", "картофель",
	"фарри", "фри",
	"чикены", "курица",
	"чикен", "курица",
)

// Normalize lowercases a transcript and fixes common food misrecognitions.
func Normalize(text string) string {
	return corrections.Replace(strings.ToLower(strings.TrimSpace(text)))
}

func finish(text string) (string, error) {
	text = Normalize(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func lastLine(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	return lines[len(lines)-1]
}

var (
	_ Transcriber = (*Whisper)(nil)
	_ Transcriber = (*Command)(nil)
)
