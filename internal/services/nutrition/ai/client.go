// Package ai wraps an OpenAI-compatible chat API for food analysis, recipes
// and coaching texts.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/louisbranch/eatbot/internal/platform/otel"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultModel is used for text prompts when none is configured.
	DefaultModel = "anthropic/claude-3-5-sonnet"
	// DefaultVisionModel is used for photo prompts when none is configured.
	DefaultVisionModel = "openai/gpt-4o"
)

var (
	// ErrNoReply indicates the model returned no content.
	ErrNoReply = errors.New("ai returned no reply")
	// ErrInvalidReply indicates the reply could not be parsed.
	ErrInvalidReply = errors.New("ai reply is not valid json")
	// ErrRefused indicates the model declined to analyse the input.
	ErrRefused = errors.New("ai could not analyse the input")
)

// Config configures the chat client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
	HTTPClient  *http.Client
}

// Client calls the chat completion API.
type Client struct {
	api         *openai.Client
	model       string
	visionModel string
}

// New builds a client. BaseURL may point at any OpenAI-compatible gateway.
func New(cfg Config) (*Client, error) {
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
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	visionModel := strings.TrimSpace(cfg.VisionModel)
	if visionModel == "" {
		visionModel = DefaultVisionModel
	}
	return &Client{
		api:         openai.NewClientWithConfig(clientConfig),
		model:       model,
		visionModel: visionModel,
	}, nil
}

type completion struct {
	operation   string
	model       string
	temperature float32
	maxTokens   int
	messages    []openai.ChatCompletionMessage
}

func (c *Client) complete(ctx context.Context, req completion) (string, error) {
	if c == nil || c.api == nil {
		return "", fmt.Errorf("ai client is not configured")
	}
	ctx, span := otel.Tracer("ai").Start(ctx, "ai."+req.operation)
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.model", req.model),
		attribute.Float64("ai.temperature", float64(req.temperature)),
	)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.model,
		Messages:    req.messages,
		Temperature: req.temperature,
		MaxTokens:   req.maxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return "", fmt.Errorf("%s: %w", req.operation, sanitizeError(err))
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoReply
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrNoReply
	}
	span.SetAttributes(attribute.Int("ai.reply_length", len(content)))
	return content, nil
}

func systemUser(system, user string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
}

var (
	leadingFence  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	trailingFence = regexp.MustCompile("\\s*```\\s*$")
)

// stripFences removes a markdown code fence around a JSON reply.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = leadingFence.ReplaceAllString(content, "")
	content = trailingFence.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// sanitizeError keeps API status details and drops request material.
func sanitizeError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("api status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("request status %d", reqErr.HTTPStatusCode)
	}
	return err
}
