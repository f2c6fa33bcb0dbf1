package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"TrendsScanner/internal/config"
	"TrendsScanner/internal/domain"
	"TrendsScanner/internal/ports"
)

// OpenAIGenerator implements ports.Generator backed by an OpenAI-compatible
// chat completions API.
type OpenAIGenerator struct {
	client       *openai.Client
	defaultModel string
	logger       *slog.Logger
}

var _ ports.Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator builds a client whose transport retries transient
// failures up to retries extra times.
func NewOpenAIGenerator(cfg config.OpenAIConfig, retries int, defaultModel string, logger *slog.Logger) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{
		Transport: NewRetryTransport(http.DefaultTransport, retries, 200*time.Millisecond),
	}

	return &OpenAIGenerator{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: defaultModel,
		logger:       logger,
	}, nil
}

// Generate sends a single user message and returns the trimmed completion.
func (g *OpenAIGenerator) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	if g == nil || g.client == nil {
		return "", fmt.Errorf("%w: openai client is nil", domain.ErrGeneration)
	}

	model := req.Model
	if model == "" {
		model = g.defaultModel
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens: req.MaxTokens,
	})
	duration := time.Since(start)
	if err != nil {
		return "", fmt.Errorf("%w: model %s after %s: %v", domain.ErrGeneration, model, duration.Round(time.Millisecond), err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: model %s returned no choices", domain.ErrGeneration, model)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: model %s returned empty content", domain.ErrGeneration, model)
	}

	g.logger.Debug("completion received",
		"model", model,
		"duration", duration,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"response_length", len(text))

	return text, nil
}
