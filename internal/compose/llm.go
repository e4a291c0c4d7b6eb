package compose

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/KofiRusu/neonhub-go/internal/config"
)

// Completer is the single LLM call the composer needs: one bounded
// system+user chat completion returning raw text. Injected so tests
// run without network access.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type openAICompleter struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

// NewCompleter builds the OpenAI-backed completer, or nil when no API
// key is configured. A nil completer means every compose call takes
// the deterministic fallback path.
func NewCompleter(cfg *config.Config) Completer {
	if cfg.Provider.APIKey == "" {
		return nil
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.Provider.APIKey)}
	if cfg.Provider.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.Provider.BaseURL))
	}

	timeout := time.Duration(config.DefaultLLMTimeoutMs) * time.Millisecond
	if cfg.Provider.TimeoutMs > 0 {
		timeout = time.Duration(cfg.Provider.TimeoutMs) * time.Millisecond
	}

	return &openAICompleter{
		client:      openai.NewClient(opts...),
		model:       cfg.Model(),
		maxTokens:   cfg.MaxTokens(),
		temperature: cfg.Temperature(),
		timeout:     timeout,
	}
}

func (c *openAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
