package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/friday-ai/friday/internal/config"
	ferrors "github.com/friday-ai/friday/internal/errors"
)

// Client completes a single prompt. Implementations must be safe for
// concurrent use.
type Client interface {
	Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error)
}

// AnthropicClient wraps the Anthropic SDK
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a client for the configured summarizer model.
// The SDK's own retries are disabled; RateLimited owns retry policy.
func NewAnthropicClient(cfg config.SummarizerConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, ferrors.LLMUnavailable(errors.New("ANTHROPIC_API_KEY is not set"))
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		client: &client,
		model:  cfg.Model,
	}, nil
}

// Model returns the model used for completions
func (c *AnthropicClient) Model() string {
	return c.model
}

// Complete sends one user message and returns the concatenated text blocks.
func (c *AnthropicClient) Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	msg, err := c.client.Messages.New(ctx, c.buildParams(system, prompt, maxTokens))
	if err != nil {
		return "", ferrors.LLMRequestFailed(err)
	}

	text := parseText(msg)
	if strings.TrimSpace(text) == "" {
		return "", ferrors.LLMEmptyResponse()
	}
	return text, nil
}

func (c *AnthropicClient) buildParams(system, prompt string, maxTokens int) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: system,
			},
		}
	}
	return params
}

func parseText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			b.WriteString(v.Text)
		}
	}
	return b.String()
}
