package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/friday-ai/friday/internal/config"
	fctx "github.com/friday-ai/friday/internal/context"
	ferrors "github.com/friday-ai/friday/internal/errors"
	"github.com/friday-ai/friday/internal/logging"
)

const summarySystem = "You compress coding-agent transcripts. Reply with the summary only."

const summaryPrompt = `You are summarizing part of a conversation to preserve context while reducing token usage. Create a concise summary that captures:

1. Key decisions and conclusions reached
2. Files, functions and errors discussed (with specific paths if mentioned)
3. Which tool calls were made and what they returned
4. Current task state and any pending actions
5. User preferences or requirements mentioned

Format your summary as short bullet points. Stay under %d tokens.

CONVERSATION TO SUMMARIZE:
%s`

// Summarizer digests a span of turns with a model.
type Summarizer struct {
	client    Client
	maxTokens int
	logger    *logging.Logger
}

// NewSummarizer creates a model-backed summarizer. maxTokens caps the reply
// length on top of the per-span budget; zero leaves only the span budget.
func NewSummarizer(client Client, maxTokens int, logger *logging.Logger) *Summarizer {
	return &Summarizer{
		client:    client,
		maxTokens: maxTokens,
		logger:    logger.WithPrefix("summarizer"),
	}
}

// Summarize asks the model for a digest of span no longer than maxTokens.
func (s *Summarizer) Summarize(ctx context.Context, span []fctx.Turn, maxTokens int) (string, error) {
	budget := maxTokens
	if s.maxTokens > 0 && (budget <= 0 || s.maxTokens < budget) {
		budget = s.maxTokens
	}

	prompt := fmt.Sprintf(summaryPrompt, budget, fctx.FormatSpan(span))
	start := time.Now()
	s.logger.Event(logging.EventSummaryRequest, logging.TurnCount(len(span)), logging.Tokens(budget))

	text, err := s.client.Complete(ctx, summarySystem, prompt, budget)
	if err != nil {
		s.logger.Warn("summary request failed", logging.Error(err), logging.DurationSince(start))
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ferrors.LLMEmptyResponse()
	}
	s.logger.Debug("summary received", logging.TurnCount(len(span)), logging.DurationSince(start))
	return fmt.Sprintf("[Summary of %d earlier turns]\n%s", len(span), text), nil
}

// FallbackSummarizer guards a primary summarizer with a circuit breaker and
// falls back to a secondary one whenever the primary is failing or fails.
type FallbackSummarizer struct {
	primary  fctx.Summarizer
	fallback fctx.Summarizer
	breaker  *CircuitBreaker
	logger   *logging.Logger
}

// NewFallbackSummarizer creates a guarded summarizer. A nil fallback uses
// the deterministic digest.
func NewFallbackSummarizer(primary, fallback fctx.Summarizer, breaker *CircuitBreaker, logger *logging.Logger) *FallbackSummarizer {
	if fallback == nil {
		fallback = fctx.DigestSummarizer{}
	}
	if breaker == nil {
		breaker = NewCircuitBreaker(0, 0)
	}
	f := &FallbackSummarizer{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		logger:   logger.WithPrefix("summarizer"),
	}
	breaker.OnStateChange(func(from, to CircuitState) {
		if to == CircuitOpen {
			f.logger.Warn("summarizer circuit opened, using digest summaries", logging.From(from.String()))
		}
		f.logger.Event(logging.EventSummaryCircuit, logging.From(from.String()), logging.To(to.String()))
	})
	return f
}

// Summarize implements context.Summarizer.
func (f *FallbackSummarizer) Summarize(ctx context.Context, span []fctx.Turn, maxTokens int) (string, error) {
	if !f.breaker.Allow() {
		return f.useFallback(ctx, span, maxTokens, "circuit open")
	}

	text, err := f.primary.Summarize(ctx, span, maxTokens)
	if err == nil {
		f.breaker.RecordSuccess()
		return text, nil
	}
	if ctx.Err() != nil {
		f.breaker.Release()
		return "", ctx.Err()
	}

	f.breaker.RecordFailure()
	f.logger.Warn("primary summarizer failed", logging.Error(err), logging.State(f.breaker.State().String()))
	return f.useFallback(ctx, span, maxTokens, "primary failed")
}

func (f *FallbackSummarizer) useFallback(ctx context.Context, span []fctx.Turn, maxTokens int, reason string) (string, error) {
	f.logger.Event(logging.EventSummaryFallback, logging.Reason(reason), logging.TurnCount(len(span)))
	f.logger.Metrics().RecordSummaryFallback()
	return f.fallback.Summarize(ctx, span, maxTokens)
}

// Breaker returns the circuit breaker guarding the primary summarizer.
func (f *FallbackSummarizer) Breaker() *CircuitBreaker {
	return f.breaker
}

// NewFromConfig builds the summarizer selected by cfg.Provider. onWait, if
// non-nil, is called whenever a remote summarizer waits on its rate limit.
func NewFromConfig(cfg config.SummarizerConfig, logger *logging.Logger, onWait WaitCallback) (fctx.Summarizer, error) {
	switch cfg.Provider {
	case "", "digest":
		return fctx.DigestSummarizer{}, nil
	case "anthropic":
		client, err := NewAnthropicClient(cfg)
		if err != nil {
			return nil, err
		}
		limited := NewRateLimited(client, cfg.TokensPerMinute, DefaultRetryPolicy(), logger)
		if onWait != nil {
			limited.SetWaitCallback(onWait)
		}
		breaker := NewCircuitBreaker(cfg.FailureThreshold, time.Duration(cfg.CooldownSeconds)*time.Second)
		return NewFallbackSummarizer(NewSummarizer(limited, cfg.MaxTokens, logger), nil, breaker, logger), nil
	default:
		return nil, ferrors.ConfigInvalid("unknown summarizer provider %q", cfg.Provider)
	}
}
