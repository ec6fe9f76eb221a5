package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"golang.org/x/time/rate"

	fctx "github.com/friday-ai/friday/internal/context"
	"github.com/friday-ai/friday/internal/logging"
)

// WaitInfo contains information about a rate limit wait
type WaitInfo struct {
	Duration    time.Duration // How long to wait
	Reason      string        // Why we're waiting (e.g., "token bucket cooldown" or "API returned 429")
	Attempt     int           // Current attempt number (1-based, 0 if not a retry)
	MaxAttempts int           // Maximum number of attempts (0 if not a retry)
}

// WaitCallback is called when the client needs to wait due to rate limiting.
// It should block for the specified duration or until context is cancelled.
// If nil, the default time.After behavior is used.
type WaitCallback func(ctx context.Context, info WaitInfo) error

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	limiter *rate.Limiter
	burst   int
	mu      sync.Mutex
	onWait  WaitCallback
}

// NewTokenBucket creates a new token bucket rate limiter
// tokensPerMinute is converted to tokens per second for the limiter
func NewTokenBucket(tokensPerMinute int) *TokenBucket {
	if tokensPerMinute <= 0 {
		tokensPerMinute = 30000
	}
	tokensPerSecond := float64(tokensPerMinute) / 60.0
	// Burst size allows for some flexibility (10 seconds worth of tokens)
	burstSize := tokensPerMinute / 6
	if burstSize < 1000 {
		burstSize = 1000
	}

	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(tokensPerSecond), burstSize),
		burst:   burstSize,
	}
}

// SetWaitCallback sets a callback to be invoked when waiting for tokens
func (tb *TokenBucket) SetWaitCallback(cb WaitCallback) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.onWait = cb
}

// Wait blocks until the specified number of tokens are available. Requests
// larger than the burst are charged the full burst.
func (tb *TokenBucket) Wait(ctx context.Context, tokens int) error {
	tb.mu.Lock()
	onWait := tb.onWait
	tb.mu.Unlock()

	tokens = min(max(tokens, 1), tb.burst)
	reservation := tb.limiter.ReserveN(time.Now(), tokens)

	delay := reservation.Delay()
	if delay <= 0 {
		return nil
	}

	if onWait != nil {
		if err := onWait(ctx, WaitInfo{Duration: delay, Reason: "token bucket cooldown"}); err != nil {
			reservation.Cancel()
			return err
		}
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	}
}

// RetryPolicy bounds retries of rate-limited requests.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries three times starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// RateLimited wraps a Client with a token bucket and 429 retries.
type RateLimited struct {
	client Client
	bucket *TokenBucket
	policy RetryPolicy
	logger *logging.Logger
	onWait WaitCallback
}

// NewRateLimited creates a rate-limited client wrapper
func NewRateLimited(client Client, tokensPerMinute int, policy RetryPolicy, logger *logging.Logger) *RateLimited {
	return &RateLimited{
		client: client,
		bucket: NewTokenBucket(tokensPerMinute),
		policy: policy,
		logger: logger.WithPrefix("llm"),
	}
}

// SetWaitCallback sets a callback to be invoked when waiting due to rate limiting.
// The callback is called both for token bucket waits and API 429 retry waits.
func (c *RateLimited) SetWaitCallback(cb WaitCallback) {
	c.onWait = cb
	c.bucket.SetWaitCallback(cb)
}

// Complete waits for budget, then calls the wrapped client, retrying only
// rate limit errors.
func (c *RateLimited) Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	estimated := fctx.EstimateTokens(system) + fctx.EstimateTokens(prompt) + maxTokens
	c.logger.Debug("rate limit reservation", logging.Tokens(estimated))

	if err := c.bucket.Wait(ctx, estimated); err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			c.logger.Debug("retrying after rate limit", logging.Count(attempt), logging.Duration(delay))
			if err := c.wait(ctx, WaitInfo{
				Duration:    delay,
				Reason:      "API returned 429",
				Attempt:     attempt,
				MaxAttempts: c.policy.MaxRetries,
			}); err != nil {
				return "", err
			}
		}

		text, err := c.client.Complete(ctx, system, prompt, maxTokens)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !isRateLimitError(err) {
			return "", err
		}
		c.logger.Warn("rate limit hit", logging.Count(attempt+1), logging.Error(err))
	}
	return "", lastErr
}

func (c *RateLimited) wait(ctx context.Context, info WaitInfo) error {
	if c.onWait != nil {
		return c.onWait(ctx, info)
	}
	timer := time.NewTimer(info.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// calculateBackoff calculates the backoff delay for a retry attempt
// Uses exponential backoff with jitter
func (c *RateLimited) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.policy.BaseDelay) * math.Pow(2, float64(attempt-1))

	// Add jitter (0-25% of backoff)
	backoff += backoff * 0.25 * rand.Float64()

	if c.policy.MaxDelay > 0 && backoff > float64(c.policy.MaxDelay) {
		backoff = float64(c.policy.MaxDelay)
	}
	return time.Duration(backoff)
}

// isRateLimitError checks if an error is a rate limit (429) error
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}
