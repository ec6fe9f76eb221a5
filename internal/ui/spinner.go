package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/friday-ai/friday/internal/llm"
)

// Braille spinner animation frames
var spinnerFrames = []rune{'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏'}

// minAnimatedWait is the shortest wait that gets any output.
const minAnimatedWait = 500 * time.Millisecond

// SpinnerConfig holds configuration for a spinner display
type SpinnerConfig struct {
	Message     string        // Main message (e.g., "Rate limited")
	Reason      string        // Reason for waiting (e.g., "API returned 429")
	Duration    time.Duration // Total wait duration
	Attempt     int           // Current attempt number (1-based)
	MaxAttempts int           // Maximum number of attempts
}

// Spinner shows a countdown on the diagnostic stream while a summarizer
// request waits out a rate limit.
type Spinner struct {
	output *Output
}

// NewSpinner creates a new spinner attached to an output
func NewSpinner(output *Output) *Spinner {
	return &Spinner{output: output}
}

// WaitCallback adapts the spinner to the summarizer's rate limit hook.
func (s *Spinner) WaitCallback() llm.WaitCallback {
	return func(ctx context.Context, info llm.WaitInfo) error {
		return s.Start(ctx, SpinnerConfig{
			Message:     "Summarizer rate limited",
			Reason:      info.Reason,
			Duration:    info.Duration,
			Attempt:     info.Attempt,
			MaxAttempts: info.MaxAttempts,
		})
	}
}

// Start displays a spinner with countdown until duration elapses or context is cancelled.
// It blocks until complete.
func (s *Spinner) Start(ctx context.Context, cfg SpinnerConfig) error {
	if cfg.Duration < minAnimatedWait {
		return sleep(ctx, cfg.Duration)
	}
	if !s.output.IsTTY() {
		fmt.Fprintln(s.output.err, s.staticLine(cfg))
		return sleep(ctx, cfg.Duration)
	}
	return s.animatedWait(ctx, cfg)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// staticLine formats the single line used for piped output:
// ℹ Rate limited: waiting 45s (retry 2/5, API returned 429)
func (s *Spinner) staticLine(cfg SpinnerConfig) string {
	msg := fmt.Sprintf("%s %s: waiting %s", iconInfo, cfg.Message, formatDuration(cfg.Duration))
	switch {
	case cfg.MaxAttempts > 0:
		msg += fmt.Sprintf(" (retry %d/%d", cfg.Attempt, cfg.MaxAttempts)
		if cfg.Reason != "" {
			msg += ", " + cfg.Reason
		}
		msg += ")"
	case cfg.Reason != "":
		msg += fmt.Sprintf(" (%s)", cfg.Reason)
	}
	return msg
}

func (s *Spinner) animatedWait(ctx context.Context, cfg SpinnerConfig) error {
	start := time.Now()
	frameIndex := 0
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	defer fmt.Fprint(s.output.err, ClearLine+CursorStart)

	for {
		remaining := max(cfg.Duration-time.Since(start), 0)
		line := s.statusLine(string(spinnerFrames[frameIndex]), cfg, remaining)
		fmt.Fprint(s.output.err, ClearLine+CursorStart+line)

		if remaining == 0 {
			return nil
		}

		select {
		case <-ticker.C:
			frameIndex = (frameIndex + 1) % len(spinnerFrames)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// statusLine builds: ⠹ Rate limited | Retry 2/5 | API returned 429 | 45s remaining
func (s *Spinner) statusLine(frame string, cfg SpinnerConfig, remaining time.Duration) string {
	st := s.output.styles
	sep := st.dim.Render(" | ")

	line := st.spinner.Render(frame) + " " + st.warning.Render(cfg.Message)
	if cfg.MaxAttempts > 0 {
		line += sep + fmt.Sprintf("Retry %d/%d", cfg.Attempt, cfg.MaxAttempts)
	}
	if cfg.Reason != "" {
		line += sep + cfg.Reason
	}
	return line + sep + st.value.Render(formatDuration(remaining)+" remaining")
}

// formatDuration formats a duration for display (45s, 1m30s, 5m00s)
func formatDuration(d time.Duration) string {
	d = max(d.Round(time.Second), 0)

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if minutes == 0 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm%02ds", minutes, seconds)
}
