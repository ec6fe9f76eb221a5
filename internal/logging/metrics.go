package logging

import (
	"sync"
	"time"
)

// ToolMetrics tracks gate and execution counts for a single tool.
type ToolMetrics struct {
	Gated      int           `json:"gated"`
	Redirected int           `json:"redirected"`
	Calls      int           `json:"calls"`
	Failures   int           `json:"failures"`
	TotalTime  time.Duration `json:"total_time_ms"`
}

// Metrics collects runtime counters for a session. All methods are safe on
// a nil receiver.
type Metrics struct {
	mu sync.Mutex

	sessionStart time.Time
	tools        map[string]*ToolMetrics

	compactions      int
	turnsSummarized  int
	tokensFreed      int
	budgetFailures   int
	contextWarnings  int
	redirects        int
	aborts           int
	summaryFallbacks int
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		sessionStart: time.Now(),
		tools:        make(map[string]*ToolMetrics),
	}
}

// RecordGate records one pass through the loop gate.
func (m *Metrics) RecordGate(tool string, redirected bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tm := m.tool(tool)
	tm.Gated++
	if redirected {
		tm.Redirected++
		m.redirects++
	}
}

// RecordAbort records a session stopped by the escalation policy.
func (m *Metrics) RecordAbort() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborts++
}

// RecordToolCall records a finished tool execution.
func (m *Metrics) RecordToolCall(tool string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tm := m.tool(tool)
	tm.Calls++
	tm.TotalTime += duration
	if !success {
		tm.Failures++
	}
}

// RecordCompaction records a successful compaction.
func (m *Metrics) RecordCompaction(turnsSummarized, tokensFreed int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compactions++
	m.turnsSummarized += turnsSummarized
	m.tokensFreed += tokensFreed
}

// RecordBudgetExceeded records a compaction that could not meet the hard limit.
func (m *Metrics) RecordBudgetExceeded() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgetFailures++
}

// RecordContextWarning records crossing the warning threshold.
func (m *Metrics) RecordContextWarning() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contextWarnings++
}

// RecordSummaryFallback records a summary produced by the fallback summarizer.
func (m *Metrics) RecordSummaryFallback() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaryFallbacks++
}

func (m *Metrics) tool(name string) *ToolMetrics {
	if m.tools[name] == nil {
		m.tools[name] = &ToolMetrics{}
	}
	return m.tools[name]
}

// Summary returns a copy of the counters.
func (m *Metrics) Summary() MetricsSummary {
	if m == nil {
		return MetricsSummary{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tools := make(map[string]ToolMetrics, len(m.tools))
	for name, tm := range m.tools {
		tools[name] = *tm
	}

	return MetricsSummary{
		SessionDuration:  time.Since(m.sessionStart),
		Compactions:      m.compactions,
		TurnsSummarized:  m.turnsSummarized,
		TokensFreed:      m.tokensFreed,
		BudgetFailures:   m.budgetFailures,
		ContextWarnings:  m.contextWarnings,
		Redirects:        m.redirects,
		Aborts:           m.aborts,
		SummaryFallbacks: m.summaryFallbacks,
		Tools:            tools,
	}
}

// Snapshot returns the counters as a map for trace serialization.
func (m *Metrics) Snapshot() map[string]any {
	s := m.Summary()
	return map[string]any{
		"session_duration_ms": s.SessionDuration.Milliseconds(),
		"compactions":         s.Compactions,
		"turns_summarized":    s.TurnsSummarized,
		"tokens_freed":        s.TokensFreed,
		"budget_failures":     s.BudgetFailures,
		"context_warnings":    s.ContextWarnings,
		"redirects":           s.Redirects,
		"aborts":              s.Aborts,
		"summary_fallbacks":   s.SummaryFallbacks,
	}
}

// MetricsSummary is a point-in-time copy of the session counters.
type MetricsSummary struct {
	SessionDuration  time.Duration
	Compactions      int
	TurnsSummarized  int
	TokensFreed      int
	BudgetFailures   int
	ContextWarnings  int
	Redirects        int
	Aborts           int
	SummaryFallbacks int
	Tools            map[string]ToolMetrics
}
