package logging

// Event names used in JSONL traces.
const (
	// Session events
	EventSessionStart   = "session.start"
	EventSessionEnd     = "session.end"
	EventSessionSave    = "session.save"
	EventSessionRestore = "session.restore"

	// Context events
	EventContextAppend         = "context.append"
	EventContextCompact        = "context.compact"
	EventContextWarning        = "context.warning"
	EventContextBudgetExceeded = "context.budget_exceeded"
	EventContextReset          = "context.reset"

	// Loop detector events
	EventLoopSuspect  = "loop.suspect"
	EventLoopRedirect = "loop.redirect"
	EventLoopAbort    = "loop.abort"
	EventLoopReset    = "loop.reset"

	// Tool events
	EventToolGate     = "tool.gate"
	EventToolStart    = "tool.start"
	EventToolComplete = "tool.complete"
	EventToolError    = "tool.error"

	// Summarizer events
	EventSummaryRequest  = "summary.request"
	EventSummaryFallback = "summary.fallback"
	EventSummaryCircuit  = "summary.circuit"

	// Error events
	EventError = "error"
)
