package errors

import "fmt"

// InvariantViolation creates an error for a turn that would break the
// ordering or tool-call pairing rules of the conversation.
func InvariantViolation(format string, args ...any) *FridayError {
	return &FridayError{
		Category:  CategoryContext,
		Code:      CodeInvariantViolation,
		Message:   fmt.Sprintf(format, args...),
		Retryable: false,
	}
}

// BudgetExceeded creates the fatal error returned when compaction cannot get
// below the hard limit without touching pinned turns. remaining is the
// smallest total compaction could reach.
func BudgetExceeded(remaining, hardLimit int) *FridayError {
	return &FridayError{
		Category:  CategoryContext,
		Code:      CodeBudgetExceeded,
		Message:   fmt.Sprintf("conversation too large even after compaction: %d tokens remain, hard limit is %d", remaining, hardLimit),
		Retryable: false,
	}
}

// LoopAborted creates an error for a session stopped by the redirect escalation policy.
func LoopAborted(episodes int, signature string) *FridayError {
	return &FridayError{
		Category:  CategoryLoop,
		Code:      CodeLoopAborted,
		Message:   fmt.Sprintf("agent stopped after %d loop episodes (last repeated call %s)", episodes, signature),
		Retryable: false,
	}
}

// SummaryFailed creates an error for when a span digest could not be produced.
func SummaryFailed(cause error) *FridayError {
	return &FridayError{
		Category:  CategoryContext,
		Code:      "summary_failed",
		Message:   "failed to summarize conversation span",
		Retryable: IsRetryable(cause),
		Cause:     cause,
	}
}

// ToolNotFound creates an error for when a requested tool does not exist.
func ToolNotFound(name string) *FridayError {
	return &FridayError{
		Category:  CategoryTool,
		Code:      "tool_not_found",
		Message:   fmt.Sprintf("tool %q not found", name),
		Retryable: false,
	}
}

// ToolExecutionFailed creates an error for when a tool execution fails.
// Retryability depends on the underlying cause.
func ToolExecutionFailed(name string, cause error) *FridayError {
	return &FridayError{
		Category:  CategoryTool,
		Code:      "tool_execution_failed",
		Message:   fmt.Sprintf("tool %q execution failed", name),
		Retryable: IsRetryable(cause),
		Cause:     cause,
	}
}

// LLMUnavailable creates an error for when the LLM backend is unreachable
// or its circuit is open.
func LLMUnavailable(cause error) *FridayError {
	return &FridayError{
		Category:  CategoryLLM,
		Code:      "llm_unavailable",
		Message:   "LLM service is unavailable",
		Retryable: true,
		Cause:     cause,
	}
}

// LLMRequestFailed creates an error for when an LLM request fails.
func LLMRequestFailed(cause error) *FridayError {
	return &FridayError{
		Category:  CategoryLLM,
		Code:      "llm_request_failed",
		Message:   "LLM request failed",
		Retryable: true,
		Cause:     cause,
	}
}

// LLMEmptyResponse creates an error for a completion without text content.
func LLMEmptyResponse() *FridayError {
	return &FridayError{
		Category:  CategoryLLM,
		Code:      "llm_empty_response",
		Message:   "LLM returned no text",
		Retryable: true,
	}
}

// ConfigLoadFailed creates an error for when configuration loading fails.
func ConfigLoadFailed(path string, cause error) *FridayError {
	return &FridayError{
		Category:  CategoryConfig,
		Code:      "config_load_failed",
		Message:   fmt.Sprintf("failed to load config from %s", path),
		Retryable: false,
		Cause:     cause,
	}
}

// ConfigInvalid creates an error for settings that cannot work together.
func ConfigInvalid(format string, args ...any) *FridayError {
	return &FridayError{
		Category:  CategoryConfig,
		Code:      "config_invalid",
		Message:   fmt.Sprintf(format, args...),
		Retryable: false,
	}
}

// SessionNotFound creates an error for a missing persisted session.
func SessionNotFound(id string) *FridayError {
	return &FridayError{
		Category:  CategorySession,
		Code:      "session_not_found",
		Message:   fmt.Sprintf("session %q not found", id),
		Retryable: false,
	}
}

// SessionCorrupt creates an error for a persisted session that fails to decode or validate.
func SessionCorrupt(id string, cause error) *FridayError {
	return &FridayError{
		Category:  CategorySession,
		Code:      "session_corrupt",
		Message:   fmt.Sprintf("session %q is corrupt", id),
		Retryable: false,
		Cause:     cause,
	}
}
