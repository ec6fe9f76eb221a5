package errors

import (
	"errors"
	"fmt"
)

// Category groups errors by subsystem
type Category string

const (
	CategoryContext Category = "context"
	CategoryLoop    Category = "loop"
	CategoryTool    Category = "tool"
	CategoryLLM     Category = "llm"
	CategoryConfig  Category = "config"
	CategorySession Category = "session"
)

// Codes shared between constructors and sentinels.
const (
	CodeInvariantViolation = "invariant_violation"
	CodeBudgetExceeded     = "budget_exceeded"
	CodeLoopAborted        = "loop_aborted"
)

// Sentinels for errors.Is checks. Matching is by category and code only.
var (
	ErrInvariantViolation = &FridayError{Category: CategoryContext, Code: CodeInvariantViolation}
	ErrBudgetExceeded     = &FridayError{Category: CategoryContext, Code: CodeBudgetExceeded}
	ErrLoopAborted        = &FridayError{Category: CategoryLoop, Code: CodeLoopAborted}
)

// FridayError is the structured error type for the project
type FridayError struct {
	Category  Category
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

func (e *FridayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

func (e *FridayError) Unwrap() error {
	return e.Cause
}

func (e *FridayError) Is(target error) bool {
	t, ok := target.(*FridayError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Category == t.Category
}

// IsRetryable checks whether an error is retryable.
// Returns false for nil errors or non-FridayError types.
func IsRetryable(err error) bool {
	var fe *FridayError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// GetCategory extracts the error category from a FridayError.
// Returns an empty Category for nil errors or non-FridayError types.
func GetCategory(err error) Category {
	var fe *FridayError
	if errors.As(err, &fe) {
		return fe.Category
	}
	return ""
}

// GetCode extracts the error code, or "" for foreign errors.
func GetCode(err error) string {
	var fe *FridayError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// GetUserMessage returns a user-friendly message for the error.
// For FridayError it returns the Message field; for other errors it returns Error().
func GetUserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FridayError
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

// IsInvariantViolation reports whether err is a turn-construction bug.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// IsBudgetExceeded reports whether err is the fatal over-budget condition.
func IsBudgetExceeded(err error) bool {
	return errors.Is(err, ErrBudgetExceeded)
}
