package context

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
)

// presetCounter trusts the TokenCount the test put on the turn.
var presetCounter = TokenCounterFunc(func(t Turn) int { return t.TokenCount })

func sized(t Turn, tokens int) Turn {
	t.TokenCount = tokens
	return t
}

func call(id, name string, args map[string]any) ToolCall {
	return ToolCall{ID: id, Name: name, Arguments: args}
}

func result(id, output string, tokens int) Turn {
	return Turn{Role: RoleTool, ToolCallID: id, Content: output, Outcome: OutcomeSuccess, TokenCount: tokens}
}

// countingSummarizer records how many spans it was asked to digest.
type countingSummarizer struct {
	calls atomic.Int32
	err   error
}

func (s *countingSummarizer) Summarize(ctx context.Context, span []Turn, maxTokens int) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("summary of %d turns", len(span)), nil
}

// assertPaired fails when any tool result lacks its call or any call
// outside the trailing group lacks its result.
func assertPaired(t *testing.T, turns []Turn) {
	t.Helper()
	if err := ValidateTurns(turns); err != nil {
		t.Errorf("pairing broken: %v", err)
	}
}
