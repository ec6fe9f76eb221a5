package context

import (
	"github.com/friday-ai/friday/internal/tools"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Outcome records how a tool call ended. Empty on non-tool turns.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
)

// ToolCall is one tool request emitted by an assistant turn.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Turn is one message in the conversation.
type Turn struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	// TokenCount is set once when the turn is appended.
	TokenCount int     `json:"token_count"`
	Pinned     bool    `json:"pinned,omitempty"`
	Summary    bool    `json:"summary,omitempty"`
	Outcome    Outcome `json:"outcome,omitempty"`
}

// SystemTurn builds a system turn.
func SystemTurn(content string) Turn {
	return Turn{Role: RoleSystem, Content: content}
}

// UserTurn builds a user turn.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn builds an assistant turn, optionally requesting tool calls.
func AssistantTurn(content string, calls ...ToolCall) Turn {
	return Turn{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResultTurn builds the result turn answering callID.
func ToolResultTurn(callID string, res tools.Result) Turn {
	turn := Turn{Role: RoleTool, ToolCallID: callID, Content: res.Output}
	switch {
	case res.TimedOut:
		turn.Outcome = OutcomeTimeout
	case res.Success:
		turn.Outcome = OutcomeSuccess
	default:
		turn.Outcome = OutcomeFailure
	}
	if !res.Success && res.Error != "" {
		if turn.Content != "" {
			turn.Content += "\n"
		}
		turn.Content += "Error: " + res.Error
	}
	return turn
}

// HasToolCalls reports whether the turn requests tool use.
func (t Turn) HasToolCalls() bool {
	return len(t.ToolCalls) > 0
}

// Clone returns a deep copy of the turn, including nested arguments.
func (t Turn) Clone() Turn {
	if len(t.ToolCalls) == 0 {
		t.ToolCalls = nil
		return t
	}
	calls := make([]ToolCall, len(t.ToolCalls))
	for i, c := range t.ToolCalls {
		calls[i] = ToolCall{ID: c.ID, Name: c.Name, Arguments: copyMap(c.Arguments)}
	}
	t.ToolCalls = calls
	return t
}

func cloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}

func sumTokens(turns []Turn) int {
	total := 0
	for _, t := range turns {
		total += t.TokenCount
	}
	return total
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return val
	}
}
