package context

import (
	ferrors "github.com/friday-ai/friday/internal/errors"
)

// pairing tracks tool-call ids across a turn sequence. Every call id ever
// emitted maps to whether its result has arrived; pending holds the open
// ids of the most recent assistant turn in emission order.
type pairing struct {
	answered map[string]bool
	pending  []string
}

func newPairing() *pairing {
	return &pairing{answered: make(map[string]bool)}
}

// check reports why turn cannot follow the current state. It does not mutate.
func (p *pairing) check(turn Turn) error {
	if !turn.Role.Valid() {
		return ferrors.InvariantViolation("unknown role %q", turn.Role)
	}
	if turn.Role != RoleTool && turn.ToolCallID != "" {
		return ferrors.InvariantViolation("%s turn carries tool_call_id %q", turn.Role, turn.ToolCallID)
	}
	if turn.Role != RoleAssistant && turn.HasToolCalls() {
		return ferrors.InvariantViolation("%s turn carries tool calls", turn.Role)
	}

	if turn.Role == RoleTool {
		if turn.ToolCallID == "" {
			return ferrors.InvariantViolation("tool result without tool_call_id")
		}
		done, known := p.answered[turn.ToolCallID]
		if !known {
			return ferrors.InvariantViolation("tool result %q has no matching call", turn.ToolCallID)
		}
		if done {
			return ferrors.InvariantViolation("tool call %q already has a result", turn.ToolCallID)
		}
		return nil
	}

	if len(p.pending) > 0 {
		return ferrors.InvariantViolation("%s turn appended while %d tool calls await results (first %q)", turn.Role, len(p.pending), p.pending[0])
	}

	seen := make(map[string]bool, len(turn.ToolCalls))
	for _, call := range turn.ToolCalls {
		switch {
		case call.ID == "":
			return ferrors.InvariantViolation("tool call %q has an empty id", call.Name)
		case call.Name == "":
			return ferrors.InvariantViolation("tool call %q has an empty tool name", call.ID)
		case seen[call.ID]:
			return ferrors.InvariantViolation("tool call id %q repeated within one turn", call.ID)
		}
		if _, exists := p.answered[call.ID]; exists {
			return ferrors.InvariantViolation("tool call id %q already used", call.ID)
		}
		seen[call.ID] = true
	}
	return nil
}

// apply records a turn that passed check.
func (p *pairing) apply(turn Turn) {
	if turn.Role == RoleTool {
		p.answered[turn.ToolCallID] = true
		for i, id := range p.pending {
			if id == turn.ToolCallID {
				p.pending = append(p.pending[:i:i], p.pending[i+1:]...)
				break
			}
		}
		return
	}
	for _, call := range turn.ToolCalls {
		p.answered[call.ID] = false
		p.pending = append(p.pending, call.ID)
	}
}

func (p *pairing) pendingIDs() []string {
	return append([]string(nil), p.pending...)
}

// ValidateTurns checks a whole sequence: a leading system turn must be
// pinned, every tool result must answer an earlier open call, and only the
// last assistant turn may still have calls without results.
func ValidateTurns(turns []Turn) error {
	_, err := replay(turns)
	return err
}

func replay(turns []Turn) (*pairing, error) {
	p := newPairing()
	for i, turn := range turns {
		if i == 0 && turn.Role == RoleSystem && !turn.Pinned {
			return nil, ferrors.InvariantViolation("leading system turn is not pinned")
		}
		if err := p.check(turn); err != nil {
			return nil, ferrors.InvariantViolation("turn %d: %s", i, ferrors.GetUserMessage(err))
		}
		p.apply(turn)
	}
	return p, nil
}
