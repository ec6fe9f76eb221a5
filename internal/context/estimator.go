package context

// TurnOverhead is the structural cost charged to every turn on top of its text.
const TurnOverhead = 10

// TokenCounter sizes a turn. Implementations must be deterministic: the
// same turn always yields the same count.
type TokenCounter interface {
	CountTokens(turn Turn) int
}

// TokenCounterFunc adapts a function into a TokenCounter.
type TokenCounterFunc func(turn Turn) int

func (f TokenCounterFunc) CountTokens(turn Turn) int {
	return f(turn)
}

// CharCounter estimates tokens with the chars/4 + 20% heuristic over the
// content, tool call names, canonical arguments and call ids.
type CharCounter struct{}

func (CharCounter) CountTokens(turn Turn) int {
	total := TurnOverhead + EstimateTokens(turn.Content) + EstimateTokens(turn.ToolCallID)
	for _, call := range turn.ToolCalls {
		total += EstimateTokens(call.ID) + EstimateTokens(call.Name)
		if len(call.Arguments) > 0 {
			total += EstimateTokens(string(canonicalJSON(call.Arguments)))
		}
	}
	return total
}

// EstimateTokens provides a rough token estimate for text
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	base := len(text) / 4
	return base + (base / 5)
}
