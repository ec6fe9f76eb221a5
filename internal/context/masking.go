package context

import (
	"fmt"
	"strings"
)

// DefaultMaskPreserveRecent is the number of recent tool results kept unmasked.
const DefaultMaskPreserveRecent = 4

// MaskOldToolResults returns a copy of turns where every tool result except
// the last preserveRecent has its content replaced by a one-line preview.
// ToolCallID, Outcome and TokenCount are kept so pairing still holds.
func MaskOldToolResults(turns []Turn, preserveRecent int) []Turn {
	if preserveRecent <= 0 {
		preserveRecent = DefaultMaskPreserveRecent
	}

	var toolIndices []int
	for i, t := range turns {
		if t.Role == RoleTool {
			toolIndices = append(toolIndices, i)
		}
	}

	result := cloneTurns(turns)
	if len(toolIndices) <= preserveRecent {
		return result
	}

	for _, idx := range toolIndices[:len(toolIndices)-preserveRecent] {
		result[idx].Content = maskContent(result[idx].Content)
	}
	return result
}

func maskContent(content string) string {
	lines := strings.Count(content, "\n") + 1
	return fmt.Sprintf("[Masked: %d lines, preview: %s]", lines, preview(content, 80))
}
