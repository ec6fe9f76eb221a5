package context

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Summarizer produces the digest stored in a summary turn. maxTokens is the
// budget the compactor charges for the summary turn; implementations should
// stay near it.
type Summarizer interface {
	Summarize(ctx context.Context, span []Turn, maxTokens int) (string, error)
}

// SummarizerFunc adapts a function into a Summarizer.
type SummarizerFunc func(ctx context.Context, span []Turn, maxTokens int) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, span []Turn, maxTokens int) (string, error) {
	return f(ctx, span, maxTokens)
}

// DigestSummarizer builds a deterministic one-line-per-turn digest without
// any model call.
type DigestSummarizer struct{}

func (DigestSummarizer) Summarize(ctx context.Context, span []Turn, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	names := callNames(span)
	var b strings.Builder
	fmt.Fprintf(&b, "[Summary of %d earlier turns]\n", len(span))
	for _, turn := range span {
		switch {
		case turn.Role == RoleTool:
			fmt.Fprintf(&b, "- tool %s (%s): %s\n", names[turn.ToolCallID], outcomeOrUnknown(turn.Outcome), preview(turn.Content, 80))
		case turn.HasToolCalls():
			calls := make([]string, len(turn.ToolCalls))
			for i, call := range turn.ToolCalls {
				calls[i] = call.Name + "(" + formatArgs(call.Arguments) + ")"
			}
			fmt.Fprintf(&b, "- assistant called %s", strings.Join(calls, ", "))
			if turn.Content != "" {
				fmt.Fprintf(&b, ": %s", preview(turn.Content, 60))
			}
			b.WriteString("\n")
		default:
			fmt.Fprintf(&b, "- %s: %s\n", turn.Role, preview(turn.Content, 80))
		}
	}

	digest := strings.TrimRight(b.String(), "\n")
	if limit := maxTokens * 4; maxTokens > 0 && len(digest) > limit {
		digest = cutBytes(digest, max(0, limit-3)) + "..."
	}
	return digest, nil
}

// FormatSpan renders a span as a numbered transcript for model-backed
// summarizers. Long contents are truncated.
func FormatSpan(span []Turn) string {
	names := callNames(span)
	var b strings.Builder
	for i, turn := range span {
		role := string(turn.Role)
		if len(role) > 0 {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		content := turn.Content
		if len(content) > 5000 {
			content = content[:5000] + "\n[... truncated for summarization ...]"
		}

		fmt.Fprintf(&b, "[%d] %s", i+1, role)
		if turn.Role == RoleTool {
			fmt.Fprintf(&b, " (%s, %s)", names[turn.ToolCallID], outcomeOrUnknown(turn.Outcome))
		}
		b.WriteString(":\n")
		for _, call := range turn.ToolCalls {
			fmt.Fprintf(&b, "-> %s(%s)\n", call.Name, formatArgs(call.Arguments))
		}
		if content != "" {
			b.WriteString(content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func callNames(span []Turn) map[string]string {
	names := make(map[string]string)
	for _, turn := range span {
		for _, call := range turn.ToolCalls {
			names[call.ID] = call.Name
		}
	}
	return names
}

func outcomeOrUnknown(o Outcome) string {
	if o == "" {
		return "unknown"
	}
	return string(o)
}

func formatArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, preview(fmt.Sprint(args[k]), 40))
	}
	return strings.Join(parts, ", ")
}

// preview returns the first line of s, shortened to n runes.
func preview(s string, n int) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if utf8.RuneCountInString(s) > n {
		s = string([]rune(s)[:n-3]) + "..."
	}
	return s
}

// cutBytes returns the longest prefix of s that fits in n bytes and ends on
// a rune boundary.
func cutBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
