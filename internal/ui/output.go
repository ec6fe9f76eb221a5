package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	fctx "github.com/friday-ai/friday/internal/context"
	"github.com/friday-ai/friday/internal/session"
)

// ANSI cursor control codes
const (
	CursorStart = "\r"      // Move cursor to start of line
	ClearLine   = "\033[2K" // Clear entire line
)

// Output renders replay progress and reports.
type Output struct {
	out       io.Writer
	err       io.Writer
	useColors bool
	styles    styles
}

// NewOutput creates an output writing reports to out and diagnostics to errOut.
func NewOutput(out, errOut io.Writer) *Output {
	useColors := isTerminal(out) && os.Getenv("NO_COLOR") == ""
	return &Output{
		out:       out,
		err:       errOut,
		useColors: useColors,
		styles:    newStyles(lipgloss.NewRenderer(out)),
	}
}

// NewStdOutput writes to stdout and stderr.
func NewStdOutput() *Output {
	return NewOutput(os.Stdout, os.Stderr)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// IsTTY returns true if the output is a terminal (not piped/redirected)
func (o *Output) IsTTY() bool {
	return o.useColors
}

// Header prints a section title.
func (o *Output) Header(title string) {
	fmt.Fprintln(o.out, o.styles.header.Render(title))
}

// Turn prints a one-line view of a turn as it is appended.
func (o *Output) Turn(t fctx.Turn) {
	var b strings.Builder
	b.WriteString(o.styles.dim.Render(fmt.Sprintf("%-9s", t.Role)))
	b.WriteString(" ")
	if t.Content != "" {
		b.WriteString(preview(t.Content, 70))
	}
	for _, call := range t.ToolCalls {
		b.WriteString(" ")
		b.WriteString(o.styles.toolName.Render("→ " + call.Name))
	}
	if t.Pinned {
		b.WriteString(o.styles.dim.Render(" [pinned]"))
	}
	fmt.Fprintln(o.out, b.String())
}

// Gate prints the loop detector decision for a call.
func (o *Output) Gate(call fctx.ToolCall, gate fctx.GateResult) {
	name := o.styles.toolName.Render(call.Name)
	switch gate.Action {
	case fctx.ActionAbort:
		fmt.Fprintf(o.out, "%s %s %s\n", o.styles.error.Render(iconError), name,
			o.styles.error.Render(fmt.Sprintf("abort (episode %d)", gate.Decision.Episode)))
	case fctx.ActionRedirect:
		fmt.Fprintf(o.out, "%s %s %s\n", o.styles.warning.Render(iconWarning), name,
			o.styles.warning.Render(fmt.Sprintf("redirect (%s, %d repeats)", describePattern(gate.Decision), gate.Decision.Repeats)))
	default:
		state := ""
		if gate.Decision.State == fctx.StateSuspect {
			state = o.styles.warning.Render(" suspect")
		}
		fmt.Fprintf(o.out, "%s %s%s\n", o.styles.toolCall.Render(iconToolCall), name, state)
	}
}

func describePattern(dec fctx.Decision) string {
	if dec.Period > 0 {
		return fmt.Sprintf("cycle of %d", dec.Period)
	}
	return "same call"
}

// ToolResult prints a result turn, truncating long output.
func (o *Output) ToolResult(t fctx.Turn) {
	if t.Outcome != fctx.OutcomeSuccess {
		fmt.Fprintf(o.out, "%s %s\n", o.styles.error.Render(iconError+" "+string(t.Outcome)), preview(t.Content, 100))
		return
	}
	fmt.Fprintln(o.out, o.styles.success.Render(iconSuccess)+" "+o.styles.dim.Render(t.ToolCallID))

	lines := strings.Split(t.Content, "\n")
	if len(lines) > 5 {
		lines = append(lines[:5], "... (truncated)")
	}
	for _, line := range lines {
		if line == "" {
			continue
		}
		fmt.Fprintln(o.out, o.styles.dim.Render("  "+iconIndent+" ")+preview(line, 100))
	}
}

// Compaction prints the outcome of a compaction.
func (o *Output) Compaction(res *fctx.CompactResult) {
	if !res.Changed() {
		return
	}
	msg := fmt.Sprintf("compacted %d turns into %d summaries", res.TurnsSummarized, res.SummariesCreated)
	if res.TurnsEvicted > 0 {
		msg += fmt.Sprintf(", evicted %d", res.TurnsEvicted)
	}
	fmt.Fprintf(o.out, "%s %s\n", o.styles.info.Render(iconCompact),
		fmt.Sprintf("%s, freed %d tokens (%d → %d)", msg, res.TokensFreed, res.OriginalTokens, res.CompactedTokens))
}

// Stats prints a boxed table of context statistics.
func (o *Output) Stats(s fctx.Stats) {
	rows := [][2]string{
		{"tokens", fmt.Sprintf("%d / %d (soft %d)", s.UsedTokens, s.HardLimit, s.SoftLimit)},
		{"usage", fmt.Sprintf("%.1f%%", s.UsagePercent*100)},
		{"calibrated", fmt.Sprintf("%d", s.CalibratedTokens)},
		{"turns", fmt.Sprintf("%d (%d summaries)", s.TurnCount, s.SummaryTurns)},
		{"pinned tokens", fmt.Sprintf("%d", s.PinnedTokens)},
		{"pending calls", fmt.Sprintf("%d", s.PendingCalls)},
		{"compactions", fmt.Sprintf("%d", s.Compactions)},
		{"loop state", s.LoopState.String()},
		{"loop episodes", fmt.Sprintf("%d", s.LoopEpisodes)},
	}

	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = o.styles.label.Render(row[0]) + o.styles.value.Render(row[1])
	}
	fmt.Fprintln(o.out, o.styles.box.Render(strings.Join(lines, "\n")))

	switch {
	case s.NeedsCompaction:
		o.Warning("context is above the soft limit")
	case s.NeedsWarning:
		o.Warning("context is nearing the soft limit")
	}
}

// Sessions prints saved sessions, newest first.
func (o *Output) Sessions(infos []session.Info, now time.Time) {
	if len(infos) == 0 {
		o.Info("no saved sessions")
		return
	}
	for _, info := range infos {
		fmt.Fprintf(o.out, "%s  %s  %s  %s\n",
			o.styles.toolName.Render(info.ID),
			o.styles.dim.Render(fmt.Sprintf("%-10s", session.FormatRelativeTime(info.UpdatedAt, now))),
			o.styles.dim.Render(fmt.Sprintf("%3d turns %7d tokens", info.TurnCount, info.TotalTokens)),
			info.Preview)
	}
}

// Error outputs an error message
func (o *Output) Error(err error) {
	fmt.Fprintln(o.err, o.styles.error.Render("Error: ")+err.Error())
}

// Warning outputs a warning message
func (o *Output) Warning(msg string) {
	fmt.Fprintln(o.err, o.styles.warning.Render("Warning: ")+msg)
}

// Success outputs a success message
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.out, o.styles.success.Render(iconSuccess+" ")+msg)
}

// Info outputs an info message
func (o *Output) Info(msg string) {
	fmt.Fprintln(o.out, o.styles.info.Render(iconInfo+" ")+msg)
}

// preview returns the first line of s, shortened to n runes.
func preview(s string, n int) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx] + " …"
	}
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
