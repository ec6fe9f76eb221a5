package agent

import (
	"context"
	"strings"
	"testing"

	fctx "github.com/friday-ai/friday/internal/context"
	ferrors "github.com/friday-ai/friday/internal/errors"
	"github.com/friday-ai/friday/internal/logging"
	"github.com/friday-ai/friday/internal/tools"
)

func echoTool() tools.Tool {
	return &tools.FuncTool{
		ToolName: "echo",
		Desc:     "Echo the text argument",
		Fn: func(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
			text, _ := inv.Arguments["text"].(string)
			return tools.Result{Success: true, Output: text + "@" + inv.WorkingDirectory}, nil
		},
	}
}

func newTestDispatcher(t *testing.T, mutate func(*fctx.ManagerConfig), opts ...Option) (*Dispatcher, *fctx.ContextManager) {
	t.Helper()
	cfg := fctx.DefaultManagerConfig()
	cfg.SoftTokenLimit = 10000
	cfg.HardTokenLimit = 20000
	if mutate != nil {
		mutate(&cfg)
	}
	cm, err := fctx.NewContextManager(cfg)
	if err != nil {
		t.Fatalf("NewContextManager() error = %v", err)
	}
	if err := cm.AppendTurn(fctx.SystemTurn("You are a coding agent.")); err != nil {
		t.Fatal(err)
	}
	if err := cm.AppendTurn(fctx.UserTurn("look around")); err != nil {
		t.Fatal(err)
	}
	return NewDispatcher(cm, tools.NewRegistry(echoTool()), opts...), cm
}

func echo(id, text string) fctx.ToolCall {
	return fctx.ToolCall{ID: id, Name: "echo", Arguments: map[string]any{"text": text}}
}

func TestDispatch_ResultsInCallOrder(t *testing.T) {
	d, cm := newTestDispatcher(t, nil, WithWorkingDirectory("/repo"))

	step, err := d.Dispatch(context.Background(), fctx.AssistantTurn("", echo("c1", "one"), echo("c2", "two"), echo("c3", "three")))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	want := []string{"one@/repo", "two@/repo", "three@/repo"}
	for i, rt := range step.Results {
		if rt.Content != want[i] || rt.Outcome != fctx.OutcomeSuccess {
			t.Errorf("result %d = %+v, want %q", i, rt, want[i])
		}
	}

	snap := cm.Snapshot()
	if snap.Awaiting() {
		t.Error("all calls should be answered")
	}
	if snap.Len() != 6 {
		t.Errorf("session has %d turns, want 6", snap.Len())
	}
	if err := fctx.ValidateTurns(snap.Turns()); err != nil {
		t.Errorf("session invalid: %v", err)
	}
}

func TestDispatch_UnknownToolAnswered(t *testing.T) {
	d, cm := newTestDispatcher(t, nil)

	step, err := d.Dispatch(context.Background(), fctx.AssistantTurn("", fctx.ToolCall{ID: "x", Name: "rm_rf"}))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if step.Results[0].Outcome != fctx.OutcomeFailure || !strings.Contains(step.Results[0].Content, "Unknown tool: rm_rf") {
		t.Errorf("result = %+v", step.Results[0])
	}
	if cm.Snapshot().Awaiting() {
		t.Error("unknown call must still be answered")
	}
}

func TestDispatch_RedirectAddsGuidance(t *testing.T) {
	var log = logging.NewWriter(&strings.Builder{}, logging.LevelError)
	d, cm := newTestDispatcher(t, nil, WithLogger(log))
	ctx := context.Background()

	for i, id := range []string{"a", "b"} {
		step, err := d.Dispatch(ctx, fctx.AssistantTurn("", echo(id, "same")))
		if err != nil {
			t.Fatalf("Dispatch(%d) error = %v", i, err)
		}
		if step.Guidance != nil {
			t.Fatalf("unexpected guidance on call %d", i+1)
		}
	}

	step, err := d.Dispatch(ctx, fctx.AssistantTurn("", echo("c", "same")))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if step.Redirected() != 1 || step.Guidance == nil {
		t.Fatalf("third identical call should be redirected with guidance, got %+v", step)
	}
	if step.Results[0].Outcome != fctx.OutcomeFailure || !strings.Contains(step.Results[0].Content, "Not run") {
		t.Errorf("redirected call should be answered with a refusal, got %+v", step.Results[0])
	}

	snap := cm.Snapshot()
	last := snap.Turn(snap.Len() - 1)
	if last.Role != fctx.RoleSystem || last.Content != step.Guidance.Content {
		t.Errorf("last turn should be the guidance, got %+v", last)
	}
	if got := log.Metrics().Summary().Tools["echo"].Calls; got != 2 {
		t.Errorf("echo executed %d times, want 2", got)
	}
}

func TestDispatch_AbortStopsSession(t *testing.T) {
	d, cm := newTestDispatcher(t, func(c *fctx.ManagerConfig) { c.MaxRedirects = 1 })
	ctx := context.Background()

	var err error
	for i := 0; i < 6 && err == nil; i++ {
		_, err = d.Dispatch(ctx, fctx.AssistantTurn("", echo(string(rune('a'+i)), "same")))
	}
	if ferrors.GetCode(err) != ferrors.CodeLoopAborted {
		t.Fatalf("error = %v, want loop aborted", err)
	}
	if cm.Snapshot().Awaiting() {
		t.Error("aborted calls must still be answered")
	}
}

func TestDispatch_TextOnlyTurn(t *testing.T) {
	d, cm := newTestDispatcher(t, nil)
	step, err := d.Dispatch(context.Background(), fctx.AssistantTurn("all done"))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(step.Gates) != 0 || len(step.Results) != 0 {
		t.Errorf("text turn should not gate anything, got %+v", step)
	}
	if cm.Snapshot().Len() != 3 {
		t.Error("text turn should be appended")
	}
}

func TestDispatch_RejectsInvalidTurn(t *testing.T) {
	d, cm := newTestDispatcher(t, nil)
	before := cm.Snapshot().Len()

	_, err := d.Dispatch(context.Background(), fctx.ToolResultTurn("ghost", tools.Result{Success: true}))
	if !ferrors.IsInvariantViolation(err) {
		t.Errorf("error = %v, want invariant violation", err)
	}
	if cm.Snapshot().Len() != before {
		t.Error("rejected turn changed the session")
	}
}

func TestDispatch_CompactsUnderPressure(t *testing.T) {
	big := strings.Repeat("x", 4000)
	registry := tools.NewRegistry(&tools.FuncTool{
		ToolName: "cat",
		Fn: func(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
			return tools.Result{Success: true, Output: big}, nil
		},
	})

	cfg := fctx.DefaultManagerConfig()
	cfg.SoftTokenLimit = 2000
	cfg.HardTokenLimit = 3000
	cfg.SummaryTokenOverhead = 100
	cm, err := fctx.NewContextManager(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := cm.AppendTurn(fctx.SystemTurn("sys")); err != nil {
		t.Fatal(err)
	}
	if err := cm.AppendTurn(fctx.UserTurn("read everything")); err != nil {
		t.Fatal(err)
	}
	d := NewDispatcher(cm, registry)

	var compacted bool
	for i := 0; i < 3; i++ {
		call := fctx.ToolCall{ID: string(rune('a' + i)), Name: "cat", Arguments: map[string]any{"path": string(rune('a' + i))}}
		step, err := d.Dispatch(context.Background(), fctx.AssistantTurn("", call))
		if err != nil {
			t.Fatalf("Dispatch(%d) error = %v", i, err)
		}
		if step.Compaction.Changed() {
			compacted = true
		}
		if total := cm.Snapshot().TotalTokens; total > cfg.HardTokenLimit {
			t.Errorf("total %d exceeds hard limit after step %d", total, i)
		}
	}
	if !compacted {
		t.Error("expected at least one compaction")
	}
	if err := fctx.ValidateTurns(cm.Snapshot().Turns()); err != nil {
		t.Errorf("session invalid after compaction: %v", err)
	}
}
