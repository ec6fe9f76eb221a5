package context

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"testing"

	ferrors "github.com/friday-ai/friday/internal/errors"
	"github.com/friday-ai/friday/internal/logging"
)

func newTestManager(t *testing.T, mutate func(*ManagerConfig), opts ...Option) *ContextManager {
	t.Helper()
	cfg := DefaultManagerConfig()
	cfg.SoftTokenLimit = 2000
	cfg.HardTokenLimit = 2400
	cfg.SummaryTokenOverhead = 50
	if mutate != nil {
		mutate(&cfg)
	}
	opts = append([]Option{WithTokenCounter(presetCounter)}, opts...)
	cm, err := NewContextManager(cfg, opts...)
	if err != nil {
		t.Fatalf("NewContextManager() error = %v", err)
	}
	return cm
}

func appendAll(t *testing.T, cm *ContextManager, turns ...Turn) {
	t.Helper()
	for i, turn := range turns {
		if err := cm.AppendTurn(turn); err != nil {
			t.Fatalf("AppendTurn(%d) error = %v", i, err)
		}
	}
}

func TestNewContextManagerValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ManagerConfig)
	}{
		{"zero soft", func(c *ManagerConfig) { c.SoftTokenLimit = 0 }},
		{"negative hard", func(c *ManagerConfig) { c.HardTokenLimit = -1 }},
		{"soft above hard", func(c *ManagerConfig) { c.SoftTokenLimit = 5000; c.HardTokenLimit = 4000 }},
		{"overhead fills budget", func(c *ManagerConfig) { c.SummaryTokenOverhead = c.HardTokenLimit }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultManagerConfig()
			tt.mutate(&cfg)
			if _, err := NewContextManager(cfg); ferrors.GetCode(err) != "config_invalid" {
				t.Errorf("error = %v, want config_invalid", err)
			}
		})
	}
}

func TestAppendTurnAccounting(t *testing.T) {
	counter := TokenCounterFunc(func(t Turn) int { return len(t.Content) })
	cm := newTestManager(t, nil, WithTokenCounter(counter))

	sys := SystemTurn("be brief")
	sys.TokenCount = 9999
	appendAll(t, cm, sys, UserTurn("hello"))

	snap := cm.Snapshot()
	if snap.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", snap.Len())
	}
	first := snap.Turn(0)
	if !first.Pinned {
		t.Error("first system turn should be pinned")
	}
	if first.TokenCount != len("be brief") {
		t.Errorf("TokenCount = %d, caller value should be overwritten", first.TokenCount)
	}
	if snap.TotalTokens != len("be brief")+len("hello") {
		t.Errorf("TotalTokens = %d", snap.TotalTokens)
	}

	appendAll(t, cm, SystemTurn("later system note"))
	if cm.Snapshot().Turn(2).Pinned {
		t.Error("only a leading system turn is pinned automatically")
	}
}

func TestAppendTurnRejectsSummaryFlag(t *testing.T) {
	cm := newTestManager(t, nil)
	fake := sized(AssistantTurn("i am a summary"), 10)
	fake.Summary = true
	appendAll(t, cm, fake)
	if cm.Snapshot().Turn(0).Summary {
		t.Error("callers cannot create summary turns")
	}
}

func TestAppendTurnPairingViolations(t *testing.T) {
	tests := []struct {
		name  string
		setup []Turn
		bad   Turn
	}{
		{
			name:  "orphan result",
			setup: []Turn{UserTurn("hi")},
			bad:   result("nope", "x", 1),
		},
		{
			name:  "user turn while calls pending",
			setup: []Turn{AssistantTurn("", call("c1", "ls", nil))},
			bad:   UserTurn("hurry up"),
		},
		{
			name:  "duplicate result",
			setup: []Turn{AssistantTurn("", call("c1", "ls", nil)), result("c1", "ok", 1)},
			bad:   result("c1", "again", 1),
		},
		{
			name:  "tool calls on a user turn",
			setup: nil,
			bad:   Turn{Role: RoleUser, Content: "x", ToolCalls: []ToolCall{call("c1", "ls", nil)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := newTestManager(t, nil)
			appendAll(t, cm, tt.setup...)
			before := cm.Snapshot()

			err := cm.AppendTurn(tt.bad)
			if !ferrors.IsInvariantViolation(err) {
				t.Fatalf("error = %v, want invariant violation", err)
			}

			after := cm.Snapshot()
			if !reflect.DeepEqual(before.Turns(), after.Turns()) || before.TotalTokens != after.TotalTokens {
				t.Error("rejected turn changed the session")
			}
		})
	}
}

func TestSnapshotIsolation(t *testing.T) {
	cm := newTestManager(t, nil)
	appendAll(t, cm, sized(AssistantTurn("", call("c1", "read_file", map[string]any{"path": "a.go"})), 10))

	snap := cm.Snapshot()
	if !snap.Awaiting() || len(snap.PendingCalls) != 1 {
		t.Errorf("snapshot should report the pending call, got %v", snap.PendingCalls)
	}

	turns := snap.Turns()
	turns[0].ToolCalls[0].Arguments["path"] = "mutated"
	if got := cm.Snapshot().Turn(0).ToolCalls[0].Arguments["path"]; got != "a.go" {
		t.Errorf("mutating a snapshot leaked into the session: %v", got)
	}
	if got := snap.Turns()[0].ToolCalls[0].Arguments["path"]; got != "a.go" {
		t.Errorf("Turns() should return a fresh copy each call, got %v", got)
	}
}

func TestCompactIfNeededPressure(t *testing.T) {
	s := &countingSummarizer{}
	cm := newTestManager(t, nil, WithSummarizer(s))
	appendAll(t, cm, pressureSession()...)

	res, err := cm.CompactIfNeeded(context.Background())
	if err != nil {
		t.Fatalf("CompactIfNeeded() error = %v", err)
	}
	if !res.Changed() || res.CompactedTokens != 550 {
		t.Errorf("result = %+v, want compaction to 550 tokens", res)
	}

	snap := cm.Snapshot()
	if snap.Len() != 3 || snap.TotalTokens != 550 {
		t.Errorf("session has %d turns and %d tokens, want 3 and 550", snap.Len(), snap.TotalTokens)
	}
	assertPaired(t, snap.Turns())

	stats := cm.Stats()
	if stats.Compactions != 1 || stats.SummaryTurns != 1 || stats.NeedsCompaction {
		t.Errorf("stats = %+v", stats)
	}

	again, err := cm.CompactIfNeeded(context.Background())
	if err != nil || again != nil {
		t.Errorf("second CompactIfNeeded() = %v, %v; want nil, nil", again, err)
	}
	if s.calls.Load() != 1 {
		t.Errorf("summarizer called %d times, want 1", s.calls.Load())
	}
}

func TestCompactIfNeededBudgetExceeded(t *testing.T) {
	s := &countingSummarizer{}
	var buf bytes.Buffer
	log := logging.NewWriter(&buf, logging.LevelDebug)
	cm := newTestManager(t, func(c *ManagerConfig) {
		c.SoftTokenLimit = 3000
		c.HardTokenLimit = 4000
	}, WithSummarizer(s), WithLogger(log))

	appendAll(t, cm, pinnedSystem(5000), sized(UserTurn("hi"), 100))
	before := cm.Snapshot()

	res, err := cm.CompactIfNeeded(context.Background())
	if !ferrors.IsBudgetExceeded(err) {
		t.Fatalf("error = %v, want budget exceeded", err)
	}
	if res != nil {
		t.Error("expected no result")
	}
	if s.calls.Load() != 0 {
		t.Errorf("summarizer called %d times, want 0", s.calls.Load())
	}

	after := cm.Snapshot()
	if !reflect.DeepEqual(before.Turns(), after.Turns()) || before.TotalTokens != after.TotalTokens {
		t.Error("failed compaction changed the session")
	}
	if log.Metrics().Summary().BudgetFailures != 1 {
		t.Error("budget failure not recorded in metrics")
	}
	if !strings.Contains(buf.String(), "budget exceeded") {
		t.Errorf("expected an error log line, got %q", buf.String())
	}
}

// protectedFloor is the total no compaction can go below: pinned turns,
// summaries, the latest user turn and a trailing group still awaiting results.
func protectedFloor(turns []Turn) int {
	floor, lastUser := 0, -1
	for i, t := range turns {
		if t.Pinned || t.Summary {
			floor += t.TokenCount
		}
		if t.Role == RoleUser {
			lastUser = i
		}
	}
	if lastUser >= 0 && !turns[lastUser].Pinned {
		floor += turns[lastUser].TokenCount
	}
	for g := len(turns) - 1; g >= 0; g-- {
		if turns[g].Role == RoleTool {
			continue
		}
		if turns[g].HasToolCalls() && len(turns)-1-g < len(turns[g].ToolCalls) {
			floor += sumTokens(turns[g:])
		}
		break
	}
	return floor
}

func TestCompactIfNeededConvergesOverRepeatedAppends(t *testing.T) {
	const hard = 2400

	for _, seed := range []int64{1, 7, 42, 1234, 98765} {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			cm := newTestManager(t, nil, WithSummarizer(&countingSummarizer{}))
			compactions := 0

			appendAndCompact := func(turn Turn) {
				t.Helper()
				appendAll(t, cm, turn)
				floor := protectedFloor(cm.Snapshot().Turns())

				res, err := cm.CompactIfNeeded(context.Background())
				turns := cm.Snapshot().Turns()
				assertPaired(t, turns)
				if err != nil {
					if !ferrors.IsBudgetExceeded(err) || floor <= hard {
						t.Fatalf("CompactIfNeeded() error = %v with %d protected tokens", err, floor)
					}
					return
				}
				if res.Changed() {
					compactions++
				}
				used := cm.Stats().UsedTokens
				if used > hard {
					t.Fatalf("UsedTokens = %d after compaction, hard limit is %d", used, hard)
				}
				if used != sumTokens(turns) {
					t.Fatalf("UsedTokens = %d, turns sum to %d", used, sumTokens(turns))
				}
			}

			appendAndCompact(pinnedSystem(300))
			for i := 0; i < 80; i++ {
				switch rng.Intn(5) {
				case 0, 1:
					appendAndCompact(sized(UserTurn(fmt.Sprintf("question %d", i)), 50+rng.Intn(300)))
				case 2:
					var calls []ToolCall
					n := 1 + rng.Intn(2)
					for k := 0; k < n; k++ {
						calls = append(calls, call(fmt.Sprintf("c%d-%d", i, k), "read_file", map[string]any{"path": fmt.Sprintf("f%d.go", k)}))
					}
					appendAndCompact(sized(AssistantTurn("", calls...), 40+rng.Intn(80)))
					for _, c := range calls {
						appendAndCompact(result(c.ID, "file contents", 100+rng.Intn(500)))
					}
				case 3:
					appendAndCompact(sized(AssistantTurn(fmt.Sprintf("answer %d", i)), 30+rng.Intn(200)))
				case 4:
					note := sized(UserTurn(fmt.Sprintf("remember rule %d", i)), 20+rng.Intn(60))
					note.Pinned = true
					appendAndCompact(note)
				}
			}

			if compactions == 0 {
				t.Error("expected at least one compaction")
			}
		})
	}
}

func TestBeforeToolCallRedirect(t *testing.T) {
	cm := newTestManager(t, nil)
	c := call("c1", "read_file", map[string]any{"path": "a"})

	var actions []Action
	for i := 0; i < 4; i++ {
		actions = append(actions, cm.BeforeToolCall(c).Action)
	}
	want := []Action{ActionProceed, ActionProceed, ActionRedirect, ActionProceed}
	if !reflect.DeepEqual(actions, want) {
		t.Errorf("actions = %v, want %v", actions, want)
	}
	if cm.Stats().LoopEpisodes != 1 {
		t.Errorf("LoopEpisodes = %d, want 1", cm.Stats().LoopEpisodes)
	}
}

func TestBeforeToolCallAbort(t *testing.T) {
	cm := newTestManager(t, func(c *ManagerConfig) { c.MaxRedirects = 1 })
	c := call("c1", "read_file", map[string]any{"path": "a"})

	var gates []GateResult
	for i := 0; i < 6; i++ {
		gates = append(gates, cm.BeforeToolCall(c))
	}

	if gates[2].Action != ActionRedirect || gates[2].Err() != nil {
		t.Errorf("first episode should redirect, got %v", gates[2].Action)
	}
	if gates[5].Action != ActionAbort {
		t.Fatalf("second episode should abort, got %v", gates[5].Action)
	}
	err := gates[5].Err()
	if ferrors.GetCode(err) != ferrors.CodeLoopAborted {
		t.Errorf("Err() = %v, want loop aborted", err)
	}
}

func TestCompactionResetsLoopDetector(t *testing.T) {
	cm := newTestManager(t, nil)
	read := call("c1", "read_file", map[string]any{"path": "parser.go"})

	cm.BeforeToolCall(read)
	if dec := cm.BeforeToolCall(read).Decision; dec.State != StateSuspect {
		t.Fatalf("state = %s, want suspect before compaction", dec.State)
	}

	appendAll(t, cm, pressureSession()...)
	res, err := cm.CompactIfNeeded(context.Background())
	if err != nil {
		t.Fatalf("CompactIfNeeded() error = %v", err)
	}
	if res.ToolCallsSummarized == 0 {
		t.Fatal("compaction should have summarized the tool call")
	}

	if cm.Stats().LoopState != StateNormal {
		t.Error("detector should be reset after summarizing tool calls")
	}
	if got := cm.BeforeToolCall(read).Action; got != ActionProceed {
		t.Errorf("first call after reset = %v, want proceed", got)
	}
}

func TestGuidanceTurn(t *testing.T) {
	run := GuidanceTurn(Decision{Signature: "read_file#ab", Repeats: 3})
	if run.Role != RoleSystem || !strings.Contains(run.Content, "same tool call 3 times") {
		t.Errorf("run guidance = %+v", run)
	}
	cycle := GuidanceTurn(Decision{Signature: "grep#cd", Repeats: 3, Period: 2})
	if !strings.Contains(cycle.Content, "same 2 tool calls 3 times") {
		t.Errorf("cycle guidance = %q", cycle.Content)
	}
}

func TestStatsWarning(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWriter(&buf, logging.LevelWarn)
	cm := newTestManager(t, func(c *ManagerConfig) { c.WarnThreshold = 0.5 }, WithLogger(log))

	appendAll(t, cm, sized(UserTurn("a"), 900))
	if cm.Stats().NeedsWarning {
		t.Error("900 of 2000 should not warn at 0.5")
	}

	appendAll(t, cm, sized(AssistantTurn("b"), 200))
	stats := cm.Stats()
	if !stats.NeedsWarning || stats.NeedsCompaction {
		t.Errorf("stats = %+v, want warning without compaction", stats)
	}
	appendAll(t, cm, sized(UserTurn("c"), 10))

	if got := log.Metrics().Summary().ContextWarnings; got != 1 {
		t.Errorf("ContextWarnings = %d, want one per threshold crossing", got)
	}
	if !strings.Contains(buf.String(), "nearing soft limit") {
		t.Errorf("warning not logged: %q", buf.String())
	}
}

func TestRecordUsageCalibrates(t *testing.T) {
	cm := newTestManager(t, nil)
	appendAll(t, cm, sized(UserTurn("x"), 1000))

	cm.RecordUsage(2000)
	stats := cm.Stats()
	if stats.UsedTokens != 1000 {
		t.Errorf("UsedTokens = %d, calibration must not change accounting", stats.UsedTokens)
	}
	if stats.CalibratedTokens != 2000 {
		t.Errorf("CalibratedTokens = %d, want 2000", stats.CalibratedTokens)
	}
}

func TestRestore(t *testing.T) {
	cm := newTestManager(t, nil)
	read := call("c9", "read_file", map[string]any{"path": "x"})
	cm.BeforeToolCall(read)
	cm.BeforeToolCall(read)

	stored := pressureSession()[:4]
	if err := cm.Restore(stored); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	snap := cm.Snapshot()
	if snap.TotalTokens != 2100 || snap.Len() != 4 {
		t.Errorf("restored %d turns with %d tokens, want 4 and 2100", snap.Len(), snap.TotalTokens)
	}
	if cm.Stats().LoopState != StateNormal || cm.Stats().LoopEpisodes != 0 {
		t.Error("restore should start a fresh loop detector")
	}

	appendAll(t, cm, sized(UserTurn("continue"), 10))

	t.Run("invalid sequence", func(t *testing.T) {
		bad := []Turn{UserTurn("hi"), result("zz", "x", 1)}
		if err := cm.Restore(bad); !ferrors.IsInvariantViolation(err) {
			t.Errorf("error = %v, want invariant violation", err)
		}
		if cm.Snapshot().Len() != 5 {
			t.Error("failed restore changed the session")
		}
	})
}

func TestReset(t *testing.T) {
	cm := newTestManager(t, nil)
	appendAll(t, cm, pressureSession()...)
	cm.BeforeToolCall(call("c1", "ls", nil))

	cm.Reset()
	stats := cm.Stats()
	if stats.TurnCount != 0 || stats.UsedTokens != 0 || stats.Compactions != 0 {
		t.Errorf("stats after reset = %+v", stats)
	}
}

func TestConcurrentBeforeToolCall(t *testing.T) {
	cm := newTestManager(t, nil)
	c := call("c1", "read_file", map[string]any{"path": "same"})

	const n = 30
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		redirects int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cm.BeforeToolCall(c).Action == ActionRedirect {
				mu.Lock()
				redirects++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if redirects != n/3 {
		t.Errorf("redirects = %d, want %d", redirects, n/3)
	}
	if cm.Stats().LoopEpisodes != n/3 {
		t.Errorf("LoopEpisodes = %d, want %d", cm.Stats().LoopEpisodes, n/3)
	}
}

func TestConcurrentAppendAndSnapshot(t *testing.T) {
	cm := newTestManager(t, func(c *ManagerConfig) {
		c.SoftTokenLimit = 100000
		c.HardTokenLimit = 200000
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = cm.AppendTurn(sized(UserTurn("hi"), 5))
		}()
		go func() {
			defer wg.Done()
			snap := cm.Snapshot()
			if snap.TotalTokens != sumTokens(snap.Turns()) {
				t.Errorf("snapshot total %d disagrees with its turns", snap.TotalTokens)
			}
		}()
	}
	wg.Wait()

	if got := cm.Snapshot().TotalTokens; got != 100 {
		t.Errorf("TotalTokens = %d, want 100", got)
	}
}

func TestMaskOldToolResults(t *testing.T) {
	turns := []Turn{UserTurn("go")}
	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		turns = append(turns,
			AssistantTurn("", call(id, "read_file", nil)),
			result(id, "line one\nline two", 40),
		)
	}

	masked := MaskOldToolResults(turns, 1)
	if !strings.HasPrefix(masked[2].Content, "[Masked: 2 lines") {
		t.Errorf("old result not masked: %q", masked[2].Content)
	}
	if masked[6].Content != "line one\nline two" {
		t.Errorf("newest result should be kept, got %q", masked[6].Content)
	}
	if masked[2].TokenCount != 40 || masked[2].ToolCallID != "a" {
		t.Error("masking must keep pairing fields and token count")
	}
	if turns[2].Content != "line one\nline two" {
		t.Error("input was modified")
	}
	assertPaired(t, masked)
}
