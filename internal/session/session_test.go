package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	fctx "github.com/friday-ai/friday/internal/context"
	ferrors "github.com/friday-ai/friday/internal/errors"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T, codec Codec, maxSessions int) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), codec, maxSessions, nil)
	if err != nil {
		t.Fatal(err)
	}
	clock := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store.now = clock.now
	return store
}

func testManager(t *testing.T) *fctx.ContextManager {
	t.Helper()
	cm, err := fctx.NewContextManager(fctx.DefaultManagerConfig())
	if err != nil {
		t.Fatal(err)
	}
	turns := []fctx.Turn{
		fctx.SystemTurn("You are a coding agent."),
		fctx.UserTurn("list the repo\nplease"),
		fctx.AssistantTurn("", fctx.ToolCall{ID: "c1", Name: "ls", Arguments: map[string]any{
			"path": ".", "opts": map[string]any{"depth": 2, "hidden": true},
		}}),
		{Role: fctx.RoleTool, ToolCallID: "c1", Content: "go.mod\ninternal/", Outcome: fctx.OutcomeSuccess},
	}
	for _, turn := range turns {
		if err := cm.AppendTurn(turn); err != nil {
			t.Fatal(err)
		}
	}
	return cm
}

func TestStore(t *testing.T) {
	codecs := map[string]Codec{"json": JSONCodec{}}
	cborCodec, err := CodecFor("cbor")
	if err != nil {
		t.Fatal(err)
	}
	codecs["cbor"] = cborCodec

	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			store := newTestStore(t, codec, 0)
			cm := testManager(t)
			snap := cm.Snapshot()

			id, err := store.Save("", snap)
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if len(id) != 36 {
				t.Errorf("expected a uuid, got %q", id)
			}
			if _, err := os.Stat(filepath.Join(store.dir, id+codec.Ext())); err != nil {
				t.Errorf("session file not created: %v", err)
			}

			restored, err := fctx.NewContextManager(fctx.DefaultManagerConfig())
			if err != nil {
				t.Fatal(err)
			}
			sess, err := store.Restore(restored, id)
			if err != nil {
				t.Fatalf("Restore() error = %v", err)
			}
			if sess.TotalTokens != snap.TotalTokens {
				t.Errorf("TotalTokens = %d, want %d", sess.TotalTokens, snap.TotalTokens)
			}

			got := restored.Snapshot()
			if got.TotalTokens != snap.TotalTokens || got.Len() != snap.Len() {
				t.Errorf("restored %d turns / %d tokens, want %d / %d", got.Len(), got.TotalTokens, snap.Len(), snap.TotalTokens)
			}
			if !got.Turn(0).Pinned {
				t.Error("pinned flag lost")
			}
			call := got.Turn(2).ToolCalls[0]
			if _, ok := call.Arguments["opts"].(map[string]any); !ok {
				t.Errorf("nested arguments decoded as %T", call.Arguments["opts"])
			}
			if a, b := fctx.Signature(call.Name, call.Arguments, nil), fctx.Signature("ls", snap.Turn(2).ToolCalls[0].Arguments, nil); a != b {
				t.Errorf("signature changed across save and load: %s vs %s", a, b)
			}
		})
	}
}

func TestStoreSaveKeepsCreatedAt(t *testing.T) {
	store := newTestStore(t, nil, 0)
	snap := testManager(t).Snapshot()

	id, _ := store.Save("", snap)
	first, _ := store.Load(id)
	if _, err := store.Save(id, snap); err != nil {
		t.Fatal(err)
	}
	second, _ := store.Load(id)

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("CreatedAt should survive a re-save")
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Error("UpdatedAt should advance")
	}
}

func TestStoreListAndRetention(t *testing.T) {
	store := newTestStore(t, nil, 3)
	snap := testManager(t).Snapshot()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := store.Save("", snap)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	infos, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 retained sessions, got %d", len(infos))
	}
	if infos[0].ID != ids[4] {
		t.Errorf("newest session should be first, got %s", infos[0].ID)
	}
	for i := 1; i < len(infos); i++ {
		if infos[i].UpdatedAt.After(infos[i-1].UpdatedAt) {
			t.Error("sessions not sorted by UpdatedAt desc")
		}
	}
	if infos[0].Preview != "list the repo please" || infos[0].TurnCount != 4 {
		t.Errorf("info = %+v", infos[0])
	}
	if _, err := store.Load(ids[0]); ferrors.GetCode(err) != "session_not_found" {
		t.Errorf("oldest session should have been removed, got %v", err)
	}
}

func TestStoreCurrentAndDelete(t *testing.T) {
	store := newTestStore(t, nil, 0)
	snap := testManager(t).Snapshot()

	current, err := store.Current()
	if err != nil || current != nil {
		t.Fatalf("empty store Current() = %v, %v", current, err)
	}

	id, _ := store.Save("", snap)
	current, err = store.Current()
	if err != nil || current == nil || current.ID != id {
		t.Fatalf("Current() = %v, %v; want %s", current, err, id)
	}

	if err := store.Delete(id); err != nil {
		t.Fatal(err)
	}
	if current, _ := store.Current(); current != nil {
		t.Error("deleting the current session should clear the link")
	}
	if err := store.Delete(id); ferrors.GetCode(err) != "session_not_found" {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestStoreRejectsIDsOutsideDir(t *testing.T) {
	parent := t.TempDir()
	store, err := NewStore(filepath.Join(parent, "sessions"), nil, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	outside := filepath.Join(parent, "x.json")
	if err := os.WriteFile(outside, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	snap := testManager(t).Snapshot()

	for _, id := range []string{"../x", "..", "a/b", `a\b`, "current", "/etc/passwd"} {
		t.Run(id, func(t *testing.T) {
			if err := store.Delete(id); ferrors.GetCode(err) != "config_invalid" {
				t.Errorf("Delete(%q) error = %v, want config_invalid", id, err)
			}
			if _, err := store.Load(id); ferrors.GetCode(err) != "config_invalid" {
				t.Errorf("Load(%q) error = %v, want config_invalid", id, err)
			}
			if _, err := store.Save(id, snap); ferrors.GetCode(err) != "config_invalid" {
				t.Errorf("Save(%q) error = %v, want config_invalid", id, err)
			}
		})
	}

	if _, err := os.Stat(outside); err != nil {
		t.Errorf("file outside the store was touched: %v", err)
	}
}

func TestStoreCorrupt(t *testing.T) {
	store := newTestStore(t, nil, 0)
	if err := os.WriteFile(store.path("broken"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load("broken"); ferrors.GetCode(err) != "session_corrupt" {
		t.Errorf("Load() error = %v, want session_corrupt", err)
	}
	infos, err := store.List()
	if err != nil || len(infos) != 0 {
		t.Errorf("List() should skip corrupt files, got %v, %v", infos, err)
	}
}

func TestStoreRestoreInvalidTurns(t *testing.T) {
	store := newTestStore(t, nil, 0)
	sess := Session{ID: "bad", Turns: []fctx.Turn{{Role: fctx.RoleTool, ToolCallID: "ghost"}}}
	data, _ := JSONCodec{}.Marshal(sess)
	if err := os.WriteFile(store.path("bad"), data, 0600); err != nil {
		t.Fatal(err)
	}

	cm := testManager(t)
	before := cm.Snapshot().Len()
	if _, err := store.Restore(cm, "bad"); ferrors.GetCode(err) != "session_corrupt" {
		t.Errorf("Restore() error = %v, want session_corrupt", err)
	}
	if cm.Snapshot().Len() != before {
		t.Error("failed restore changed the manager")
	}
}

func TestCodecFor(t *testing.T) {
	if _, err := CodecFor("xml"); ferrors.GetCode(err) != "config_invalid" {
		t.Errorf("CodecFor(xml) error = %v", err)
	}
	c, err := CodecFor("")
	if err != nil || c.Ext() != ".json" {
		t.Errorf("default codec = %v, %v", c, err)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"a longer string", 10, "a longe..."},
		{"with\nnewlines", 15, "with newlines"},
		{"日本語のテキストです", 6, "日本語..."},
		{"日本語", 3, "日本語"},
	}

	for _, tt := range tests {
		got := truncate(tt.input, tt.maxLen)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) is not valid UTF-8", tt.input, tt.maxLen)
		}
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		t    time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-48 * time.Hour), "2d ago"},
		{time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "Jan 2"},
		{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "Jan 2, 2024"},
	}

	for _, tt := range tests {
		if got := FormatRelativeTime(tt.t, now); got != tt.want {
			t.Errorf("FormatRelativeTime(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}
