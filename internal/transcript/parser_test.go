package transcript

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/theirongolddev/aimon/internal/config"
	"github.com/theirongolddev/aimon/internal/store"
)

func writeTranscript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	return path
}

const sampleTranscript = `{"sessionId":"s1","type":"summary"}
{"costTracker":{"claude-sonnet-4":{"inputTokens":1000,"outputTokens":500,"cacheReadTokens":200,"cacheWriteTokens":100}}}
{"costTracker":{"claude-sonnet-4":{"inputTokens":2000,"outputTokens":800}}}
`

func TestParseFile(t *testing.T) {
	path := writeTranscript(t, t.TempDir(), "session.jsonl", sampleTranscript)

	u, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if u.SessionID != "s1" {
		t.Errorf("session id = %q", u.SessionID)
	}
	if u.Model != "claude-sonnet-4" {
		t.Errorf("model = %q", u.Model)
	}
	// Usage accumulates across every tracker record.
	if u.Input != 3000 || u.Output != 1300 {
		t.Errorf("tokens = %d/%d, want 3000/1300", u.Input, u.Output)
	}
	if u.CacheRead != 200 || u.CacheWrite != 100 {
		t.Errorf("cache tokens = %d/%d", u.CacheRead, u.CacheWrite)
	}
	if !u.Informative() {
		t.Error("usage not informative")
	}
}

func TestParseFileSkipsMalformedLines(t *testing.T) {
	content := `not json at all
{"sessionId":"s1"}
{"costTracker":{"claude-haiku-3":{"inputTokens":10,"outputTokens":5}}}
{"costTracker": {"truncated mid-write
`
	path := writeTranscript(t, t.TempDir(), "session.jsonl", content)

	u, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if u.SessionID != "s1" || u.Input != 10 || u.Output != 5 {
		t.Errorf("usage = %+v", u)
	}
}

func TestParseFileNotInformative(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no session id", `{"costTracker":{"m":{"inputTokens":10,"outputTokens":5}}}` + "\n"},
		{"zero usage", `{"sessionId":"s1"}` + "\n"},
		{"empty file", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTranscript(t, t.TempDir(), "session.jsonl", tt.content)
			u, err := ParseFile(path)
			if err != nil {
				t.Fatalf("ParseFile: %v", err)
			}
			if u.Informative() {
				t.Errorf("usage %+v reported informative", u)
			}
		})
	}
}

func TestParseFileIgnoresNonJSONL(t *testing.T) {
	path := writeTranscript(t, t.TempDir(), "notes.txt", "whatever")
	u, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if u.Informative() {
		t.Errorf("non-jsonl file parsed: %+v", u)
	}
}

func newTestReconciler(t *testing.T) (*Reconciler, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReconciler(st, config.PricingOverrides{}, log), st
}

func TestReconcileFileReplacesTotals(t *testing.T) {
	rec, st := newTestReconciler(t)
	ctx := context.Background()
	dir := t.TempDir()

	if err := st.EnsureSession(ctx, "s1", nil, "", time.Now()); err != nil {
		t.Fatal(err)
	}

	path := writeTranscript(t, dir, "session.jsonl", sampleTranscript)
	if err := rec.ReconcileFile(ctx, path); err != nil {
		t.Fatalf("ReconcileFile: %v", err)
	}

	sess, err := st.GetSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.InputTokens != 3000 || sess.OutputTokens != 1300 {
		t.Errorf("tokens = %d/%d", sess.InputTokens, sess.OutputTokens)
	}
	if sess.Model != "claude-sonnet-4" {
		t.Errorf("model = %q", sess.Model)
	}
	// 3000×3 + 1300×15 + 200×3×0.1 + 100×3×1.25 per MTok.
	want := (3000*3.0 + 1300*15.0 + 200*3.0*0.1 + 100*3.0*1.25) / 1_000_000
	if diff := sess.EstimatedCost - want; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("cost = %v, want %v", sess.EstimatedCost, want)
	}

	// Re-parsing the same file is idempotent.
	if err := rec.ReconcileFile(ctx, path); err != nil {
		t.Fatalf("second ReconcileFile: %v", err)
	}
	again, _ := st.GetSession(ctx, "s1")
	if again.InputTokens != sess.InputTokens || again.EstimatedCost != sess.EstimatedCost {
		t.Errorf("re-parse changed totals: %+v", again)
	}
}

func TestReconcileFileSkipsUninformative(t *testing.T) {
	rec, st := newTestReconciler(t)
	ctx := context.Background()

	if err := st.EnsureSession(ctx, "s1", nil, "", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := st.ReplaceSessionUsage(ctx, "s1", 500, 200, 0, 0, 0.01, ""); err != nil {
		t.Fatal(err)
	}

	// A partially-written file with no usage yet must not clobber the
	// stored totals with zeros.
	path := writeTranscript(t, t.TempDir(), "session.jsonl", `{"sessionId":"s1"}`+"\n")
	if err := rec.ReconcileFile(ctx, path); err != nil {
		t.Fatalf("ReconcileFile: %v", err)
	}

	sess, _ := st.GetSession(ctx, "s1")
	if sess.InputTokens != 500 || sess.OutputTokens != 200 {
		t.Errorf("totals clobbered: %d/%d", sess.InputTokens, sess.OutputTokens)
	}
}

func TestScanDir(t *testing.T) {
	rec, st := newTestReconciler(t)
	ctx := context.Background()
	dir := t.TempDir()

	if err := st.EnsureSession(ctx, "s1", nil, "", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := st.EnsureSession(ctx, "s2", nil, "", time.Now()); err != nil {
		t.Fatal(err)
	}

	// Transcripts live in nested per-project directories.
	sub := filepath.Join(dir, "-home-u-src-app")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTranscript(t, sub, "a.jsonl", sampleTranscript)
	writeTranscript(t, sub, "b.jsonl",
		`{"sessionId":"s2","costTracker":{"claude-opus-4":{"inputTokens":100,"outputTokens":50}}}`+"\n")
	writeTranscript(t, sub, "readme.md", "not a transcript")

	if err := rec.ScanDir(ctx, dir); err != nil {
		t.Fatalf("ScanDir: %v", err)
	}

	s1, _ := st.GetSession(ctx, "s1")
	if s1.InputTokens != 3000 {
		t.Errorf("s1 tokens = %d", s1.InputTokens)
	}
	s2, _ := st.GetSession(ctx, "s2")
	if s2.InputTokens != 100 || s2.Model != "claude-opus-4" {
		t.Errorf("s2 = %+v", s2)
	}
}

func TestScanDirMissingDir(t *testing.T) {
	rec, _ := newTestReconciler(t)
	if err := rec.ScanDir(context.Background(), filepath.Join(t.TempDir(), "nope")); err != nil {
		t.Errorf("missing dir should not error: %v", err)
	}
}

func TestDebounce(t *testing.T) {
	rec, _ := newTestReconciler(t)
	w := NewWatcher(rec, t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	now := base
	w.now = func() time.Time { return now }

	if !w.shouldProcess("/a.jsonl") {
		t.Error("first event debounced")
	}
	now = base.Add(time.Second)
	if w.shouldProcess("/a.jsonl") {
		t.Error("event inside the window not debounced")
	}
	// A different file has its own window.
	if !w.shouldProcess("/b.jsonl") {
		t.Error("unrelated file debounced")
	}
	now = base.Add(4 * time.Second)
	if !w.shouldProcess("/a.jsonl") {
		t.Error("event past the window debounced")
	}
}

func TestDebouncePrunesOldEntries(t *testing.T) {
	rec, _ := newTestReconciler(t)
	w := NewWatcher(rec, t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	now := base
	w.now = func() time.Time { return now }

	for i := 0; i < maxDebounceEntries+1; i++ {
		w.shouldProcess(fmt.Sprintf("/t/old-%d.jsonl", i))
	}
	// Jump past the window; the next overflow prunes the stale batch.
	now = base.Add(debounceWindow + time.Second)
	for i := 0; i < maxDebounceEntries+1; i++ {
		w.shouldProcess(fmt.Sprintf("/t/new-%d.jsonl", i))
	}

	w.mu.Lock()
	size := len(w.lastSeen)
	w.mu.Unlock()
	if size > maxDebounceEntries+1 {
		t.Errorf("debounce map grew unbounded: %d entries", size)
	}
}
