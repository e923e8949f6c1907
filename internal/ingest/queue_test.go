package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/theirongolddev/aimon/internal/hooks"
	"github.com/theirongolddev/aimon/internal/store"
)

func TestQueueDropsOnOverflow(t *testing.T) {
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer func() { _ = st.Close() }()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := NewQueue(NewProcessor(st, log), 2, log)

	// No worker running: the third enqueue overflows.
	if !q.Enqueue(hooks.Event{SessionID: "s1", Name: hooks.Stop}) {
		t.Error("first enqueue dropped")
	}
	if !q.Enqueue(hooks.Event{SessionID: "s1", Name: hooks.Stop}) {
		t.Error("second enqueue dropped")
	}
	if q.Enqueue(hooks.Event{SessionID: "s1", Name: hooks.Stop}) {
		t.Error("overflow enqueue accepted")
	}
	if q.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", q.Dropped())
	}
	if q.Depth() != 2 {
		t.Errorf("depth = %d, want 2", q.Depth())
	}
}

func TestQueueAppliesInOrder(t *testing.T) {
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer func() { _ = st.Close() }()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := NewQueue(NewProcessor(st, log), 16, log)

	q.Enqueue(hooks.Event{SessionID: "s1", Name: hooks.SessionStart})
	q.Enqueue(hooks.Event{SessionID: "s1", Name: hooks.PreToolUse, ToolName: "Bash"})
	q.Enqueue(hooks.Event{SessionID: "s1", Name: hooks.PostToolUse, ToolName: "Bash"})
	q.Enqueue(hooks.Event{SessionID: "s1", Name: hooks.SessionEnd})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for q.Depth() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("queue did not drain")
		}
		time.Sleep(10 * time.Millisecond)
	}
	// Give the worker a beat to finish the in-flight event.
	time.Sleep(50 * time.Millisecond)

	sess, err := st.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Status != "ended" {
		t.Errorf("status = %q, want ended", sess.Status)
	}
	calls, _ := st.ListToolCalls(ctx, "s1")
	if len(calls) != 1 || calls[0].Status != "success" {
		t.Errorf("calls = %+v", calls)
	}
}
