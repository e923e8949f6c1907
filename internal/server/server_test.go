package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/aimon/internal/hooks"
	"github.com/theirongolddev/aimon/internal/ingest"
	"github.com/theirongolddev/aimon/internal/model"
	"github.com/theirongolddev/aimon/internal/store"
)

type testEnv struct {
	server *Server
	store  *store.Store
	proc   *ingest.Processor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	proc := ingest.NewProcessor(st, log)
	q := ingest.NewQueue(proc, 64, log)
	return &testEnv{
		server: New(Config{}, st, q, log),
		store:  st,
		proc:   proc,
	}
}

func (e *testEnv) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

// seed pushes events through the processor directly, skipping the
// queue, so read-side tests see settled state.
func (e *testEnv) seed(t *testing.T, events ...hooks.Event) {
	t.Helper()
	for _, ev := range events {
		if err := e.proc.Process(context.Background(), ev); err != nil {
			t.Fatalf("seed %s: %v", ev.Name, err)
		}
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.request(t, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestReceiveEvent(t *testing.T) {
	e := newTestEnv(t)

	rec := e.request(t, http.MethodPost, "/api/events",
		`{"session_id":"s1","hook_event_name":"SessionStart","cwd":"/src/app"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if depth := e.server.queue.Depth(); depth != 1 {
		t.Errorf("queue depth = %d, want 1", depth)
	}
}

func TestDroppedEventNotPublished(t *testing.T) {
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	// Capacity one, no worker draining: the second event overflows.
	q := ingest.NewQueue(ingest.NewProcessor(st, log), 1, log)
	e := &testEnv{server: New(Config{}, st, q, log)}

	for _, id := range []string{"s1", "s2"} {
		rec := e.request(t, http.MethodPost, "/api/events",
			`{"session_id":"`+id+`","hook_event_name":"SessionStart"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
		}
	}
	if dropped := q.Dropped(); dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}

	// The dropped event never reached the store, so the live feed must
	// not have announced it either.
	status := decode[Status](t, e.request(t, http.MethodGet, "/api/status", ""))
	if status.EventCount != 1 {
		t.Errorf("event_count = %d, want 1", status.EventCount)
	}
}

func TestReceiveEventValidation(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing session id", `{"hook_event_name":"Stop"}`, http.StatusBadRequest},
		{"missing event name", `{"session_id":"s1"}`, http.StatusBadRequest},
		{"invalid json", `{not json`, http.StatusBadRequest},
		// Tolerance policy: unrecognized kinds are accepted, not
		// rejected, but produce no work.
		{"unrecognized kind", `{"session_id":"s1","hook_event_name":"Notification"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.request(t, http.MethodPost, "/api/events", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if depth := e.server.queue.Depth(); depth != 0 {
		t.Errorf("queue depth = %d after rejected events", depth)
	}
}

func TestListSessions(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t,
		hooks.Event{SessionID: "s1", Name: hooks.SessionStart, Cwd: "/src/app"},
		hooks.Event{SessionID: "s2", Name: hooks.SessionStart},
		hooks.Event{SessionID: "s2", Name: hooks.SessionEnd},
	)

	rec := e.request(t, http.MethodGet, "/api/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	page := decode[model.SessionPage](t, rec)
	if page.Total != 2 {
		t.Errorf("total = %d", page.Total)
	}

	rec = e.request(t, http.MethodGet, "/api/sessions?status=active", "")
	page = decode[model.SessionPage](t, rec)
	if page.Total != 1 || page.Items[0].SessionID != "s1" {
		t.Errorf("active filter: %+v", page)
	}

	rec = e.request(t, http.MethodGet, "/api/sessions?project_id=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad project_id status = %d", rec.Code)
	}
}

func TestGetSessionDetail(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t,
		hooks.Event{SessionID: "s1", Name: hooks.SessionStart},
		hooks.Event{SessionID: "s1", Name: hooks.PreToolUse, ToolName: "Bash"},
		hooks.Event{SessionID: "s1", Name: hooks.PostToolUse, ToolName: "Bash"},
		hooks.Event{SessionID: "s1", Name: hooks.SubagentStart, AgentName: "explorer"},
	)

	rec := e.request(t, http.MethodGet, "/api/sessions/s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	detail := decode[model.SessionDetail](t, rec)
	if detail.SessionID != "s1" {
		t.Errorf("session_id = %q", detail.SessionID)
	}
	if len(detail.ToolCalls) != 1 || len(detail.Agents) != 1 {
		t.Errorf("detail = %d calls, %d agents", len(detail.ToolCalls), len(detail.Agents))
	}
	if detail.ToolCallCount != 1 {
		t.Errorf("tool_call_count = %d", detail.ToolCallCount)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	e := newTestEnv(t)
	rec := e.request(t, http.MethodGet, "/api/sessions/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSessionTimeline(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t,
		hooks.Event{SessionID: "s1", Name: hooks.SessionStart},
		hooks.Event{SessionID: "s1", Name: hooks.PreToolUse, ToolName: "Task"},
		hooks.Event{SessionID: "s1", Name: hooks.SubagentStart, AgentName: "explorer"},
	)

	rec := e.request(t, http.MethodGet, "/api/sessions/s1/timeline", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	events := decode[[]model.TimelineEvent](t, rec)
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Type != "tool_call" || events[0].ToolCall == nil {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Type != "agent" || events[1].Agent == nil {
		t.Errorf("events[1] = %+v", events[1])
	}

	rec = e.request(t, http.MethodGet, "/api/sessions/nope/timeline", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d", rec.Code)
	}
}

func TestListProjects(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t,
		hooks.Event{SessionID: "s1", Name: hooks.SessionStart, Cwd: "/src/alpha"},
		hooks.Event{SessionID: "s2", Name: hooks.SessionStart, Cwd: "/src/alpha"},
		hooks.Event{SessionID: "s3", Name: hooks.SessionStart, Cwd: "/src/beta"},
	)

	rec := e.request(t, http.MethodGet, "/api/projects", "")
	projects := decode[[]model.Project](t, rec)
	if len(projects) != 2 {
		t.Fatalf("got %d projects", len(projects))
	}
	if projects[0].Name != "alpha" || projects[0].SessionCount != 2 {
		t.Errorf("projects[0] = %+v", projects[0])
	}
}

func TestToolStatsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t,
		hooks.Event{SessionID: "s1", Name: hooks.PreToolUse, ToolName: "Bash"},
		hooks.Event{SessionID: "s1", Name: hooks.PostToolUseFailure, ToolName: "Bash", Error: "boom"},
	)

	rec := e.request(t, http.MethodGet, "/api/tools/stats", "")
	stats := decode[[]model.ToolStats](t, rec)
	if len(stats) != 1 || stats[0].ToolName != "Bash" || stats[0].ErrorCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestListAgentsFiltered(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t,
		hooks.Event{SessionID: "s1", Name: hooks.SubagentStart, AgentName: "a"},
		hooks.Event{SessionID: "s2", Name: hooks.SubagentStart, AgentName: "b"},
		hooks.Event{SessionID: "s2", Name: hooks.SubagentStop, AgentName: "b"},
	)

	rec := e.request(t, http.MethodGet, "/api/agents", "")
	agents := decode[[]model.Agent](t, rec)
	if len(agents) != 2 {
		t.Fatalf("got %d agents", len(agents))
	}

	rec = e.request(t, http.MethodGet, "/api/agents?status=active", "")
	agents = decode[[]model.Agent](t, rec)
	if len(agents) != 1 || agents[0].SessionID != "s1" {
		t.Errorf("active filter: %+v", agents)
	}

	rec = e.request(t, http.MethodGet, "/api/agents?session_id=s2", "")
	agents = decode[[]model.Agent](t, rec)
	if len(agents) != 1 || agents[0].AgentName != "b" {
		t.Errorf("session filter: %+v", agents)
	}
}

func TestDashboardStatsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t,
		hooks.Event{SessionID: "s1", Name: hooks.SessionStart},
		hooks.Event{SessionID: "s1", Name: hooks.PreToolUse, ToolName: "Bash"},
	)

	rec := e.request(t, http.MethodGet, "/api/dashboard/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	stats := decode[model.DashboardStats](t, rec)
	if stats.TotalSessions != 1 || stats.TotalToolCalls != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)
	rec := e.request(t, http.MethodOptions, "/api/events", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}
}

func TestEndToEndThroughQueue(t *testing.T) {
	e := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.server.queue.Run(ctx)

	rec := e.request(t, http.MethodPost, "/api/events",
		`{"session_id":"s1","hook_event_name":"SessionStart","cwd":"/src/app","model":"claude-sonnet-4"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		sess, err := e.store.GetSession(ctx, "s1")
		if err == nil && sess.Status == model.SessionActive {
			if sess.ProjectName != "app" {
				t.Errorf("project = %q", sess.ProjectName)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never materialized: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
