package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/theirongolddev/aimon/internal/hooks"
	"github.com/theirongolddev/aimon/internal/model"
	"github.com/theirongolddev/aimon/internal/store"
)

const maxEventBody = 1 << 20 // 1 MiB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// handleReceiveEvent accepts a hook event and hands it to the ingest
// queue, responding before the event is processed. Unrecognized kinds
// are accepted and dropped; a malformed payload is the caller's error.
func (s *Server) handleReceiveEvent(w http.ResponseWriter, r *http.Request) {
	var ev hooks.Event
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err := dec.Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A dropped event never reached the store, so it must not show up
	// on the live feed either.
	if ev.Name.Known() && s.queue.Enqueue(ev) {
		s.publish(StreamEvent{
			Kind:      ev.Name,
			SessionID: ev.SessionID,
			ToolName:  ev.ToolName,
			AgentName: ev.AgentName,
			Timestamp: time.Now().UTC(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListSessionsOptions{
		Status: q.Get("status"),
		Search: q.Get("search"),
	}
	if v := q.Get("project_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid project_id")
			return
		}
		opts.ProjectID = &id
	}
	if v := q.Get("page"); v != "" {
		opts.Page, _ = strconv.Atoi(v)
	}
	if v := q.Get("page_size"); v != "" {
		opts.PageSize, _ = strconv.Atoi(v)
	}

	page, err := s.store.ListSessions(r.Context(), opts)
	if err != nil {
		s.serverError(w, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	sess, err := s.store.GetSession(r.Context(), sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.serverError(w, "get session", err)
		return
	}

	calls, err := s.store.ListToolCalls(r.Context(), sessionID)
	if err != nil {
		s.serverError(w, "list tool calls", err)
		return
	}
	agents, err := s.store.ListAgents(r.Context(), sessionID)
	if err != nil {
		s.serverError(w, "list agents", err)
		return
	}

	writeJSON(w, http.StatusOK, model.SessionDetail{
		Session:   sess,
		ToolCalls: calls,
		Agents:    agents,
	})
}

func (s *Server) handleSessionTimeline(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	if _, err := s.store.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.serverError(w, "get session", err)
		return
	}

	calls, err := s.store.ListToolCalls(r.Context(), sessionID)
	if err != nil {
		s.serverError(w, "list tool calls", err)
		return
	}
	agents, err := s.store.ListAgents(r.Context(), sessionID)
	if err != nil {
		s.serverError(w, "list agents", err)
		return
	}

	events := make([]model.TimelineEvent, 0, len(calls)+len(agents))
	for i := range calls {
		events = append(events, model.TimelineEvent{
			Type:      "tool_call",
			Timestamp: calls[i].StartedAt,
			ToolCall:  &calls[i],
		})
	}
	for i := range agents {
		events = append(events, model.TimelineEvent{
			Type:      "agent",
			Timestamp: agents[i].StartedAt,
			Agent:     &agents[i],
		})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		s.serverError(w, "list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleToolStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.ToolStats(r.Context())
	if err != nil {
		s.serverError(w, "tool stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agents, err := s.store.FilterAgents(r.Context(), q.Get("session_id"), q.Get("status"))
	if err != nil {
		s.serverError(w, "list agents", err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = n
	}

	stats, err := s.store.DashboardStats(r.Context(), days)
	if err != nil {
		s.serverError(w, "dashboard stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleStream serves the live event feed over SSE. The recent ring is
// replayed first so late subscribers see current activity.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.mu.Lock()
	replay := make([]StreamEvent, len(s.recent))
	copy(replay, s.recent)
	s.mu.Unlock()

	ch := make(chan StreamEvent, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	for _, ev := range replay {
		writeSSE(w, ev)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev StreamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.ID, data)
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.log.Error("request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
