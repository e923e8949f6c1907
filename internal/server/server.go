// Package server provides the monitor's HTTP API: hook-event ingestion
// plus the read-side endpoints the dashboard and CLI consume.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/theirongolddev/aimon/internal/hooks"
	"github.com/theirongolddev/aimon/internal/ingest"
	"github.com/theirongolddev/aimon/internal/store"
)

// Config controls the server runtime behavior.
type Config struct {
	Addr         string
	EventsBuffer int
}

// Server wires the HTTP API to the store and the ingest queue.
type Server struct {
	cfg       Config
	store     *store.Store
	queue     *ingest.Queue
	log       *slog.Logger
	startedAt time.Time

	mu          sync.Mutex
	nextEventID int64
	recent      []StreamEvent
	nextSubID   int
	subs        map[int]chan StreamEvent
}

// StreamEvent is the compact event shape published to SSE subscribers
// whenever a hook event is accepted.
type StreamEvent struct {
	ID        int64      `json:"id"`
	Kind      hooks.Kind `json:"kind"`
	SessionID string     `json:"session_id"`
	ToolName  string     `json:"tool_name,omitempty"`
	AgentName string     `json:"agent_name,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Status is served at /api/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	UptimeSec       int64     `json:"uptime_sec"`
	QueueDepth      int       `json:"queue_depth"`
	DroppedEvents   int64     `json:"dropped_events"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// New returns a server with the provided config.
func New(cfg Config, st *store.Store, q *ingest.Queue, log *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6820"
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	return &Server{
		cfg:       cfg,
		store:     st,
		queue:     q,
		log:       log,
		startedAt: time.Now(),
		subs:      make(map[int]chan StreamEvent),
	}
}

// Handler returns the routed HTTP handler, wrapped in CORS for the
// local dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/events", s.handleReceiveEvent)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /api/sessions/{id}/timeline", s.handleSessionTimeline)
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("GET /api/tools/stats", s.handleToolStats)
	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("GET /api/dashboard/stats", s.handleDashboardStats)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	return corsMiddleware(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully with a
// bounded wait.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.log.Info("http server listening", "addr", s.cfg.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

// corsMiddleware allows the local dashboard, served from its own dev
// port, to call the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// publish appends to the recent-event ring and fans out to subscribers.
// Slow subscribers lose events rather than block the publisher.
func (s *Server) publish(ev StreamEvent) {
	s.mu.Lock()
	s.nextEventID++
	ev.ID = s.nextEventID
	s.recent = append(s.recent, ev)
	if len(s.recent) > s.cfg.EventsBuffer {
		s.recent = s.recent[len(s.recent)-s.cfg.EventsBuffer:]
	}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Server) addSubscriber(ch chan StreamEvent) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	s.subs[s.nextSubID] = ch
	return s.nextSubID
}

func (s *Server) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

func (s *Server) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		StartedAt:       s.startedAt,
		UptimeSec:       int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:      s.queue.Depth(),
		DroppedEvents:   s.queue.Dropped(),
		EventCount:      len(s.recent),
		SubscriberCount: len(s.subs),
	}
}
