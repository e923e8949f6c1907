package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/theirongolddev/aimon/internal/hooks"
)

// DefaultQueueSize bounds the ingest queue. At local hook-event rates
// the queue only fills if the database stalls.
const DefaultQueueSize = 1024

// Queue decouples HTTP ingestion from event processing. Enqueue never
// blocks the request path: when the buffer is full the event is dropped
// and counted. A single worker drains the buffer, preserving arrival
// order.
type Queue struct {
	events  chan hooks.Event
	proc    *Processor
	log     *slog.Logger
	dropped atomic.Int64
}

// NewQueue returns a queue of the given capacity feeding proc.
func NewQueue(proc *Processor, size int, log *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		events: make(chan hooks.Event, size),
		proc:   proc,
		log:    log,
	}
}

// Enqueue hands an event to the worker. Returns false if the queue was
// full and the event was dropped.
func (q *Queue) Enqueue(ev hooks.Event) bool {
	select {
	case q.events <- ev:
		return true
	default:
		n := q.dropped.Add(1)
		q.log.Warn("ingest queue full, dropping event",
			"kind", ev.Name, "session_id", ev.SessionID, "total_dropped", n)
		return false
	}
}

// Dropped returns the number of events dropped since startup.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Depth returns the number of events waiting in the queue.
func (q *Queue) Depth() int {
	return len(q.events)
}

// Run drains the queue until ctx is cancelled. A failed event is logged
// and skipped; one bad event must not stall the stream behind it.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-q.events:
			if err := q.proc.Process(ctx, ev); err != nil {
				q.log.Error("processing event failed",
					"kind", ev.Name, "session_id", ev.SessionID, "error", err)
			}
		}
	}
}
