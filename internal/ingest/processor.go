// Package ingest turns inbound hook events into state transitions on
// the store. A single worker drains a bounded queue, so events from one
// client are applied in arrival order.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/theirongolddev/aimon/internal/hooks"
	"github.com/theirongolddev/aimon/internal/model"
	"github.com/theirongolddev/aimon/internal/store"
)

// unknownTool stands in for a tool event that arrived without a name.
const unknownTool = "unknown"

// Processor applies one event at a time against the store.
type Processor struct {
	store *store.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewProcessor returns a processor writing to st.
func NewProcessor(st *store.Store, log *slog.Logger) *Processor {
	return &Processor{store: st, log: log, now: time.Now}
}

// Process applies ev. Every recognized event, whatever its kind,
// guarantees the session row exists and bumps its last-activity
// timestamp; the per-kind transition happens in between. Unrecognized
// kinds are dropped without touching state.
func (p *Processor) Process(ctx context.Context, ev hooks.Event) error {
	if !ev.Name.Known() {
		p.log.Debug("ignoring unrecognized event kind",
			"kind", ev.Name, "session_id", ev.SessionID)
		return nil
	}

	now := p.now()

	var projectID *int64
	if ev.Cwd != "" {
		proj, err := p.store.GetOrCreateProject(ctx, ev.Cwd, now)
		if err != nil {
			return fmt.Errorf("resolve project: %w", err)
		}
		projectID = &proj.ID
	}

	if ev.Name == hooks.SessionStart {
		if err := p.store.UpsertSessionStart(ctx, ev.SessionID, projectID, ev.Model, now); err != nil {
			return err
		}
	} else {
		if err := p.store.EnsureSession(ctx, ev.SessionID, projectID, ev.Model, now); err != nil {
			return err
		}
	}

	if err := p.apply(ctx, ev, now); err != nil {
		return err
	}

	return p.store.TouchSession(ctx, ev.SessionID, now)
}

func (p *Processor) apply(ctx context.Context, ev hooks.Event, now time.Time) error {
	switch ev.Name {
	case hooks.SessionStart:
		// Handled by the upsert above.
		return nil

	case hooks.SessionEnd:
		return p.store.EndSession(ctx, ev.SessionID, now)

	case hooks.Stop:
		// A turn boundary, not a session end. Re-assert active in
		// case a stale sweep or out-of-order end closed the row.
		return p.store.MarkSessionActive(ctx, ev.SessionID)

	case hooks.PreToolUse:
		_, err := p.store.InsertPendingToolCall(ctx, ev.SessionID,
			toolNameOf(ev), string(ev.ToolInput), now)
		return err

	case hooks.PostToolUse:
		return p.closeToolCall(ctx, ev, "", model.ToolSuccess, now)

	case hooks.PostToolUseFailure:
		// The error text may be absent; the status alone marks the
		// failure and the error column stays null.
		return p.closeToolCall(ctx, ev, ev.Error, model.ToolError, now)

	case hooks.SubagentStart:
		// Best-effort link to the Task call that spawned the agent;
		// no open Task call just leaves the link null.
		taskID, err := p.store.FindPendingTaskCallID(ctx, ev.SessionID)
		if err != nil {
			return err
		}
		_, err = p.store.InsertAgent(ctx, ev.SessionID,
			ev.AgentName, ev.AgentType, taskID, now)
		return err

	case hooks.SubagentStop:
		ok, err := p.store.StopMatchingAgent(ctx, ev.SessionID, ev.AgentName, now)
		if err != nil {
			return err
		}
		if !ok {
			p.log.Debug("subagent stop matched no active agent",
				"session_id", ev.SessionID, "agent_name", ev.AgentName)
		}
		return nil
	}
	return nil
}

// closeToolCall closes the most recent matching pending call, or
// records the completion on its own when the start was never observed.
func (p *Processor) closeToolCall(ctx context.Context, ev hooks.Event, errMsg, status string, now time.Time) error {
	name := toolNameOf(ev)
	ok, err := p.store.CloseMatchingToolCall(ctx, ev.SessionID, name,
		string(ev.ToolResponse), errMsg, status, now)
	if err != nil {
		return err
	}
	if !ok {
		return p.store.InsertClosedToolCall(ctx, ev.SessionID, name,
			string(ev.ToolResponse), errMsg, status, now)
	}
	return nil
}

func toolNameOf(ev hooks.Event) string {
	if ev.ToolName == "" {
		return unknownTool
	}
	return ev.ToolName
}
