package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/aimon/internal/model"
)

// InsertAgent records a delegated agent starting within a session,
// optionally linked to the tool call that spawned it.
func (s *Store) InsertAgent(ctx context.Context, sessionID, agentName, agentType string, taskToolCallID *int64, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (session_id, agent_name, agent_type, task_tool_call_id, status, started_at)
		 VALUES (?, ?, ?, ?, 'active', ?)`,
		sessionID, nullStr(agentName), nullStr(agentType), taskToolCallID, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("insert agent: %w", err)
	}
	return res.LastInsertId()
}

// FindPendingTaskCallID returns the id of the most recent pending Task
// tool call for the session, or nil if none is open. Best-effort: a
// missing link is not an error.
func (s *Store) FindPendingTaskCallID(ctx context.Context, sessionID string) (*int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM tool_calls
		 WHERE session_id = ? AND tool_name = 'Task' AND status = 'pending'
		 ORDER BY id DESC LIMIT 1`, sessionID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending task call: %w", err)
	}
	return &id, nil
}

// StopMatchingAgent stops the most recent active agent for the session
// with the same name. An unnamed stop matches only unnamed agents; a
// named active agent is never closed by a stop that lacks its name.
// Returns false if no active agent matched; an unmatched stop is
// silently dropped by the caller.
func (s *Store) StopMatchingAgent(ctx context.Context, sessionID, agentName string, now time.Time) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM agents
		 WHERE session_id = ? AND agent_name IS ? AND status = 'active'
		 ORDER BY id DESC LIMIT 1`, sessionID, nullStr(agentName)).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("match agent: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE agents SET status = 'stopped', ended_at = ? WHERE id = ?",
		formatTime(now), id)
	if err != nil {
		return false, fmt.Errorf("stop agent: %w", err)
	}
	return true, nil
}

const agentColumns = `id, session_id, agent_name, agent_type, task_tool_call_id,
	status, started_at, ended_at`

func scanAgent(r rowScanner) (model.Agent, error) {
	var (
		a       model.Agent
		name    sql.NullString
		typ     sql.NullString
		taskID  sql.NullInt64
		started string
		ended   sql.NullString
	)
	err := r.Scan(&a.ID, &a.SessionID, &name, &typ, &taskID,
		&a.Status, &started, &ended)
	if err != nil {
		return a, err
	}
	a.AgentName = name.String
	a.AgentType = typ.String
	if taskID.Valid {
		a.TaskToolCallID = &taskID.Int64
	}
	a.StartedAt, _ = parseTime(started)
	a.EndedAt = nullTime(ended)
	return a, nil
}

// ListAgents returns a session's agents in spawn order.
func (s *Store) ListAgents(ctx context.Context, sessionID string) ([]model.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents
		 WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	agents := []model.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// FilterAgents returns agents across sessions, newest first, optionally
// narrowed by session and status.
func (s *Store) FilterAgents(ctx context.Context, sessionID, status string) ([]model.Agent, error) {
	var (
		conds []string
		args  []any
	)
	if sessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, sessionID)
	}
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}

	query := `SELECT ` + agentColumns + ` FROM agents`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	agents := []model.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}
