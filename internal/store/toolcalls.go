package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/theirongolddev/aimon/internal/model"
)

// InsertPendingToolCall records a tool invocation that has started but
// not finished. Returns the new row id.
func (s *Store) InsertPendingToolCall(ctx context.Context, sessionID, toolName, toolInput string, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (session_id, tool_name, tool_input, status, started_at)
		 VALUES (?, ?, ?, 'pending', ?)`,
		sessionID, toolName, nullStr(toolInput), formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("insert pending tool call: %w", err)
	}
	return res.LastInsertId()
}

// CloseMatchingToolCall closes the most recent pending call for the
// session and tool name, transitioning it to the given status.
// Most-recent-first matching is a heuristic: with concurrent same-name
// calls the pairing may cross, but durations stay plausible and counts
// stay exact. Returns false if no pending call matched.
func (s *Store) CloseMatchingToolCall(ctx context.Context, sessionID, toolName, toolResponse, errMsg, status string, now time.Time) (bool, error) {
	var (
		id      int64
		started string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at FROM tool_calls
		 WHERE session_id = ? AND tool_name = ? AND status = 'pending'
		 ORDER BY id DESC LIMIT 1`,
		sessionID, toolName).Scan(&id, &started)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("match tool call: %w", err)
	}

	var durationMs any
	if startedAt, ok := parseTime(started); ok {
		durationMs = now.Sub(startedAt).Milliseconds()
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE tool_calls SET
		     status = ?, tool_response = ?, error = ?,
		     ended_at = ?, duration_ms = ?
		 WHERE id = ?`,
		status, nullStr(toolResponse), nullStr(errMsg), formatTime(now), durationMs, id)
	if err != nil {
		return false, fmt.Errorf("close tool call: %w", err)
	}
	return true, nil
}

// InsertClosedToolCall records a completion whose start was never seen.
// started_at takes the column default and duration_ms stays null, since
// no true start time exists to measure from.
func (s *Store) InsertClosedToolCall(ctx context.Context, sessionID, toolName, toolResponse, errMsg, status string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (session_id, tool_name, tool_response, error, status, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, toolName, nullStr(toolResponse), nullStr(errMsg), status, formatTime(now))
	if err != nil {
		return fmt.Errorf("insert closed tool call: %w", err)
	}
	return nil
}

func scanToolCall(r rowScanner) (model.ToolCall, error) {
	var (
		tc       model.ToolCall
		input    sql.NullString
		response sql.NullString
		errMsg   sql.NullString
		started  string
		ended    sql.NullString
		duration sql.NullInt64
	)
	err := r.Scan(&tc.ID, &tc.SessionID, &tc.ToolName, &input, &response,
		&tc.Status, &errMsg, &started, &ended, &duration)
	if err != nil {
		return tc, err
	}
	tc.ToolInput = input.String
	tc.ToolResponse = response.String
	tc.Error = errMsg.String
	tc.StartedAt, _ = parseTime(started)
	tc.EndedAt = nullTime(ended)
	if duration.Valid {
		tc.DurationMs = &duration.Int64
	}
	return tc, nil
}

const toolCallColumns = `id, session_id, tool_name, tool_input, tool_response,
	status, error, started_at, ended_at, duration_ms`

// ListToolCalls returns a session's tool calls in invocation order.
func (s *Store) ListToolCalls(ctx context.Context, sessionID string) ([]model.ToolCall, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+toolCallColumns+` FROM tool_calls
		 WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list tool calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	calls := []model.ToolCall{}
	for rows.Next() {
		tc, err := scanToolCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, tc)
	}
	return calls, rows.Err()
}

// RecentErrors returns the n most recent failed tool calls.
func (s *Store) RecentErrors(ctx context.Context, n int) ([]model.ToolCall, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+toolCallColumns+` FROM tool_calls
		 WHERE status = 'error' ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("recent errors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	calls := []model.ToolCall{}
	for rows.Next() {
		tc, err := scanToolCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, tc)
	}
	return calls, rows.Err()
}

// ToolStats aggregates call counts, error rates, and average durations
// per tool name, busiest first.
func (s *Store) ToolStats(ctx context.Context) ([]model.ToolStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool_name,
		        COUNT(*) AS count,
		        SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END) AS error_count,
		        AVG(duration_ms) AS avg_duration_ms
		 FROM tool_calls
		 GROUP BY tool_name
		 ORDER BY count DESC, tool_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("tool stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := []model.ToolStats{}
	for rows.Next() {
		var (
			st  model.ToolStats
			avg sql.NullFloat64
		)
		if err := rows.Scan(&st.ToolName, &st.Count, &st.ErrorCount, &avg); err != nil {
			return nil, err
		}
		if st.Count > 0 {
			st.ErrorRate = float64(st.ErrorCount) / float64(st.Count)
		}
		if avg.Valid {
			st.AvgDurationMs = &avg.Float64
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
