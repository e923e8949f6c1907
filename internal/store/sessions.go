package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/aimon/internal/model"
)

// EnsureSession creates a session row if none exists for the token.
// Insert-if-absent only: an existing row's fields are never touched, so
// events arriving in any order cannot clobber earlier state.
func (s *Store) EnsureSession(ctx context.Context, sessionID string, projectID *int64, modelName string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, project_id, status, model, started_at)
		 VALUES (?, ?, 'active', ?, ?)`,
		sessionID, projectID, nullStr(modelName), formatTime(now))
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}

// UpsertSessionStart records an explicit session start. On conflict the
// original started_at is preserved and only the mutable fields are
// refreshed; a nil project or empty model never overwrites a known one.
func (s *Store) UpsertSessionStart(ctx context.Context, sessionID string, projectID *int64, modelName string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, project_id, status, model, started_at)
		 VALUES (?, ?, 'active', ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		     project_id = COALESCE(excluded.project_id, sessions.project_id),
		     status = 'active',
		     model = COALESCE(excluded.model, sessions.model)`,
		sessionID, projectID, nullStr(modelName), formatTime(now))
	if err != nil {
		return fmt.Errorf("upsert session start: %w", err)
	}
	return nil
}

// EndSession marks a session ended, stamping the end time. Idempotent
// to repeat.
func (s *Store) EndSession(ctx context.Context, sessionID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET status = 'ended', ended_at = ? WHERE session_id = ?",
		formatTime(now), sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// MarkSessionActive re-asserts active status. Used for turn boundaries
// (Stop), which must never close the session.
func (s *Store) MarkSessionActive(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET status = 'active' WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("mark session active: %w", err)
	}
	return nil
}

// TouchSession bumps the last-activity timestamp. Every processed event
// lands here; the reaper depends on it for staleness detection.
func (s *Store) TouchSession(ctx context.Context, sessionID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET last_event_at = ? WHERE session_id = ?",
		formatTime(now), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// ReapStale force-ends active sessions whose last activity predates the
// cutoff. The end time preserves the true last-seen time rather than
// the sweep time; legacy rows that never recorded activity fall back to
// their start time. Returns the number of sessions reaped.
func (s *Store) ReapStale(ctx context.Context, cutoff time.Time) (int64, error) {
	c := formatTime(cutoff)

	res1, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'ended', ended_at = last_event_at
		 WHERE status = 'active' AND last_event_at IS NOT NULL AND last_event_at < ?`, c)
	if err != nil {
		return 0, fmt.Errorf("reap sessions: %w", err)
	}
	n1, _ := res1.RowsAffected()

	res2, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'ended', ended_at = started_at
		 WHERE status = 'active' AND last_event_at IS NULL AND started_at < ?`, c)
	if err != nil {
		return n1, fmt.Errorf("reap legacy sessions: %w", err)
	}
	n2, _ := res2.RowsAffected()

	return n1 + n2, nil
}

// ReplaceSessionUsage overwrites the token counters and estimated cost.
// Full replace, not increment: transcript reconciliation recomputes the
// cumulative totals each pass, so re-parsing is idempotent. The model
// is only set if not already known (first writer wins).
func (s *Store) ReplaceSessionUsage(ctx context.Context, sessionID string, input, output, cacheRead, cacheWrite int64, cost float64, modelName string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET
		     input_tokens = ?, output_tokens = ?,
		     cache_read_tokens = ?, cache_write_tokens = ?,
		     estimated_cost = ?,
		     model = COALESCE(model, ?)
		 WHERE session_id = ?`,
		input, output, cacheRead, cacheWrite, cost, nullStr(modelName), sessionID)
	if err != nil {
		return fmt.Errorf("replace session usage: %w", err)
	}
	return nil
}

const sessionColumns = `
	s.id, s.session_id, s.project_id, s.status, s.model,
	s.started_at, s.ended_at, s.last_event_at,
	s.input_tokens, s.output_tokens, s.cache_read_tokens, s.cache_write_tokens,
	s.estimated_cost,
	p.name AS project_name,
	(SELECT COUNT(*) FROM tool_calls tc WHERE tc.session_id = s.session_id) AS tool_call_count,
	CASE WHEN s.ended_at IS NOT NULL
	     THEN ROUND((julianday(s.ended_at) - julianday(s.started_at)) * 86400, 1)
	     ELSE NULL END AS duration_seconds`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (model.Session, error) {
	var (
		sess        model.Session
		projectID   sql.NullInt64
		modelName   sql.NullString
		started     string
		ended       sql.NullString
		lastEvent   sql.NullString
		projectName sql.NullString
		duration    sql.NullFloat64
	)
	err := r.Scan(
		&sess.ID, &sess.SessionID, &projectID, &sess.Status, &modelName,
		&started, &ended, &lastEvent,
		&sess.InputTokens, &sess.OutputTokens, &sess.CacheReadTokens, &sess.CacheWriteTokens,
		&sess.EstimatedCost,
		&projectName, &sess.ToolCallCount, &duration,
	)
	if err != nil {
		return sess, err
	}

	if projectID.Valid {
		sess.ProjectID = &projectID.Int64
	}
	sess.Model = modelName.String
	sess.StartedAt, _ = parseTime(started)
	sess.EndedAt = nullTime(ended)
	sess.LastEventAt = nullTime(lastEvent)
	sess.ProjectName = projectName.String
	if duration.Valid {
		sess.DurationSeconds = &duration.Float64
	}
	return sess, nil
}

// GetSession returns a single session by token, or sql.ErrNoRows.
func (s *Store) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions s
		 LEFT JOIN projects p ON s.project_id = p.id
		 WHERE s.session_id = ?`, sessionID)
	return scanSession(row)
}

// ListSessionsOptions filters a session listing.
type ListSessionsOptions struct {
	Status    string
	ProjectID *int64
	Search    string
	Page      int
	PageSize  int
}

// ListSessions returns sessions newest first, with optional filters and
// pagination.
func (s *Store) ListSessions(ctx context.Context, opts ListSessionsOptions) (model.SessionPage, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 50
	}
	if opts.PageSize > 200 {
		opts.PageSize = 200
	}

	var (
		conds []string
		args  []any
	)
	if opts.Status != "" {
		conds = append(conds, "s.status = ?")
		args = append(args, opts.Status)
	}
	if opts.ProjectID != nil {
		conds = append(conds, "s.project_id = ?")
		args = append(args, *opts.ProjectID)
	}
	if opts.Search != "" {
		conds = append(conds, "(s.session_id LIKE ? OR p.name LIKE ?)")
		like := "%" + opts.Search + "%"
		args = append(args, like, like)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	page := model.SessionPage{Page: opts.Page, PageSize: opts.PageSize, Items: []model.Session{}}

	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM sessions s
		 LEFT JOIN projects p ON s.project_id = p.id %s`, where),
		args...).Scan(&page.Total)
	if err != nil {
		return page, fmt.Errorf("count sessions: %w", err)
	}

	offset := (opts.Page - 1) * opts.PageSize
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s
		 FROM sessions s
		 LEFT JOIN projects p ON s.project_id = p.id
		 %s
		 ORDER BY s.started_at DESC, s.id DESC
		 LIMIT ? OFFSET ?`, sessionColumns, where),
		append(args, opts.PageSize, offset)...)
	if err != nil {
		return page, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, sess)
	}
	return page, rows.Err()
}

// RecentSessions returns the n most recently started sessions.
func (s *Store) RecentSessions(ctx context.Context, n int) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions s
		 LEFT JOIN projects p ON s.project_id = p.id
		 ORDER BY s.started_at DESC, s.id DESC
		 LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	sessions := []model.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
