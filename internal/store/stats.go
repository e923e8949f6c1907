package store

import (
	"context"
	"fmt"

	"github.com/theirongolddev/aimon/internal/model"
)

// DashboardStats assembles the aggregate dashboard view: headline
// counters plus the per-tool distribution, recent sessions, daily
// series for the last `days` days, and recent failures.
func (s *Store) DashboardStats(ctx context.Context, days int) (model.DashboardStats, error) {
	var stats model.DashboardStats

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(input_tokens), 0),
		        COALESCE(SUM(output_tokens), 0),
		        COALESCE(SUM(estimated_cost), 0)
		 FROM sessions`).Scan(
		&stats.TotalSessions, &stats.ActiveSessions,
		&stats.TotalInputTokens, &stats.TotalOutputTokens, &stats.TotalCost)
	if err != nil {
		return stats, fmt.Errorf("session totals: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tool_calls").Scan(&stats.TotalToolCalls)
	if err != nil {
		return stats, fmt.Errorf("tool call total: %w", err)
	}

	if stats.ToolDistribution, err = s.ToolStats(ctx); err != nil {
		return stats, err
	}
	if stats.RecentSessions, err = s.RecentSessions(ctx, 10); err != nil {
		return stats, err
	}
	if stats.SessionsOverTime, err = s.sessionsOverTime(ctx, days); err != nil {
		return stats, err
	}
	if stats.TokensOverTime, err = s.tokensOverTime(ctx, days); err != nil {
		return stats, err
	}
	if stats.RecentErrors, err = s.RecentErrors(ctx, 10); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Store) sessionsOverTime(ctx context.Context, days int) ([]model.SessionsOverTime, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date(started_at) AS day, COUNT(*)
		 FROM sessions
		 WHERE started_at >= date('now', ?)
		 GROUP BY day ORDER BY day ASC`,
		fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, fmt.Errorf("sessions over time: %w", err)
	}
	defer func() { _ = rows.Close() }()

	series := []model.SessionsOverTime{}
	for rows.Next() {
		var p model.SessionsOverTime
		if err := rows.Scan(&p.Date, &p.Count); err != nil {
			return nil, err
		}
		series = append(series, p)
	}
	return series, rows.Err()
}

func (s *Store) tokensOverTime(ctx context.Context, days int) ([]model.TokensOverTime, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date(started_at) AS day,
		        COALESCE(SUM(input_tokens), 0),
		        COALESCE(SUM(output_tokens), 0)
		 FROM sessions
		 WHERE started_at >= date('now', ?)
		 GROUP BY day ORDER BY day ASC`,
		fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, fmt.Errorf("tokens over time: %w", err)
	}
	defer func() { _ = rows.Close() }()

	series := []model.TokensOverTime{}
	for rows.Next() {
		var p model.TokensOverTime
		if err := rows.Scan(&p.Date, &p.TokensIn, &p.TokensOut); err != nil {
			return nil, err
		}
		series = append(series, p)
	}
	return series, rows.Err()
}
