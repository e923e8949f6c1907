package store

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/theirongolddev/aimon/internal/model"
)

// GetOrCreateProject resolves a working directory to its project row,
// creating the project on first sight. The display name is the last
// path segment.
func (s *Store) GetOrCreateProject(ctx context.Context, path string, now time.Time) (model.Project, error) {
	p := model.Project{Path: path}

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name FROM projects WHERE path = ?", path).Scan(&p.ID, &p.Name)
	if err == nil {
		return p, nil
	}

	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = path
	}

	// Concurrent first-sight inserts race; ON CONFLICT DO NOTHING plus
	// the re-select makes both writers converge on the same row.
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, path, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO NOTHING`,
		name, path, formatTime(now),
	); err != nil {
		return p, fmt.Errorf("insert project: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT id, name FROM projects WHERE path = ?", path).Scan(&p.ID, &p.Name); err != nil {
		return p, fmt.Errorf("select project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects with their session counts, ordered
// by name.
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.path, p.created_at,
		        (SELECT COUNT(*) FROM sessions s WHERE s.project_id = p.id) AS session_count
		 FROM projects p
		 ORDER BY p.name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var projects []model.Project
	for rows.Next() {
		var (
			p       model.Project
			created string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &created, &p.SessionCount); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = parseTime(created)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
