package store

import (
	"database/sql"
	"fmt"
)

// CurrentVersion is the current schema version.
const CurrentVersion = 3

// migration is one ordered schema step. Each step is idempotent: it
// checks current schema state instead of relying on a failed statement
// as the "already applied" signal.
type migration struct {
	version int
	apply   func(tx *sql.Tx) error
}

var migrations = []migration{
	{version: 2, apply: migrateAddLastEventAt},
	{version: 3, apply: migrateAddTaskToolCallID},
}

const baseSchema = `
CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    path TEXT NOT NULL UNIQUE,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL UNIQUE,
    project_id INTEGER REFERENCES projects(id),
    status TEXT NOT NULL DEFAULT 'active',
    model TEXT,
    started_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
    ended_at TEXT,
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    cache_read_tokens INTEGER NOT NULL DEFAULT 0,
    cache_write_tokens INTEGER NOT NULL DEFAULT 0,
    estimated_cost REAL NOT NULL DEFAULT 0.0
);

CREATE TABLE IF NOT EXISTS tool_calls (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    tool_name TEXT NOT NULL,
    tool_input TEXT,
    tool_response TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    error TEXT,
    started_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
    ended_at TEXT,
    duration_ms INTEGER
);

CREATE TABLE IF NOT EXISTS agents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    agent_name TEXT,
    agent_type TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    started_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
    ended_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_project_id ON sessions(project_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_tool_calls_session_id ON tool_calls(session_id);
CREATE INDEX IF NOT EXISTS idx_tool_calls_match ON tool_calls(session_id, tool_name, status);
CREATE INDEX IF NOT EXISTS idx_agents_session_id ON agents(session_id);
CREATE INDEX IF NOT EXISTS idx_agents_match ON agents(session_id, agent_name, status);
`

// Migrate brings the database to the current schema version. A fresh
// database gets the base schema at version 1 and then every migration
// in order; an existing database gets only the steps past its recorded
// version.
func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	version, err := schemaVersion(tx)
	if err != nil {
		return err
	}

	if version == 0 {
		if _, err := tx.Exec(baseSchema); err != nil {
			return fmt.Errorf("create base schema: %w", err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		version = 1
	}

	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		if err := m.apply(tx); err != nil {
			return fmt.Errorf("migration to v%d: %w", m.version, err)
		}
		version = m.version
	}

	if _, err := tx.Exec("UPDATE schema_version SET version = ?", version); err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}

	return tx.Commit()
}

func schemaVersion(tx *sql.Tx) (int, error) {
	var version int
	err := tx.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

// hasColumn checks table schema state via PRAGMA table_info.
func hasColumn(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// v2: track per-session last activity for the stale-session reaper.
func migrateAddLastEventAt(tx *sql.Tx) error {
	ok, err := hasColumn(tx, "sessions", "last_event_at")
	if err != nil {
		return err
	}
	if !ok {
		if _, err := tx.Exec("ALTER TABLE sessions ADD COLUMN last_event_at TEXT"); err != nil {
			return fmt.Errorf("add last_event_at: %w", err)
		}
	}
	_, err = tx.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_last_event_at ON sessions(last_event_at)")
	return err
}

// v3: back-reference from an agent to the Task tool call that spawned it.
func migrateAddTaskToolCallID(tx *sql.Tx) error {
	ok, err := hasColumn(tx, "agents", "task_tool_call_id")
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	_, err = tx.Exec("ALTER TABLE agents ADD COLUMN task_tool_call_id INTEGER REFERENCES tool_calls(id)")
	return err
}
