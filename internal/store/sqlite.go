// Package store provides SQLite-based persistence for the orchestration kernel.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sony/gobreaker"
	_ "modernc.org/sqlite"
)

// DB wraps the SQL database connection with a circuit breaker guarding
// against a wedged SQLite file (lock contention, disk-full, corruption).
type DB struct {
	*sql.DB
	path string
	cb   *gobreaker.CircuitBreaker
}

// Open opens or creates a SQLite database at the given path and runs
// migrations to bring it up to the current schema version.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	cbSettings := gobreaker.Settings{
		Name:        "sqlite",
		MaxRequests: 1,
		Timeout:     circuitOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	d := &DB{DB: sqlDB, path: dbPath, cb: gobreaker.NewCircuitBreaker(cbSettings)}

	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

// migrate applies pending schema migrations, tracked by version in
// schema_migrations, in order.
func (d *DB) migrate() error {
	_, err := d.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var version int
	row := d.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&version); err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration1},
		{2, migration2},
		{3, migration3},
		{4, migration4},
		{5, migration5},
		{6, migration6},
		{7, migration7},
		{8, migration8},
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}

		if _, err := d.Exec(m.sql); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}

		if _, err := d.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
	}

	return nil
}

// Migration 1: Projects and the board (stages, items)
const migration1 = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stages (
    project_id TEXT NOT NULL,
    name TEXT NOT NULL,
    ord INTEGER NOT NULL,
    wip_limit INTEGER,
    PRIMARY KEY (project_id, name),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    item_type TEXT NOT NULL DEFAULT 'task',
    stage TEXT NOT NULL,
    priority TEXT NOT NULL DEFAULT 'medium',
    assigned_agent TEXT,
    rejection_count INTEGER DEFAULT 0,
    output_test TEXT,
    output_impl TEXT,
    output_types TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    archived_at DATETIME,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_items_project ON items(project_id);
CREATE INDEX IF NOT EXISTS idx_items_stage ON items(project_id, stage);

CREATE TABLE IF NOT EXISTS item_dependencies (
    item_id TEXT NOT NULL,
    depends_on_id TEXT NOT NULL,
    PRIMARY KEY (item_id, depends_on_id),
    FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE,
    FOREIGN KEY (depends_on_id) REFERENCES items(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_item_deps_item ON item_dependencies(item_id);
`

// Migration 2: Item history (stage transitions)
const migration2 = `
CREATE TABLE IF NOT EXISTS item_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id TEXT NOT NULL,
    from_stage TEXT,
    to_stage TEXT NOT NULL,
    changed_by TEXT,
    note TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_item_history_item ON item_history(item_id);
`

// Migration 3: Agent claims (exclusive agent<->item custody)
const migration3 = `
CREATE TABLE IF NOT EXISTS agent_claims (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    item_id TEXT NOT NULL,
    agent_id TEXT NOT NULL,
    claimed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    released_at DATETIME,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
    FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
);

-- An item may have at most one active (released_at IS NULL) claim, and an
-- agent may hold at most one active claim per project.
CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_item_active
    ON agent_claims(item_id) WHERE released_at IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_agent_active
    ON agent_claims(project_id, agent_id) WHERE released_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_claims_project ON agent_claims(project_id);
`

// Migration 4: Missions and their item links
const migration4 = `
CREATE TABLE IF NOT EXISTS missions (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    title TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'initializing',
    force_archived INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    archived_at DATETIME,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_missions_project ON missions(project_id);
CREATE INDEX IF NOT EXISTS idx_missions_state ON missions(project_id, state);

CREATE TABLE IF NOT EXISTS mission_items (
    mission_id TEXT NOT NULL,
    item_id TEXT NOT NULL,
    linked_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (mission_id, item_id),
    FOREIGN KEY (mission_id) REFERENCES missions(id) ON DELETE CASCADE,
    FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_mission_items_item ON mission_items(item_id);
`

// Migration 5: Work log (per-item agent narration)
const migration5 = `
CREATE TABLE IF NOT EXISTS work_log_entries (
    id TEXT PRIMARY KEY,
    item_id TEXT NOT NULL,
    agent_id TEXT NOT NULL,
    action TEXT NOT NULL DEFAULT 'note',
    body TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_worklog_item ON work_log_entries(item_id, created_at);
`

// Migration 6: Activity log (project-scoped, append-only)
const migration6 = `
CREATE TABLE IF NOT EXISTS activity_log_entries (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    mission_id TEXT,
    actor TEXT NOT NULL,
    kind TEXT NOT NULL,
    body TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_activity_project ON activity_log_entries(project_id, created_at);
CREATE INDEX IF NOT EXISTS idx_activity_mission ON activity_log_entries(mission_id);
`

// Migration 7: Hook events (ingested agent lifecycle telemetry)
const migration7 = `
CREATE TABLE IF NOT EXISTS hook_events (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    correlation_id TEXT,
    event_type TEXT NOT NULL,
    agent TEXT NOT NULL,
    tool TEXT,
    status TEXT,
    summary TEXT,
    mission_id TEXT,
    occurred_at DATETIME NOT NULL,
    received_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_hook_events_dedup
    ON hook_events(project_id, correlation_id, event_type) WHERE correlation_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_hook_events_project ON hook_events(project_id, occurred_at);
`

// Migration 8: mission PRD path, check results, and completion-panel
// substates (final review, post-checks, documentation), populated verbatim
// by the mission lifecycle and completion flow.
const migration8 = `
ALTER TABLE missions ADD COLUMN prd_path TEXT;
ALTER TABLE missions ADD COLUMN precheck_results TEXT;
ALTER TABLE missions ADD COLUMN postcheck_results TEXT;
ALTER TABLE missions ADD COLUMN final_review TEXT;
ALTER TABLE missions ADD COLUMN post_checks TEXT;
ALTER TABLE missions ADD COLUMN documentation TEXT;
`

// Close closes the database connection.
func (d *DB) Close() error {
	return d.DB.Close()
}
