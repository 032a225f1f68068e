package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 2

// initializeSchemaWithMigrations ensures the database schema is at the
// current version. Fresh databases get the full current schema; older ones
// are migrated forward one version at a time.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion == 0 {
		return createSchema(db)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}
	if currentVersion > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, CurrentSchemaVersion)
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}

		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

func runMigration(db *sql.DB, version int) error {
	switch version {
	case 2:
		return migrateToVersion2(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion2 adds checkpoints and the audit trail.
func migrateToVersion2(db *sql.DB) error {
	migrations := []string{
		checkpointsTable,
		auditEventsTable,
		"CREATE INDEX IF NOT EXISTS idx_checkpoints_job ON checkpoints(job_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_audit_events_job ON audit_events(job_id)",
		"CREATE INDEX IF NOT EXISTS idx_audit_events_item ON audit_events(item_id)",
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}

	return nil
}

const checkpointsTable = `CREATE TABLE IF NOT EXISTS checkpoints (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL REFERENCES jobs(id),
	label TEXT NOT NULL,
	state TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	created_at TEXT NOT NULL
)`

const auditEventsTable = `CREATE TABLE IF NOT EXISTS audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT,
	item_id TEXT,
	event_type TEXT NOT NULL,
	detail TEXT,
	created_at TEXT NOT NULL
)`

// createSchema creates all required tables and indices at the current
// version. Timestamps are RFC3339Nano UTC text throughout.
func createSchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	tables := []string{
		// Schema version tracking
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Extraction jobs: one row per processing run
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			source_label TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','paused','completed','failed')),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			metadata TEXT
		)`,

		// Review queue items. Rows are never deleted; corrections create new
		// versions linked through supersedes.
		`CREATE TABLE IF NOT EXISTS review_items (
			item_id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL REFERENCES jobs(id),
			source_label TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('pending','approved','rejected','needs_clarification')),
			confidence REAL,
			confidence_source TEXT CHECK (confidence_source IN ('model','cache','human')),
			resolved_payload TEXT,
			feedback TEXT,
			supersedes TEXT REFERENCES review_items(item_id),
			created_at TEXT NOT NULL,
			resolved_at TEXT
		)`,

		// Clarification requests raised for low-confidence items
		`CREATE TABLE IF NOT EXISTS clarifications (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL REFERENCES review_items(item_id),
			job_id TEXT NOT NULL REFERENCES jobs(id),
			question TEXT NOT NULL,
			context TEXT,
			answer TEXT,
			created_at TEXT NOT NULL,
			answered_at TEXT
		)`,

		// Learned resolutions keyed by normalized payload signature
		`CREATE TABLE IF NOT EXISTS mapping_cache (
			signature TEXT PRIMARY KEY,
			resolution TEXT NOT NULL,
			source TEXT NOT NULL CHECK (source IN ('human','auto')),
			hit_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		// Per-job conversation history; compaction flips compacted, never deletes
		`CREATE TABLE IF NOT EXISTS history_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL REFERENCES jobs(id),
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			token_estimate INTEGER NOT NULL,
			compacted INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,

		checkpointsTable,
		auditEventsTable,
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_review_items_job ON review_items(job_id)",
		"CREATE INDEX IF NOT EXISTS idx_review_items_status ON review_items(status)",
		"CREATE INDEX IF NOT EXISTS idx_review_items_job_status ON review_items(job_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_review_items_created ON review_items(created_at)",
		"CREATE INDEX IF NOT EXISTS idx_clarifications_item ON clarifications(item_id)",
		"CREATE INDEX IF NOT EXISTS idx_clarifications_job ON clarifications(job_id)",
		"CREATE INDEX IF NOT EXISTS idx_history_job ON history_entries(job_id)",
		"CREATE INDEX IF NOT EXISTS idx_history_job_compacted ON history_entries(job_id, compacted)",
		"CREATE INDEX IF NOT EXISTS idx_checkpoints_job ON checkpoints(job_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_audit_events_job ON audit_events(job_id)",
		"CREATE INDEX IF NOT EXISTS idx_audit_events_item ON audit_events(item_id)",
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, ddl := range indices {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := setSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return nil
}

// setSchemaVersion records the current schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO schema_version (version) VALUES (?)
	`, version)
	if err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil // No version set yet
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}
