package store

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
)

// Migration is one versioned schema step. Pending steps apply in Version
// order, each inside its own transaction.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus is what `fileshare migrate --plan` prints.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo names one pending step.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// migrations holds every schema step for the files/blobs registry.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: blobs and files tables",
		SQL: `
CREATE TABLE IF NOT EXISTS blobs (
  id TEXT PRIMARY KEY,
  digest TEXT NOT NULL,
  size_bytes INTEGER NOT NULL,
  storage_backend TEXT NOT NULL,
  blob_key TEXT NOT NULL,
  created_at TEXT NOT NULL,
  UNIQUE(storage_backend, blob_key)
);

CREATE TABLE IF NOT EXISTS files (
  public_name TEXT PRIMARY KEY,
  original_name TEXT NOT NULL,
  content_type TEXT NOT NULL,
  size_bytes INTEGER NOT NULL,
  blob_id TEXT NOT NULL,
  created_at TEXT NOT NULL,
  FOREIGN KEY (blob_id) REFERENCES blobs(id)
);

CREATE INDEX IF NOT EXISTS idx_files_blob_id ON files(blob_id);
CREATE INDEX IF NOT EXISTS idx_files_original_name ON files(original_name);
`,
	},
	{
		Version:     2,
		Description: "list query indexes",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_files_created_at ON files(created_at, public_name);
CREATE INDEX IF NOT EXISTS idx_files_content_type ON files(content_type, created_at);
CREATE INDEX IF NOT EXISTS idx_blobs_created_at ON blobs(created_at);
`,
	},
}

const (
	schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`
	recordMigrationSQL = "INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))"
)

// currentVersion returns the highest applied version, 0 on a fresh database.
func currentVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func orderedMigrations() []Migration {
	ordered := slices.Clone(migrations)
	slices.SortFunc(ordered, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return ordered
}

// runMigrations brings db up to the newest schema. Safe to call on every open.
func runMigrations(db *sql.DB) error {
	ctx := context.Background()
	status, err := planMigrations(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range orderedMigrations() {
		if m.Version <= status.CurrentVersion {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err = tx.ExecContext(ctx, recordMigrationSQL, m.Version); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}

func planMigrations(ctx context.Context, db *sql.DB) (*MigrationStatus, error) {
	if _, err := db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	current, err := currentVersion(db)
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}

	status := &MigrationStatus{CurrentVersion: current, Pending: []MigrationInfo{}}
	for _, m := range orderedMigrations() {
		status.AvailableVersion = max(status.AvailableVersion, m.Version)
		if m.Version > current {
			status.Pending = append(status.Pending, MigrationInfo{Version: m.Version, Description: m.Description})
		}
	}
	return status, nil
}

// MigrationPlan reports the schema version and pending steps without applying them.
func MigrationPlan(db *sql.DB) (*MigrationStatus, error) {
	return planMigrations(context.Background(), db)
}
