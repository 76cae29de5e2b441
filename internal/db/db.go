package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/resonate.db.
// The baseDir parameter allows tests to use t.TempDir().
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	mediaDir := filepath.Join(baseDir, "media")
	if err := os.MkdirAll(mediaDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	dbPath := filepath.Join(baseDir, "resonate.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0o600)

	return db, nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS posts (
		  id            TEXT PRIMARY KEY,
		  source_url    TEXT NOT NULL,
		  author_handle TEXT,
		  author_name   TEXT,
		  body          TEXT,
		  urls_json     TEXT,
		  media_json    TEXT,
		  context_json  TEXT,
		  mode          TEXT NOT NULL DEFAULT 'short',
		  processed     INTEGER NOT NULL DEFAULT 0,
		  fetched_json  TEXT,
		  created_at    INTEGER NOT NULL,
		  updated_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_posts_processed
		ON posts(processed, created_at DESC);

		CREATE TABLE IF NOT EXISTS evaluations (
		  id                  TEXT PRIMARY KEY,
		  post_id             TEXT NOT NULL REFERENCES posts(id),
		  quality_score       REAL NOT NULL,
		  intention           TEXT NOT NULL,
		  quadrant            TEXT NOT NULL,
		  resonance_potential REAL NOT NULL,
		  reasoning           TEXT,
		  raw_json            TEXT,
		  created_at          INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_evaluations_post
		ON evaluations(post_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS drafts (
		  id         TEXT PRIMARY KEY,
		  post_id    TEXT NOT NULL REFERENCES posts(id),
		  text       TEXT NOT NULL,
		  tone       TEXT,
		  mode       TEXT NOT NULL,
		  status     TEXT NOT NULL DEFAULT 'pending',
		  created_at INTEGER NOT NULL,
		  updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_drafts_post
		ON drafts(post_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_drafts_status
		ON drafts(status, created_at DESC);

		CREATE TABLE IF NOT EXISTS prompt_templates (
		  name       TEXT PRIMARY KEY,
		  body       TEXT NOT NULL,
		  updated_at INTEGER NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
