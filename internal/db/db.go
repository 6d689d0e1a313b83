package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/siakad/templar/internal/config"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// Subdirectories of the base directory.
const (
	ImportsDir = "imports"
	OutputsDir = "outputs"
)

// Init initializes the SQLite database at baseDir/templar.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.templar.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	for _, sub := range []string{ImportsDir, OutputsDir} {
		dir := filepath.Join(baseDir, sub)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
		_ = os.Chmod(dir, 0700)
	}

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "templar.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify WAL mode is active
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS templates (
		  id                TEXT PRIMARY KEY,
		  name_raw          TEXT NOT NULL,
		  name_norm         TEXT NOT NULL,
		  source_kind       TEXT NOT NULL,
		  source            BLOB NOT NULL,
		  raw_text          TEXT NOT NULL,
		  html              TEXT NOT NULL,
		  variables_version INTEGER NOT NULL DEFAULT 0,
		  created_at        INTEGER NOT NULL,
		  updated_at        INTEGER NOT NULL,
		  deleted_at        INTEGER
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_name_norm
		ON templates(name_norm)
		WHERE deleted_at IS NULL;

		CREATE INDEX IF NOT EXISTS idx_templates_updated
		ON templates(updated_at DESC)
		WHERE deleted_at IS NULL;

		CREATE TABLE IF NOT EXISTS template_variables (
		  template_id  TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
		  key          TEXT NOT NULL,
		  id           TEXT NOT NULL,
		  label        TEXT NOT NULL,
		  type         TEXT NOT NULL,
		  text_content TEXT NOT NULL,
		  start_index  INTEGER NOT NULL,
		  end_index    INTEGER NOT NULL,
		  PRIMARY KEY (template_id, key)
		);

		CREATE TABLE IF NOT EXISTS generated_documents (
		  id                TEXT PRIMARY KEY,
		  template_id       TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
		  filename          TEXT NOT NULL,
		  path              TEXT NOT NULL,
		  format            TEXT NOT NULL,
		  bytes             INTEGER NOT NULL,
		  variables_version INTEGER NOT NULL,
		  values_json       TEXT NOT NULL,
		  created_at        INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_generated_template_created
		ON generated_documents(template_id, created_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: full-text index over template names and text.
	// The index keeps its own copy of the text, keyed by template id.
	if version < 2 {
		schema := `
		CREATE VIRTUAL TABLE IF NOT EXISTS templates_fts USING fts5(
		  template_id UNINDEXED,
		  name_raw,
		  raw_text,
		  tokenize = 'unicode61 remove_diacritics 2'
		);

		CREATE TRIGGER IF NOT EXISTS templates_fts_insert AFTER INSERT ON templates BEGIN
		  INSERT INTO templates_fts(template_id, name_raw, raw_text)
		  VALUES (new.id, new.name_raw, new.raw_text);
		END;

		CREATE TRIGGER IF NOT EXISTS templates_fts_update AFTER UPDATE OF name_raw, raw_text ON templates BEGIN
		  UPDATE templates_fts SET name_raw = new.name_raw, raw_text = new.raw_text
		  WHERE template_id = new.id;
		END;

		CREATE TRIGGER IF NOT EXISTS templates_fts_delete AFTER DELETE ON templates BEGIN
		  DELETE FROM templates_fts WHERE template_id = old.id;
		END;

		INSERT INTO templates_fts(template_id, name_raw, raw_text)
		SELECT id, name_raw, raw_text FROM templates
		WHERE id NOT IN (SELECT template_id FROM templates_fts);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 3 { ... }

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
