package store

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// schemaVersion is the version a fully migrated database reports.
const schemaVersion = 2

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations run in order, each exactly once, tracked in schema_version.
var migrations = []migration{
	{
		Version:     1,
		Description: "deliveries and uploads",
		SQL: `
		CREATE TABLE IF NOT EXISTS deliveries (
			id           TEXT PRIMARY KEY,
			recipient_id TEXT NOT NULL,
			text_length  INTEGER DEFAULT 0,
			media_source TEXT DEFAULT '',
			media_id     TEXT DEFAULT '',
			status       TEXT NOT NULL,
			error        TEXT DEFAULT '',
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_deliveries_time ON deliveries(created_at);

		CREATE TABLE IF NOT EXISTS uploads (
			id          TEXT PRIMARY KEY,
			source      TEXT NOT NULL,
			media_id    TEXT DEFAULT '',
			mime_type   TEXT DEFAULT '',
			total_bytes INTEGER DEFAULT 0,
			segments    INTEGER DEFAULT 0,
			state       TEXT NOT NULL,
			error       TEXT DEFAULT '',
			started_at  DATETIME,
			updated_at  DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_uploads_state ON uploads(state, updated_at);
		`,
	},
	{
		Version:     2,
		Description: "delivery event ids",
		SQL: `
		ALTER TABLE deliveries ADD COLUMN event_id TEXT DEFAULT '';
		CREATE INDEX IF NOT EXISTS idx_deliveries_recipient ON deliveries(recipient_id, created_at);
		`,
	},
}

// RunMigrations applies pending migrations inside one transaction each.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying migration", "version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_version (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

// GetSchemaVersion returns the highest applied migration, 0 for a new database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return v, nil
}
