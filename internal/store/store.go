// Package store keeps the delivery and media upload journal in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/masganem/PuffleBot/internal/domain"
)

const (
	defaultListLimit = 20
	busyTimeoutMs    = 5000
)

// SQLiteJournal implements domain.Journal.
type SQLiteJournal struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.Journal = (*SQLiteJournal)(nil)

// Open opens (creating if needed) the journal database at dbPath and
// migrates it to the current schema.
func Open(dbPath string, logger *slog.Logger) (*SQLiteJournal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteJournal{db: db, logger: logger}, nil
}

// dsn builds a modernc.org/sqlite connection string. Other processes
// (deliveries, doctor) read the same file while the gateway writes.
func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(" + strconv.Itoa(busyTimeoutMs) + ")&_pragma=journal_mode(WAL)"
}

func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteJournal) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordDelivery inserts one dispatch outcome.
func (s *SQLiteJournal) RecordDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, recipient_id, text_length, media_source, media_id, event_id, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RecipientID, rec.TextLength, rec.MediaSource, rec.MediaID, rec.EventID, rec.Status, rec.Error, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert delivery %s: %w", rec.ID, err)
	}
	return nil
}

// RecordUpload upserts the current state of an upload.
func (s *SQLiteJournal) RecordUpload(ctx context.Context, rec domain.UploadRecord) error {
	now := time.Now()
	if rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (id, source, media_id, mime_type, total_bytes, segments, state, error, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			media_id = excluded.media_id,
			segments = excluded.segments,
			state = excluded.state,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Source, rec.MediaID, rec.MIMEType, rec.TotalBytes, rec.Segments, rec.State, rec.Error,
		rec.StartedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert upload %s: %w", rec.ID, err)
	}
	return nil
}

// ListDeliveries returns the most recent deliveries, newest first.
func (s *SQLiteJournal) ListDeliveries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipient_id, text_length, media_source, media_id, event_id, status, error, created_at
		 FROM deliveries ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DeliveryRecord
	for rows.Next() {
		var d domain.DeliveryRecord
		if err := rows.Scan(&d.ID, &d.RecipientID, &d.TextLength, &d.MediaSource, &d.MediaID, &d.EventID,
			&d.Status, &d.Error, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetUpload returns the upload with id, or nil when unknown.
func (s *SQLiteJournal) GetUpload(ctx context.Context, id string) (*domain.UploadRecord, error) {
	rows, err := s.db.QueryContext(ctx, uploadSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	uploads, err := scanUploads(rows)
	if err != nil || len(uploads) == 0 {
		return nil, err
	}
	return &uploads[0], nil
}

// ListAbandonedUploads returns aborted uploads that had already been given a
// remote media id, newest first. These are the uploads left dangling on the
// remote side.
func (s *SQLiteJournal) ListAbandonedUploads(ctx context.Context, limit int) ([]domain.UploadRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		uploadSelect+` WHERE state = ? AND media_id != '' ORDER BY updated_at DESC LIMIT ?`,
		domain.UploadAborted, limit)
	if err != nil {
		return nil, err
	}
	return scanUploads(rows)
}

// CountDeliveries returns delivery totals by status.
func (s *SQLiteJournal) CountDeliveries(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM deliveries GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

const uploadSelect = `SELECT id, source, media_id, mime_type, total_bytes, segments, state, error, started_at, updated_at FROM uploads`

func scanUploads(rows *sql.Rows) ([]domain.UploadRecord, error) {
	defer rows.Close()
	var out []domain.UploadRecord
	for rows.Next() {
		var u domain.UploadRecord
		if err := rows.Scan(&u.ID, &u.Source, &u.MediaID, &u.MIMEType, &u.TotalBytes, &u.Segments,
			&u.State, &u.Error, &u.StartedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
