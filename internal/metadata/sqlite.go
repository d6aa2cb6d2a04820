package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// timeFormat is the ISO 8601 format used for timestamps in SQLite.
const timeFormat = "2006-01-02T15:04:05.000Z"

// SQLiteStore implements RecordStore on a local SQLite database, suitable for
// the single-process deployments filedepot targets.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given DSN and applies
// the schema. Safe to call on every startup.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite database: %w", err)
	}
	return s, nil
}

// initDB applies PRAGMAs and creates tables. Idempotent via IF NOT EXISTS.
func (s *SQLiteStore) initDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS uploads (
			id           TEXT PRIMARY KEY,
			filename     TEXT NOT NULL,
			key          TEXT NOT NULL,
			url          TEXT NOT NULL,
			size         INTEGER NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
			module       TEXT NOT NULL DEFAULT 'common',
			deleted      INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_uploads_created ON uploads(created_at);
		CREATE INDEX IF NOT EXISTS idx_uploads_module ON uploads(module);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Insert stores a new upload record, generating an ID if unset.
func (s *SQLiteStore) Insert(ctx context.Context, rec *UploadRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (id, filename, key, url, size, content_type, module, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Filename, rec.Key, rec.URL, rec.Size, rec.ContentType, rec.Module,
		rec.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting upload record: %w", err)
	}
	return nil
}

// Get returns the record with the given ID, or nil if absent or soft-deleted.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*UploadRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, key, url, size, content_type, module, created_at
		 FROM uploads WHERE id = ? AND deleted = 0`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying upload record: %w", err)
	}
	return rec, nil
}

// List returns upload records newest first, skipping soft-deleted rows.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*UploadRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, key, url, size, content_type, module, created_at
		 FROM uploads WHERE deleted = 0
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing upload records: %w", err)
	}
	defer rows.Close()

	var recs []*UploadRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning upload record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating upload records: %w", err)
	}
	return recs, nil
}

// SoftDelete marks a record as deleted. The object data itself is untouched;
// keys are never reused, so the stored bytes stay addressable.
func (s *SQLiteStore) SoftDelete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE uploads SET deleted = 1 WHERE id = ? AND deleted = 0`, id)
	if err != nil {
		return false, fmt.Errorf("soft-deleting upload record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking soft-delete result: %w", err)
	}
	return n > 0, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*UploadRecord, error) {
	var rec UploadRecord
	var createdAt string
	if err := sc.Scan(&rec.ID, &rec.Filename, &rec.Key, &rec.URL, &rec.Size,
		&rec.ContentType, &rec.Module, &createdAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	rec.CreatedAt = t
	return &rec, nil
}

var _ RecordStore = (*SQLiteStore)(nil)
