package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var sqliteSchema string

// SQLiteStoreConfig configures the SQLite-backed store.
type SQLiteStoreConfig struct {
	DSN string
	// WAL enables write-ahead logging. Leave it off for in-memory DSNs.
	WAL bool
}

// SQLiteStore persists JSON-encoded snapshots in SQLite.
type SQLiteStore[T any] struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the snapshot table at cfg.DSN.
func NewSQLiteStore[T any](cfg SQLiteStoreConfig) (*SQLiteStore[T], error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("state: sqlite store dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("state: sqlite store open: %w", err)
	}

	if cfg.WAL {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("state: sqlite store set WAL mode: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: sqlite store create schema: %w", err)
	}

	return &SQLiteStore[T]{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteStore[T]) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load implements Store.
func (s *SQLiteStore[T]) Load(ctx context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, Meta{}, false, err
	}
	if s == nil || s.db == nil {
		return zero, Meta{}, false, errors.New("state: sqlite store is nil")
	}
	key, err := ref.Identifier()
	if err != nil {
		return zero, Meta{}, false, err
	}

	row := s.db.QueryRowContext(ctx, `
SELECT domain, kind, ref_id, payload, snapshot_id, etag, extra, updated_at
FROM snapshots
WHERE key = ?`, key)

	record, err := scanRecord[T](row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, Meta{}, false, nil
		}
		return zero, Meta{}, false, fmt.Errorf("state: sqlite load %q: %w", key, err)
	}
	return record.Snapshot, record.Meta, true, nil
}

// Save implements Store. It upserts the snapshot and bumps the ETag.
func (s *SQLiteStore[T]) Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}
	if s == nil || s.db == nil {
		return Meta{}, errors.New("state: sqlite store is nil")
	}
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return Meta{}, fmt.Errorf("state: sqlite encode snapshot: %w", err)
	}
	extra := ""
	if len(meta.Extra) > 0 {
		raw, err := json.Marshal(meta.Extra)
		if err != nil {
			return Meta{}, fmt.Errorf("state: sqlite encode extra: %w", err)
		}
		extra = string(raw)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Meta{}, fmt.Errorf("state: sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous string
	err = tx.QueryRowContext(ctx, `SELECT etag FROM snapshots WHERE key = ?`, key).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Meta{}, fmt.Errorf("state: sqlite read etag: %w", err)
	}

	saved := cloneMeta(meta)
	saved.ETag = nextETag(previous)
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = s.now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO snapshots (key, domain, kind, ref_id, payload, snapshot_id, etag, extra, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	payload = excluded.payload,
	snapshot_id = excluded.snapshot_id,
	etag = excluded.etag,
	extra = excluded.extra,
	updated_at = excluded.updated_at`,
		key, ref.Domain, ref.Kind, ref.ID, payload, saved.SnapshotID, saved.ETag, extra,
		saved.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Meta{}, fmt.Errorf("state: sqlite upsert %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return Meta{}, fmt.Errorf("state: sqlite commit: %w", err)
	}
	return saved, nil
}

// List implements Lister. An empty domain lists every snapshot.
func (s *SQLiteStore[T]) List(ctx context.Context, domain string) ([]Record[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, errors.New("state: sqlite store is nil")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT domain, kind, ref_id, payload, snapshot_id, etag, extra, updated_at
FROM snapshots
WHERE ? = '' OR domain = ?
ORDER BY key ASC`, domain, domain)
	if err != nil {
		return nil, fmt.Errorf("state: sqlite list snapshots: %w", err)
	}
	defer rows.Close()

	var records []Record[T]
	for rows.Next() {
		record, err := scanRecord[T](rows)
		if err != nil {
			return nil, fmt.Errorf("state: sqlite scan snapshot: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("state: sqlite snapshot rows: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord[T any](row rowScanner) (Record[T], error) {
	var (
		record    Record[T]
		payload   []byte
		extra     string
		updatedAt string
	)
	if err := row.Scan(
		&record.Ref.Domain, &record.Ref.Kind, &record.Ref.ID,
		&payload, &record.Meta.SnapshotID, &record.Meta.ETag, &extra, &updatedAt,
	); err != nil {
		return Record[T]{}, err
	}
	if err := json.Unmarshal(payload, &record.Snapshot); err != nil {
		return Record[T]{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if extra != "" {
		if err := json.Unmarshal([]byte(extra), &record.Meta.Extra); err != nil {
			return Record[T]{}, fmt.Errorf("decode extra: %w", err)
		}
	}
	if updatedAt != "" {
		parsed, err := time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return Record[T]{}, fmt.Errorf("decode updated_at: %w", err)
		}
		record.Meta.UpdatedAt = parsed
	}
	return record, nil
}
