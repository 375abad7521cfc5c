// Package recordstore provides the durable local database holding queued
// workouts, progress entries, and the read-only exercise catalog. It is the
// only component that writes records; the sync coordinator flips synced flags
// and the UI layer reads for display.
package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fitfriendsclub/khyrie-offline/domain"
	"github.com/fitfriendsclub/khyrie-offline/observability"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
    collection      TEXT    NOT NULL,
    id              INTEGER NOT NULL,
    idempotency_key TEXT    NOT NULL,
    payload         BLOB    NOT NULL,
    created_at      TEXT    NOT NULL,
    synced          INTEGER NOT NULL DEFAULT 0,
    synced_at       TEXT,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_records_unsynced ON records (collection, synced, id);

CREATE TABLE IF NOT EXISTS exercises (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    category   TEXT NOT NULL,
    detail     BLOB,
    updated_at TEXT NOT NULL
);
`

// Option configures optional behaviour for the Store.
type Option func(*Store)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store is the SQLite-backed local record database.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens (creating if needed) the record database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStorageUnavailable, path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", domain.ErrStorageUnavailable, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", domain.ErrStorageUnavailable, err)
	}

	s := &Store{
		db:     db,
		logger: log.New(log.Writer(), "[recordstore] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append persists a new unsynced record transactionally and returns it with
// its assigned id. Ids are monotonic within a collection. A storage failure is
// returned as ErrStorageUnavailable so callers surface it to the user instead
// of silently dropping the save.
func (s *Store) Append(ctx context.Context, collection domain.Collection, payload json.RawMessage) (domain.Record, error) {
	if err := validateCollection(collection); err != nil {
		return domain.Record{}, err
	}

	record := domain.Record{
		IdempotencyKey: uuid.NewString(),
		Payload:        append(json.RawMessage(nil), payload...),
		CreatedAt:      time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: begin append: %v", domain.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) + 1 FROM records WHERE collection = ?`, string(collection))
	if err := row.Scan(&record.ID); err != nil {
		return domain.Record{}, fmt.Errorf("%w: next id: %v", domain.ErrStorageUnavailable, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (collection, id, idempotency_key, payload, created_at, synced) VALUES (?, ?, ?, ?, ?, 0)`,
		string(collection), record.ID, record.IdempotencyKey, []byte(record.Payload), formatTime(record.CreatedAt))
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: insert record: %v", domain.ErrStorageUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Record{}, fmt.Errorf("%w: commit append: %v", domain.ErrStorageUnavailable, err)
	}

	observability.RecordPersisted(record.CreatedAt)
	return record, nil
}

// ListUnsynced returns unsynced records in append order, up to limit
// (limit <= 0 means no bound). Used by the sync coordinator to snapshot a pass.
func (s *Store) ListUnsynced(ctx context.Context, collection domain.Collection, limit int) ([]domain.Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	query := `SELECT id, idempotency_key, payload, created_at, synced, synced_at
        FROM records WHERE collection = ? AND synced = 0 ORDER BY id`
	args := []interface{}{string(collection)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return s.queryRecords(ctx, query, args...)
}

// List returns the most recent records for display, newest first.
func (s *Store) List(ctx context.Context, collection domain.Collection, limit int) ([]domain.Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	query := `SELECT id, idempotency_key, payload, created_at, synced, synced_at
        FROM records WHERE collection = ? ORDER BY id DESC`
	args := []interface{}{string(collection)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return s.queryRecords(ctx, query, args...)
}

// MarkSynced flips a record's synced flag and stamps synced_at. Marking an
// already-synced record is a no-op; an unknown id is ErrRecordNotFound.
func (s *Store) MarkSynced(ctx context.Context, collection domain.Collection, id int64, syncedAt time.Time) error {
	if err := validateCollection(collection); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE records SET synced = 1, synced_at = ? WHERE collection = ? AND id = ? AND synced = 0`,
		formatTime(syncedAt.UTC()), string(collection), id)
	if err != nil {
		return fmt.Errorf("%w: mark synced: %v", domain.ErrStorageUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: mark synced: %v", domain.ErrStorageUnavailable, err)
	}
	if affected > 0 {
		observability.RecordSynced(syncedAt)
		return nil
	}

	// Either already synced (no-op) or missing entirely.
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ? AND id = ?`, string(collection), id)
	var count int
	if err := row.Scan(&count); err != nil {
		return fmt.Errorf("%w: mark synced: %v", domain.ErrStorageUnavailable, err)
	}
	if count == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// ReplaceAll swaps the exercise catalog for the given entries inside one
// transaction (upsert by id, stale rows removed). Only the catalog refresh
// uses it; record collections are never bulk-replaced.
func (s *Store) ReplaceAll(ctx context.Context, entries []domain.ExerciseCatalogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin catalog refresh: %v", domain.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM exercises`); err != nil {
		return fmt.Errorf("%w: clear catalog: %v", domain.ErrStorageUnavailable, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO exercises (id, name, category, detail, updated_at) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET name=excluded.name, category=excluded.category, detail=excluded.detail, updated_at=excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("%w: prepare catalog insert: %v", domain.ErrStorageUnavailable, err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		updatedAt := entry.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, entry.ID, entry.Name, entry.Category, []byte(entry.Detail), formatTime(updatedAt)); err != nil {
			return fmt.Errorf("%w: insert catalog entry %s: %v", domain.ErrStorageUnavailable, entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit catalog refresh: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// ListExercises returns the cached catalog, optionally filtered by category.
func (s *Store) ListExercises(ctx context.Context, category string) ([]domain.ExerciseCatalogEntry, error) {
	query := `SELECT id, name, category, detail, updated_at FROM exercises`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list exercises: %v", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	entries := make([]domain.ExerciseCatalogEntry, 0)
	for rows.Next() {
		var entry domain.ExerciseCatalogEntry
		var detail []byte
		var updatedAt string
		if err := rows.Scan(&entry.ID, &entry.Name, &entry.Category, &detail, &updatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan exercise: %v", domain.ErrStorageUnavailable, err)
		}
		entry.Detail = detail
		entry.UpdatedAt = parseTime(updatedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list exercises: %v", domain.ErrStorageUnavailable, err)
	}
	return entries, nil
}

// Summary aggregates sync-state counts for one collection.
type Summary struct {
	Total            int
	Pending          int
	Synced           int
	OldestPendingAge time.Duration
}

// CollectionSummary reports how much of a collection is still waiting to sync.
func (s *Store) CollectionSummary(ctx context.Context, collection domain.Collection) (Summary, error) {
	if err := validateCollection(collection); err != nil {
		return Summary{}, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(synced), 0), COALESCE(MIN(CASE WHEN synced = 0 THEN created_at END), '')
         FROM records WHERE collection = ?`, string(collection))

	var total, synced int
	var oldestPending string
	if err := row.Scan(&total, &synced, &oldestPending); err != nil {
		return Summary{}, fmt.Errorf("%w: summary: %v", domain.ErrStorageUnavailable, err)
	}

	summary := Summary{
		Total:   total,
		Pending: total - synced,
		Synced:  synced,
	}
	if oldestPending != "" {
		if t := parseTime(oldestPending); !t.IsZero() {
			summary.OldestPendingAge = time.Since(t)
		}
	}
	return summary, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...interface{}) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query records: %v", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	records := make([]domain.Record, 0)
	for rows.Next() {
		var record domain.Record
		var payload []byte
		var createdAt string
		var synced int
		var syncedAt sql.NullString
		if err := rows.Scan(&record.ID, &record.IdempotencyKey, &payload, &createdAt, &synced, &syncedAt); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", domain.ErrStorageUnavailable, err)
		}
		record.Payload = payload
		record.CreatedAt = parseTime(createdAt)
		record.Synced = synced != 0
		if syncedAt.Valid && syncedAt.String != "" {
			t := parseTime(syncedAt.String)
			record.SyncedAt = &t
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query records: %v", domain.ErrStorageUnavailable, err)
	}
	return records, nil
}

func validateCollection(collection domain.Collection) error {
	for _, known := range domain.Collections() {
		if collection == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrUnknownCollection, collection)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
