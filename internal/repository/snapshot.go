package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Ericks2008/cocapi20250719/internal/domain"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// SnapshotRepository owns all persisted snapshots. Rows whose payload is not
// valid JSON are skipped on read with a warning; they are never surfaced to
// callers.
type SnapshotRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSnapshotRepository(sqlDB *sql.DB, logger zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// Append inserts a new snapshot row, never touching existing history.
func (r *SnapshotRepository) Append(ctx context.Context, kind domain.Kind, key, subKey string, payload []byte, at time.Time) error {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate nanoid: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, kind, entity_key, sub_key, payload, captured_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(kind), key, subKey, payload, at)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot %s/%s: %w", kind, key, err)
	}
	return nil
}

// Replace keeps at most one row per (kind, key, subKey), mirroring the
// INSERT OR REPLACE semantics of keys designed as singletons.
func (r *SnapshotRepository) Replace(ctx context.Context, kind domain.Kind, key, subKey string, payload []byte, at time.Time) error {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate nanoid: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE kind = ? AND entity_key = ? AND sub_key = ?`,
		string(kind), key, subKey); err != nil {
		return fmt.Errorf("failed to delete snapshot %s/%s/%s: %w", kind, key, subKey, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, kind, entity_key, sub_key, payload, captured_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(kind), key, subKey, payload, at); err != nil {
		return fmt.Errorf("failed to insert snapshot %s/%s/%s: %w", kind, key, subKey, err)
	}

	return tx.Commit()
}

// Latest returns the newest valid snapshot for a key across all sub keys,
// or nil when none exists.
func (r *SnapshotRepository) Latest(ctx context.Context, kind domain.Kind, key string) (*domain.Snapshot, error) {
	return r.firstValid(ctx,
		`SELECT id, kind, entity_key, sub_key, payload, captured_at
		 FROM snapshots WHERE kind = ? AND entity_key = ?
		 ORDER BY captured_at DESC`,
		string(kind), key)
}

// LatestForSubKey returns the newest valid snapshot for an exact
// (key, subKey) pair, or nil when none exists.
func (r *SnapshotRepository) LatestForSubKey(ctx context.Context, kind domain.Kind, key, subKey string) (*domain.Snapshot, error) {
	return r.firstValid(ctx,
		`SELECT id, kind, entity_key, sub_key, payload, captured_at
		 FROM snapshots WHERE kind = ? AND entity_key = ? AND sub_key = ?
		 ORDER BY captured_at DESC`,
		string(kind), key, subKey)
}

// LatestSeason returns the snapshot with the highest sub key for a key.
// Season strings (YYYY-MM) order chronologically, so this is the most
// recent CWL season on record.
func (r *SnapshotRepository) LatestSeason(ctx context.Context, kind domain.Kind, key string) (*domain.Snapshot, error) {
	return r.firstValid(ctx,
		`SELECT id, kind, entity_key, sub_key, payload, captured_at
		 FROM snapshots WHERE kind = ? AND entity_key = ?
		 ORDER BY sub_key DESC, captured_at DESC`,
		string(kind), key)
}

func (r *SnapshotRepository) firstValid(ctx context.Context, query string, args ...any) (*domain.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		snap, err := r.scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		if !json.Valid(snap.Payload) {
			r.logger.Warn().
				Str("kind", string(snap.Kind)).
				Str("key", snap.EntityKey).
				Time("captured_at", snap.CapturedAt).
				Msg("skipping snapshot with malformed payload")
			continue
		}
		return snap, nil
	}
	return nil, rows.Err()
}

// History returns up to limit valid snapshots for a key captured at or
// before the given time, newest first.
func (r *SnapshotRepository) History(ctx context.Context, kind domain.Kind, key string, limit int, before time.Time) ([]domain.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, entity_key, sub_key, payload, captured_at
		 FROM snapshots WHERE kind = ? AND entity_key = ? AND captured_at <= ?
		 ORDER BY captured_at DESC LIMIT ?`,
		string(kind), key, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history: %w", err)
	}
	defer rows.Close()

	return r.collectValid(rows)
}

// Recent returns up to limit valid snapshots for a key, newest first.
func (r *SnapshotRepository) Recent(ctx context.Context, kind domain.Kind, key string, limit int) ([]domain.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, entity_key, sub_key, payload, captured_at
		 FROM snapshots WHERE kind = ? AND entity_key = ?
		 ORDER BY captured_at DESC LIMIT ?`,
		string(kind), key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent snapshots: %w", err)
	}
	defer rows.Close()

	return r.collectValid(rows)
}

// LatestByKeys resolves the newest snapshot per key in a single query,
// joining each key against its max captured_at.
func (r *SnapshotRepository) LatestByKeys(ctx context.Context, kind domain.Kind, keys []string) (map[string]domain.Snapshot, error) {
	if len(keys) == 0 {
		return map[string]domain.Snapshot{}, nil
	}

	placeholders := strings.Repeat("?, ", len(keys)-1) + "?"
	query := fmt.Sprintf(
		`SELECT s.id, s.kind, s.entity_key, s.sub_key, s.payload, s.captured_at
		 FROM snapshots s
		 JOIN (
		     SELECT entity_key, MAX(captured_at) AS latest_captured_at
		     FROM snapshots
		     WHERE kind = ? AND entity_key IN (%s)
		     GROUP BY entity_key
		 ) latest ON s.entity_key = latest.entity_key AND s.captured_at = latest.latest_captured_at
		 WHERE s.kind = ?`, placeholders)

	args := make([]any, 0, len(keys)+2)
	args = append(args, string(kind))
	for _, k := range keys {
		args = append(args, k)
	}
	args = append(args, string(kind))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshots by keys: %w", err)
	}
	defer rows.Close()

	result := make(map[string]domain.Snapshot, len(keys))
	for rows.Next() {
		snap, err := r.scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		if !json.Valid(snap.Payload) {
			r.logger.Warn().
				Str("kind", string(snap.Kind)).
				Str("key", snap.EntityKey).
				Msg("skipping snapshot with malformed payload")
			continue
		}
		result[snap.EntityKey] = *snap
	}
	return result, rows.Err()
}

func (r *SnapshotRepository) collectValid(rows *sql.Rows) ([]domain.Snapshot, error) {
	var snapshots []domain.Snapshot
	for rows.Next() {
		snap, err := r.scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		if !json.Valid(snap.Payload) {
			r.logger.Warn().
				Str("kind", string(snap.Kind)).
				Str("key", snap.EntityKey).
				Time("captured_at", snap.CapturedAt).
				Msg("skipping snapshot with malformed payload")
			continue
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, rows.Err()
}

func (r *SnapshotRepository) scanSnapshot(rows *sql.Rows) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	var kind string
	var payload []byte
	if err := rows.Scan(&snap.ID, &kind, &snap.EntityKey, &snap.SubKey, &payload, &snap.CapturedAt); err != nil {
		return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
	}
	snap.Kind = domain.Kind(kind)
	snap.Payload = json.RawMessage(payload)
	return &snap, nil
}
