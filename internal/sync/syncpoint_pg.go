package sync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSyncPoints persists cursors in the sync_points table, keyed by
// (connector_id, resource_type, scope_key) with the extra map as jsonb.
type PostgresSyncPoints struct {
	db *pgxpool.Pool
}

// NewPostgresSyncPoints creates a SyncPointStore on the given pool.
func NewPostgresSyncPoints(db *pgxpool.Pool) *PostgresSyncPoints {
	return &PostgresSyncPoints{db: db}
}

func (s *PostgresSyncPoints) Read(ctx context.Context, key SyncPointKey) (SyncPoint, bool, error) {
	var (
		sp        SyncPoint
		watermark *time.Time
		extraRaw  []byte
	)
	err := s.db.QueryRow(ctx, `
SELECT pagination_cursor, high_watermark, extra
FROM sync_points
WHERE connector_id=$1 AND resource_type=$2 AND scope_key=$3`,
		key.ConnectorID, key.ResourceType, key.ScopeKey,
	).Scan(&sp.PaginationCursor, &watermark, &extraRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SyncPoint{}, false, nil
		}
		return SyncPoint{}, false, err
	}
	if watermark != nil {
		sp.HighWatermark = *watermark
	}
	if len(extraRaw) > 0 {
		if err := json.Unmarshal(extraRaw, &sp.Extra); err != nil {
			return SyncPoint{}, false, err
		}
	}
	return sp, true, nil
}

// Update merges the patch into the stored row. The merge runs read-modify-
// write inside a transaction; high_watermark never regresses.
func (s *PostgresSyncPoints) Update(ctx context.Context, key SyncPointKey, patch SyncPointPatch) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var (
		sp        SyncPoint
		watermark *time.Time
		extraRaw  []byte
	)
	err = tx.QueryRow(ctx, `
SELECT pagination_cursor, high_watermark, extra
FROM sync_points
WHERE connector_id=$1 AND resource_type=$2 AND scope_key=$3
FOR UPDATE`,
		key.ConnectorID, key.ResourceType, key.ScopeKey,
	).Scan(&sp.PaginationCursor, &watermark, &extraRaw)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if watermark != nil {
		sp.HighWatermark = *watermark
	}
	if len(extraRaw) > 0 {
		if err := json.Unmarshal(extraRaw, &sp.Extra); err != nil {
			return err
		}
	}

	mergePatch(&sp, patch)

	extraOut, err := json.Marshal(sp.Extra)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO sync_points (connector_id, resource_type, scope_key, pagination_cursor, high_watermark, extra, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,now())
ON CONFLICT (connector_id, resource_type, scope_key) DO UPDATE SET
  pagination_cursor = EXCLUDED.pagination_cursor,
  high_watermark = EXCLUDED.high_watermark,
  extra = EXCLUDED.extra,
  updated_at = now()`,
		key.ConnectorID, key.ResourceType, key.ScopeKey,
		sp.PaginationCursor, nullableTime(sp.HighWatermark), extraOut)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

var _ SyncPointStore = (*PostgresSyncPoints)(nil)

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
