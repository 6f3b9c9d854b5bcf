package pipeline

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/permitscope/permitscope/internal/db"
)

// Watermarks tracks the last successfully synced cursor per source. A
// watermark only advances after the corresponding batch write has
// committed, preserving at-least-once / no-skip semantics across restarts.
type Watermarks struct {
	pool db.Pool
}

// NewWatermarks creates a watermark store backed by the given pool.
func NewWatermarks(pool db.Pool) *Watermarks {
	return &Watermarks{pool: pool}
}

// Get returns the stored cursor for a source, or nil when the source has
// never completed a sync.
func (w *Watermarks) Get(ctx context.Context, sourceKey string) (*time.Time, error) {
	var cursor *time.Time
	err := w.pool.QueryRow(ctx,
		`SELECT last_cursor FROM permit_data.etl_watermarks WHERE source_key = $1`,
		sourceKey,
	).Scan(&cursor)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "watermark: get %s", sourceKey)
	}
	return cursor, nil
}

// Advance upserts the cursor for a source. GREATEST keeps advancement
// monotonic even if an older batch is replayed.
func (w *Watermarks) Advance(ctx context.Context, sourceKey string, cursor time.Time, rows int64) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO permit_data.etl_watermarks (source_key, last_cursor, records_processed, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (source_key) DO UPDATE SET
		   last_cursor = GREATEST(permit_data.etl_watermarks.last_cursor, EXCLUDED.last_cursor),
		   records_processed = EXCLUDED.records_processed,
		   updated_at = now()`,
		sourceKey, cursor, rows,
	)
	if err != nil {
		return eris.Wrapf(err, "watermark: advance %s", sourceKey)
	}
	return nil
}
