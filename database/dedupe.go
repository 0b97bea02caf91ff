package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/folioworks/folio/model"
)

// ShouldEmit performs the atomic insert-or-advance on the dedupe table.
// Returns true iff the row was inserted or its bucket advanced; a repeat
// call in the same bucket affects no row and returns false.
func (d Datasource) ShouldEmit(ctx context.Context, key model.DedupeKey, bucket int64, now time.Time) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `
		INSERT INTO folio.dedupe_state (event_type, book_id, block_id, actor_id, window_seconds, last_bucket, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_type, book_id, block_id, actor_id, window_seconds) DO UPDATE
		SET last_bucket = EXCLUDED.last_bucket,
		    updated_at = EXCLUDED.updated_at
		WHERE dedupe_state.last_bucket < EXCLUDED.last_bucket`,
		key.EventType, key.BookID, key.BlockID, key.ActorID, key.WindowSeconds, bucket, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert dedupe state: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (d Datasource) GetDedupeState(ctx context.Context, key model.DedupeKey) (*model.DedupeState, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT event_type, book_id, block_id, actor_id, window_seconds, last_bucket, updated_at
		FROM folio.dedupe_state
		WHERE event_type = $1 AND book_id = $2 AND block_id = $3 AND actor_id = $4 AND window_seconds = $5`,
		key.EventType, key.BookID, key.BlockID, key.ActorID, key.WindowSeconds,
	)

	state := &model.DedupeState{}
	err := row.Scan(&state.EventType, &state.BookID, &state.BlockID, &state.ActorID,
		&state.WindowSeconds, &state.LastBucket, &state.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get dedupe state: %w", err)
	}
	return state, nil
}
