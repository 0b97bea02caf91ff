package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/folioworks/folio/model"
)

// outboxTables maps projection names to their queue tables. Names outside
// this map never reach SQL.
var outboxTables = map[string]string{
	model.ProjectionSearch:    "folio.search_outbox",
	model.ProjectionChronicle: "folio.chronicle_outbox",
}

func outboxTable(projection string) (string, error) {
	table, ok := outboxTables[projection]
	if !ok {
		return "", fmt.Errorf("unknown projection %q", projection)
	}
	return table, nil
}

const outboxColumns = `event_id, entity_type, entity_id, op, event_version, status, created_at,
		processing_started_at, lease_until, processed_at, error_reason, replay_count,
		last_replayed_at, last_replayed_by, last_replayed_reason, traceparent, tracestate`

// EnqueueOutbox inserts one event using the caller's ongoing transaction so
// the event is visible iff the business write commits.
func (d Datasource) EnqueueOutbox(ctx context.Context, tx *sql.Tx, projection string, event *model.OutboxEvent) error {
	ctx, span := otel.Tracer("folio.outbox").Start(ctx, "Enqueue outbox event")
	defer span.End()

	table, err := outboxTable(projection)
	if err != nil {
		return err
	}

	if event.EventID == "" {
		event.EventID = GenerateUUIDWithSuffix("evt")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.Status = model.StatusPending

	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+table+` (event_id, entity_type, entity_id, op, event_version, status, created_at, traceparent, tracestate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''))`,
		event.EventID, event.EntityType, event.EntityID, event.Op, event.EventVersion,
		event.Status, event.CreatedAt, event.Traceparent, event.Tracestate,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}

// ClaimOutboxEvents atomically moves up to batchSize pending rows to
// processing and returns them. SKIP LOCKED keeps concurrent claimers from
// blocking on or double-claiming the same rows.
func (d Datasource) ClaimOutboxEvents(ctx context.Context, projection string, batchSize int, leaseDuration time.Duration, now time.Time) ([]*model.OutboxEvent, error) {
	ctx, span := otel.Tracer("folio.outbox").Start(ctx, "Claim outbox batch")
	defer span.End()

	table, err := outboxTable(projection)
	if err != nil {
		return nil, err
	}

	rows, err := d.Conn.QueryContext(ctx, `
		UPDATE `+table+` o
		SET status = 'processing',
		    processing_started_at = $2,
		    lease_until = $3
		FROM (
			SELECT id FROM `+table+`
			WHERE status = 'pending' AND processed_at IS NULL
			ORDER BY created_at, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		) c
		WHERE o.id = c.id
		RETURNING o.id, o.event_id, o.entity_type, o.entity_id, o.op, o.event_version, o.status,
		          o.created_at, o.processing_started_at, o.lease_until, o.replay_count,
		          COALESCE(o.traceparent, ''), COALESCE(o.tracestate, '')`,
		batchSize, now, now.Add(leaseDuration),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	defer rows.Close()

	var events []*model.OutboxEvent
	for rows.Next() {
		event := &model.OutboxEvent{}
		err := rows.Scan(&event.ID, &event.EventID, &event.EntityType, &event.EntityID, &event.Op,
			&event.EventVersion, &event.Status, &event.CreatedAt, &event.ProcessingStartedAt,
			&event.LeaseUntil, &event.ReplayCount, &event.Traceparent, &event.Tracestate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING does not guarantee order; restore the (created_at, id)
	// claim order, tiebreaking on the serial id like the claim itself.
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

// RequeueStuckEvents implements the reclaim pass. Rows matching the stuck
// predicate go back to pending with their replay accounting bumped; rows
// that already spent their replay budget are failed with reason timeout
// instead of looping forever.
func (d Datasource) RequeueStuckEvents(ctx context.Context, projection string, maxProcessing time.Duration, maxReplayCount int, now time.Time, replayedBy string) (int64, int64, error) {
	table, err := outboxTable(projection)
	if err != nil {
		return 0, 0, err
	}

	stuckPredicate := `
		processed_at IS NULL
		AND status = 'processing'
		AND (
			(lease_until IS NOT NULL AND lease_until < $1)
			OR (processing_started_at IS NOT NULL AND processing_started_at < $2)
		)`
	startedBefore := now.Add(-maxProcessing)

	failRes, err := d.Conn.ExecContext(ctx, `
		UPDATE `+table+`
		SET status = 'failed', error_reason = 'timeout'
		WHERE replay_count >= $3 AND `+stuckPredicate,
		now, startedBefore, maxReplayCount,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fail exhausted events: %w", err)
	}
	failed, _ := failRes.RowsAffected()

	// processing_started_at is intentionally kept for diagnostics.
	requeueRes, err := d.Conn.ExecContext(ctx, `
		UPDATE `+table+`
		SET status = 'pending',
		    lease_until = NULL,
		    replay_count = replay_count + 1,
		    last_replayed_at = $3,
		    last_replayed_by = $4,
		    last_replayed_reason = 'stuck_processing'
		WHERE replay_count < $5 AND `+stuckPredicate,
		now, startedBefore, now, replayedBy, maxReplayCount,
	)
	if err != nil {
		return 0, failed, fmt.Errorf("failed to requeue stuck events: %w", err)
	}
	requeued, _ := requeueRes.RowsAffected()

	return requeued, failed, nil
}

// MarkOutboxDone finalizes a processed row. The processed_at guard makes the
// transition idempotent: only the first mark wins.
func (d Datasource) MarkOutboxDone(ctx context.Context, projection string, eventID string, now time.Time) (bool, error) {
	table, err := outboxTable(projection)
	if err != nil {
		return false, err
	}

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE `+table+`
		SET status = 'done', processed_at = $2, error_reason = NULL
		WHERE event_id = $1 AND processed_at IS NULL`,
		eventID, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark event done: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (d Datasource) MarkOutboxFailed(ctx context.Context, projection string, eventID string, reason model.ErrorReason) error {
	table, err := outboxTable(projection)
	if err != nil {
		return err
	}

	_, err = d.Conn.ExecContext(ctx, `
		UPDATE `+table+`
		SET status = 'failed', error_reason = $2
		WHERE event_id = $1 AND processed_at IS NULL`,
		eventID, string(reason),
	)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}

// ReplayOutboxEvent flips a failed row back to pending. This is the only
// path that resurrects a failed row.
func (d Datasource) ReplayOutboxEvent(ctx context.Context, projection string, eventID string, replayedBy, reason string, now time.Time) (bool, error) {
	table, err := outboxTable(projection)
	if err != nil {
		return false, err
	}

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE `+table+`
		SET status = 'pending',
		    lease_until = NULL,
		    error_reason = NULL,
		    replay_count = replay_count + 1,
		    last_replayed_at = $2,
		    last_replayed_by = $3,
		    last_replayed_reason = $4
		WHERE event_id = $1 AND status = 'failed' AND processed_at IS NULL`,
		eventID, now, replayedBy, reason,
	)
	if err != nil {
		return false, fmt.Errorf("failed to replay event: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (d Datasource) GetOutboxEvent(ctx context.Context, projection string, eventID string) (*model.OutboxEvent, error) {
	table, err := outboxTable(projection)
	if err != nil {
		return nil, err
	}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+outboxColumns+`
		FROM `+table+`
		WHERE event_id = $1`,
		eventID,
	)
	event, err := scanOutboxEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get outbox event: %w", err)
	}
	return event, nil
}

// GetOutboxHistory returns all outbox rows for an entity, oldest first, for
// the inspect CLI.
func (d Datasource) GetOutboxHistory(ctx context.Context, projection string, entityType, entityID string) ([]*model.OutboxEvent, error) {
	table, err := outboxTable(projection)
	if err != nil {
		return nil, err
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+outboxColumns+`
		FROM `+table+`
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox history: %w", err)
	}
	defer rows.Close()

	var events []*model.OutboxEvent
	for rows.Next() {
		event, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox history row: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// GetOutboxStats counts rows by status and, for failed rows, by
// error_reason. Backs the CLI summaries and the monitoring API.
func (d Datasource) GetOutboxStats(ctx context.Context, projection string) (*model.OutboxStats, error) {
	table, err := outboxTable(projection)
	if err != nil {
		return nil, err
	}

	stats := &model.OutboxStats{
		Projection: projection,
		ByStatus:   make(map[string]int64),
		ByReason:   make(map[model.ErrorReason]int64),
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM `+table+` GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox status counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st string
		var count int64
		if err := rows.Scan(&st, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[st] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reasonRows, err := d.Conn.QueryContext(ctx, `
		SELECT error_reason, COUNT(*) FROM `+table+`
		WHERE status = 'failed' AND error_reason IS NOT NULL
		GROUP BY error_reason`)
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox reason counts: %w", err)
	}
	defer reasonRows.Close()
	for reasonRows.Next() {
		var reason string
		var count int64
		if err := reasonRows.Scan(&reason, &count); err != nil {
			return nil, err
		}
		stats.ByReason[model.ErrorReason(reason)] = count
	}
	return stats, reasonRows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOutboxEvent(row rowScanner) (*model.OutboxEvent, error) {
	event := &model.OutboxEvent{}
	var errorReason, replayedBy, replayedReason, traceparent, tracestate sql.NullString
	err := row.Scan(&event.EventID, &event.EntityType, &event.EntityID, &event.Op,
		&event.EventVersion, &event.Status, &event.CreatedAt, &event.ProcessingStartedAt,
		&event.LeaseUntil, &event.ProcessedAt, &errorReason, &event.ReplayCount,
		&event.LastReplayedAt, &replayedBy, &replayedReason, &traceparent, &tracestate)
	if err != nil {
		return nil, err
	}
	event.ErrorReason = model.ErrorReason(errorReason.String)
	event.LastReplayedBy = replayedBy.String
	event.LastReplayedReason = replayedReason.String
	event.Traceparent = traceparent.String
	event.Tracestate = tracestate.String
	return event, nil
}
