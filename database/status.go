package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/folioworks/folio/model"
)

// StartRebuild records that a rebuild began: started_at is set and the
// finish fields are cleared so a crashed run is visible as never-finished.
func (d Datasource) StartRebuild(ctx context.Context, projectionName string, startedAt time.Time) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO folio.projection_status (projection_name, last_rebuild_started_at, last_rebuild_finished_at, last_rebuild_duration_seconds, last_rebuild_success, last_rebuild_error, updated_at)
		VALUES ($1, $2, NULL, NULL, NULL, NULL, $2)
		ON CONFLICT (projection_name) DO UPDATE
		SET last_rebuild_started_at = EXCLUDED.last_rebuild_started_at,
		    last_rebuild_finished_at = NULL,
		    last_rebuild_duration_seconds = NULL,
		    last_rebuild_success = NULL,
		    last_rebuild_error = NULL,
		    updated_at = EXCLUDED.updated_at`,
		projectionName, startedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record rebuild start: %w", err)
	}
	return nil
}

func (d Datasource) FinishRebuild(ctx context.Context, projectionName string, finishedAt time.Time, durationSec float64, success bool, rebuildErr string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE folio.projection_status
		SET last_rebuild_finished_at = $2,
		    last_rebuild_duration_seconds = $3,
		    last_rebuild_success = $4,
		    last_rebuild_error = NULLIF($5, ''),
		    updated_at = $2
		WHERE projection_name = $1`,
		projectionName, finishedAt, durationSec, success, rebuildErr,
	)
	if err != nil {
		return fmt.Errorf("failed to record rebuild finish: %w", err)
	}
	return nil
}

func (d Datasource) GetProjectionStatus(ctx context.Context, projectionName string) (*model.ProjectionStatus, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT projection_name, last_rebuild_started_at, last_rebuild_finished_at,
		       last_rebuild_duration_seconds, last_rebuild_success, last_rebuild_error, updated_at
		FROM folio.projection_status
		WHERE projection_name = $1`,
		projectionName,
	)

	ps := &model.ProjectionStatus{}
	var success sql.NullBool
	var duration sql.NullFloat64
	var rebuildErr sql.NullString
	err := row.Scan(&ps.ProjectionName, &ps.LastRebuildStartedAt, &ps.LastRebuildFinishedAt,
		&duration, &success, &rebuildErr, &ps.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get projection status: %w", err)
	}

	if duration.Valid {
		ps.LastRebuildDurationSec = &duration.Float64
	}
	if success.Valid {
		ps.LastRebuildSuccess = &success.Bool
	}
	ps.LastRebuildError = rebuildErr.String
	return ps, nil
}
