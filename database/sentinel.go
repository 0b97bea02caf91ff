package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/folioworks/folio/model"
)

// GetEnvironmentSentinel reads the single-row environment fuse. A missing
// row returns nil; callers must refuse destructive work in that case.
func (d Datasource) GetEnvironmentSentinel(ctx context.Context) (*model.EnvironmentSentinel, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, project, env, created_at
		FROM folio.environment_sentinel
		WHERE id = 1`,
	)

	sentinel := &model.EnvironmentSentinel{}
	err := row.Scan(&sentinel.ID, &sentinel.Project, &sentinel.Env, &sentinel.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get environment sentinel: %w", err)
	}
	return sentinel, nil
}
