package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/folioworks/folio/model"
)

// UpsertChronicleEntry mirrors the search upsert for the chronicle
// projection, with the same anti-regression guard.
func (d Datasource) UpsertChronicleEntry(ctx context.Context, entry *model.ChronicleEntry) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `
		INSERT INTO folio.chronicle_entries (entity_type, entity_id, library_id, event_version, action, actor_id, actor_kind, provenance, source, occurred_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (entity_type, entity_id) DO UPDATE
		SET library_id = EXCLUDED.library_id,
		    event_version = EXCLUDED.event_version,
		    action = EXCLUDED.action,
		    actor_id = EXCLUDED.actor_id,
		    actor_kind = EXCLUDED.actor_kind,
		    provenance = EXCLUDED.provenance,
		    source = EXCLUDED.source,
		    occurred_at = EXCLUDED.occurred_at,
		    updated_at = EXCLUDED.updated_at
		WHERE chronicle_entries.event_version < EXCLUDED.event_version`,
		entry.EntityType, entry.EntityID, entry.LibraryID, entry.EventVersion,
		entry.Action, entry.ActorID, entry.ActorKind, entry.Provenance, entry.Source,
		entry.OccurredAt, entry.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert chronicle entry: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (d Datasource) DeleteChronicleEntry(ctx context.Context, entityType, entityID string, eventVersion int64) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `
		DELETE FROM folio.chronicle_entries
		WHERE entity_type = $1 AND entity_id = $2 AND event_version < $3`,
		entityType, entityID, eventVersion,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete chronicle entry: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (d Datasource) GetChronicleEntry(ctx context.Context, entityType, entityID string) (*model.ChronicleEntry, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT entity_type, entity_id, library_id, event_version, action, actor_id, actor_kind, provenance, source, occurred_at, updated_at
		FROM folio.chronicle_entries
		WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID,
	)

	entry := &model.ChronicleEntry{}
	err := row.Scan(&entry.EntityType, &entry.EntityID, &entry.LibraryID,
		&entry.EventVersion, &entry.Action, &entry.ActorID, &entry.ActorKind,
		&entry.Provenance, &entry.Source, &entry.OccurredAt, &entry.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get chronicle entry: %w", err)
	}
	return entry, nil
}
