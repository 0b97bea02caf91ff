package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/folioworks/folio/model"
)

// UpsertSearchEntry applies the guarded upsert: the row is written only when
// the incoming event_version is strictly greater than the stored one.
// Returns false when the write was rejected as stale, which callers treat as
// success.
func (d Datasource) UpsertSearchEntry(ctx context.Context, entry *model.SearchIndexEntry) (bool, error) {
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal search metadata: %w", err)
	}

	res, err := d.Conn.ExecContext(ctx, `
		INSERT INTO folio.search_index (entity_type, entity_id, library_id, event_version, searchable_text, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entity_type, entity_id) DO UPDATE
		SET library_id = EXCLUDED.library_id,
		    event_version = EXCLUDED.event_version,
		    searchable_text = EXCLUDED.searchable_text,
		    metadata = EXCLUDED.metadata,
		    updated_at = EXCLUDED.updated_at
		WHERE search_index.event_version < EXCLUDED.event_version`,
		entry.EntityType, entry.EntityID, entry.LibraryID, entry.EventVersion,
		entry.SearchableText, metadataJSON, entry.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert search entry: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// DeleteSearchEntry applies the guarded delete: only a strictly newer
// tombstone removes the row.
func (d Datasource) DeleteSearchEntry(ctx context.Context, entityType, entityID string, eventVersion int64) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `
		DELETE FROM folio.search_index
		WHERE entity_type = $1 AND entity_id = $2 AND event_version < $3`,
		entityType, entityID, eventVersion,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete search entry: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (d Datasource) GetSearchEntry(ctx context.Context, entityType, entityID string) (*model.SearchIndexEntry, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT entity_type, entity_id, library_id, event_version, searchable_text, metadata, updated_at
		FROM folio.search_index
		WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID,
	)

	entry := &model.SearchIndexEntry{}
	var metadataJSON []byte
	err := row.Scan(&entry.EntityType, &entry.EntityID, &entry.LibraryID,
		&entry.EventVersion, &entry.SearchableText, &metadataJSON, &entry.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get search entry: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal search metadata: %w", err)
		}
	}
	return entry, nil
}
