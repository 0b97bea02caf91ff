package model

import "time"

// Projection names. Each one owns an outbox table and a read-side table.
const (
	ProjectionSearch    = "search"
	ProjectionChronicle = "chronicle"
)

// SearchIndexEntry is the read-side row for full-text search. Tokenization
// is the database's job: searchable_text is stored as plain text and indexed
// with a generated tsvector column.
type SearchIndexEntry struct {
	EntityType     string                 `json:"entity_type"`
	EntityID       string                 `json:"entity_id"`
	LibraryID      string                 `json:"library_id"`
	EventVersion   int64                  `json:"event_version"`
	SearchableText string                 `json:"searchable_text"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// ChronicleEntry is the read-side row for the activity chronicle. The
// envelope fields are free-form; rows derived from sources that carry no
// envelope are backfilled with "unknown".
type ChronicleEntry struct {
	EntityType   string    `json:"entity_type"`
	EntityID     string    `json:"entity_id"`
	LibraryID    string    `json:"library_id"`
	EventVersion int64     `json:"event_version"`
	Action       string    `json:"action"`
	ActorID      string    `json:"actor_id"`
	ActorKind    string    `json:"actor_kind"`
	Provenance   string    `json:"provenance"`
	Source       string    `json:"source"`
	OccurredAt   time.Time `json:"occurred_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EnvelopeUnknown is the backfill value for chronicle envelope fields.
const EnvelopeUnknown = "unknown"

// ProjectionStatus tracks rebuild progress for one projection. One row per
// projection, written at rebuild start and finish.
type ProjectionStatus struct {
	ProjectionName         string     `json:"projection_name"`
	LastRebuildStartedAt   *time.Time `json:"last_rebuild_started_at,omitempty"`
	LastRebuildFinishedAt  *time.Time `json:"last_rebuild_finished_at,omitempty"`
	LastRebuildDurationSec *float64   `json:"last_rebuild_duration_seconds,omitempty"`
	LastRebuildSuccess     *bool      `json:"last_rebuild_success,omitempty"`
	LastRebuildError       string     `json:"last_rebuild_error,omitempty"`
	UpdatedAt              time.Time  `json:"updated_at"`
}
