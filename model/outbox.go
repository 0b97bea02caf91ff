package model

import (
	"time"
)

// Op is the operation carried by an outbox event. The event is a
// notification, not a payload: the projector re-reads the entity.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Outbox row statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// ErrorReason is the bounded classification recorded on a failed outbox row.
// The set is deliberately small so the (status, error_reason) triage index
// stays useful.
type ErrorReason string

const (
	ReasonEntityMissing  ErrorReason = "entity_missing"
	ReasonPayloadInvalid ErrorReason = "payload_invalid"
	ReasonDBConflict     ErrorReason = "db_conflict"
	ReasonTimeout        ErrorReason = "timeout"
	ReasonUnknown        ErrorReason = "unknown"
)

// Transient reports whether the reason is retried automatically. Data
// errors (entity_missing, payload_invalid) stay failed until a manual
// replay.
func (r ErrorReason) Transient() bool {
	switch r {
	case ReasonDBConflict, ReasonTimeout, ReasonUnknown:
		return true
	default:
		return false
	}
}

// OutboxEvent is one row of a projection outbox table. Rows are inserted in
// the same transaction as the business write and drained by the worker pool.
type OutboxEvent struct {
	// ID is the serial claim-order key; it never leaves the database layer.
	ID                  int64       `json:"-"`
	EventID             string      `json:"event_id"`
	EntityType          string      `json:"entity_type"`
	EntityID            string      `json:"entity_id"`
	Op                  Op          `json:"op"`
	EventVersion        int64       `json:"event_version"`
	Status              string      `json:"status"`
	CreatedAt           time.Time   `json:"created_at"`
	ProcessingStartedAt *time.Time  `json:"processing_started_at,omitempty"`
	LeaseUntil          *time.Time  `json:"lease_until,omitempty"`
	ProcessedAt         *time.Time  `json:"processed_at,omitempty"`
	ErrorReason         ErrorReason `json:"error_reason,omitempty"`
	ReplayCount         int         `json:"replay_count"`
	LastReplayedAt      *time.Time  `json:"last_replayed_at,omitempty"`
	LastReplayedBy      string      `json:"last_replayed_by,omitempty"`
	LastReplayedReason  string      `json:"last_replayed_reason,omitempty"`
	Traceparent         string      `json:"traceparent,omitempty"`
	Tracestate          string      `json:"tracestate,omitempty"`
}

// Terminal reports whether the row has been processed to completion. A row
// is terminal only once processed_at is set; status alone is not enough.
func (e *OutboxEvent) Terminal() bool {
	return e.ProcessedAt != nil
}

// OutboxStats summarizes an outbox table for the CLI and the monitoring API.
type OutboxStats struct {
	Projection string                `json:"projection"`
	ByStatus   map[string]int64      `json:"by_status"`
	ByReason   map[ErrorReason]int64 `json:"by_reason"`
}

// EventVersionNow derives an event version for writers that have no natural
// version counter: the microsecond epoch. Strictly monotonic as long as two
// writes to the same entity are more than a microsecond apart, which the
// writer layer guarantees by serializing writes per entity.
func EventVersionNow(now time.Time) int64 {
	return now.UnixMicro()
}
