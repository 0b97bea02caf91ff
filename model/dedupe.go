package model

import "time"

// DedupeKey identifies one rate-limited fact stream. Storage is one row per
// key, never one per bucket, so cardinality is linear in active facts.
type DedupeKey struct {
	EventType     string `json:"event_type"`
	BookID        string `json:"book_id"`
	BlockID       string `json:"block_id"`
	ActorID       string `json:"actor_id"`
	WindowSeconds int64  `json:"window_seconds"`
}

// DedupeState holds the last accepted time bucket for a key. last_bucket is
// non-decreasing.
type DedupeState struct {
	DedupeKey
	LastBucket int64     `json:"last_bucket"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BucketFor returns the coarse time slot for a window: floor(unix/window).
func BucketFor(now time.Time, windowSeconds int64) int64 {
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	return now.Unix() / windowSeconds
}
