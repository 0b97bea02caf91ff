/*
Copyright 2025 Folio Works Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/folioworks/folio/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	outbox     // Outbox queue operations: enqueue, claim, reclaim, mark, replay
	projection // Guarded read-side writes for search and chronicle
	dedupe     // Rate-limit state for high-frequency facts
	status     // Projection rebuild status bookkeeping
	sentinel   // Environment fuse for destructive operations
	entities   // Read-only access to the authoritative tables
	BeginTx(ctx context.Context) (*sql.Tx, error)
}

// outbox defines the queue operations shared by both projection outboxes.
// Every method takes the projection name ("search" or "chronicle") and
// resolves it to the corresponding table.
type outbox interface {
	EnqueueOutbox(ctx context.Context, tx *sql.Tx, projection string, event *model.OutboxEvent) error
	ClaimOutboxEvents(ctx context.Context, projection string, batchSize int, leaseDuration time.Duration, now time.Time) ([]*model.OutboxEvent, error)
	RequeueStuckEvents(ctx context.Context, projection string, maxProcessing time.Duration, maxReplayCount int, now time.Time, replayedBy string) (requeued int64, failed int64, err error)
	MarkOutboxDone(ctx context.Context, projection string, eventID string, now time.Time) (bool, error)
	MarkOutboxFailed(ctx context.Context, projection string, eventID string, reason model.ErrorReason) error
	ReplayOutboxEvent(ctx context.Context, projection string, eventID string, replayedBy, reason string, now time.Time) (bool, error)
	GetOutboxEvent(ctx context.Context, projection string, eventID string) (*model.OutboxEvent, error)
	GetOutboxHistory(ctx context.Context, projection string, entityType, entityID string) ([]*model.OutboxEvent, error)
	GetOutboxStats(ctx context.Context, projection string) (*model.OutboxStats, error)
}

// projection defines the guarded writes that keep read-side tables from
// regressing: updates apply only when the incoming event_version is strictly
// greater than the stored one.
type projection interface {
	UpsertSearchEntry(ctx context.Context, entry *model.SearchIndexEntry) (bool, error)
	DeleteSearchEntry(ctx context.Context, entityType, entityID string, eventVersion int64) (bool, error)
	GetSearchEntry(ctx context.Context, entityType, entityID string) (*model.SearchIndexEntry, error)
	UpsertChronicleEntry(ctx context.Context, entry *model.ChronicleEntry) (bool, error)
	DeleteChronicleEntry(ctx context.Context, entityType, entityID string, eventVersion int64) (bool, error)
	GetChronicleEntry(ctx context.Context, entityType, entityID string) (*model.ChronicleEntry, error)
}

type dedupe interface {
	ShouldEmit(ctx context.Context, key model.DedupeKey, bucket int64, now time.Time) (bool, error)
	GetDedupeState(ctx context.Context, key model.DedupeKey) (*model.DedupeState, error)
}

type status interface {
	StartRebuild(ctx context.Context, projectionName string, startedAt time.Time) error
	FinishRebuild(ctx context.Context, projectionName string, finishedAt time.Time, durationSec float64, success bool, rebuildErr string) error
	GetProjectionStatus(ctx context.Context, projectionName string) (*model.ProjectionStatus, error)
}

type sentinel interface {
	GetEnvironmentSentinel(ctx context.Context) (*model.EnvironmentSentinel, error)
}

// entities exposes flat reads of the authoritative rows. The projector never
// walks aggregates; it resolves one row by id.
type entities interface {
	GetLibrary(ctx context.Context, id string) (*model.Library, error)
	GetBookshelf(ctx context.Context, id string) (*model.Bookshelf, error)
	GetBook(ctx context.Context, id string) (*model.Book, error)
	GetBlock(ctx context.Context, id string) (*model.Block, error)
	GetLibrariesPaginated(ctx context.Context, afterID string, limit int) ([]*model.Library, error)
	GetBookshelvesPaginated(ctx context.Context, afterID string, limit int) ([]*model.Bookshelf, error)
	GetBooksPaginated(ctx context.Context, afterID string, limit int) ([]*model.Book, error)
	GetBlocksPaginated(ctx context.Context, afterID string, limit int) ([]*model.Block, error)
}
