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
package mocks

import (
	"context"
	"database/sql"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/folioworks/folio/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Outbox methods

func (m *MockDataSource) EnqueueOutbox(ctx context.Context, tx *sql.Tx, projection string, event *model.OutboxEvent) error {
	args := m.Called(ctx, tx, projection, event)
	return args.Error(0)
}

func (m *MockDataSource) ClaimOutboxEvents(ctx context.Context, projection string, batchSize int, leaseDuration time.Duration, now time.Time) ([]*model.OutboxEvent, error) {
	args := m.Called(ctx, projection, batchSize, leaseDuration, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.OutboxEvent), args.Error(1)
}

func (m *MockDataSource) RequeueStuckEvents(ctx context.Context, projection string, maxProcessing time.Duration, maxReplayCount int, now time.Time, replayedBy string) (int64, int64, error) {
	args := m.Called(ctx, projection, maxProcessing, maxReplayCount, now, replayedBy)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func (m *MockDataSource) MarkOutboxDone(ctx context.Context, projection string, eventID string, now time.Time) (bool, error) {
	args := m.Called(ctx, projection, eventID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) MarkOutboxFailed(ctx context.Context, projection string, eventID string, reason model.ErrorReason) error {
	args := m.Called(ctx, projection, eventID, reason)
	return args.Error(0)
}

func (m *MockDataSource) ReplayOutboxEvent(ctx context.Context, projection string, eventID string, replayedBy, reason string, now time.Time) (bool, error) {
	args := m.Called(ctx, projection, eventID, replayedBy, reason, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetOutboxEvent(ctx context.Context, projection string, eventID string) (*model.OutboxEvent, error) {
	args := m.Called(ctx, projection, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OutboxEvent), args.Error(1)
}

func (m *MockDataSource) GetOutboxHistory(ctx context.Context, projection string, entityType, entityID string) ([]*model.OutboxEvent, error) {
	args := m.Called(ctx, projection, entityType, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.OutboxEvent), args.Error(1)
}

func (m *MockDataSource) GetOutboxStats(ctx context.Context, projection string) (*model.OutboxStats, error) {
	args := m.Called(ctx, projection)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OutboxStats), args.Error(1)
}

// Projection methods

func (m *MockDataSource) UpsertSearchEntry(ctx context.Context, entry *model.SearchIndexEntry) (bool, error) {
	args := m.Called(ctx, entry)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) DeleteSearchEntry(ctx context.Context, entityType, entityID string, eventVersion int64) (bool, error) {
	args := m.Called(ctx, entityType, entityID, eventVersion)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetSearchEntry(ctx context.Context, entityType, entityID string) (*model.SearchIndexEntry, error) {
	args := m.Called(ctx, entityType, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SearchIndexEntry), args.Error(1)
}

func (m *MockDataSource) UpsertChronicleEntry(ctx context.Context, entry *model.ChronicleEntry) (bool, error) {
	args := m.Called(ctx, entry)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) DeleteChronicleEntry(ctx context.Context, entityType, entityID string, eventVersion int64) (bool, error) {
	args := m.Called(ctx, entityType, entityID, eventVersion)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetChronicleEntry(ctx context.Context, entityType, entityID string) (*model.ChronicleEntry, error) {
	args := m.Called(ctx, entityType, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChronicleEntry), args.Error(1)
}

// Dedupe methods

func (m *MockDataSource) ShouldEmit(ctx context.Context, key model.DedupeKey, bucket int64, now time.Time) (bool, error) {
	args := m.Called(ctx, key, bucket, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetDedupeState(ctx context.Context, key model.DedupeKey) (*model.DedupeState, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DedupeState), args.Error(1)
}

// Status methods

func (m *MockDataSource) StartRebuild(ctx context.Context, projectionName string, startedAt time.Time) error {
	args := m.Called(ctx, projectionName, startedAt)
	return args.Error(0)
}

func (m *MockDataSource) FinishRebuild(ctx context.Context, projectionName string, finishedAt time.Time, durationSec float64, success bool, rebuildErr string) error {
	args := m.Called(ctx, projectionName, finishedAt, durationSec, success, rebuildErr)
	return args.Error(0)
}

func (m *MockDataSource) GetProjectionStatus(ctx context.Context, projectionName string) (*model.ProjectionStatus, error) {
	args := m.Called(ctx, projectionName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProjectionStatus), args.Error(1)
}

// Sentinel methods

func (m *MockDataSource) GetEnvironmentSentinel(ctx context.Context) (*model.EnvironmentSentinel, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EnvironmentSentinel), args.Error(1)
}

// Entity methods

func (m *MockDataSource) GetLibrary(ctx context.Context, id string) (*model.Library, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Library), args.Error(1)
}

func (m *MockDataSource) GetBookshelf(ctx context.Context, id string) (*model.Bookshelf, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Bookshelf), args.Error(1)
}

func (m *MockDataSource) GetBook(ctx context.Context, id string) (*model.Book, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Book), args.Error(1)
}

func (m *MockDataSource) GetBlock(ctx context.Context, id string) (*model.Block, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Block), args.Error(1)
}

func (m *MockDataSource) GetLibrariesPaginated(ctx context.Context, afterID string, limit int) ([]*model.Library, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Library), args.Error(1)
}

func (m *MockDataSource) GetBookshelvesPaginated(ctx context.Context, afterID string, limit int) ([]*model.Bookshelf, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Bookshelf), args.Error(1)
}

func (m *MockDataSource) GetBooksPaginated(ctx context.Context, afterID string, limit int) ([]*model.Book, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Book), args.Error(1)
}

func (m *MockDataSource) GetBlocksPaginated(ctx context.Context, afterID string, limit int) ([]*model.Block, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Block), args.Error(1)
}

// BeginTx

func (m *MockDataSource) BeginTx(ctx context.Context) (*sql.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sql.Tx), args.Error(1)
}
