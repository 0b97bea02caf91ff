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

package folio

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/folioworks/folio/config"
	"github.com/folioworks/folio/database/mocks"
	"github.com/folioworks/folio/model"
)

func newTestFolio(ds *mocks.MockDataSource) *Folio {
	config.MockConfig(&config.Configuration{
		ProjectName: "folio-test",
		DataSource:  config.DataSourceConfig{Dns: "postgres://localhost:5432/folio_test"},
	})
	return &Folio{datasource: ds, projector: NewProjector(ds)}
}

func TestEnqueue_FansOutToBothProjections(t *testing.T) {
	ds := new(mocks.MockDataSource)
	folio := newTestFolio(ds)

	var searchVersion, chronicleVersion int64
	ds.On("EnqueueOutbox", mock.Anything, mock.Anything, model.ProjectionSearch, mock.Anything).
		Run(func(args mock.Arguments) {
			searchVersion = args.Get(3).(*model.OutboxEvent).EventVersion
		}).Return(nil)
	ds.On("EnqueueOutbox", mock.Anything, mock.Anything, model.ProjectionChronicle, mock.Anything).
		Run(func(args mock.Arguments) {
			chronicleVersion = args.Get(3).(*model.OutboxEvent).EventVersion
		}).Return(nil)

	err := folio.Enqueue(context.Background(), (*sql.Tx)(nil), &EnqueueRequest{
		EntityType: model.EntityBook,
		EntityID:   "bk_1",
		Op:         model.OpUpsert,
	})
	assert.NoError(t, err)
	ds.AssertNumberOfCalls(t, "EnqueueOutbox", 2)

	// Both rows must carry the same version so the projections converge on
	// the same ordering decision.
	assert.NotZero(t, searchVersion)
	assert.Equal(t, searchVersion, chronicleVersion)
}

func TestEnqueue_RejectsInvalidRequests(t *testing.T) {
	ds := new(mocks.MockDataSource)
	folio := newTestFolio(ds)

	tests := []*EnqueueRequest{
		{EntityType: "scroll", EntityID: "x", Op: model.OpUpsert},
		{EntityType: model.EntityBook, EntityID: "", Op: model.OpUpsert},
		{EntityType: model.EntityBook, EntityID: "bk_1", Op: "rename"},
		{},
	}
	for _, req := range tests {
		err := folio.Enqueue(context.Background(), nil, req)
		assert.Error(t, err)
	}
	ds.AssertNotCalled(t, "EnqueueOutbox", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEmitFact_DelegatesBucket(t *testing.T) {
	ds := new(mocks.MockDataSource)
	folio := newTestFolio(ds)

	req := &FactRequest{
		EventType:     "block_edited",
		BookID:        "bk_1",
		BlockID:       "blk_1",
		ActorID:       "usr_9",
		WindowSeconds: 300,
	}
	expectedBucket := model.BucketFor(time.Now(), 300)

	ds.On("ShouldEmit", mock.Anything, mock.MatchedBy(func(key model.DedupeKey) bool {
		return key.EventType == "block_edited" && key.WindowSeconds == 300
	}), expectedBucket, mock.Anything).Return(true, nil)

	emit, err := folio.EmitFact(context.Background(), req)
	assert.NoError(t, err)
	assert.True(t, emit)
	ds.AssertExpectations(t)
}

func TestEmitFact_RejectsZeroWindow(t *testing.T) {
	ds := new(mocks.MockDataSource)
	folio := newTestFolio(ds)

	_, err := folio.EmitFact(context.Background(), &FactRequest{
		EventType: "block_edited",
		BookID:    "bk_1",
		ActorID:   "usr_9",
	})
	assert.Error(t, err)
	ds.AssertNotCalled(t, "ShouldEmit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReplay_AuditFields(t *testing.T) {
	ds := new(mocks.MockDataSource)
	folio := newTestFolio(ds)

	ds.On("ReplayOutboxEvent", mock.Anything, model.ProjectionSearch, "evt_1", "ops@folio", "investigated", mock.Anything).
		Return(true, nil)

	replayed, err := folio.Replay(context.Background(), model.ProjectionSearch, "evt_1", "ops@folio", "investigated")
	assert.NoError(t, err)
	assert.True(t, replayed)
	ds.AssertExpectations(t)
}

func TestInspectEvent_NotFound(t *testing.T) {
	ds := new(mocks.MockDataSource)
	folio := newTestFolio(ds)

	ds.On("GetOutboxEvent", mock.Anything, model.ProjectionSearch, "evt_missing").Return(nil, nil)

	detail, err := folio.InspectEvent(context.Background(), model.ProjectionSearch, "evt_missing")
	assert.NoError(t, err)
	assert.Nil(t, detail)
	ds.AssertNotCalled(t, "GetOutboxHistory", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInspectEvent_WithHistory(t *testing.T) {
	ds := new(mocks.MockDataSource)
	folio := newTestFolio(ds)

	event := &model.OutboxEvent{EventID: "evt_1", EntityType: model.EntityBook, EntityID: "bk_1"}
	history := []*model.OutboxEvent{{EventID: "evt_0"}, event}

	ds.On("GetOutboxEvent", mock.Anything, model.ProjectionSearch, "evt_1").Return(event, nil)
	ds.On("GetOutboxHistory", mock.Anything, model.ProjectionSearch, "book", "bk_1").Return(history, nil)

	detail, err := folio.InspectEvent(context.Background(), model.ProjectionSearch, "evt_1")
	assert.NoError(t, err)
	assert.Equal(t, "evt_1", detail.Event.EventID)
	assert.Len(t, detail.History, 2)
}
