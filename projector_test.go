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
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/folioworks/folio/database/mocks"
	"github.com/folioworks/folio/model"
)

func TestProjector_UpsertBlock_Search(t *testing.T) {
	ds := new(mocks.MockDataSource)
	projector := NewProjector(ds)

	now := time.Now()
	block := &model.Block{
		BlockID:   "blk_1",
		BookID:    "bk_1",
		LibraryID: "lib_1",
		Kind:      "paragraph",
		Content:   "Call me Ishmael.",
		UpdatedBy: "usr_9",
		UpdatedAt: now,
	}
	event := &model.OutboxEvent{
		EventID:      "evt_1",
		EntityType:   model.EntityBlock,
		EntityID:     "blk_1",
		Op:           model.OpUpsert,
		EventVersion: 42,
	}

	ds.On("GetBlock", mock.Anything, "blk_1").Return(block, nil)
	ds.On("UpsertSearchEntry", mock.Anything, mock.MatchedBy(func(entry *model.SearchIndexEntry) bool {
		return entry.EntityID == "blk_1" &&
			entry.LibraryID == "lib_1" &&
			entry.EventVersion == 42 &&
			entry.SearchableText == "Call me Ishmael."
	})).Return(true, nil)
	ds.On("MarkOutboxDone", mock.Anything, model.ProjectionSearch, "evt_1", mock.Anything).Return(true, nil)

	err := projector.Process(context.Background(), model.ProjectionSearch, event)
	assert.NoError(t, err)
	ds.AssertExpectations(t)
}

func TestProjector_UpsertBook_Chronicle(t *testing.T) {
	ds := new(mocks.MockDataSource)
	projector := NewProjector(ds)

	now := time.Now()
	book := &model.Book{
		BookID:      "bk_1",
		BookshelfID: "shf_1",
		LibraryID:   "lib_1",
		Title:       "Moby Dick",
		UpdatedBy:   "usr_9",
		UpdatedAt:   now,
	}
	event := &model.OutboxEvent{
		EventID:      "evt_2",
		EntityType:   model.EntityBook,
		EntityID:     "bk_1",
		Op:           model.OpUpsert,
		EventVersion: 7,
	}

	ds.On("GetBook", mock.Anything, "bk_1").Return(book, nil)
	ds.On("UpsertChronicleEntry", mock.Anything, mock.MatchedBy(func(entry *model.ChronicleEntry) bool {
		return entry.ActorID == "usr_9" &&
			entry.ActorKind == model.EnvelopeUnknown &&
			entry.Provenance == model.EnvelopeUnknown &&
			entry.OccurredAt.Equal(now)
	})).Return(true, nil)
	ds.On("MarkOutboxDone", mock.Anything, model.ProjectionChronicle, "evt_2", mock.Anything).Return(true, nil)

	err := projector.Process(context.Background(), model.ProjectionChronicle, event)
	assert.NoError(t, err)
	ds.AssertExpectations(t)
}

func TestProjector_Delete_GuardedByVersion(t *testing.T) {
	ds := new(mocks.MockDataSource)
	projector := NewProjector(ds)

	event := &model.OutboxEvent{
		EventID:      "evt_3",
		EntityType:   model.EntityBook,
		EntityID:     "bk_1",
		Op:           model.OpDelete,
		EventVersion: 99,
	}

	ds.On("DeleteSearchEntry", mock.Anything, "book", "bk_1", int64(99)).Return(true, nil)
	ds.On("MarkOutboxDone", mock.Anything, model.ProjectionSearch, "evt_3", mock.Anything).Return(true, nil)

	err := projector.Process(context.Background(), model.ProjectionSearch, event)
	assert.NoError(t, err)
	ds.AssertExpectations(t)
}

func TestProjector_EntityMissing_FailsWithoutRetry(t *testing.T) {
	ds := new(mocks.MockDataSource)
	projector := NewProjector(ds)

	event := &model.OutboxEvent{
		EventID:    "evt_4",
		EntityType: model.EntityBlock,
		EntityID:   "blk_gone",
		Op:         model.OpUpsert,
	}

	ds.On("GetBlock", mock.Anything, "blk_gone").Return(nil, nil)
	ds.On("MarkOutboxFailed", mock.Anything, model.ProjectionSearch, "evt_4", model.ReasonEntityMissing).Return(nil)

	err := projector.Process(context.Background(), model.ProjectionSearch, event)
	assert.NoError(t, err, "non-transient failures are finalized, not retried")
	ds.AssertExpectations(t)
	ds.AssertNotCalled(t, "MarkOutboxDone", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProjector_UnknownEntityType_PayloadInvalid(t *testing.T) {
	ds := new(mocks.MockDataSource)
	projector := NewProjector(ds)

	event := &model.OutboxEvent{
		EventID:    "evt_5",
		EntityType: "scroll",
		EntityID:   "scr_1",
		Op:         model.OpUpsert,
	}

	ds.On("MarkOutboxFailed", mock.Anything, model.ProjectionSearch, "evt_5", model.ReasonPayloadInvalid).Return(nil)

	err := projector.Process(context.Background(), model.ProjectionSearch, event)
	assert.NoError(t, err)
	ds.AssertExpectations(t)
}

func TestProjector_TransientError_LeftForReclaim(t *testing.T) {
	ds := new(mocks.MockDataSource)
	projector := NewProjector(ds)

	event := &model.OutboxEvent{
		EventID:    "evt_6",
		EntityType: model.EntityBlock,
		EntityID:   "blk_1",
		Op:         model.OpUpsert,
	}

	deadlock := &pq.Error{Code: "40P01", Message: "deadlock detected"}
	ds.On("GetBlock", mock.Anything, "blk_1").Return(nil, error(deadlock))

	err := projector.Process(context.Background(), model.ProjectionSearch, event)
	assert.Error(t, err, "transient failures bubble up and the row stays claimed")
	ds.AssertNotCalled(t, "MarkOutboxFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ds.AssertNotCalled(t, "MarkOutboxDone", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProjector_DoneRaceIsBenign(t *testing.T) {
	ds := new(mocks.MockDataSource)
	projector := NewProjector(ds)

	now := time.Now()
	block := &model.Block{BlockID: "blk_1", LibraryID: "lib_1", UpdatedAt: now}
	event := &model.OutboxEvent{
		EventID:    "evt_7",
		EntityType: model.EntityBlock,
		EntityID:   "blk_1",
		Op:         model.OpUpsert,
	}

	ds.On("GetBlock", mock.Anything, "blk_1").Return(block, nil)
	ds.On("UpsertSearchEntry", mock.Anything, mock.Anything).Return(false, nil)
	// Another claimer finalized first; MarkOutboxDone affects nothing.
	ds.On("MarkOutboxDone", mock.Anything, model.ProjectionSearch, "evt_7", mock.Anything).Return(false, nil)

	err := projector.Process(context.Background(), model.ProjectionSearch, event)
	assert.NoError(t, err)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ErrorReason
	}{
		{"entity missing", errEntityMissing, model.ReasonEntityMissing},
		{"wrapped entity missing", errors.Wrap(errEntityMissing, "resolve block"), model.ReasonEntityMissing},
		{"payload invalid", errors.Wrap(errPayloadInvalid, "unknown entity type"), model.ReasonPayloadInvalid},
		{"context deadline", context.DeadlineExceeded, model.ReasonTimeout},
		{"context canceled", context.Canceled, model.ReasonTimeout},
		{"statement timeout", &pq.Error{Code: "57014"}, model.ReasonTimeout},
		{"unique violation", &pq.Error{Code: "23505"}, model.ReasonDBConflict},
		{"serialization failure", &pq.Error{Code: "40001"}, model.ReasonDBConflict},
		{"deadlock", &pq.Error{Code: "40P01"}, model.ReasonDBConflict},
		{"anything else", errors.New("boom"), model.ReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyError(tt.err))
		})
	}
}
