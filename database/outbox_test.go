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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/folioworks/folio/model"
)

func TestEnqueueOutbox_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO folio.search_outbox").
		WithArgs(sqlmock.AnyArg(), "block", "blk_123", "upsert", int64(42), "pending", sqlmock.AnyArg(), "00-abc-def-01", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	assert.NoError(t, err)

	event := &model.OutboxEvent{
		EntityType:   model.EntityBlock,
		EntityID:     "blk_123",
		Op:           model.OpUpsert,
		EventVersion: 42,
		Traceparent:  "00-abc-def-01",
	}
	err = ds.EnqueueOutbox(context.Background(), tx, model.ProjectionSearch, event)
	assert.NoError(t, err)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, model.StatusPending, event.Status)
	assert.WithinDuration(t, time.Now(), event.CreatedAt, time.Second)

	assert.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueOutbox_UnknownProjection(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	err = ds.EnqueueOutbox(context.Background(), tx, "sideboard", &model.OutboxEvent{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown projection")
}

func TestClaimOutboxEvents_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	now := time.Now()
	lease := 30 * time.Second
	cols := []string{"id", "event_id", "entity_type", "entity_id", "op", "event_version", "status",
		"created_at", "processing_started_at", "lease_until", "replay_count", "traceparent", "tracestate"}

	// RETURNING order is not guaranteed; rows come back newest first here
	// and must be restored to (created_at, id) order. evt_z and evt_c share
	// a created_at and their uuids sort against their serial ids, so only
	// the id tiebreak reproduces the claim order.
	rows := sqlmock.NewRows(cols).
		AddRow(int64(7), "evt_z", "block", "blk_2", "upsert", int64(2), "processing", now, now, now.Add(lease), 0, "", "").
		AddRow(int64(9), "evt_c", "block", "blk_3", "upsert", int64(3), "processing", now, now, now.Add(lease), 0, "", "").
		AddRow(int64(3), "evt_a", "book", "bk_1", "upsert", int64(1), "processing", now.Add(-time.Minute), now, now.Add(lease), 0, "", "")

	mock.ExpectQuery("UPDATE folio.search_outbox").
		WithArgs(100, now, now.Add(lease)).
		WillReturnRows(rows)

	events, err := ds.ClaimOutboxEvents(context.Background(), model.ProjectionSearch, 100, lease, now)
	assert.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, "evt_a", events[0].EventID)
	assert.Equal(t, "evt_z", events[1].EventID)
	assert.Equal(t, "evt_c", events[2].EventID)
	assert.Equal(t, model.StatusProcessing, events[0].Status)
	assert.NotNil(t, events[0].LeaseUntil)
}

func TestClaimOutboxEvents_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	now := time.Now()
	cols := []string{"id", "event_id", "entity_type", "entity_id", "op", "event_version", "status",
		"created_at", "processing_started_at", "lease_until", "replay_count", "traceparent", "tracestate"}

	mock.ExpectQuery("UPDATE folio.chronicle_outbox").
		WithArgs(50, now, now.Add(time.Minute)).
		WillReturnRows(sqlmock.NewRows(cols))

	events, err := ds.ClaimOutboxEvents(context.Background(), model.ProjectionChronicle, 50, time.Minute, now)
	assert.NoError(t, err)
	assert.Len(t, events, 0)
}

func TestRequeueStuckEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	now := time.Now()
	maxProcessing := 60 * time.Second
	startedBefore := now.Add(-maxProcessing)

	mock.ExpectExec("UPDATE folio.search_outbox").
		WithArgs(now, startedBefore, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE folio.search_outbox").
		WithArgs(now, startedBefore, now, "reclaimer", 5).
		WillReturnResult(sqlmock.NewResult(0, 3))

	requeued, failed, err := ds.RequeueStuckEvents(context.Background(), model.ProjectionSearch, maxProcessing, 5, now, "reclaimer")
	assert.NoError(t, err)
	assert.Equal(t, int64(3), requeued)
	assert.Equal(t, int64(1), failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkOutboxDone_Idempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	now := time.Now()
	mock.ExpectExec("UPDATE folio.search_outbox").
		WithArgs("evt_1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE folio.search_outbox").
		WithArgs("evt_1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	marked, err := ds.MarkOutboxDone(context.Background(), model.ProjectionSearch, "evt_1", now)
	assert.NoError(t, err)
	assert.True(t, marked)

	// Second mark hits the processed_at guard and affects nothing.
	marked, err = ds.MarkOutboxDone(context.Background(), model.ProjectionSearch, "evt_1", now)
	assert.NoError(t, err)
	assert.False(t, marked)
}

func TestMarkOutboxFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE folio.chronicle_outbox").
		WithArgs("evt_1", "entity_missing").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.MarkOutboxFailed(context.Background(), model.ProjectionChronicle, "evt_1", model.ReasonEntityMissing)
	assert.NoError(t, err)
}

func TestReplayOutboxEvent_OnlyFailedRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	now := time.Now()
	mock.ExpectExec("UPDATE folio.search_outbox").
		WithArgs("evt_1", now, "ops@folio", "manual investigation").
		WillReturnResult(sqlmock.NewResult(0, 0))

	replayed, err := ds.ReplayOutboxEvent(context.Background(), model.ProjectionSearch, "evt_1", "ops@folio", "manual investigation", now)
	assert.NoError(t, err)
	assert.False(t, replayed)
}

func TestGetOutboxEvent_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT (.+) FROM folio.search_outbox").
		WithArgs("evt_missing").
		WillReturnError(sql.ErrNoRows)

	event, err := ds.GetOutboxEvent(context.Background(), model.ProjectionSearch, "evt_missing")
	assert.NoError(t, err)
	assert.Nil(t, event)
}

func TestGetOutboxStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", int64(12)).
			AddRow("failed", int64(2)))
	mock.ExpectQuery("SELECT error_reason, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"error_reason", "count"}).
			AddRow("timeout", int64(1)).
			AddRow("entity_missing", int64(1)))

	stats, err := ds.GetOutboxStats(context.Background(), model.ProjectionSearch)
	assert.NoError(t, err)
	assert.Equal(t, int64(12), stats.ByStatus["pending"])
	assert.Equal(t, int64(1), stats.ByReason[model.ReasonTimeout])
	assert.Equal(t, int64(1), stats.ByReason[model.ReasonEntityMissing])
}
