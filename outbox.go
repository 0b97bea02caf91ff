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
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/folioworks/folio/config"
	"github.com/folioworks/folio/internal/traces"
	"github.com/folioworks/folio/model"
)

// EnqueueRequest describes one entity change to record on the outboxes.
type EnqueueRequest struct {
	EntityType   string   `json:"entity_type"`
	EntityID     string   `json:"entity_id"`
	Op           model.Op `json:"op"`
	EventVersion int64    `json:"event_version"`
}

func (r *EnqueueRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.EntityType, validation.Required, validation.In(
			model.EntityLibrary, model.EntityBookshelf, model.EntityBook, model.EntityBlock)),
		validation.Field(&r.EntityID, validation.Required),
		validation.Field(&r.Op, validation.Required, validation.In(model.OpUpsert, model.OpDelete)),
	)
}

// Enqueue records one change on both projection outboxes inside the caller's
// transaction. The rows commit or vanish together with the business write;
// no change is ever visible on the queue without its entity write.
//
// A zero event version falls back to the microsecond clock.
func (l *Folio) Enqueue(ctx context.Context, tx *sql.Tx, req *EnqueueRequest) error {
	if err := req.Validate(); err != nil {
		return errors.Wrap(err, "invalid enqueue request")
	}

	version := req.EventVersion
	if version == 0 {
		version = model.EventVersionNow(time.Now())
	}
	traceparent, tracestate := traces.Capture(ctx)

	for _, projection := range []string{model.ProjectionSearch, model.ProjectionChronicle} {
		event := &model.OutboxEvent{
			EntityType:   req.EntityType,
			EntityID:     req.EntityID,
			Op:           req.Op,
			EventVersion: version,
			Traceparent:  traceparent,
			Tracestate:   tracestate,
		}
		if err := l.datasource.EnqueueOutbox(ctx, tx, projection, event); err != nil {
			return errors.Wrapf(err, "failed to enqueue %s event", projection)
		}
	}
	return nil
}

// FactRequest is a high-frequency signal (typing, presence) that is
// rate-limited before anything touches the outbox.
type FactRequest struct {
	EventType     string `json:"event_type"`
	BookID        string `json:"book_id"`
	BlockID       string `json:"block_id"`
	ActorID       string `json:"actor_id"`
	WindowSeconds int64  `json:"window_seconds"`
}

func (r *FactRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.EventType, validation.Required),
		validation.Field(&r.BookID, validation.Required),
		validation.Field(&r.ActorID, validation.Required),
		validation.Field(&r.WindowSeconds, validation.Required, validation.Min(1)),
	)
}

// EmitFact reports whether a fact should be emitted now. The first fact in a
// time bucket passes; repeats in the same bucket are suppressed. The check
// and the state advance are a single atomic statement, so two concurrent
// emitters never both pass.
func (l *Folio) EmitFact(ctx context.Context, req *FactRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, errors.Wrap(err, "invalid fact request")
	}

	key := model.DedupeKey{
		EventType:     req.EventType,
		BookID:        req.BookID,
		BlockID:       req.BlockID,
		ActorID:       req.ActorID,
		WindowSeconds: req.WindowSeconds,
	}
	now := time.Now()
	return l.datasource.ShouldEmit(ctx, key, model.BucketFor(now, req.WindowSeconds), now)
}

// Replay flips a failed event back to pending with an audit trail. Returns
// false when the event was not in a replayable state.
func (l *Folio) Replay(ctx context.Context, projection, eventID, replayedBy, reason string) (bool, error) {
	replayed, err := l.datasource.ReplayOutboxEvent(ctx, projection, eventID, replayedBy, reason, time.Now())
	if err != nil {
		return false, err
	}
	if replayed {
		logrus.WithFields(logrus.Fields{
			"projection":  projection,
			"event_id":    eventID,
			"replayed_by": replayedBy,
		}).Info("event replayed")
	}
	return replayed, nil
}

// Reclaim runs one reclaim pass over a projection's outbox, requeueing stuck
// rows and failing the ones that spent their replay budget.
func (l *Folio) Reclaim(ctx context.Context, projection string) (requeued, failed int64, err error) {
	configuration, err := config.Fetch()
	if err != nil {
		return 0, 0, err
	}
	return l.datasource.RequeueStuckEvents(ctx, projection,
		configuration.Pipeline.MaxProcessing(), configuration.Pipeline.MaxReplayCount,
		time.Now(), "reclaimer")
}

// EventDetail is the inspect view of one outbox event: the row itself plus
// the full replay history of its entity.
type EventDetail struct {
	Event   *model.OutboxEvent   `json:"event"`
	History []*model.OutboxEvent `json:"history"`
}

// InspectEvent returns the event with its entity's outbox history, oldest
// first. Returns nil when the event does not exist.
func (l *Folio) InspectEvent(ctx context.Context, projection, eventID string) (*EventDetail, error) {
	event, err := l.datasource.GetOutboxEvent(ctx, projection, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, nil
	}
	history, err := l.datasource.GetOutboxHistory(ctx, projection, event.EntityType, event.EntityID)
	if err != nil {
		return nil, err
	}
	return &EventDetail{Event: event, History: history}, nil
}

// OutboxStats returns status and failure-reason counts for one projection's
// outbox.
func (l *Folio) OutboxStats(ctx context.Context, projection string) (*model.OutboxStats, error) {
	return l.datasource.GetOutboxStats(ctx, projection)
}
