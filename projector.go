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
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/folioworks/folio/database"
	"github.com/folioworks/folio/internal/traces"
	"github.com/folioworks/folio/model"
)

var tracer = otel.Tracer("folio.projector")

// sourceResolver loads one entity row and renders it for a projection.
// Handlers are looked up by entity_type; an event with an unregistered type
// fails as payload_invalid without retry.
type sourceResolver struct {
	searchEntry    func(ctx context.Context, ds database.IDataSource, event *model.OutboxEvent) (*model.SearchIndexEntry, error)
	chronicleEntry func(ctx context.Context, ds database.IDataSource, event *model.OutboxEvent) (*model.ChronicleEntry, error)
}

// errEntityMissing marks an upsert whose source row is gone. The row will
// usually be followed by a tombstone event; the failure is recorded as
// entity_missing and left for manual replay or the tombstone to settle.
var errEntityMissing = errors.New("source entity not found")

// Projector drains claimed outbox events into the read-side tables. It is
// stateless; any number of workers can share one instance.
type Projector struct {
	datasource database.IDataSource
	resolvers  map[string]sourceResolver
}

func NewProjector(ds database.IDataSource) *Projector {
	p := &Projector{datasource: ds, resolvers: make(map[string]sourceResolver)}
	p.resolvers[model.EntityLibrary] = sourceResolver{searchEntry: libSearchEntry, chronicleEntry: libChronicleEntry}
	p.resolvers[model.EntityBookshelf] = sourceResolver{searchEntry: shelfSearchEntry, chronicleEntry: shelfChronicleEntry}
	p.resolvers[model.EntityBook] = sourceResolver{searchEntry: bookSearchEntry, chronicleEntry: bookChronicleEntry}
	p.resolvers[model.EntityBlock] = sourceResolver{searchEntry: blockSearchEntry, chronicleEntry: blockChronicleEntry}
	return p
}

// Process applies one claimed event to its projection and finalizes the
// outbox row. Every outcome except a transient error ends with the row
// marked done or failed; the caller only retries when err is non-nil.
func (p *Projector) Process(ctx context.Context, projection string, event *model.OutboxEvent) error {
	ctx = traces.Resume(ctx, event.Traceparent, event.Tracestate)
	ctx, span := tracer.Start(ctx, "Project outbox event", trace.WithAttributes(
		attribute.String("projection", projection),
		attribute.String("event.id", event.EventID),
		attribute.String("event.entity_type", event.EntityType),
		attribute.String("event.op", string(event.Op)),
	))
	defer span.End()

	err := p.apply(ctx, projection, event)
	if err == nil {
		marked, markErr := p.datasource.MarkOutboxDone(ctx, projection, event.EventID, time.Now())
		if markErr != nil {
			return markErr
		}
		if !marked {
			// A competing claimer finished first; the work was idempotent.
			logrus.WithField("event_id", event.EventID).Debug("event already finalized")
		}
		return nil
	}

	reason := classifyError(err)
	span.RecordError(err)
	if reason.Transient() {
		// Leave the row in processing; the reclaimer requeues it once the
		// lease expires, or fails it after the replay budget.
		logrus.WithFields(logrus.Fields{
			"projection": projection,
			"event_id":   event.EventID,
			"reason":     reason,
		}).Warnf("transient projection error: %v", err)
		return err
	}

	if markErr := p.datasource.MarkOutboxFailed(ctx, projection, event.EventID, reason); markErr != nil {
		return markErr
	}
	logrus.WithFields(logrus.Fields{
		"projection": projection,
		"event_id":   event.EventID,
		"reason":     reason,
	}).Errorf("projection failed: %v", err)
	return nil
}

func (p *Projector) apply(ctx context.Context, projection string, event *model.OutboxEvent) error {
	if event.Op == model.OpDelete {
		return p.applyDelete(ctx, projection, event)
	}

	resolver, ok := p.resolvers[event.EntityType]
	if !ok {
		return errors.Wrapf(errPayloadInvalid, "unknown entity type %q", event.EntityType)
	}

	switch projection {
	case model.ProjectionSearch:
		entry, err := resolver.searchEntry(ctx, p.datasource, event)
		if err != nil {
			return err
		}
		_, err = p.datasource.UpsertSearchEntry(ctx, entry)
		return err
	case model.ProjectionChronicle:
		entry, err := resolver.chronicleEntry(ctx, p.datasource, event)
		if err != nil {
			return err
		}
		_, err = p.datasource.UpsertChronicleEntry(ctx, entry)
		return err
	default:
		return fmt.Errorf("unknown projection %q", projection)
	}
}

func (p *Projector) applyDelete(ctx context.Context, projection string, event *model.OutboxEvent) error {
	var err error
	switch projection {
	case model.ProjectionSearch:
		_, err = p.datasource.DeleteSearchEntry(ctx, event.EntityType, event.EntityID, event.EventVersion)
	case model.ProjectionChronicle:
		_, err = p.datasource.DeleteChronicleEntry(ctx, event.EntityType, event.EntityID, event.EventVersion)
	default:
		err = fmt.Errorf("unknown projection %q", projection)
	}
	return err
}

var errPayloadInvalid = errors.New("payload invalid")

// classifyError maps an error to the bounded reason set recorded on failed
// rows. Transient reasons get retried by the reclaimer; data reasons wait
// for a manual replay.
func classifyError(err error) model.ErrorReason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errEntityMissing):
		return model.ReasonEntityMissing
	case errors.Is(err, errPayloadInvalid):
		return model.ReasonPayloadInvalid
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return model.ReasonTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.ReasonTimeout
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case strings.HasPrefix(string(pqErr.Code), "23"): // integrity violations
			return model.ReasonDBConflict
		case pqErr.Code == "40001", pqErr.Code == "40P01": // serialization, deadlock
			return model.ReasonDBConflict
		case pqErr.Code == "57014": // statement timeout
			return model.ReasonTimeout
		}
	}

	var jsonErr *json.SyntaxError
	if errors.As(err, &jsonErr) {
		return model.ReasonPayloadInvalid
	}
	return model.ReasonUnknown
}

// Entry builders. Each one re-reads the authoritative row so the projection
// always reflects current state, not the state at enqueue time.

func libSearchEntry(ctx context.Context, ds database.IDataSource, event *model.OutboxEvent) (*model.SearchIndexEntry, error) {
	lib, err := ds.GetLibrary(ctx, event.EntityID)
	if err != nil {
		return nil, err
	}
	if lib == nil {
		return nil, errEntityMissing
	}
	return &model.SearchIndexEntry{
		EntityType:     model.EntityLibrary,
		EntityID:       lib.LibraryID,
		LibraryID:      lib.LibraryID,
		EventVersion:   event.EventVersion,
		SearchableText: model.JoinSearchable(lib.Name, lib.Description),
		UpdatedAt:      time.Now(),
	}, nil
}

func shelfSearchEntry(ctx context.Context, ds database.IDataSource, event *model.OutboxEvent) (*model.SearchIndexEntry, error) {
	shelf, err := ds.GetBookshelf(ctx, event.EntityID)
	if err != nil {
		return nil, err
	}
	if shelf == nil {
		return nil, errEntityMissing
	}
	return &model.SearchIndexEntry{
		EntityType:     model.EntityBookshelf,
		EntityID:       shelf.BookshelfID,
		LibraryID:      shelf.LibraryID,
		EventVersion:   event.EventVersion,
		SearchableText: model.JoinSearchable(shelf.Name, shelf.Description),
		UpdatedAt:      time.Now(),
	}, nil
}

func bookSearchEntry(ctx context.Context, ds database.IDataSource, event *model.OutboxEvent) (*model.SearchIndexEntry, error) {
	book, err := ds.GetBook(ctx, event.EntityID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, errEntityMissing
	}
	parts := append([]string{book.Title, book.Summary}, book.Tags...)
	return &model.SearchIndexEntry{
		EntityType:     model.EntityBook,
		EntityID:       book.BookID,
		LibraryID:      book.LibraryID,
		EventVersion:   event.EventVersion,
		SearchableText: model.JoinSearchable(parts...),
		Metadata:       map[string]interface{}{"bookshelf_id": book.BookshelfID, "tags": book.Tags},
		UpdatedAt:      time.Now(),
	}, nil
}

func blockSearchEntry(ctx context.Context, ds database.IDataSource, event *model.OutboxEvent) (*model.SearchIndexEntry, error) {
	block, err := ds.GetBlock(ctx, event.EntityID)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, errEntityMissing
	}
	return &model.SearchIndexEntry{
		EntityType:     model.EntityBlock,
		EntityID:       block.BlockID,
		LibraryID:      block.LibraryID,
		EventVersion:   event.EventVersion,
		SearchableText: model.JoinSearchable(block.Content),
		Metadata:       map[string]interface{}{"book_id": block.BookID, "kind": block.Kind},
		UpdatedAt:      time.Now(),
	}, nil
}

// Chronicle builders. The outbox event carries no actor envelope, so the
// actor comes from the row's updated_by and the remaining envelope fields
// are backfilled with "unknown".

func chronicleFrom(event *model.OutboxEvent, libraryID, actorID string, occurredAt time.Time) *model.ChronicleEntry {
	if actorID == "" {
		actorID = model.EnvelopeUnknown
	}
	return &model.ChronicleEntry{
		EntityType:   event.EntityType,
		EntityID:     event.EntityID,
		LibraryID:    libraryID,
		EventVersion: event.EventVersion,
		Action:       "updated",
		ActorID:      actorID,
		ActorKind:    model.EnvelopeUnknown,
		Provenance:   model.EnvelopeUnknown,
		Source:       model.EnvelopeUnknown,
		OccurredAt:   occurredAt,
		UpdatedAt:    time.Now(),
	}
}

func libChronicleEntry(ctx context.Context, ds database.IDataSource, event *model.OutboxEvent) (*model.ChronicleEntry, error) {
	lib, err := ds.GetLibrary(ctx, event.EntityID)
	if err != nil {
		return nil, err
	}
	if lib == nil {
		return nil, errEntityMissing
	}
	return chronicleFrom(event, lib.LibraryID, lib.UpdatedBy, lib.UpdatedAt), nil
}

func shelfChronicleEntry(ctx context.Context, ds database.IDataSource, event *model.OutboxEvent) (*model.ChronicleEntry, error) {
	shelf, err := ds.GetBookshelf(ctx, event.EntityID)
	if err != nil {
		return nil, err
	}
	if shelf == nil {
		return nil, errEntityMissing
	}
	return chronicleFrom(event, shelf.LibraryID, shelf.UpdatedBy, shelf.UpdatedAt), nil
}

func bookChronicleEntry(ctx context.Context, ds database.IDataSource, event *model.OutboxEvent) (*model.ChronicleEntry, error) {
	book, err := ds.GetBook(ctx, event.EntityID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, errEntityMissing
	}
	return chronicleFrom(event, book.LibraryID, book.UpdatedBy, book.UpdatedAt), nil
}

func blockChronicleEntry(ctx context.Context, ds database.IDataSource, event *model.OutboxEvent) (*model.ChronicleEntry, error) {
	block, err := ds.GetBlock(ctx, event.EntityID)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, errEntityMissing
	}
	return chronicleFrom(event, block.LibraryID, block.UpdatedBy, block.UpdatedAt), nil
}
