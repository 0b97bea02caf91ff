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
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	redlock "github.com/folioworks/folio/internal/lock"
	"github.com/folioworks/folio/internal/notification"
	"github.com/folioworks/folio/model"
)

const (
	rebuildPageSize = 500
	rebuildLockTTL  = 10 * time.Minute
)

// ErrEnvironmentRefused is returned when the environment sentinel is absent
// or its environment is not in the caller's allow-list. Destructive admin
// work never proceeds past it.
var ErrEnvironmentRefused = errors.New("environment sentinel refused the operation")

// RebuildResult summarizes one full rebuild for the CLI.
type RebuildResult struct {
	Projection string        `json:"projection"`
	Entities   int           `json:"entities"`
	Applied    int           `json:"applied"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"duration"`
}

// CheckEnvironment reads the sentinel and verifies it against the allow-list.
// A missing sentinel refuses: an unseeded database is treated as production.
func (l *Folio) CheckEnvironment(ctx context.Context, allowedEnvs ...string) error {
	sentinel, err := l.datasource.GetEnvironmentSentinel(ctx)
	if err != nil {
		return err
	}
	if sentinel == nil {
		return errors.Wrap(ErrEnvironmentRefused, "no environment sentinel found")
	}
	if !sentinel.Allows(allowedEnvs...) {
		return errors.Wrapf(ErrEnvironmentRefused, "environment %q not in allow-list %v", sentinel.Env, allowedEnvs)
	}
	return nil
}

// RebuildProjection re-derives one projection from the authoritative tables.
// The rebuild runs under a Redis lock so only one runs per projection, and
// every write goes through the same guarded upserts the live pipeline uses:
// rows already advanced past the source snapshot by live traffic are left
// alone. Source rows are streamed in pages; the projection is never
// truncated, so reads stay serviceable throughout.
func (l *Folio) RebuildProjection(ctx context.Context, projection string, allowedEnvs ...string) (*RebuildResult, error) {
	if projection != model.ProjectionSearch && projection != model.ProjectionChronicle {
		return nil, fmt.Errorf("unknown projection %q", projection)
	}
	if err := l.CheckEnvironment(ctx, allowedEnvs...); err != nil {
		return nil, err
	}

	locker := redlock.NewLocker(l.redis, fmt.Sprintf("folio:rebuild:%s", projection), model.GenerateUUIDWithSuffix("loc"))
	if err := locker.Lock(ctx, rebuildLockTTL); err != nil {
		return nil, errors.Wrap(err, "another rebuild is already running")
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Errorf("failed to release rebuild lock: %v", err)
		}
	}()

	started := time.Now()
	if err := l.datasource.StartRebuild(ctx, projection, started); err != nil {
		return nil, err
	}

	result := &RebuildResult{Projection: projection}
	err := l.streamSources(ctx, projection, locker, result)

	finished := time.Now()
	result.Duration = finished.Sub(started)
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	if finishErr := l.datasource.FinishRebuild(ctx, projection, finished, finished.Sub(started).Seconds(), err == nil, errMsg); finishErr != nil {
		logrus.Errorf("failed to record rebuild finish: %v", finishErr)
	}

	if err != nil {
		notification.NotifyError(fmt.Errorf("%s rebuild failed after %d entities: %w", projection, result.Entities, err))
		return result, err
	}

	logrus.WithFields(logrus.Fields{
		"projection": projection,
		"entities":   result.Entities,
		"applied":    result.Applied,
		"skipped":    result.Skipped,
		"duration":   result.Duration,
	}).Info("projection rebuild complete")
	return result, nil
}

// streamSources walks every source table keyset-style: each page resumes
// strictly after the last primary key applied, so a concurrent delete of an
// earlier row cannot shift a surviving row past a page boundary. The lock is
// re-extended after every page so a rebuild that outlives the initial TTL
// keeps its exclusivity.
func (l *Folio) streamSources(ctx context.Context, projection string, locker *redlock.Locker, result *RebuildResult) error {
	for entityType := range l.projector.resolvers {
		after := ""
		for {
			events, err := l.pageEvents(ctx, entityType, after, rebuildPageSize)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				break
			}
			for _, event := range events {
				applied, err := l.applyRebuildEvent(ctx, projection, event)
				if err != nil {
					return err
				}
				result.Entities++
				if applied {
					result.Applied++
				} else {
					result.Skipped++
				}
			}
			after = events[len(events)-1].EntityID
			if err := locker.ExtendLock(ctx, rebuildLockTTL); err != nil {
				return errors.Wrap(err, "rebuild lock lost mid-stream")
			}
		}
	}
	return nil
}

// pageEvents renders one page of authoritative rows as synthetic upsert
// events, resuming strictly after afterID. The event version is derived from
// the row's updated_at, so a live event enqueued after the rebuild read
// always carries a higher version and wins the guarded upsert.
func (l *Folio) pageEvents(ctx context.Context, entityType, afterID string, limit int) ([]*model.OutboxEvent, error) {
	var events []*model.OutboxEvent
	add := func(entityID string, updatedAt time.Time) {
		events = append(events, &model.OutboxEvent{
			EntityType:   entityType,
			EntityID:     entityID,
			Op:           model.OpUpsert,
			EventVersion: model.EventVersionNow(updatedAt),
		})
	}

	switch entityType {
	case model.EntityLibrary:
		libs, err := l.datasource.GetLibrariesPaginated(ctx, afterID, limit)
		if err != nil {
			return nil, err
		}
		for _, lib := range libs {
			add(lib.LibraryID, lib.UpdatedAt)
		}
	case model.EntityBookshelf:
		shelves, err := l.datasource.GetBookshelvesPaginated(ctx, afterID, limit)
		if err != nil {
			return nil, err
		}
		for _, shelf := range shelves {
			add(shelf.BookshelfID, shelf.UpdatedAt)
		}
	case model.EntityBook:
		books, err := l.datasource.GetBooksPaginated(ctx, afterID, limit)
		if err != nil {
			return nil, err
		}
		for _, book := range books {
			add(book.BookID, book.UpdatedAt)
		}
	case model.EntityBlock:
		blocks, err := l.datasource.GetBlocksPaginated(ctx, afterID, limit)
		if err != nil {
			return nil, err
		}
		for _, block := range blocks {
			add(block.BlockID, block.UpdatedAt)
		}
	default:
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
	return events, nil
}

func (l *Folio) applyRebuildEvent(ctx context.Context, projection string, event *model.OutboxEvent) (bool, error) {
	resolver := l.projector.resolvers[event.EntityType]
	switch projection {
	case model.ProjectionSearch:
		entry, err := resolver.searchEntry(ctx, l.datasource, event)
		if err != nil {
			if errors.Is(err, errEntityMissing) {
				// Row deleted between the page read and the resolve; the
				// live tombstone handles it.
				return false, nil
			}
			return false, err
		}
		return l.datasource.UpsertSearchEntry(ctx, entry)
	case model.ProjectionChronicle:
		entry, err := resolver.chronicleEntry(ctx, l.datasource, event)
		if err != nil {
			if errors.Is(err, errEntityMissing) {
				return false, nil
			}
			return false, err
		}
		return l.datasource.UpsertChronicleEntry(ctx, entry)
	default:
		return false, fmt.Errorf("unknown projection %q", projection)
	}
}

// ProjectionStatus returns the rebuild bookkeeping row for one projection.
func (l *Folio) ProjectionStatus(ctx context.Context, projection string) (*model.ProjectionStatus, error) {
	return l.datasource.GetProjectionStatus(ctx, projection)
}
