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
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/folioworks/folio/config"
	"github.com/folioworks/folio/model"
)

// OutboxWorker drains one projection's outbox: claim a batch, project each
// event on a bounded pool, repeat. Several workers may run against the same
// table; SKIP LOCKED keeps their batches disjoint.
type OutboxWorker struct {
	folio      *Folio
	projection string

	batchSize    int
	maxWorkers   int
	lease        time.Duration
	pollInterval time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewOutboxWorker(folio *Folio, projection string) *OutboxWorker {
	w := &OutboxWorker{
		folio:        folio,
		projection:   projection,
		batchSize:    100,
		maxWorkers:   4,
		lease:        30 * time.Second,
		pollInterval: time.Second,
		stopCh:       make(chan struct{}),
	}
	cfg, err := config.Fetch()
	if err == nil {
		w.batchSize = cfg.Pipeline.BatchSize
		w.maxWorkers = cfg.Pipeline.MaxWorkers
		w.lease = cfg.Pipeline.LeaseDuration()
		w.pollInterval = cfg.Pipeline.PollInterval()
	}
	return w
}

func (w *OutboxWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()

	logrus.WithField("projection", w.projection).Info("Outbox worker started")
}

func (w *OutboxWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	logrus.WithField("projection", w.projection).Info("Outbox worker stopped")
}

func (w *OutboxWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *OutboxWorker) run(ctx context.Context) {
	// Idle polling backs off with jitter so a fleet of workers does not
	// hammer an empty table in lockstep. Any non-empty batch resets it.
	idle := backoff.NewExponentialBackOff()
	idle.InitialInterval = w.pollInterval
	idle.MaxInterval = 10 * w.pollInterval
	idle.MaxElapsedTime = 0
	idle.Reset()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		processed, err := w.ProcessBatch(ctx)
		if err != nil {
			logrus.WithField("projection", w.projection).Errorf("outbox batch failed: %v", err)
		}
		if processed > 0 {
			idle.Reset()
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-time.After(idle.NextBackOff()):
		}
	}
}

// ProcessBatch claims and projects one batch, returning how many events were
// claimed. Exposed for the monitoring API's manual drain trigger.
func (w *OutboxWorker) ProcessBatch(ctx context.Context) (int, error) {
	events, err := w.folio.datasource.ClaimOutboxEvents(ctx, w.projection, w.batchSize, w.lease, time.Now())
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, w.maxWorkers)
	var batchWg sync.WaitGroup
	for _, event := range events {
		sem <- struct{}{}
		batchWg.Add(1)
		go func(event *model.OutboxEvent) {
			defer batchWg.Done()
			defer func() { <-sem }()

			// Cap each event at the lease so a hung projection cannot hold
			// a claim past its expiry.
			eventCtx, cancel := context.WithTimeout(ctx, w.lease)
			defer cancel()
			if err := w.folio.projector.Process(eventCtx, w.projection, event); err != nil {
				logrus.WithFields(logrus.Fields{
					"projection": w.projection,
					"event_id":   event.EventID,
				}).Warnf("event left for reclaim: %v", err)
			}
		}(event)
	}
	batchWg.Wait()
	return len(events), nil
}
