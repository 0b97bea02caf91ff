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
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/folioworks/folio/config"
	"github.com/folioworks/folio/internal/notification"
	"github.com/folioworks/folio/model"
)

// Reclaimer periodically sweeps both outboxes for rows whose claimer died:
// lease expired, or processing for longer than the hard ceiling. Swept rows
// go back to pending unless their replay budget is spent, in which case they
// are failed as timeouts.
type Reclaimer struct {
	folio          *Folio
	interval       time.Duration
	maxProcessing  time.Duration
	maxReplayCount int

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewReclaimer(folio *Folio) *Reclaimer {
	r := &Reclaimer{
		folio:          folio,
		interval:       30 * time.Second,
		maxProcessing:  time.Minute,
		maxReplayCount: 5,
		stopCh:         make(chan struct{}),
	}
	cfg, err := config.Fetch()
	if err == nil {
		r.interval = cfg.Pipeline.ReclaimInterval()
		r.maxProcessing = cfg.Pipeline.MaxProcessing()
		r.maxReplayCount = cfg.Pipeline.MaxReplayCount
	}
	return r
}

func (r *Reclaimer) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()

	logrus.Info("Outbox reclaimer started")
}

func (r *Reclaimer) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
	logrus.Info("Outbox reclaimer stopped")
}

func (r *Reclaimer) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			for _, projection := range []string{model.ProjectionSearch, model.ProjectionChronicle} {
				r.sweep(ctx, projection)
			}
		}
	}
}

func (r *Reclaimer) sweep(ctx context.Context, projection string) {
	requeued, failed, err := r.folio.datasource.RequeueStuckEvents(ctx, projection,
		r.maxProcessing, r.maxReplayCount, time.Now(), "reclaimer")
	if err != nil {
		logrus.WithField("projection", projection).Errorf("reclaim sweep failed: %v", err)
		return
	}
	if requeued > 0 {
		logrus.WithFields(logrus.Fields{
			"projection": projection,
			"requeued":   requeued,
		}).Info("requeued stuck outbox events")
	}
	if failed > 0 {
		notification.NotifyError(fmt.Errorf(
			"%d %s outbox events exhausted their replay budget and were failed as timeouts", failed, projection))
	}
}
