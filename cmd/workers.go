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

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/spf13/cobra"

	folio "github.com/folioworks/folio"
	"github.com/folioworks/folio/api"
	"github.com/folioworks/folio/config"
	trace "github.com/folioworks/folio/internal/traces"
	"github.com/folioworks/folio/model"
)

// sendHeartbeat maintains a periodic heartbeat to PostHog.
func sendHeartbeat(client posthog.Client, heartbeatID string) {
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		for range ticker.C {
			if err := client.Enqueue(posthog.Capture{
				DistinctId: heartbeatID,
				Event:      "worker_heartbeat",
				Properties: map[string]interface{}{
					"timestamp": time.Now().UTC(),
				},
			}); err != nil {
				log.Printf("Failed to send heartbeat: %v", err)
			}
		}
	}()
}

func initializePostHog() (posthog.Client, string) {
	client, _ := posthog.NewWithConfig("phc_Qn4XzNyCl6Wh7gpTqvxzdTm8wBdGWq09vUZFeN0bBmA",
		posthog.Config{Endpoint: "https://us.i.posthog.com"})
	heartbeatID := uuid.New().String()
	sendHeartbeat(client, heartbeatID)
	return client, heartbeatID
}

func initializeObservability(ctx context.Context, cfg *config.Configuration) (posthog.Client, func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return nil, func(context.Context) error { return nil }, nil
	}

	shutdown, err := trace.SetupOTelSDK(ctx, "FOLIO")
	if err != nil {
		return nil, nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}

	phClient, _ := initializePostHog()
	return phClient, shutdown, nil
}

// workerCommands starts the full pipeline: one outbox worker per projection,
// the reclaimer, and the monitoring HTTP surface. They run until SIGINT or
// SIGTERM, then drain.
func workerCommands(b *folioInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start the outbox workers, reclaimer and monitoring server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			phClient, shutdown, err := initializeObservability(ctx, b.cnf)
			if err != nil {
				log.Fatal(err)
			}
			if shutdown != nil {
				defer func() {
					if err := shutdown(ctx); err != nil {
						log.Printf("Error during shutdown: %v", err)
					}
				}()
			}
			if phClient != nil {
				defer phClient.Close()
			}

			searchWorker := folio.NewOutboxWorker(b.folio, model.ProjectionSearch)
			chronicleWorker := folio.NewOutboxWorker(b.folio, model.ProjectionChronicle)
			reclaimer := folio.NewReclaimer(b.folio)

			searchWorker.Start(ctx)
			chronicleWorker.Start(ctx)
			reclaimer.Start(ctx)

			router := api.NewAPI(b.folio).Router()
			go func() {
				log.Printf("Starting monitoring server on http://localhost:%s", b.cnf.Server.MonitoringPort)
				if err := router.Run(":" + b.cnf.Server.MonitoringPort); err != nil {
					log.Printf("monitoring server stopped: %v", err)
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			log.Println("Shutting down workers...")
			searchWorker.Stop()
			chronicleWorker.Stop()
			reclaimer.Stop()
		},
	}
	return cmd
}
