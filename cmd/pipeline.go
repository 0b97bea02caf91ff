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
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/user"

	"github.com/spf13/cobra"
)

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(out))
}

func currentOperator() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}

// rebuildCommands re-derives a projection from the authoritative tables.
// The environment sentinel gates it: the operator must name the environments
// the rebuild is allowed to touch, and the database's own sentinel row must
// match one of them.
func rebuildCommands(b *folioInstance) *cobra.Command {
	var allowedEnvs []string

	cmd := &cobra.Command{
		Use:   "rebuild [search|chronicle]",
		Short: "rebuild a projection from the source tables",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			projection := args[0]
			result, err := b.folio.RebuildProjection(context.Background(), projection, allowedEnvs...)
			if err != nil {
				fmt.Fprintf(os.Stderr, "rebuild refused or failed: %v\n", err)
				os.Exit(1)
			}
			printJSON(result)
		},
	}
	cmd.Flags().StringSliceVar(&allowedEnvs, "env", nil,
		"environments the rebuild may run against, checked against the database sentinel")
	_ = cmd.MarkFlagRequired("env")
	return cmd
}

func replayCommands(b *folioInstance) *cobra.Command {
	var reason string
	var replayedBy string

	cmd := &cobra.Command{
		Use:   "replay [search|chronicle] [event-id]",
		Short: "replay a failed outbox event",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			if reason == "" {
				fmt.Fprintln(os.Stderr, "a --reason is required; it becomes part of the replay audit trail")
				os.Exit(1)
			}
			if replayedBy == "" {
				replayedBy = currentOperator()
			}

			replayed, err := b.folio.Replay(context.Background(), args[0], args[1], replayedBy, reason)
			if err != nil {
				fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
				os.Exit(1)
			}
			if !replayed {
				fmt.Fprintln(os.Stderr, "event is not in a replayable state (must be failed and unprocessed)")
				os.Exit(1)
			}
			fmt.Printf("event %s requeued\n", args[1])
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why this event is being replayed (required)")
	cmd.Flags().StringVar(&replayedBy, "by", "", "operator identity (defaults to the current user)")
	return cmd
}

func reclaimCommands(b *folioInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reclaim [search|chronicle]",
		Short: "run one reclaim pass over stuck outbox events",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			requeued, failed, err := b.folio.Reclaim(context.Background(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "reclaim failed: %v\n", err)
				os.Exit(1)
			}
			printJSON(map[string]int64{"requeued": requeued, "failed": failed})
		},
	}
	return cmd
}

// inspectCommands shows an event with its entity's outbox history, or the
// whole table's stats when called without an event id.
func inspectCommands(b *folioInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [search|chronicle] [event-id]",
		Short: "inspect an outbox event, or outbox stats without an event id",
		Args:  cobra.RangeArgs(1, 2),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			projection := args[0]

			if len(args) == 1 {
				stats, err := b.folio.OutboxStats(ctx, projection)
				if err != nil {
					fmt.Fprintf(os.Stderr, "inspect failed: %v\n", err)
					os.Exit(1)
				}
				printJSON(stats)
				return
			}

			detail, err := b.folio.InspectEvent(ctx, projection, args[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "inspect failed: %v\n", err)
				os.Exit(1)
			}
			if detail == nil {
				fmt.Fprintf(os.Stderr, "event %s not found in %s outbox\n", args[1], projection)
				os.Exit(1)
			}
			printJSON(detail)
		},
	}
	return cmd
}
