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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	folio "github.com/folioworks/folio"
	"github.com/folioworks/folio/config"
	"github.com/folioworks/folio/database"
	"github.com/folioworks/folio/internal/notification"
)

// Folio represents the CLI application, encapsulating the root Cobra command.
type Folio struct {
	cmd *cobra.Command
}

// folioInstance holds the runtime Folio instance and its configuration,
// shared by all subcommands through the persistent pre-run hook.
type folioInstance struct {
	folio *folio.Folio
	cnf   *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration and initializes the Folio instance before any
// subcommand executes.
func preRun(app *folioInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("folio.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newFolio, err := setupFolio(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.folio = newFolio
		app.cnf = cnf
		return nil
	}
}

func setupFolio(cfg *config.Configuration) (*folio.Folio, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}
	newFolio, err := folio.NewFolio(db)
	if err != nil {
		return nil, fmt.Errorf("error creating folio: %v", err)
	}
	return newFolio, nil
}

// NewCLI creates the command-line interface for the Folio pipeline.
func NewCLI() *Folio {
	var configFile string
	f := &folioInstance{}

	var rootCmd = &cobra.Command{
		Use:   "folio",
		Short: "Projection pipeline for the Folio knowledge backend",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./folio.json", "Configuration file for folio")
	rootCmd.PersistentPreRunE = preRun(f)

	rootCmd.AddCommand(workerCommands(f))
	rootCmd.AddCommand(migrateCommands(f))
	rootCmd.AddCommand(rebuildCommands(f))
	rootCmd.AddCommand(replayCommands(f))
	rootCmd.AddCommand(reclaimCommands(f))
	rootCmd.AddCommand(inspectCommands(f))

	return &Folio{cmd: rootCmd}
}

func (w Folio) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
