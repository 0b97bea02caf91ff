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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_MONITORING_PORT = "5401"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	MonitoringPort string `json:"monitoring_port" envconfig:"FOLIO_SERVER_MONITORING_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"FOLIO_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"FOLIO_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"FOLIO_REDIS_SKIP_TLS_VERIFY"`
}

// PipelineConfig tunes the outbox workers. Durations are expressed in
// seconds in the config file; the accessors convert them.
type PipelineConfig struct {
	BatchSize          int `json:"batch_size" envconfig:"FOLIO_PIPELINE_BATCH_SIZE"`
	LeaseDurationSec   int `json:"lease_duration_sec" envconfig:"FOLIO_PIPELINE_LEASE_DURATION_SEC"`
	MaxProcessingSec   int `json:"max_processing_sec" envconfig:"FOLIO_PIPELINE_MAX_PROCESSING_SEC"`
	PollIntervalSec    int `json:"poll_interval_sec" envconfig:"FOLIO_PIPELINE_POLL_INTERVAL_SEC"`
	ReclaimIntervalSec int `json:"reclaim_interval_sec" envconfig:"FOLIO_PIPELINE_RECLAIM_INTERVAL_SEC"`
	MaxReplayCount     int `json:"max_replay_count" envconfig:"FOLIO_PIPELINE_MAX_REPLAY_COUNT"`
	MaxWorkers         int `json:"max_workers" envconfig:"FOLIO_PIPELINE_MAX_WORKERS"`
}

func (p PipelineConfig) LeaseDuration() time.Duration {
	return time.Duration(p.LeaseDurationSec) * time.Second
}

func (p PipelineConfig) MaxProcessing() time.Duration {
	return time.Duration(p.MaxProcessingSec) * time.Second
}

func (p PipelineConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSec) * time.Second
}

func (p PipelineConfig) ReclaimInterval() time.Duration {
	return time.Duration(p.ReclaimIntervalSec) * time.Second
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"FOLIO_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"FOLIO_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Pipeline        PipelineConfig   `json:"pipeline"`
	Notification    Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("folio", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called folio.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Folio"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.MonitoringPort = strings.TrimSpace(cnf.Server.MonitoringPort)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.MonitoringPort == "" {
		cnf.Server.MonitoringPort = DEFAULT_MONITORING_PORT
		log.Printf("Warning: Monitoring port not specified in config. Setting default port: %s", DEFAULT_MONITORING_PORT)
	}

	if cnf.Pipeline.BatchSize <= 0 {
		cnf.Pipeline.BatchSize = 100
	}
	if cnf.Pipeline.LeaseDurationSec <= 0 {
		cnf.Pipeline.LeaseDurationSec = 30
	}
	// The stuck threshold stays at or above the lease so a slow but alive
	// worker is not starved by the reclaimer.
	if cnf.Pipeline.MaxProcessingSec < cnf.Pipeline.LeaseDurationSec {
		cnf.Pipeline.MaxProcessingSec = 2 * cnf.Pipeline.LeaseDurationSec
	}
	if cnf.Pipeline.PollIntervalSec <= 0 {
		cnf.Pipeline.PollIntervalSec = 1
	}
	if cnf.Pipeline.ReclaimIntervalSec <= 0 {
		cnf.Pipeline.ReclaimIntervalSec = cnf.Pipeline.LeaseDurationSec
	}
	if cnf.Pipeline.MaxReplayCount <= 0 {
		cnf.Pipeline.MaxReplayCount = 5
	}
	if cnf.Pipeline.MaxWorkers <= 0 {
		cnf.Pipeline.MaxWorkers = 4
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	_ = mockConfig.validateAndAddDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
