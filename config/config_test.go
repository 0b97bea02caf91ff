package config

import (
	"encoding/json"
	"os"
	"testing"
	"time"
)

func TestValidateAndAddDefaults(t *testing.T) {
	// Test case with empty ProjectName and DataSource DNS
	cnf := Configuration{
		ProjectName: "",
		DataSource: DataSourceConfig{
			Dns: "",
		},
	}

	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}

	// Test case with all required fields filled, expect no error
	cnf = Configuration{
		ProjectName: "Test Project",
		DataSource: DataSourceConfig{
			Dns: "some-dns",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	// Test default monitoring port setting
	cnf.Server.MonitoringPort = ""
	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if cnf.Server.MonitoringPort != DEFAULT_MONITORING_PORT {
		t.Errorf("Expected default port %s, got %s", DEFAULT_MONITORING_PORT, cnf.Server.MonitoringPort)
	}
}

func TestPipelineDefaults(t *testing.T) {
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "some-dns"},
	}
	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cnf.Pipeline.BatchSize != 100 {
		t.Errorf("Expected default batch size 100, got %d", cnf.Pipeline.BatchSize)
	}
	if cnf.Pipeline.LeaseDuration() != 30*time.Second {
		t.Errorf("Expected default lease 30s, got %v", cnf.Pipeline.LeaseDuration())
	}
	if cnf.Pipeline.MaxProcessing() != 60*time.Second {
		t.Errorf("Expected default max processing 60s, got %v", cnf.Pipeline.MaxProcessing())
	}
	if cnf.Pipeline.PollInterval() != time.Second {
		t.Errorf("Expected default poll interval 1s, got %v", cnf.Pipeline.PollInterval())
	}
	if cnf.Pipeline.MaxReplayCount != 5 {
		t.Errorf("Expected default max replay count 5, got %d", cnf.Pipeline.MaxReplayCount)
	}
}

func TestMaxProcessingNeverBelowLease(t *testing.T) {
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "some-dns"},
		Pipeline: PipelineConfig{
			LeaseDurationSec: 45,
			MaxProcessingSec: 10,
		},
	}
	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cnf.Pipeline.MaxProcessingSec != 90 {
		t.Errorf("Expected stuck threshold raised to 90s, got %d", cnf.Pipeline.MaxProcessingSec)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	// Create a temporary file
	tmpFile, err := os.CreateTemp("", "folio.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	cnf := Configuration{
		ProjectName: "Folio Test",
		DataSource:  DataSourceConfig{Dns: "postgres://localhost:5432/folio_test"},
		Pipeline:    PipelineConfig{BatchSize: 25},
	}
	if err := json.NewEncoder(tmpFile).Encode(&cnf); err != nil {
		t.Fatalf("Unable to write temporary config: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("Unable to close temporary config: %v", err)
	}

	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("Expected config to load, got %v", err)
	}

	loaded, err := Fetch()
	if err != nil {
		t.Fatalf("Expected config fetch to succeed, got %v", err)
	}
	if loaded.ProjectName != "Folio Test" {
		t.Errorf("Expected project name to survive load, got %q", loaded.ProjectName)
	}
	if loaded.Pipeline.BatchSize != 25 {
		t.Errorf("Expected batch size from file, got %d", loaded.Pipeline.BatchSize)
	}
	if loaded.Pipeline.MaxReplayCount != 5 {
		t.Errorf("Expected defaulted max replay count, got %d", loaded.Pipeline.MaxReplayCount)
	}
}
