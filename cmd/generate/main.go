package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	engine "github.com/rxtech-lab/argo-equity/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-equity/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-equity/internal/naming"
	"github.com/rxtech-lab/argo-equity/internal/version"
	"gopkg.in/yaml.v3"
)

const (
	schemaName       = "backtest-engine-v1-config.json"
	sampleConfigName = "backtest-engine-v1-config.yaml"
)

// sampleConfig mirrors the YAML layout of the engine configuration.
type sampleConfig struct {
	Version        string                `yaml:"version"`
	InitialCapital float64               `yaml:"initial_capital"`
	Broker         commission_fee.Broker `yaml:"broker"`
	Market         naming.Market         `yaml:"market"`
	Workers        int                   `yaml:"workers"`
	FetchTimeout   string                `yaml:"fetch_timeout"`

	engine.SimConfig `yaml:",inline"`
}

// generate writes the JSON schema to dir and a sample configuration next to it
// unless one already exists.
func generate(dir string) error {
	config := engine.EmptyConfig()

	schemaJSON, err := config.GenerateSchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	schemaPath := filepath.Join(dir, schemaName)
	if err := os.WriteFile(schemaPath, []byte(schemaJSON), 0644); err != nil {
		return fmt.Errorf("failed to write schema to file: %w", err)
	}

	log.Printf("Schema successfully generated at %s", schemaPath)

	sampleConfigPath := filepath.Join(dir, sampleConfigName)
	if _, err := os.Stat(sampleConfigPath); !os.IsNotExist(err) {
		return nil
	}

	sample := sampleConfig{
		Version:        version.GetVersion(),
		InitialCapital: 100_000_000,
		Broker:         config.Broker,
		Market:         config.Market,
		Workers:        config.Workers,
		FetchTimeout:   "30s",
		SimConfig:      config.SimConfig,
	}

	yamlBytes, err := yaml.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample config to yaml: %w", err)
	}

	yamlBytes = append([]byte("# yaml-language-server: $schema="+schemaName+"\n"), yamlBytes...)

	if err := os.WriteFile(sampleConfigPath, yamlBytes, 0644); err != nil {
		return fmt.Errorf("failed to write sample config to file: %w", err)
	}

	log.Printf("Sample config successfully generated at %s", sampleConfigPath)

	return nil
}

func main() {
	if err := generate("./config"); err != nil {
		log.Fatal(err)
	}
}
