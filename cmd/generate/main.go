package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/rxtech-lab/argo-guard/internal/config"
	"gopkg.in/yaml.v3"
)

const sampleConfigName = "argo-guard-config.yaml"

func main() {
	if err := run("./config"); err != nil {
		log.Fatal(err)
	}
}

// run writes the schema into dir, and a sample config next to it unless one already exists.
func run(dir string) error {
	schemaPath := filepath.Join(dir, config.SchemaName)
	samplePath := filepath.Join(dir, sampleConfigName)

	if err := generateSchemaFile(schemaPath); err != nil {
		return err
	}

	log.Printf("Schema successfully generated at %s", schemaPath)

	if err := generateSampleConfig(config.Default(), samplePath, config.SchemaName); err != nil {
		return err
	}

	return nil
}

func generateSchemaFile(schemaPath string) error {
	schemaJSON, err := config.GenerateSchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(schemaPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(schemaPath, []byte(schemaJSON), 0644); err != nil {
		return fmt.Errorf("failed to write schema to file: %w", err)
	}

	return nil
}

// generateSampleConfig never overwrites an existing file.
func generateSampleConfig(cfg config.RunConfig, samplePath string, schemaName string) error {
	if _, err := os.Stat(samplePath); err == nil {
		return nil
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal sample config to yaml: %w", err)
	}

	yamlBytes = append([]byte("# yaml-language-server: $schema="+schemaName+"\n"), yamlBytes...)

	if err := os.MkdirAll(filepath.Dir(samplePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(samplePath, yamlBytes, 0644); err != nil {
		return fmt.Errorf("failed to write sample config to file: %w", err)
	}

	log.Printf("Sample config successfully generated at %s", samplePath)

	return nil
}
