package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/rxtech-lab/argo-guard/pkg/utils"
)

// SchemaName is the file name cmd/generate writes the schema to.
const SchemaName = "argo-guard-config.json"

// GenerateSchema reflects RunConfig into a JSON schema.
func GenerateSchema() *jsonschema.Schema {
	//nolint:exhaustruct // Empty struct is intentional for schema generation
	schema := utils.NewReflector().Reflect(&RunConfig{})
	schema.Title = "argo-guard-config"
	schema.Description = "Run configuration for the argo-guard backtest and live drivers"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

// GenerateSchemaJSON is GenerateSchema rendered as indented JSON.
func GenerateSchemaJSON() (string, error) {
	schemaBytes, err := json.MarshalIndent(GenerateSchema(), "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
