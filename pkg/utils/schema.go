// Package utils holds the JSON schema helpers shared by the run config and the
// download parameters.
package utils

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
)

// NewReflector builds the reflector every schema here is made with: the root
// struct is inlined, nested structs are not referenced through $defs and
// "required" jsonschema tags become required properties.
func NewReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
	}
}

// GetSchemaFromConfig reflects a struct (or a pointer to one) into a compact
// JSON schema.
func GetSchemaFromConfig(config any) (string, error) {
	schema := NewReflector().Reflect(config)

	jsonSchemaBytes, err := json.Marshal(schema)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to encode json schema", err)
	}

	return string(jsonSchemaBytes), nil
}
