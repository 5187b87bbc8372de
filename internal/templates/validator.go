package templates

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// manifestSchema constrains template.yaml documents. YAML is decoded to a
// generic map before validation, so the schema sees plain JSON types.
const manifestSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1, "pattern": "^[a-z][a-z0-9_-]*$"},
		"description": {"type": "string"},
		"guidance": {"type": "string"},
		"expected_tokens_low": {"type": "integer", "minimum": 0},
		"expected_tokens_high": {"type": "integer", "minimum": 0},
		"position": {"type": "integer", "minimum": 0}
	},
	"additionalProperties": false
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// ValidateManifest validates a parsed template manifest against the manifest
// JSON schema.
func ValidateManifest(manifest map[string]interface{}) error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiledSchema, compileErr = compiler.Compile([]byte(manifestSchema))
	})
	if compileErr != nil {
		return fmt.Errorf("failed to compile manifest schema: %w", compileErr)
	}

	result := compiledSchema.Validate(manifest)
	if !result.IsValid() {
		var errorMessages []string
		for field, evalErr := range result.Errors {
			errorMessages = append(errorMessages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		return fmt.Errorf("template manifest validation failed: %s", strings.Join(errorMessages, "; "))
	}

	return nil
}
