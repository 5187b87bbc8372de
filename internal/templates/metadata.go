package templates

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TemplateMetadata represents the parsed template.yaml manifest for one
// manuscript section template. Name is required; the token band defaults to
// zero and is treated as "use the estimator default" downstream.
type TemplateMetadata struct {
	Name               string `yaml:"name"`
	Description        string `yaml:"description"`
	Guidance           string `yaml:"guidance"`
	ExpectedTokensLow  int64  `yaml:"expected_tokens_low"`
	ExpectedTokensHigh int64  `yaml:"expected_tokens_high"`
	Position           int    `yaml:"position"`
}

// LoadTemplateMetadata reads and parses a template.yaml file with strict
// validation. Unknown YAML fields are rejected (via KnownFields), the raw
// document is checked against the manifest JSON schema, and required fields
// are validated.
func LoadTemplateMetadata(path string) (*TemplateMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template metadata: %w", err)
	}

	// Schema validation first, on the raw document
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse template metadata: %w", err)
	}
	if err := ValidateManifest(raw); err != nil {
		return nil, err
	}

	var meta TemplateMetadata
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown YAML keys to catch typos

	if err := decoder.Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to parse template metadata: %w", err)
	}

	if meta.Name == "" {
		return nil, fmt.Errorf("template metadata missing required field: name")
	}
	if meta.ExpectedTokensLow > meta.ExpectedTokensHigh {
		return nil, fmt.Errorf("template %s: expected_tokens_low exceeds expected_tokens_high", meta.Name)
	}

	return &meta, nil
}
