package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// SchemaValidationError is one violation reported by the JSON schema.
type SchemaValidationError struct {
	Field       string
	Description string
	Value       any
}

// Error implements the error interface
func (e SchemaValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("%s: %s (value: %v)", e.Field, e.Description, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// SchemaValidationResult contains the results of schema validation
type SchemaValidationResult struct {
	Valid  bool
	Errors []SchemaValidationError
}

// CheckSchema validates YAML data against the embedded schema.
func CheckSchema(yamlData []byte) (*SchemaValidationResult, error) {
	var data any
	if err := yaml.Unmarshal(yamlData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if data == nil {
		// empty document
		data = map[string]any{}
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	out := &SchemaValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		out.Errors = append(out.Errors, SchemaValidationError{
			Field:       e.Field(),
			Description: e.Description(),
			Value:       e.Value(),
		})
	}
	return out, nil
}

// ValidateSchema returns an error listing every schema violation.
func ValidateSchema(yamlData []byte) error {
	result, err := CheckSchema(yamlData)
	if err != nil {
		return err
	}
	if result.Valid {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		msgs = append(msgs, "  - "+e.Error())
	}
	return fmt.Errorf("configuration does not match schema:\n%s", strings.Join(msgs, "\n"))
}
