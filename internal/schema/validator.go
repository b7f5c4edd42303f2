// Package schema validates outbound events against embedded JSON schemas.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/TinoTau/lingua-1-sub000/internal/models"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const baseURL = "https://lingua.local/schemas/"

// ErrUnknownEventType is returned for events without a registered schema.
var ErrUnknownEventType = errors.New("unknown event type")

var schemaFiles = map[string]string{
	models.EventSegmentAggregated: "segment.json",
	models.EventSegmentFlushed:    "segment.json",
	models.EventUtteranceMerged:   "merge.json",
}

// Validator checks events by their eventType field.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	for _, file := range []string{"segment.json", "merge.json"} {
		raw, err := schemaFS.ReadFile("schemas/" + file)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", file, err)
		}
		if err := compiler.AddResource(baseURL+file, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", file, err)
		}
	}

	byFile := make(map[string]*jsonschema.Schema)
	compiled := make(map[string]*jsonschema.Schema, len(schemaFiles))
	for eventType, file := range schemaFiles {
		s, ok := byFile[file]
		if !ok {
			var err error
			s, err = compiler.Compile(baseURL + file)
			if err != nil {
				return nil, fmt.Errorf("compile schema %s: %w", file, err)
			}
			byFile[file] = s
		}
		compiled[eventType] = s
	}
	return &Validator{schemas: compiled}, nil
}

// Validate marshals event and checks it against the schema of its eventType.
func (v *Validator) Validate(event any) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	eventType, _ := payload["eventType"].(string)
	s, ok := v.schemas[eventType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	if err := s.Validate(payload); err != nil {
		return fmt.Errorf("event %s: %w", eventType, err)
	}
	return nil
}
