package relayserver

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const envelopeSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"event_id": {"type": "string", "minLength": 1},
		"id": {"type": "string", "minLength": 1},
		"event_type": {"type": "string", "minLength": 1},
		"type": {"type": "string", "minLength": 1},
		"actor_id": {"type": "string"},
		"target": {
			"type": "object",
			"properties": {
				"id": {"type": "string"},
				"type": {"type": ["string", "null"]}
			}
		},
		"target_id": {"type": "string"},
		"target_type": {"type": "string"},
		"payload": {"type": "object"},
		"timestamp": {"type": ["string", "number"]},
		"version": {"type": "integer"}
	},
	"anyOf": [
		{"required": ["event_type"]},
		{"required": ["type"]}
	]
}`

type envelopeSchema struct {
	schema *jsonschema.Schema
}

func compileEnvelopeSchema() (*envelopeSchema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchemaJSON))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("envelope.schema.json", doc); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("envelope.schema.json")
	if err != nil {
		return nil, err
	}
	return &envelopeSchema{schema: schema}, nil
}

func (s *envelopeSchema) Validate(event map[string]any) error {
	return s.schema.Validate(map[string]any(event))
}
