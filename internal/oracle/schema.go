package oracle

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Response schemas. A completion failing validation is malformed output and
// fatal to the step that requested it.

const clarifySchemaJSON = `{
	"type": "object",
	"required": ["clarifications"],
	"properties": {
		"clarifications": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["term", "question"],
				"properties": {
					"term": {"type": "string"},
					"question": {"type": "string"},
					"options": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["label"],
							"properties": {
								"label": {"type": "string"},
								"tooltip": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`

const nextStepSchemaJSON = `{
	"type": "object",
	"required": ["event"],
	"properties": {
		"event": {"type": "string", "enum": ["action", "insight", "done"]},
		"action": {"type": "string"},
		"blockType": {"type": "string"},
		"content": {"type": "string"},
		"input": {"type": "object"},
		"summary": {"type": "string"},
		"reasoning": {"type": "string"},
		"sql": {"type": "string"}
	}
}`

const repairSchemaJSON = `{
	"type": "object",
	"required": ["code"],
	"properties": {
		"code": {"type": "string"}
	}
}`

type validators struct {
	clarify  *jsonschema.Schema
	nextStep *jsonschema.Schema
	repair   *jsonschema.Schema
}

func compileValidators() (*validators, error) {
	c := jsonschema.NewCompiler()
	schemas := map[string]string{
		"clarify.json":   clarifySchemaJSON,
		"next_step.json": nextStepSchemaJSON,
		"repair.json":    repairSchemaJSON,
	}
	for name, text := range schemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", name, err)
		}
		if err := c.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}
	}

	v := &validators{}
	var err error
	if v.clarify, err = c.Compile("clarify.json"); err != nil {
		return nil, fmt.Errorf("compile clarify schema: %w", err)
	}
	if v.nextStep, err = c.Compile("next_step.json"); err != nil {
		return nil, fmt.Errorf("compile next_step schema: %w", err)
	}
	if v.repair, err = c.Compile("repair.json"); err != nil {
		return nil, fmt.Errorf("compile repair schema: %w", err)
	}
	return v, nil
}
