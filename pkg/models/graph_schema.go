package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidGraph wraps schema and structural violations of a workflow graph document.
var ErrInvalidGraph = errors.New("invalid workflow graph")

var nodeTypeEnum = func() []any {
	types := make([]any, 0, len(AllNodeTypes))
	for _, t := range AllNodeTypes {
		types = append(types, string(t))
	}

	return types
}()

// GraphSchema is the JSON schema of a stored workflow graph document.
var GraphSchema = map[string]any{
	"type":     "object",
	"required": []any{"nodes", "edges"},
	"properties": map[string]any{
		"nodes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "type"},
				"properties": map[string]any{
					"id":   map[string]any{"type": "string", "minLength": 1},
					"type": map[string]any{"type": "string", "enum": nodeTypeEnum},
					"data": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"label":  map[string]any{"type": "string"},
							"config": map[string]any{"type": []any{"object", "null"}},
						},
					},
				},
			},
		},
		"edges": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"source", "target"},
				"properties": map[string]any{
					"id":           map[string]any{"type": "string"},
					"source":       map[string]any{"type": "string", "minLength": 1},
					"target":       map[string]any{"type": "string", "minLength": 1},
					"sourceHandle": map[string]any{"type": []any{"string", "null"}},
				},
			},
		},
	},
}

// DecodeGraph validates a graph document against GraphSchema, decodes it into the typed
// representation and checks the structural invariants.
func DecodeGraph(raw []byte) (WorkflowGraph, error) {
	var document any

	err := json.Unmarshal(raw, &document)
	if err != nil {
		return WorkflowGraph{}, fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(GraphSchema), gojsonschema.NewGoLoader(document))
	if err != nil {
		return WorkflowGraph{}, fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}

	if !result.Valid() {
		var violations []string
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}

		return WorkflowGraph{}, fmt.Errorf("%w: %s", ErrInvalidGraph, strings.Join(violations, "; "))
	}

	var graph WorkflowGraph

	err = json.Unmarshal(raw, &graph)
	if err != nil {
		return WorkflowGraph{}, fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}

	err = graph.Validate()
	if err != nil {
		return WorkflowGraph{}, fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}

	return graph, nil
}
