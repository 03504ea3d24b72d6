package harnessports

import (
	"context"
	"encoding/json"
	"fmt"
)

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
)

// Parameter is one entry of a tool's ordered argument schema.
type Parameter struct {
	Name        string
	Type        ParamType
	Required    bool
	Description string
	Enum        []string // allowed values for string parameters
	Minimum     *int     // inclusive lower bound for integer parameters
}

// ToolSpec describes a callable tool exposed to the model.
type ToolSpec struct {
	Name        string      // unique logical name
	Description string      // concise doc for model selection
	Parameters  []Parameter // ordered argument schema
}

// Tool defines the runtime that executes an action request.
type Tool interface {
	Spec() ToolSpec
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}

// ActionRequest is a tool invocation extracted from model output.
type ActionRequest struct {
	Tool  string
	Input json.RawMessage // a JSON object
}

// Args decodes Input into a generic argument map.
func (a ActionRequest) Args() (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal(a.Input, &args); err != nil {
		return nil, fmt.Errorf("action input is not a JSON object: %w", err)
	}
	return args, nil
}
