package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
	"github.com/xeipuuv/gojsonschema"
)

// registeredTool pairs a tool with its compiled argument schema.
type registeredTool struct {
	tool   ports.Tool
	spec   ports.ToolSpec
	schema *gojsonschema.Schema
}

// Registry is the closed name -> tool dispatch table. Schemas are compiled
// once at registration; lookups are safe for concurrent readers.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register adds a tool. The name must be unique and the parameter list
// must compile into a valid schema.
func (r *Registry) Register(tool ports.Tool) error {
	spec := tool.Spec()
	if strings.TrimSpace(spec.Name) == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	schema, err := compileSchema(spec)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", spec.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[spec.Name]; exists {
		return &DuplicateToolError{Name: spec.Name}
	}
	r.tools[spec.Name] = &registeredTool{tool: tool, spec: spec, schema: schema}
	r.order = append(r.order, spec.Name)
	return nil
}

// DescribeAll returns every spec in registration order.
func (r *Registry) DescribeAll() []ports.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]ports.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].spec)
	}
	return specs
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Validate checks an action input against the named tool's schema and
// returns the normalized arguments.
func (r *Registry) Validate(name string, input json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	entry, ok := r.tools[name]
	known := append([]string(nil), r.order...)
	r.mu.RUnlock()

	if !ok {
		return nil, &UnknownToolError{Name: name, Known: known}
	}

	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil || args == nil {
		return nil, &InvalidArgumentsError{Tool: name, Problems: []string{"action input must be a JSON object"}}
	}
	coerceIntegers(entry.spec, args)

	result, err := entry.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return nil, &InvalidArgumentsError{Tool: name, Problems: []string{err.Error()}}
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			problems = append(problems, re.String())
		}
		return nil, &InvalidArgumentsError{Tool: name, Problems: problems}
	}

	normalized, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}
	return normalized, nil
}

// Invoke validates input and calls the tool. The tool's result (or error)
// is returned verbatim.
func (r *Registry) Invoke(ctx context.Context, name string, input json.RawMessage) (string, error) {
	args, err := r.Validate(name, input)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	tool := r.tools[name].tool
	r.mu.RUnlock()

	return tool.Invoke(ctx, args)
}

// compileSchema turns an ordered parameter list into a JSON Schema object.
func compileSchema(spec ports.ToolSpec) (*gojsonschema.Schema, error) {
	properties := make(map[string]any, len(spec.Parameters))
	required := []string{}
	seen := make(map[string]bool, len(spec.Parameters))

	for _, p := range spec.Parameters {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter name cannot be empty")
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("parameter %s declared twice", p.Name)
		}
		seen[p.Name] = true

		switch p.Type {
		case ports.ParamString, ports.ParamInteger, ports.ParamNumber, ports.ParamBoolean:
		default:
			return nil, fmt.Errorf("parameter %s has unsupported type %q", p.Name, p.Type)
		}

		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			if p.Type != ports.ParamString {
				return nil, fmt.Errorf("parameter %s: enum is only supported for strings", p.Name)
			}
			enum := make([]any, len(p.Enum))
			for i, v := range p.Enum {
				enum[i] = v
			}
			prop["enum"] = enum
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
}

// coerceIntegers converts integer parameters written as decimal strings.
// Small models often emit {"step": "2"}.
func coerceIntegers(spec ports.ToolSpec, args map[string]any) {
	for _, p := range spec.Parameters {
		if p.Type != ports.ParamInteger {
			continue
		}
		s, ok := args[p.Name].(string)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			args[p.Name] = n
		}
	}
}
