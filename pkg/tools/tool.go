// Package tools defines the contract between the router and the named
// operations it exposes to a calling agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Tool represents a capability an agent can invoke by name.
//
// Example call as delivered by the transport:
//
//	{"name": "navigate_to", "arguments": {"url": "https://example.test"}}
type Tool interface {
	// Name returns the unique identifier for this tool (e.g., "navigate_to")
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Schema returns the JSON schema for this tool's input parameters
	Schema() map[string]interface{}

	// Execute runs the tool with the given JSON arguments.
	// Returns: (result text, metadata map, error)
	// Metadata is optional and can be nil.
	Execute(ctx context.Context, arguments json.RawMessage) (string, map[string]interface{}, error)
}

// Content is one typed block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the uniform envelope returned for every successful call.
type Result struct {
	Content  []Content              `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TextResult wraps text in a single-block result.
func TextResult(text string, metadata map[string]interface{}) *Result {
	return &Result{
		Content:  []Content{{Type: "text", Text: text}},
		Metadata: metadata,
	}
}

// Text joins every text block of the result.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	var s string
	for i, c := range r.Content {
		if i > 0 {
			s += "\n"
		}
		s += c.Text
	}
	return s
}

// BaseToolSchema creates a common JSON schema structure for a tool
// with the given properties and required fields
func BaseToolSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Registry is a flat name to tool mapping.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds tools, failing on a duplicate name.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tools {
		if _, exists := r.tools[t.Name()]; exists {
			return fmt.Errorf("tool %q already registered", t.Name())
		}
		r.tools[t.Name()] = t
	}
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every tool sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
