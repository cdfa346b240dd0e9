package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/conclavehq/conclave/internal/logger"
	"github.com/conclavehq/conclave/internal/metrics"
)

// Registry is a name-indexed catalog of tools shared read-mostly across
// agents. Registration is last-writer-wins: re-registering a name replaces
// the previous tool without error. That is a deliberate property callers
// rely on for overriding defaults, not an oversight.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string // registration order, names appear once
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		order: make([]string, 0),
	}
}

// Register adds a tool, replacing any existing tool with the same name
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns the tool registered under name, or nil if absent
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered tool names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Schemas exports provider-facing descriptors. With no names it exports
// the full registry in registration order. With names it exports only
// tools present in both the subset and the registry; unknown names are
// silently dropped. This filter controls what a restricted agent lets the
// model see, independent of execution-time allow-list checks.
func (r *Registry) Schemas(names ...string) []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	selected := r.order
	if len(names) > 0 {
		selected = names
	}

	schemas := make([]Schema, 0, len(selected))
	for _, name := range selected {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		schemas = append(schemas, Schema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return schemas
}

// Execute looks up and invokes a tool by name. Failure never escapes as a
// panic or error: an unknown name, a tool error, or a panicking tool all
// come back as a Result with Error set.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result Result) {
	t := r.Get(name)
	if t == nil {
		metrics.RecordToolCall(name, "invalid")
		return Errorf("invalid tool: %s", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Tool %s panicked: %v", name, rec)
			result = Errorf("%T: %v", rec, rec)
			metrics.RecordToolCall(name, "error")
		}
	}()

	result = t.Execute(ctx, args)
	if result.OK() {
		metrics.RecordToolCall(name, "success")
	} else {
		metrics.RecordToolCall(name, "error")
	}
	return result
}

// funcTool adapts a typed handler function into the Tool interface
type funcTool[P any] struct {
	name        string
	description string
	parameters  *jsonschema.Schema
	fn          func(ctx context.Context, params P) Result
}

func (t *funcTool[P]) Name() string                   { return t.name }
func (t *funcTool[P]) Description() string            { return t.description }
func (t *funcTool[P]) Parameters() *jsonschema.Schema { return t.parameters }

func (t *funcTool[P]) Execute(ctx context.Context, args map[string]any) Result {
	var params P
	if len(args) > 0 {
		data, err := json.Marshal(args)
		if err != nil {
			return Errorf("invalid arguments: %v", err)
		}
		if err := json.Unmarshal(data, &params); err != nil {
			return Errorf("invalid arguments: %v", err)
		}
	}
	return t.fn(ctx, params)
}

// RegisterFunc registers a typed handler as a tool. The parameter schema
// is generated from P by reflection over its json tags; fields without
// omitempty are required.
func RegisterFunc[P any](r *Registry, name, description string, fn func(ctx context.Context, params P) Result) {
	r.Register(&funcTool[P]{
		name:        name,
		description: description,
		parameters:  GenerateSchema[P](),
		fn:          fn,
	})
}

// ResultContent renders a result as the observation text the model sees
// in the next turn
func ResultContent(res Result) string {
	if !res.OK() {
		if res.Output != "" {
			return fmt.Sprintf("%s\nError: %s", res.Output, res.Error)
		}
		return "Error: " + res.Error
	}
	if res.Output == "" {
		return "OK"
	}
	return res.Output
}
