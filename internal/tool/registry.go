package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rezkam/codedive/internal/domain"
)

// Registry is the set of tools offered to the model. Registration order is
// preserved so the definitions sent with each request are stable and the
// model's prompt cache keys stay deterministic.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]domain.Tool
	order  []string
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName: make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds a tool under its own name. Re-registering a name replaces
// the tool but keeps its original position.
func (r *Registry) Register(t domain.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.byName[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = t
	r.logger.Debug("registered tool", "name", name)
}

// Get returns the named tool, or nil.
func (r *Registry) Get(name string) domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Execute dispatches a tool call to the named tool.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t := r.Get(name)
	if t == nil {
		return "", fmt.Errorf("unknown tool: %s (available: %v)", name, r.Names())
	}
	return t.Execute(ctx, args)
}

// GetDefinitions returns the tool definitions in registration order, in the
// shape OpenAI-compatible chat APIs expect.
func (r *Registry) GetDefinitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.byName[name]
		defs = append(defs, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Param describes one entry in a tool's parameter schema.
type Param struct {
	Type        string
	Description string
}

// ToolParameters assembles a JSON Schema object for a tool's parameters.
func ToolParameters(properties map[string]Param, required []string) map[string]any {
	props := make(map[string]any, len(properties))
	for name, p := range properties {
		props[name] = map[string]any{"type": p.Type, "description": p.Description}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ArgsString reads a string argument from a tool-call argument map; non-string
// values are rendered as JSON so the tool still sees something usable.
func ArgsString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}
