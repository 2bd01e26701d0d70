package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hession/pwtpilot/internal/config"
)

var (
	// ErrDuplicateTool is returned when two tools share a name
	ErrDuplicateTool = errors.New("duplicate tool name")
	// ErrToolNotFound is returned when dispatching to an unregistered tool
	ErrToolNotFound = errors.New("tool not found")
)

// Registry tool registry, ordered by registration
type Registry struct {
	tools map[string]Tool
	order []string
	mu    sync.RWMutex
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register registers a tool
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}

	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get gets a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// List lists all tools in registration order
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Execute executes a tool by name
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool, exists := r.Get(name)
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return tool.Execute(ctx, args)
}

// Definition is the shape of a tool as presented to the model
type Definition struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Definitions returns the definitions of all tools in registration order
func (r *Registry) Definitions() []Definition {
	tools := r.List()
	defs := make([]Definition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, Definition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}
	return defs
}

// NewCatalog merges the local and remote tool sets into one registry.
// Local tools come first; any name collision is a configuration error.
func NewCatalog(local, remote []Tool) (*Registry, error) {
	registry := NewRegistry()
	for _, tool := range local {
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("local tool set: %w", err)
		}
	}
	for _, tool := range remote {
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("remote tool set collides with catalog: %w", err)
		}
	}
	return registry, nil
}

// LocalTools returns the five built-in tools
func LocalTools(cfg *config.Config) []Tool {
	return []Tool{
		NewCreateDirectoryTool(),
		NewListFilesTool(),
		NewReadFileTool(),
		NewEditFileTool(),
		NewRunPwtTool(cfg.Runner),
	}
}
