package tools

import (
	"context"
	"sort"
	"strings"
	"sync"

	ferrors "github.com/friday-ai/friday/internal/errors"
)

// VolatileKey marks an input schema property whose value changes between
// otherwise identical calls (timestamps, nonces, request ids).
const VolatileKey = "x-volatile"

// Invocation is one request to run a tool.
type Invocation struct {
	ToolName         string
	Arguments        map[string]any
	WorkingDirectory string
}

// Result is what a tool reports back. Tools own their timeout handling and
// set TimedOut when they gave up.
type Result struct {
	Success  bool   `json:"success"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// Failure builds a failed result with the given message.
func Failure(msg string) Result {
	return Result{Success: false, Error: msg}
}

// Tool defines the interface all tools must implement
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, inv Invocation) (Result, error)
}

// Registry manages available tools
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		tools: make(map[string]Tool, len(tools)),
	}
	for _, tool := range tools {
		r.Register(tool)
	}
	return r
}

// Register adds a tool to the registry, replacing any tool with the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools sorted by name
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Execute runs the named tool. Unknown tools return a ToolNotFound error;
// tool errors are wrapped as ToolExecutionFailed.
func (r *Registry) Execute(ctx context.Context, inv Invocation) (Result, error) {
	tool, ok := r.Get(inv.ToolName)
	if !ok {
		return Result{}, ferrors.ToolNotFound(inv.ToolName)
	}
	res, err := tool.Execute(ctx, inv)
	if err != nil {
		return Result{}, ferrors.ToolExecutionFailed(inv.ToolName, err)
	}
	return res, nil
}

// Definitions returns tool definitions for prompt construction.
func (r *Registry) Definitions() []ToolDefinition {
	tools := r.List()
	defs := make([]ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}
	return defs
}

// VolatileFields returns the argument paths the tool's schema marks with
// "x-volatile": true. Nested object properties are reported as dotted paths.
func (r *Registry) VolatileFields(name string) []string {
	tool, ok := r.Get(name)
	if !ok {
		return nil
	}
	var fields []string
	collectVolatile(tool.InputSchema(), nil, &fields)
	sort.Strings(fields)
	return fields
}

func collectVolatile(schema map[string]any, prefix []string, out *[]string) {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return
	}
	for key, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		path := append(append([]string(nil), prefix...), key)
		if v, ok := prop[VolatileKey].(bool); ok && v {
			*out = append(*out, strings.Join(path, "."))
			continue
		}
		collectVolatile(prop, path, out)
	}
}

// ToolDefinition is used to pass tool info to the LLM
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// FuncTool adapts a function into a Tool.
type FuncTool struct {
	ToolName string
	Desc     string
	Schema   map[string]any
	Fn       func(ctx context.Context, inv Invocation) (Result, error)
}

func (f *FuncTool) Name() string        { return f.ToolName }
func (f *FuncTool) Description() string { return f.Desc }

func (f *FuncTool) InputSchema() map[string]any {
	if f.Schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return f.Schema
}

func (f *FuncTool) Execute(ctx context.Context, inv Invocation) (Result, error) {
	if f.Fn == nil {
		return Result{Success: true}, nil
	}
	return f.Fn(ctx, inv)
}
