package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	fctx "github.com/friday-ai/friday/internal/context"
	"github.com/friday-ai/friday/internal/tools"
)

// transcript is a scripted conversation. Each assistant step carries the
// tool calls it makes together with the result each call should produce.
type transcript struct {
	System string     `yaml:"system"`
	Tools  []toolDecl `yaml:"tools"`
	Steps  []step     `yaml:"steps"`
}

type toolDecl struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Volatile    []string `yaml:"volatile"` // Argument paths ignored by the loop detector
}

type step struct {
	User      string         `yaml:"user,omitempty"`
	Assistant string         `yaml:"assistant,omitempty"`
	Calls     []scriptedCall `yaml:"calls,omitempty"`
	Usage     int            `yaml:"usage,omitempty"` // Provider-reported input tokens
}

type scriptedCall struct {
	ID     string         `yaml:"id"`
	Name   string         `yaml:"name"`
	Args   map[string]any `yaml:"args"`
	Result string         `yaml:"result"`
	Error  string         `yaml:"error"`
}

func loadTranscript(path string) (*transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return parseTranscript(data)
}

func parseTranscript(data []byte) (*transcript, error) {
	var t transcript
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}

	next := 1
	for i := range t.Steps {
		s := &t.Steps[i]
		kinds := 0
		if s.User != "" {
			kinds++
		}
		if s.Assistant != "" || len(s.Calls) > 0 {
			kinds++
		}
		if s.Usage > 0 {
			kinds++
		}
		if kinds != 1 {
			return nil, fmt.Errorf("step %d: exactly one of user, assistant/calls or usage is required", i+1)
		}
		for j := range s.Calls {
			c := &s.Calls[j]
			if c.Name == "" {
				return nil, fmt.Errorf("step %d call %d: name is required", i+1, j+1)
			}
			if c.ID == "" {
				c.ID = fmt.Sprintf("call_%d", next)
			}
			next++
		}
	}
	return &t, nil
}

// registry builds a registry holding one scripted tool per tool name used
// by the transcript.
func (t *transcript) registry() *tools.Registry {
	book := newScriptBook()
	decls := make(map[string]toolDecl)
	for _, decl := range t.Tools {
		decls[decl.Name] = decl
	}
	for _, s := range t.Steps {
		for _, c := range s.Calls {
			book.add(c)
			if _, ok := decls[c.Name]; !ok {
				decls[c.Name] = toolDecl{Name: c.Name}
			}
		}
	}

	registry := tools.NewRegistry()
	for _, decl := range decls {
		registry.Register(&tools.FuncTool{
			ToolName: decl.Name,
			Desc:     decl.Description,
			Schema:   volatileSchema(decl.Volatile),
			Fn:       book.execute,
		})
	}
	return registry
}

// volatileSchema marks each dotted path as volatile, nesting object schemas
// for inner segments.
func volatileSchema(paths []string) map[string]any {
	root := map[string]any{"type": "object", "properties": map[string]any{}}
	for _, path := range paths {
		node := root
		parts := strings.Split(path, ".")
		for i, part := range parts {
			props := node["properties"].(map[string]any)
			if i == len(parts)-1 {
				props[part] = map[string]any{tools.VolatileKey: true}
				break
			}
			child, ok := props[part].(map[string]any)
			if !ok {
				child = map[string]any{"type": "object", "properties": map[string]any{}}
				props[part] = child
			}
			node = child
		}
	}
	return root
}

// toolCall converts a scripted call to the call an assistant turn carries.
func (c scriptedCall) toolCall() fctx.ToolCall {
	return fctx.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Args}
}

// scriptBook hands out scripted results keyed by tool name and arguments.
// Identical calls receive their results in script order.
type scriptBook struct {
	mu      sync.Mutex
	results map[string][]scriptedCall
}

func newScriptBook() *scriptBook {
	return &scriptBook{results: make(map[string][]scriptedCall)}
}

func scriptKey(name string, args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return name
	}
	return name + "\x00" + string(data)
}

func (b *scriptBook) add(c scriptedCall) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := scriptKey(c.Name, c.Args)
	b.results[key] = append(b.results[key], c)
}

func (b *scriptBook) execute(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	b.mu.Lock()
	key := scriptKey(inv.ToolName, inv.Arguments)
	queue := b.results[key]
	if len(queue) == 0 {
		b.mu.Unlock()
		return tools.Failure("no scripted result for this call"), nil
	}
	c := queue[0]
	b.results[key] = queue[1:]
	b.mu.Unlock()

	if c.Error != "" {
		return tools.Failure(c.Error), nil
	}
	return tools.Result{Success: true, Output: c.Result}, nil
}
