package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DefaultToolTimeout is applied to a registered tool that leaves Timeout
// zero (spec §5 "Timeouts are per-tool: shell default 30s").
const DefaultToolTimeout = 30 * time.Second

// ToolHandler is the function a registered tool runs once its arguments
// have passed schema validation.
type ToolHandler func(ctx context.Context, input json.RawMessage) (*ToolResult, error)

// ToolResult is the outcome of a handler invocation before it is wrapped
// into a models.ToolResult carrying the originating call id.
type ToolResult struct {
	Content string
	IsError bool
	// ClearHistory asks the session to drop its conversation history after
	// this result is persisted (used by sleep/reset tools).
	ClearHistory bool
}

// ApprovalCategory groups tools for the approval gate's category allowlist
// (e.g. "--allow-category filesystem").
type ApprovalCategory string

// RegisteredTool is one entry in the ToolRegistry: a handler plus its
// declared parameter schema and approval category.
type RegisteredTool struct {
	Name        string
	Description string
	Category    ApprovalCategory
	Schema      json.RawMessage
	Handler     ToolHandler
	// Timeout bounds one handler invocation; zero means DefaultToolTimeout.
	// The in-memory goap_* state tools leave it zero and so run under
	// DefaultToolTimeout; shell_execute sets its own.
	Timeout time.Duration

	compiled *jsonschema.Schema
}

// EffectiveTimeout returns Timeout, or DefaultToolTimeout if unset.
func (t *RegisteredTool) EffectiveTimeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return DefaultToolTimeout
}

// ToolRegistry is an immutable-after-init mapping from tool name to
// handler, schema, and approval category (see §5 Shared-resource policy:
// the registry is built once at session init and never mutated mid-turn).
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*RegisteredTool
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*RegisteredTool)}
}

// Register compiles the tool's schema and adds it to the registry. A tool
// registered with a malformed schema is rejected rather than silently
// accepting any input.
func (r *ToolRegistry) Register(tool *RegisteredTool) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("agent: tool must have a name")
	}
	compiled, err := compileSchema(tool.Name, tool.Schema)
	if err != nil {
		return fmt.Errorf("agent: tool %q: %w", tool.Name, err)
	}
	tool.compiled = compiled

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
	return nil
}

func compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		schema = json.RawMessage(`{}`)
	}
	compiler := jsonschema.NewCompiler()
	url := "mem://tools/" + name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(schema)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (*RegisteredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool, for building the provider's catalog.
func (r *ToolRegistry) All() []*RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*RegisteredTool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// AsToolSchemas renders the registry as the catalog passed to the provider.
func (r *ToolRegistry) AsToolSchemas() []ToolSchema {
	all := r.All()
	out := make([]ToolSchema, 0, len(all))
	for _, t := range all {
		out = append(out, ToolSchema{Name: t.Name, Description: t.Description, Parameters: t.Schema})
	}
	return out
}

// Validate parses input against the tool's declared schema. This is the
// single JSON decoder referenced in DESIGN.md's "manual JSON shuffling"
// note: handlers always receive arguments that already passed this gate.
func (t *RegisteredTool) Validate(input json.RawMessage) (any, error) {
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	var v any
	if err := json.Unmarshal(input, &v); err != nil {
		return nil, fmt.Errorf("invalid argument JSON: %w", err)
	}
	if t.compiled != nil {
		if err := t.compiled.Validate(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}
