// Package embedded implements the Backend contract for an in-process
// handler: tools registered programmatically, dispatched directly by method
// name instead of reflection (spec.md's embedded registration API,
// SPEC_FULL.md §4.3).
package embedded

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/xeipuuv/gojsonschema"

	mcperr "github.com/stacklok/mcpmux/pkg/errors"
	"github.com/stacklok/mcpmux/pkg/jsonrpc"
)

// Handler implements one tool's call logic.
type Handler func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)

// ToolDef is one (name, schema, handler) tuple registered for an embedded
// backend before startup.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     Handler
}

// Registry holds named sets of ToolDefs, registered by the embedding
// application before Controller.Startup runs.
type Registry struct {
	mu    sync.RWMutex
	tools map[string][]ToolDef
}

// NewRegistry builds an empty embedded-handler registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string][]ToolDef{}}
}

// Register adds tools under name, the value a BackendConfig's
// EmbeddedHandler field references.
func (r *Registry) Register(name string, tools ...ToolDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = append(r.tools[name], tools...)
}

// Build constructs a Backend for the named, previously-registered handler
// set.
func (r *Registry) Build(name string) (*Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools, ok := r.tools[name]
	if !ok {
		return nil, mcperr.NewConfigError("no embedded handler registered under name: "+name, nil)
	}
	return newBackend(name, tools), nil
}

// Backend is the Backend contract implemented by a registered tool set,
// dispatching initialize/tools/list/tools/call directly in-process.
type Backend struct {
	name    string
	tools   []ToolDef
	byName  map[string]ToolDef
	closed  bool
	mu      sync.Mutex
}

func newBackend(name string, tools []ToolDef) *Backend {
	byName := make(map[string]ToolDef, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	return &Backend{name: name, tools: tools, byName: byName}
}

// Forward implements backend.Backend.
func (b *Backend) Forward(ctx context.Context, msg *jsonrpc.Message) (*jsonrpc.Message, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, mcperr.NewInternalError("embedded backend "+b.name+" is closed", nil)
	}

	switch msg.Method {
	case "initialize":
		result, _ := json.Marshal(map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{},
			"serverInfo":      map[string]any{"name": b.name, "version": "embedded"},
		})
		if msg.IsNotification() {
			return nil, nil
		}
		return jsonrpc.NewResult(msg.ID, result), nil
	case "tools/list":
		if msg.IsNotification() {
			return nil, nil
		}
		return jsonrpc.NewResult(msg.ID, b.listResult()), nil
	case "tools/call":
		return b.handleCall(ctx, msg)
	default:
		if msg.IsNotification() {
			return nil, nil
		}
		return nil, mcperr.NewInternalError("embedded backend "+b.name+" has no handler for method "+msg.Method, nil)
	}
}

func (b *Backend) listResult() json.RawMessage {
	type toolOut struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		InputSchema any    `json:"inputSchema,omitempty"`
	}
	out := make([]toolOut, 0, len(b.tools))
	for _, t := range b.tools {
		out = append(out, toolOut{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	raw, _ := json.Marshal(map[string]any{"tools": out})
	return raw
}

func (b *Backend) handleCall(ctx context.Context, msg *jsonrpc.Message) (*jsonrpc.Message, error) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil || params.Name == "" {
		return nil, mcperr.NewInternalError("embedded backend "+b.name+" received a malformed tools/call", err)
	}
	tool, ok := b.byName[params.Name]
	if !ok {
		return nil, mcperr.NewInternalError("embedded backend "+b.name+" has no tool named "+params.Name, nil)
	}
	if tool.InputSchema != nil {
		if err := validateArgs(tool.InputSchema, params.Arguments); err != nil {
			return nil, mcperr.NewInternalError("arguments for tool "+params.Name+" failed schema validation", err)
		}
	}
	result, err := tool.Handler(ctx, params.Arguments)
	if err != nil {
		return nil, mcperr.NewInternalError("tool "+params.Name+" handler returned an error", err)
	}
	if msg.IsNotification() {
		return nil, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, mcperr.NewInternalError("failed to marshal result for tool "+params.Name, err)
	}
	return jsonrpc.NewResult(msg.ID, raw), nil
}

func validateArgs(schema map[string]any, args json.RawMessage) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	var docLoader gojsonschema.JSONLoader
	if len(args) == 0 {
		docLoader = gojsonschema.NewGoLoader(map[string]any{})
	} else {
		docLoader = gojsonschema.NewBytesLoader(args)
	}
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return err
	}
	if !result.Valid() {
		return mcperr.NewInternalError(result.Errors()[0].String(), nil)
	}
	return nil
}

// Alive reports true until Close is called: an embedded handler has no
// external process to fail independently of the controller itself.
func (b *Backend) Alive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

// Close drops the handler. Idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
