package embedded

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcpmux/pkg/jsonrpc"
)

func sayHandler(_ context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	var params struct {
		Msg string `json:"msg"`
	}
	_ = json.Unmarshal(args, &params)
	return mcp.NewToolResultText(params.Msg), nil
}

func newEchoBackend(t *testing.T) *Backend {
	t.Helper()
	r := NewRegistry()
	r.Register("echo", ToolDef{
		Name:        "say",
		Description: "echoes msg",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"msg": map[string]any{"type": "string"}},
			"required":   []any{"msg"},
		},
		Handler: sayHandler,
	})
	b, err := r.Build("echo")
	require.NoError(t, err)
	return b
}

func TestForward_Initialize(t *testing.T) {
	t.Parallel()
	b := newEchoBackend(t)
	resp, err := b.Forward(context.Background(), &jsonrpc.Message{JSONRPC: "2.0", ID: []byte("1"), Method: "initialize"})
	require.NoError(t, err)
	assert.Contains(t, string(resp.Result), "2024-11-05")
}

func TestForward_ToolsList(t *testing.T) {
	t.Parallel()
	b := newEchoBackend(t)
	resp, err := b.Forward(context.Background(), &jsonrpc.Message{JSONRPC: "2.0", ID: []byte("1"), Method: "tools/list"})
	require.NoError(t, err)
	assert.Contains(t, string(resp.Result), `"say"`)
}

func TestForward_ToolsCall(t *testing.T) {
	t.Parallel()
	b := newEchoBackend(t)
	params, _ := json.Marshal(map[string]any{"name": "say", "arguments": map[string]any{"msg": "hi"}})
	resp, err := b.Forward(context.Background(), &jsonrpc.Message{JSONRPC: "2.0", ID: []byte("7"), Method: "tools/call", Params: params})
	require.NoError(t, err)
	assert.Equal(t, "7", string(resp.ID))
	assert.Contains(t, string(resp.Result), "hi")
}

func TestForward_ToolsCall_SchemaRejectsBadArgs(t *testing.T) {
	t.Parallel()
	b := newEchoBackend(t)
	params, _ := json.Marshal(map[string]any{"name": "say", "arguments": map[string]any{}})
	_, err := b.Forward(context.Background(), &jsonrpc.Message{JSONRPC: "2.0", ID: []byte("1"), Method: "tools/call", Params: params})
	assert.Error(t, err)
}

func TestForward_ToolsCall_UnknownTool(t *testing.T) {
	t.Parallel()
	b := newEchoBackend(t)
	params, _ := json.Marshal(map[string]any{"name": "nope", "arguments": map[string]any{}})
	_, err := b.Forward(context.Background(), &jsonrpc.Message{JSONRPC: "2.0", ID: []byte("1"), Method: "tools/call", Params: params})
	assert.Error(t, err)
}

func TestForward_Notification(t *testing.T) {
	t.Parallel()
	b := newEchoBackend(t)
	resp, err := b.Forward(context.Background(), &jsonrpc.Message{JSONRPC: "2.0", Method: "notifications/initialized"})
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestAliveAndClose(t *testing.T) {
	t.Parallel()
	b := newEchoBackend(t)
	assert.True(t, b.Alive())
	require.NoError(t, b.Close())
	assert.False(t, b.Alive())
}

func TestBuild_UnknownHandler(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	_, err := r.Build("missing")
	assert.Error(t, err)
}
