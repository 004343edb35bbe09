package router

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcpmux/pkg/access"
	"github.com/stacklok/mcpmux/pkg/intercept"
	"github.com/stacklok/mcpmux/pkg/jsonrpc"
)

// fakeBackend is a spy backend.Backend used to drive router scenarios
// without a real subprocess.
type fakeBackend struct {
	calls    []*jsonrpc.Message
	response *jsonrpc.Message
	err      error
	alive    bool
}

func (f *fakeBackend) Forward(_ context.Context, msg *jsonrpc.Message) (*jsonrpc.Message, error) {
	f.calls = append(f.calls, msg)
	if msg.IsNotification() {
		return nil, f.err
	}
	if f.err != nil {
		return nil, f.err
	}
	resp := *f.response
	resp.ID = msg.ID
	return &resp, nil
}

func (f *fakeBackend) Alive() bool { return f.alive }
func (f *fakeBackend) Close() error { return nil }

func pipeRouter(t *testing.T, r *Router) (client net.Conn, done chan struct{}) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	done = make(chan struct{})
	go func() {
		r.Serve(context.Background(), serverConn)
		close(done)
	}()
	t.Cleanup(func() { _ = clientConn.Close() })
	return clientConn, done
}

func sendAndRead(t *testing.T, conn net.Conn, req string) string {
	t.Helper()
	_, err := conn.Write([]byte(req + "\n"))
	require.NoError(t, err)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestScenario_EchoRoundTrip(t *testing.T) {
	t.Parallel()
	result, _ := json.Marshal(map[string]any{"content": []map[string]any{{"type": "text", "text": "hi"}}})
	be := &fakeBackend{response: jsonrpc.NewResult(nil, result), alive: true}
	r := New("echo", be, access.New(nil, nil), intercept.New())
	conn, _ := pipeRouter(t, r)

	line := sendAndRead(t, conn, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"say","arguments":{"msg":"hi"}}}`)
	var resp jsonrpc.Message
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	assert.Equal(t, "7", string(resp.ID))
	assert.JSONEq(t, string(result), string(resp.Result))
}

func TestScenario_BlacklistedTool(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{alive: true}
	r := New("math", be, access.New(nil, []string{"divide"}), intercept.New())
	conn, _ := pipeRouter(t, r)

	line := sendAndRead(t, conn, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"divide"}}`)
	var resp jsonrpc.Message
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeAccessDenied, resp.Error.Code)
	assert.Empty(t, be.calls, "backend must not be invoked for a blacklisted tool")
}

func TestScenario_ToolsListFiltering(t *testing.T) {
	t.Parallel()
	result, _ := json.Marshal(map[string]any{"tools": []map[string]any{
		{"name": "get_time"}, {"name": "dangerous"},
	}})
	be := &fakeBackend{response: jsonrpc.NewResult(nil, result), alive: true}
	r := New("utility", be, access.New([]string{"get_time"}, nil), intercept.New())
	conn, _ := pipeRouter(t, r)

	line := sendAndRead(t, conn, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	var resp jsonrpc.Message
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	var result2 struct {
		Tools []map[string]any `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result2))
	require.Len(t, result2.Tools, 1)
	assert.Equal(t, "get_time", result2.Tools[0]["name"])
}

func TestScenario_BeforeInterceptorBlock(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{alive: true}
	p := intercept.New()
	p.Before["navigate"] = func(params json.RawMessage, _, _ string) (json.RawMessage, bool) {
		if containsMalicious(params) {
			return params, false
		}
		return params, true
	}
	r := New("browser", be, access.New(nil, nil), p)
	conn, _ := pipeRouter(t, r)

	line := sendAndRead(t, conn, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"navigate","arguments":{"url":"https://malicious.example/"}}}`)
	var resp jsonrpc.Message
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeAccessDenied, resp.Error.Code)
	assert.Empty(t, be.calls, "backend forward must not be invoked when before-hook blocks")
}

func containsMalicious(params json.RawMessage) bool {
	return strings.Contains(string(params), "malicious")
}

func TestScenario_AfterInterceptorRewrite(t *testing.T) {
	t.Parallel()
	result, _ := json.Marshal(map[string]any{"ok": true})
	be := &fakeBackend{response: jsonrpc.NewResult(nil, result), alive: true}
	p := intercept.New()
	p.After[intercept.Wildcard] = func(_, result json.RawMessage, _, _ string) (json.RawMessage, bool) {
		var m map[string]any
		_ = json.Unmarshal(result, &m)
		m["_meta"] = map[string]any{"tag": "x"}
		out, _ := json.Marshal(m)
		return out, true
	}
	r := New("any", be, access.New(nil, nil), p)
	conn, _ := pipeRouter(t, r)

	line := sendAndRead(t, conn, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"x"}}`)
	var resp jsonrpc.Message
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	var result2 struct {
		Meta struct {
			Tag string `json:"tag"`
		} `json:"_meta"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result2))
	assert.Equal(t, "x", result2.Meta.Tag)
}

func TestScenario_NotificationIsSilent(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{response: jsonrpc.NewResult(nil, []byte(`{}`)), alive: true}
	r := New("any", be, access.New(nil, nil), intercept.New())
	conn, _ := pipeRouter(t, r)

	_, err := conn.Write([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n"))
	require.NoError(t, err)

	// Follow with a real request; if the notification had produced a
	// reply, it would arrive first and break this assertion.
	line := sendAndRead(t, conn, `{"jsonrpc":"2.0","id":1,"method":"some/method"}`)
	var resp jsonrpc.Message
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	assert.Equal(t, "1", string(resp.ID))
}

func TestInitialize_SynthesizesDefaultWhenBackendSilent(t *testing.T) {
	t.Parallel()
	be := &fakeBackend{err: assertErr("no response")}
	r := New("b", be, access.New(nil, nil), intercept.New())
	conn, _ := pipeRouter(t, r)

	line := sendAndRead(t, conn, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	var resp jsonrpc.Message
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	assert.Contains(t, string(resp.Result), "2024-11-05")
}

type assertErrType struct{ msg string }

func (e assertErrType) Error() string { return e.msg }

func assertErr(msg string) error { return assertErrType{msg} }

func TestCorrelationGuard_MismatchedID(t *testing.T) {
	t.Parallel()
	r := &Router{BackendName: "b"}
	req := &jsonrpc.Message{ID: []byte("1")}
	resp := &jsonrpc.Message{ID: []byte("2"), Result: json.RawMessage(`{}`)}
	out := r.correlationGuard(req, resp)
	assert.Equal(t, jsonrpc.CodeInternalError, out.Error.Code)
}
