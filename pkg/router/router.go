// Package router implements the per-connection JSON-RPC dispatcher bound
// to one backend (spec.md §4.6): parse/validate, dispatch on method,
// consult the access filter and interceptor pipeline, forward to the
// backend, and re-validate the response before writing it back.
package router

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"

	"github.com/stacklok/mcpmux/pkg/access"
	"github.com/stacklok/mcpmux/pkg/backend"
	mcperr "github.com/stacklok/mcpmux/pkg/errors"
	"github.com/stacklok/mcpmux/pkg/intercept"
	"github.com/stacklok/mcpmux/pkg/jsonrpc"
	"github.com/stacklok/mcpmux/pkg/logger"
	"github.com/stacklok/mcpmux/pkg/metrics"
)

// DefaultMaxMessageBytes is spec.md §4.2's default oversized-line limit.
const DefaultMaxMessageBytes = 1 << 20

// protocolVersion is advertised on a synthesized initialize response
// (spec.md §6 and the open question in §9 about masking a broken backend).
const protocolVersion = "2024-11-05"

// Router dispatches messages on one connection to one backend.
type Router struct {
	BackendName    string
	Backend        backend.Backend
	Filter         *access.Filter
	Pipeline       *intercept.Pipeline
	MaxMessageBytes int
}

// New builds a Router bound to backendName/be, applying filter and
// pipeline to tools/call and tools/list traffic.
func New(backendName string, be backend.Backend, filter *access.Filter, pipeline *intercept.Pipeline) *Router {
	maxBytes := DefaultMaxMessageBytes
	return &Router{BackendName: backendName, Backend: be, Filter: filter, Pipeline: pipeline, MaxMessageBytes: maxBytes}
}

// Serve processes lines from conn until the client closes it or an
// irrecoverable protocol error occurs (an oversized line, or invalid
// top-level JSON). Requests are processed strictly in arrival order: the
// next line is not read until the current response, if any, is written.
func (r *Router) Serve(ctx context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), r.MaxMessageBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		peek := jsonrpc.PeekLine(line)
		if !peek.IsObject || !json.Valid(line) {
			return
		}

		resp := r.handleLine(ctx, append([]byte{}, line...))
		if resp == nil {
			continue
		}
		out, err := jsonrpc.Marshal(resp)
		if err != nil {
			logger.Errorf("router %s: failed to marshal response: %v", r.BackendName, err)
			return
		}
		if _, err := conn.Write(append(out, '\n')); err != nil {
			return
		}
	}
}

func (r *Router) handleLine(ctx context.Context, line []byte) *jsonrpc.Message {
	msg, err := jsonrpc.Parse(line)
	if err != nil {
		var withID struct {
			ID json.RawMessage `json:"id"`
		}
		if jsonErr := json.Unmarshal(line, &withID); jsonErr == nil && len(withID.ID) > 0 {
			return jsonrpc.NewError(withID.ID, jsonrpc.CodeInvalidRequest, "invalid request")
		}
		return nil
	}

	var resp *jsonrpc.Message
	switch msg.Method {
	case "initialize":
		resp = r.dispatchInitialize(ctx, msg)
	case "tools/list":
		resp = r.dispatchToolsList(ctx, msg)
	case "tools/call":
		resp = r.dispatchToolsCall(ctx, msg)
	default:
		resp = r.forwardVerbatim(ctx, msg)
	}

	if resp == nil || msg.IsNotification() {
		return nil
	}
	return r.correlationGuard(msg, resp)
}

func (r *Router) dispatchInitialize(ctx context.Context, msg *jsonrpc.Message) *jsonrpc.Message {
	resp, err := r.Backend.Forward(ctx, msg)
	if err == nil && resp != nil {
		return resp
	}
	if msg.IsNotification() {
		return nil
	}
	result, _ := json.Marshal(map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"serverInfo":      map[string]any{"name": r.BackendName},
	})
	return jsonrpc.NewResult(msg.ID, result)
}

func (r *Router) dispatchToolsList(ctx context.Context, msg *jsonrpc.Message) *jsonrpc.Message {
	resp, err := r.Backend.Forward(ctx, msg)
	if msg.IsNotification() {
		return nil
	}
	if err != nil || resp == nil || resp.Result == nil {
		empty, _ := json.Marshal(map[string]any{"tools": []any{}})
		return jsonrpc.NewResult(msg.ID, empty)
	}

	var result struct {
		Tools []map[string]any `json:"tools"`
	}
	if jsonErr := json.Unmarshal(resp.Result, &result); jsonErr != nil {
		empty, _ := json.Marshal(map[string]any{"tools": []any{}})
		return jsonrpc.NewResult(msg.ID, empty)
	}

	filtered := make([]map[string]any, 0, len(result.Tools))
	for _, tool := range result.Tools {
		name, _ := tool["name"].(string)
		if name != "" && r.Filter.Allowed(name) {
			filtered = append(filtered, tool)
		}
	}
	out, _ := json.Marshal(map[string]any{"tools": filtered})
	return jsonrpc.NewResult(msg.ID, out)
}

func (r *Router) dispatchToolsCall(ctx context.Context, msg *jsonrpc.Message) *jsonrpc.Message {
	var params struct {
		Name string `json:"name"`
	}
	if msg.Params == nil || json.Unmarshal(msg.Params, &params) != nil || params.Name == "" {
		return jsonrpc.NewError(msg.ID, jsonrpc.CodeInvalidParams, "missing tool name")
	}

	if !r.Filter.Allowed(params.Name) {
		metrics.RequestsTotal.WithLabelValues(r.BackendName, "tools/call", "denied").Inc()
		return jsonrpc.NewError(msg.ID, jsonrpc.CodeAccessDenied, "access denied: "+params.Name)
	}

	rewrittenParams, blocked := r.Pipeline.RunBefore(r.BackendName, params.Name, msg.Params)
	if blocked {
		metrics.RequestsTotal.WithLabelValues(r.BackendName, "tools/call", "blocked").Inc()
		return jsonrpc.NewError(msg.ID, jsonrpc.CodeAccessDenied, "blocked by interceptor: "+params.Name)
	}

	forwardMsg := *msg
	forwardMsg.Params = rewrittenParams
	resp, err := r.Backend.Forward(ctx, &forwardMsg)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(r.BackendName, "tools/call", "error").Inc()
		if mcperr.IsBackendTimeout(err) {
			return jsonrpc.NewError(msg.ID, jsonrpc.CodeBackendFailure, "backend timeout")
		}
		return jsonrpc.NewError(msg.ID, jsonrpc.CodeBackendFailure, "backend communication failure")
	}
	if resp == nil {
		return nil
	}

	rewrittenResult, blocked := r.Pipeline.RunAfter(r.BackendName, params.Name, rewrittenParams, resp.Result)
	if blocked {
		metrics.RequestsTotal.WithLabelValues(r.BackendName, "tools/call", "blocked").Inc()
		return jsonrpc.NewError(msg.ID, jsonrpc.CodeAccessDenied, "blocked by interceptor: "+params.Name)
	}

	metrics.RequestsTotal.WithLabelValues(r.BackendName, "tools/call", "ok").Inc()
	resp.Result = rewrittenResult
	return resp
}

func (r *Router) forwardVerbatim(ctx context.Context, msg *jsonrpc.Message) *jsonrpc.Message {
	resp, err := r.Backend.Forward(ctx, msg)
	if msg.IsNotification() {
		return nil
	}
	if err != nil {
		if mcperr.IsBackendTimeout(err) {
			return jsonrpc.NewError(msg.ID, jsonrpc.CodeBackendFailure, "backend timeout")
		}
		return jsonrpc.NewError(msg.ID, jsonrpc.CodeBackendFailure, "backend communication failure")
	}
	return resp
}

func (r *Router) correlationGuard(req, resp *jsonrpc.Message) *jsonrpc.Message {
	if !resp.IsResponse() && resp.Error == nil {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, "invalid backend response")
	}
	if string(resp.ID) != string(req.ID) {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, "response id does not match request id")
	}
	return resp
}

// ErrConnectionClosed names a connection closed mid-line, for callers that
// want to distinguish a clean EOF from a reset. Serve does not return it.
var ErrConnectionClosed = errors.New("router: connection closed")
