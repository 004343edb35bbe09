// Package intercept implements the per-backend before/after interceptor
// pipeline from spec.md §4.5: ordered hooks that may rewrite a tools/call
// request or response, or block the call outright.
package intercept

import (
	"encoding/json"
	"fmt"

	"github.com/stacklok/mcpmux/pkg/logger"
)

// Wildcard is the hook key that matches any tool name.
const Wildcard = "*"

// BeforeHook inspects or rewrites a tools/call request before it reaches
// the backend. Returning ok=false blocks the call.
type BeforeHook func(params json.RawMessage, backendName, toolName string) (rewritten json.RawMessage, ok bool)

// AfterHook inspects or rewrites a tools/call response after the backend
// returns. Returning ok=false blocks the call (the client sees an error
// instead of the response).
type AfterHook func(params, result json.RawMessage, backendName, toolName string) (rewritten json.RawMessage, ok bool)

// Pipeline holds one backend's before/after hook maps, keyed by tool name,
// plus an optional Wildcard entry.
type Pipeline struct {
	Before map[string]BeforeHook
	After  map[string]AfterHook
}

// New builds an empty Pipeline. intercept_before/intercept_after always
// exist per spec.md §3, possibly empty.
func New() *Pipeline {
	return &Pipeline{Before: map[string]BeforeHook{}, After: map[string]AfterHook{}}
}

// RunBefore runs the specific-tool hook first, then the wildcard hook, on
// params. A hook that panics is treated as a block and logged at error
// level, since hooks are third-party code and must never take down a
// router goroutine.
func (p *Pipeline) RunBefore(backendName, toolName string, params json.RawMessage) (rewritten json.RawMessage, blocked bool) {
	rewritten = params
	if hook, ok := p.Before[toolName]; ok {
		var ok2 bool
		rewritten, ok2 = safeRunBefore(hook, rewritten, backendName, toolName)
		if !ok2 {
			return rewritten, true
		}
	}
	if hook, ok := p.Before[Wildcard]; ok {
		var ok2 bool
		rewritten, ok2 = safeRunBefore(hook, rewritten, backendName, toolName)
		if !ok2 {
			return rewritten, true
		}
	}
	return rewritten, false
}

// RunAfter runs the specific-tool hook first, then the wildcard hook, on
// result.
func (p *Pipeline) RunAfter(backendName, toolName string, params, result json.RawMessage) (rewritten json.RawMessage, blocked bool) {
	rewritten = result
	if hook, ok := p.After[toolName]; ok {
		var ok2 bool
		rewritten, ok2 = safeRunAfter(hook, params, rewritten, backendName, toolName)
		if !ok2 {
			return rewritten, true
		}
	}
	if hook, ok := p.After[Wildcard]; ok {
		var ok2 bool
		rewritten, ok2 = safeRunAfter(hook, params, rewritten, backendName, toolName)
		if !ok2 {
			return rewritten, true
		}
	}
	return rewritten, false
}

func safeRunBefore(hook BeforeHook, params json.RawMessage, backendName, toolName string) (out json.RawMessage, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("before-hook panic on backend=%s tool=%s: %v", backendName, toolName, r)
			out, ok = params, false
		}
	}()
	return hook(params, backendName, toolName)
}

func safeRunAfter(hook AfterHook, params, result json.RawMessage, backendName, toolName string) (out json.RawMessage, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("after-hook panic on backend=%s tool=%s: %v", backendName, toolName, r)
			out, ok = result, false
		}
	}()
	return hook(params, result, backendName, toolName)
}

// ErrBlocked is a sentinel the router can wrap with context when an
// interceptor blocks a call.
var ErrBlocked = fmt.Errorf("blocked by interceptor")
