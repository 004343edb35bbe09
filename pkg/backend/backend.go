// Package backend defines the unified forwarding contract external
// subprocess backends and embedded in-process backends both satisfy
// (spec.md §4.3), so the router never branches on kind.
package backend

import (
	"context"
	"time"

	"github.com/stacklok/mcpmux/pkg/jsonrpc"
)

// DefaultTimeout is the default deadline forward() waits for a backend's
// response before failing with BackendTimeout.
const DefaultTimeout = 30 * time.Second

// Backend is the capability set both backend variants implement. The
// router dispatches against this interface only.
type Backend interface {
	// Forward sends msg to the backend and returns its response. If msg is
	// a notification (no id), Forward delivers it and returns (nil, nil):
	// no reply is expected or awaited.
	Forward(ctx context.Context, msg *jsonrpc.Message) (*jsonrpc.Message, error)

	// Alive reports whether the backend can currently accept forwards.
	Alive() bool

	// Close releases the backend's resources (child process, handler).
	// Idempotent.
	Close() error
}
