// Package endpoint implements the per-backend endpoint fabric (spec.md
// §4.2): one Unix-domain listener and accept loop per backend, bounded by a
// proxy-wide connection semaphore, instrumented with Prometheus counters.
package endpoint

import (
	"context"
	"net"
	"os"
	"sync"

	"golang.org/x/sync/semaphore"

	mcperr "github.com/stacklok/mcpmux/pkg/errors"
	"github.com/stacklok/mcpmux/pkg/logger"
	"github.com/stacklok/mcpmux/pkg/metrics"
)

// ConnHandler processes one accepted connection until the client closes it
// or an irrecoverable protocol error occurs. Supplied by the controller,
// which hands the connection to a router bound to backendName.
type ConnHandler func(ctx context.Context, backendName string, conn net.Conn)

// Backlog is the minimum listen backlog spec.md §4.2 requires.
const Backlog = 5

// Endpoint is a (backend name, socket path, listener, accept worker) tuple.
type Endpoint struct {
	Name string
	Path string

	listener net.Listener
	wg       sync.WaitGroup
	done     chan struct{}
}

// Fabric owns all endpoints and the process-wide connection semaphore.
type Fabric struct {
	sem     *semaphore.Weighted
	handler ConnHandler

	mu        sync.Mutex
	endpoints map[string]*Endpoint
}

// NewFabric builds a Fabric bounding concurrent connections to
// maxConnections, dispatching accepted connections to handler.
func NewFabric(maxConnections int64, handler ConnHandler) *Fabric {
	return &Fabric{
		sem:       semaphore.NewWeighted(maxConnections),
		handler:   handler,
		endpoints: map[string]*Endpoint{},
	}
}

// Bind creates the listener for name at path, removing any stale socket
// file first, and starts its accept loop. Endpoints must all be bound
// before any backend is started (spec.md §4.1 startup ordering).
func (f *Fabric) Bind(ctx context.Context, name, path string) (*Endpoint, error) {
	_ = os.Remove(path)

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return nil, mcperr.NewStartupError("failed to bind endpoint socket for "+name, err)
	}
	if unixLn, ok := ln.(*net.UnixListener); ok {
		unixLn.SetUnlinkOnClose(true)
	}

	ep := &Endpoint{Name: name, Path: path, listener: ln, done: make(chan struct{})}

	f.mu.Lock()
	f.endpoints[name] = ep
	f.mu.Unlock()

	ep.wg.Add(1)
	go f.acceptLoop(ctx, ep)
	return ep, nil
}

func (f *Fabric) acceptLoop(ctx context.Context, ep *Endpoint) {
	defer ep.wg.Done()
	for {
		conn, err := ep.listener.Accept()
		if err != nil {
			select {
			case <-ep.done:
				return
			default:
				logger.Warnf("endpoint %s: accept error: %v", ep.Name, err)
				return
			}
		}

		if !f.sem.TryAcquire(1) {
			metrics.ConnectionsRefused.WithLabelValues(ep.Name).Inc()
			_ = conn.Close()
			continue
		}
		metrics.ConnectionsActive.WithLabelValues(ep.Name).Inc()

		go func() {
			defer f.sem.Release(1)
			defer metrics.ConnectionsActive.WithLabelValues(ep.Name).Dec()
			defer conn.Close()
			f.handler(ctx, ep.Name, conn)
		}()
	}
}

// Close stops accepting, closes the listener (which also unlinks the
// socket file), and waits for the accept loop goroutine to exit.
func (ep *Endpoint) Close() error {
	close(ep.done)
	err := ep.listener.Close()
	ep.wg.Wait()
	return err
}

// CloseAll closes every bound endpoint.
func (f *Fabric) CloseAll() {
	f.mu.Lock()
	endpoints := make([]*Endpoint, 0, len(f.endpoints))
	for _, ep := range f.endpoints {
		endpoints = append(endpoints, ep)
	}
	f.endpoints = map[string]*Endpoint{}
	f.mu.Unlock()

	for _, ep := range endpoints {
		if err := ep.Close(); err != nil {
			logger.Warnf("endpoint %s: close error: %v", ep.Name, err)
		}
	}
}

// Get returns the bound endpoint for name, if any.
func (f *Fabric) Get(name string) (*Endpoint, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.endpoints[name]
	return ep, ok
}
