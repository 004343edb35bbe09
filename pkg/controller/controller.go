// Package controller implements the Proxy Controller (spec.md §4.1): it
// owns the backend registry, starts/stops the endpoint fabric and
// backends, and produces a status snapshot.
package controller

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/mcpmux/pkg/access"
	"github.com/stacklok/mcpmux/pkg/backend"
	"github.com/stacklok/mcpmux/pkg/backend/embedded"
	"github.com/stacklok/mcpmux/pkg/backend/external"
	"github.com/stacklok/mcpmux/pkg/endpoint"
	mcperr "github.com/stacklok/mcpmux/pkg/errors"
	"github.com/stacklok/mcpmux/pkg/intercept"
	"github.com/stacklok/mcpmux/pkg/lockfile"
	"github.com/stacklok/mcpmux/pkg/logger"
	"github.com/stacklok/mcpmux/pkg/metrics"
	"github.com/stacklok/mcpmux/pkg/registry"
	"github.com/stacklok/mcpmux/pkg/router"
	"github.com/stacklok/mcpmux/pkg/secrets"
)

// secretRef matches ${secret:NAME} inside a config env value.
var secretRef = regexp.MustCompile(`\$\{secret:([A-Za-z0-9_.-]+)\}`)

// shutdownGrace is the minimum grace period spec.md §4.1 requires between
// terminate and kill for an external backend.
const shutdownGrace = 1 * time.Second

// Controller is the proxy's single owner of backend lifecycle and
// connection routing.
type Controller struct {
	Registry        *registry.Registry
	EmbeddedTools   *embedded.Registry
	SecretProvider  secrets.Provider
	MaxConnections  int64

	scratchDir string
	fabric     *endpoint.Fabric

	mu      sync.Mutex
	started bool
}

// New builds a Controller. secretProvider resolves ${secret:NAME} in
// backend env values; embeddedTools supplies handlers for embedded
// backends registered before Startup is called.
func New(secretProvider secrets.Provider, embeddedTools *embedded.Registry, maxConnections int64) *Controller {
	return &Controller{
		Registry:       registry.New(),
		EmbeddedTools:  embeddedTools,
		SecretProvider: secretProvider,
		MaxConnections: maxConnections,
	}
}

// Register adds cfg to the registry in Registered state.
func (c *Controller) Register(cfg *registry.Config) error {
	return c.Registry.Register(cfg)
}

// Startup is idempotent: it creates the scratch directory, binds every
// registered backend's endpoint, then starts every auto_start backend.
// Endpoints are all bound before any backend is started so that a client
// reading the generated config can always connect, even to a backend that
// has not finished starting yet (spec.md §4.1).
func (c *Controller) Startup(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	scratch, err := os.MkdirTemp("", "mcpmux-")
	if err != nil {
		return mcperr.NewStartupError("failed to create scratch directory", err)
	}
	if err := os.Chmod(scratch, 0o700); err != nil {
		return mcperr.NewStartupError("failed to set scratch directory permissions", err)
	}
	c.scratchDir = scratch
	c.fabric = endpoint.NewFabric(c.MaxConnections, c.handleConn)

	names := c.Registry.Names()
	var g errgroup.Group
	for _, name := range names {
		name := name
		g.Go(func() error {
			path := filepath.Join(scratch, name+".sock")
			if _, err := c.fabric.Bind(ctx, name, path); err != nil {
				return err
			}
			c.Registry.SetEndpointPath(name, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var starts errgroup.Group
	for _, name := range names {
		entry, _ := c.Registry.Get(name)
		if !entry.Config.AutoStart {
			continue
		}
		name := name
		starts.Go(func() error {
			return c.StartBackend(ctx, name)
		})
	}
	if err := starts.Wait(); err != nil {
		logger.Warnf("startup: one or more auto_start backends failed: %v", err)
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	return nil
}

// StartBackend is idempotent per backend: it spawns or constructs the
// backend and transitions it to Running, or to Failed if the spawn fails.
func (c *Controller) StartBackend(ctx context.Context, name string) error {
	entry, ok := c.Registry.Get(name)
	if !ok {
		return mcperr.NewConfigError("unknown backend: "+name, nil)
	}
	if entry.State.Status == registry.StatusRunning || entry.State.Status == registry.StatusStarting {
		return nil
	}
	c.Registry.SetStatus(name, registry.StatusStarting)
	metrics.BackendStatus.WithLabelValues(name, string(registry.StatusStarting)).Set(1)

	var be backend.Backend
	var err error
	switch entry.Config.Kind {
	case registry.KindExternal:
		be, err = c.spawnExternal(ctx, entry.Config)
	case registry.KindEmbedded:
		be, err = c.EmbeddedTools.Build(entry.Config.EmbeddedHandler)
	}

	if err != nil {
		c.Registry.SetStatus(name, registry.StatusFailed)
		c.Registry.SetFailMessage(name, err.Error())
		metrics.BackendStatus.WithLabelValues(name, string(registry.StatusFailed)).Set(1)
		return mcperr.NewBackendStartFailedError("backend "+name+" failed to start", err)
	}

	c.Registry.SetBackend(name, be)
	c.Registry.SetStatus(name, registry.StatusRunning)
	metrics.BackendStatus.WithLabelValues(name, string(registry.StatusRunning)).Set(1)
	return nil
}

func (c *Controller) spawnExternal(ctx context.Context, cfg *registry.Config) (backend.Backend, error) {
	resolvedEnv, err := c.resolveSecrets(ctx, cfg.Env)
	if err != nil {
		return nil, mcperr.NewBackendStartFailedError("secret resolution failed for "+cfg.Name, err)
	}
	env := external.BuildEnv(cfg.InheritEnv, resolvedEnv)
	return external.Spawn(ctx, cfg.Name, cfg.Command, cfg.Args, env, cfg.Cwd, shutdownGrace)
}

// resolveSecrets substitutes every ${secret:NAME} reference in env's
// values via the controller's secret provider (spec.md §9).
func (c *Controller) resolveSecrets(ctx context.Context, env map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(env))
	for k, v := range env {
		resolved, err := c.resolveOne(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func (c *Controller) resolveOne(ctx context.Context, value string) (string, error) {
	var resolveErr error
	result := secretRef.ReplaceAllStringFunc(value, func(match string) string {
		if resolveErr != nil {
			return match
		}
		name := secretRef.FindStringSubmatch(match)[1]
		secret, err := c.SecretProvider.GetSecret(ctx, name)
		if err != nil {
			resolveErr = err
			return match
		}
		return secret
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return result, nil
}

// StopBackend is idempotent: external backends are sent a terminate signal
// and reaped after a grace period; embedded backends drop their handler.
func (c *Controller) StopBackend(name string) error {
	entry, ok := c.Registry.Get(name)
	if !ok {
		return mcperr.NewConfigError("unknown backend: "+name, nil)
	}
	if entry.State.Backend == nil {
		return nil
	}
	if err := entry.State.Backend.Close(); err != nil {
		logger.Warnf("stop_backend %s: close error: %v", name, err)
	}
	c.Registry.SetStatus(name, registry.StatusExited)
	metrics.BackendStatus.WithLabelValues(name, string(registry.StatusExited)).Set(1)
	return nil
}

// Shutdown stops every backend, closes every listener, and removes the
// scratch directory. Safe to call twice and safe after a partial startup
// failure.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.mu.Unlock()

	g := &errgroup.Group{}
	for _, name := range c.Registry.Names() {
		name := name
		g.Go(func() error {
			return c.StopBackend(name)
		})
	}
	_ = g.Wait()

	if c.fabric != nil {
		c.fabric.CloseAll()
	}
	lockfile.CleanupAllLocks()
	if c.scratchDir != "" {
		if err := os.RemoveAll(c.scratchDir); err != nil {
			return mcperr.NewInternalError("failed to remove scratch directory", err)
		}
	}
	return nil
}

func (c *Controller) handleConn(ctx context.Context, name string, conn net.Conn) {
	entry, ok := c.Registry.Get(name)
	if !ok || entry.State.Backend == nil {
		return
	}
	be, ok := entry.State.Backend.(backend.Backend)
	if !ok {
		return
	}
	r := router.New(name, be, access.New(entry.Config.Whitelist, entry.Config.Blacklist), pipelineFor(entry.Config))
	r.Serve(ctx, conn)
}

func pipelineFor(cfg *registry.Config) *intercept.Pipeline {
	p := intercept.New()
	for tool, hook := range cfg.InterceptBefore {
		p.Before[tool] = hook
	}
	for tool, hook := range cfg.InterceptAfter {
		p.After[tool] = hook
	}
	return p
}

// BackendStatus is one entry in a Status snapshot.
type BackendStatus struct {
	Name            string   `json:"name"`
	Kind            string   `json:"kind"`
	Status          string   `json:"status"`
	EndpointPath    string   `json:"endpoint_path"`
	Alive           bool     `json:"alive"`
	FailMessage     string   `json:"fail_message,omitempty"`
	InterceptBefore []string `json:"intercept_before"`
	InterceptAfter  []string `json:"intercept_after"`
}

// Status is the controller's full status snapshot (spec.md §4.1,
// SPEC_FULL.md §4.1's metrics-snapshot extension).
type Status struct {
	Backends []BackendStatus       `json:"backends"`
	Metrics  map[string]float64    `json:"metrics"`
}

// StatusSnapshot builds a Status covering every registered backend and the
// metrics registry's current counter/gauge values.
func (c *Controller) StatusSnapshot() Status {
	var out Status
	for _, entry := range c.Registry.Entries() {
		alive := entry.State.Backend != nil && entry.State.Backend.Alive()
		out.Backends = append(out.Backends, BackendStatus{
			Name:            entry.Config.Name,
			Kind:            string(entry.Config.Kind),
			Status:          string(entry.State.Status),
			EndpointPath:    entry.State.EndpointPath,
			Alive:           alive,
			FailMessage:     entry.State.FailMessage,
			InterceptBefore: hookNames(entry.Config.InterceptBefore),
			InterceptAfter:  hookNamesAfter(entry.Config.InterceptAfter),
		})
	}
	out.Metrics = snapshotMetrics()
	return out
}

func hookNames(m map[string]intercept.BeforeHook) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names
}

func hookNamesAfter(m map[string]intercept.AfterHook) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names
}

func snapshotMetrics() map[string]float64 {
	families, err := metrics.Registry().Gather()
	if err != nil {
		return nil
	}
	out := map[string]float64{}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			labelSuffix := ""
			for _, lp := range m.GetLabel() {
				labelSuffix += "," + lp.GetName() + "=" + lp.GetValue()
			}
			key := family.GetName() + labelSuffix
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out
}
