// Package registry holds the BackendConfig/BackendState data model and the
// ordered name->entry registry the controller owns (spec.md §3).
package registry

import (
	"regexp"
	"sync"

	mcperr "github.com/stacklok/mcpmux/pkg/errors"
	"github.com/stacklok/mcpmux/pkg/intercept"
)

// namePattern validates BackendConfig.Name per spec.md §3.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Kind distinguishes an external subprocess backend from an in-process one.
type Kind string

// Backend kinds.
const (
	KindExternal Kind = "external"
	KindEmbedded Kind = "embedded"
)

// Status is a BackendState's lifecycle phase.
type Status string

// Backend lifecycle states (spec.md §4.6).
const (
	StatusRegistered Status = "registered"
	StatusStarting   Status = "starting"
	StatusRunning    Status = "running"
	StatusExited     Status = "exited"
	StatusFailed     Status = "failed"
)

// Config describes one backend, independent of its runtime state.
type Config struct {
	Name string
	Kind Kind

	// External.
	Command    string
	Args       []string
	Cwd        string
	Env        map[string]string
	InheritEnv bool

	// Embedded.
	EmbeddedHandler string

	AutoStart bool
	Whitelist []string
	Blacklist []string

	// InterceptBefore/InterceptAfter hold hooks keyed by tool name (or the
	// wildcard). The config document carries no interceptor entries; the
	// embedding application sets these programmatically after load.
	InterceptBefore map[string]intercept.BeforeHook
	InterceptAfter  map[string]intercept.AfterHook
}

// Validate enforces the spec.md §3 invariant: exactly one of
// command/embedded handler is present, and the name matches the allowed
// pattern.
func (c *Config) Validate() error {
	if c.Name == "" || !namePattern.MatchString(c.Name) {
		return mcperr.NewConfigError("backend name must match [A-Za-z0-9_.-]+ and be non-empty", nil)
	}
	hasCommand := c.Command != ""
	hasEmbedded := c.EmbeddedHandler != ""
	switch {
	case hasCommand == hasEmbedded:
		return mcperr.NewConfigError("backend "+c.Name+" must specify exactly one of command or embedded handler", nil)
	case hasCommand:
		c.Kind = KindExternal
	case hasEmbedded:
		c.Kind = KindEmbedded
	}
	if c.InterceptBefore == nil {
		c.InterceptBefore = map[string]intercept.BeforeHook{}
	}
	if c.InterceptAfter == nil {
		c.InterceptAfter = map[string]intercept.AfterHook{}
	}
	return nil
}

// Backend is the minimal liveness/close contract the registry and status
// snapshot depend on. It does not include forwarding: the controller asserts
// the stored value to backend.Backend before handing it to a router, and the
// concrete implementations in pkg/backend satisfy both.
type Backend interface {
	Alive() bool
	Close() error
}

// State is the runtime state paired with a Config.
type State struct {
	Status       Status
	EndpointPath string
	Backend      Backend
	FailMessage  string
}

// Entry is a point-in-time, race-free copy of one registry row: Config is
// never mutated after Register so sharing the pointer is safe, but State is
// copied out under the registry lock so a caller never reads a field the
// registry is concurrently writing.
type Entry struct {
	Config *Config
	State  State
}

// row is the registry's internal, mutable per-backend record. Every field
// read or write on row.state must hold the registry's lock.
type row struct {
	config *Config
	state  State
}

// Registry is the controller's ordered name->row map. Insertion order is
// preserved; names are unique. All State access goes through the locked
// methods below; Get/Entries return copies, never the internal rows.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*row
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{entries: map[string]*row{}}
}

// Register appends cfg in Registered state, failing with DuplicateName if
// the name is already taken.
func (r *Registry) Register(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[cfg.Name]; exists {
		return mcperr.NewDuplicateNameError("backend already registered: "+cfg.Name, nil)
	}
	r.order = append(r.order, cfg.Name)
	r.entries[cfg.Name] = &row{config: cfg, state: State{Status: StatusRegistered}}
	return nil
}

// Get returns a copy of the entry for name, if present.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	return Entry{Config: e.config, State: e.state}, true
}

// Status returns the current lifecycle status for name under the read lock,
// for callers that only need that one field.
func (r *Registry) Status(name string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return "", false
	}
	return e.state.Status, true
}

// Backend returns the currently attached Backend for name under the read
// lock, or (nil, false) if none has been set yet.
func (r *Registry) Backend(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok || e.state.Backend == nil {
		return nil, false
	}
	return e.state.Backend, true
}

// Names returns registered backend names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SetStatus transitions name's state under the registry write lock.
func (r *Registry) SetStatus(name string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.state.Status = status
	}
}

// SetEndpointPath records the bound socket path for name.
func (r *Registry) SetEndpointPath(name, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.state.EndpointPath = path
	}
}

// SetBackend attaches the running Backend implementation for name.
func (r *Registry) SetBackend(name string, be Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.state.Backend = be
	}
}

// SetFailMessage records why name transitioned to Failed.
func (r *Registry) SetFailMessage(name, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.state.FailMessage = message
	}
}

// Entries returns a snapshot copy of all entries in insertion order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		out = append(out, Entry{Config: e.config, State: e.state})
	}
	return out
}
