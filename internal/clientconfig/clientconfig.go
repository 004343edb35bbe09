// Package clientconfig generates the client-facing configuration blob that
// points an MCP client at this proxy's per-backend Unix sockets
// (SPEC_FULL.md §6): a pure function from (name, path) pairs to JSON or
// YAML, written atomically and guarded by a file lock so a concurrent
// writer (e.g. a second proxy instance sharing a client config directory)
// never interleaves with an in-progress write.
package clientconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	mcperr "github.com/stacklok/mcpmux/pkg/errors"
	"github.com/stacklok/mcpmux/pkg/fileutils"
	"github.com/stacklok/mcpmux/pkg/lockfile"
)

// Entry is one backend's client-visible connection info.
type Entry struct {
	Name         string `json:"name" yaml:"name"`
	EndpointPath string `json:"endpoint_path" yaml:"endpoint_path"`
}

// document is the generated file's top-level shape.
type document struct {
	Servers []Entry `json:"servers" yaml:"servers"`
}

// staleLockMaxAge is how old an unheld .lock file must be before Write
// sweeps it away (left behind by a process that crashed mid-write).
const staleLockMaxAge = 1 * time.Hour

// Render builds the JSON or YAML bytes for entries, sorted by name by the
// caller (Render does not reorder input).
func Render(entries []Entry, asYAML bool) ([]byte, error) {
	doc := document{Servers: entries}
	if asYAML {
		out, err := yaml.Marshal(doc)
		if err != nil {
			return nil, mcperr.NewInternalError("failed to render client config as YAML", err)
		}
		return out, nil
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, mcperr.NewInternalError("failed to render client config as JSON", err)
	}
	return out, nil
}

// Write renders entries and atomically writes them to path, mode 0600,
// holding an exclusive file lock for the duration so a concurrent writer
// targeting the same path blocks rather than corrupting it. The
// destination directory must not be a symlink (spec.md §6 filesystem rule).
func Write(path string, entries []Entry, asYAML bool) error {
	dir := filepath.Dir(path)
	info, err := os.Lstat(dir)
	if err != nil {
		return mcperr.NewConfigError("client config directory does not exist: "+dir, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return mcperr.NewConfigError("client config directory must not be a symlink: "+dir, nil)
	}

	lockfile.CleanupStaleLocks([]string{dir}, staleLockMaxAge)

	lockPath := path + ".lock"
	lock := lockfile.NewTrackedLock(lockPath)
	if err := lock.Lock(); err != nil {
		return mcperr.NewConfigError("failed to acquire client config lock", err)
	}
	defer lockfile.ReleaseTrackedLock(lockPath, lock)

	data, err := Render(entries, asYAML)
	if err != nil {
		return err
	}
	if err := fileutils.AtomicWriteFile(path, data, 0o600); err != nil {
		return mcperr.NewConfigError(fmt.Sprintf("failed to write client config %s", path), err)
	}
	return nil
}
