// Package lockfile provides process-wide tracking of flock.Flock handles so
// they can be released en masse on shutdown, and a sweep for lock files
// abandoned by a process that died without releasing them.
package lockfile

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/stacklok/mcpmux/pkg/logger"
)

type lockRegistry struct {
	mu    sync.RWMutex
	locks map[string]*flock.Flock
}

func (r *lockRegistry) RegisterLock(path string, lock *flock.Flock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks[path] = lock
}

func (r *lockRegistry) UnregisterLock(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, path)
}

func (r *lockRegistry) CleanupAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for path, lock := range r.locks {
		if err := lock.Unlock(); err != nil {
			logger.Warnf("failed to unlock %s: %v", path, err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warnf("failed to remove lock file %s: %v", path, err)
		}
		delete(r.locks, path)
	}
}

var globalRegistry = &lockRegistry{
	locks: make(map[string]*flock.Flock),
}

// NewTrackedLock creates a flock.Flock at path and registers it with the
// process-wide registry so CleanupAllLocks can release it on shutdown even
// if the caller never does.
func NewTrackedLock(path string) *flock.Flock {
	lock := flock.New(path)
	globalRegistry.RegisterLock(path, lock)
	return lock
}

// ReleaseTrackedLock unlocks lock, removes its file, and unregisters it.
func ReleaseTrackedLock(path string, lock *flock.Flock) {
	if err := lock.Unlock(); err != nil {
		logger.Warnf("failed to unlock %s: %v", path, err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("failed to remove lock file %s: %v", path, err)
	}
	globalRegistry.UnregisterLock(path)
}

// CleanupAllLocks releases and removes every lock currently tracked in the
// process-wide registry. Called from the controller's shutdown path.
func CleanupAllLocks() {
	globalRegistry.CleanupAll()
}

// CleanupStaleLocks removes *.lock files older than maxAge in dirs, skipping
// any that are still actively held (flock.TryLock fails). internal/clientconfig.Write
// runs it on the destination directory before taking its own lock, to
// recover from a previous process that crashed without releasing its locks.
func CleanupStaleLocks(dirs []string, maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if filepath.Ext(entry.Name()) != ".lock" {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}

			removeStaleLock(path)
		}
	}
}

// removeStaleLock attempts to acquire path's lock without blocking; if that
// succeeds, nothing else holds it, so it's safe to unlock and delete.
func removeStaleLock(path string) {
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil || !locked {
		return
	}
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("failed to remove stale lock file %s: %v", path, err)
	}
}
