// Package keyring wraps the host OS credential store behind a small
// provider interface, so the secrets package's keyring-backed Provider
// doesn't need to know which concrete backend answered a lookup.
package keyring

import "errors"

// ErrNotFound is returned by Get when service/key has no stored value.
var ErrNotFound = errors.New("keyring: secret not found")

// Provider is a single OS credential-store backend.
type Provider interface {
	// Name identifies the backend for logging and diagnostics.
	Name() string
	// IsAvailable reports whether this backend can currently be reached.
	IsAvailable() bool
	Set(service, key, value string) error
	Get(service, key string) (string, error)
	Delete(service, key string) error
	DeleteAll(service string) error
}
