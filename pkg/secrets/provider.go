package secrets

import "context"

// SecretDescription is a non-sensitive listing entry: the secret's name and
// any provider-specific metadata, never its value.
type SecretDescription struct {
	Name        string
	Description string
}

// Capabilities describes which operations a Provider actually supports, so
// callers can render an accurate picture rather than trying an operation
// and parsing the error.
type Capabilities struct {
	CanRead    bool
	CanWrite   bool
	CanDelete  bool
	CanList    bool
	CanCleanup bool
}

// IsReadOnly reports whether the provider only ever supports reads.
func (c Capabilities) IsReadOnly() bool {
	return c.CanRead && !c.CanWrite && !c.CanDelete
}

// IsReadWrite reports whether the provider supports both reads and writes.
func (c Capabilities) IsReadWrite() bool {
	return c.CanRead && c.CanWrite
}

// String renders a short capability class name.
func (c Capabilities) String() string {
	switch {
	case c.CanRead && c.CanWrite && c.CanDelete:
		return "read-write"
	case c.IsReadOnly():
		return "read-only"
	default:
		return "custom"
	}
}

// Provider resolves secret references against a backing store. Every
// mcpmux secret backend (none, environment, encrypted file, OS keyring)
// implements this one interface so the controller's ${secret:NAME}
// resolution never needs to know which backend is configured.
type Provider interface {
	GetSecret(ctx context.Context, name string) (string, error)
	SetSecret(ctx context.Context, name, value string) error
	DeleteSecret(ctx context.Context, name string) error
	ListSecrets(ctx context.Context) ([]SecretDescription, error)
	Cleanup() error
	Capabilities() Capabilities
}
