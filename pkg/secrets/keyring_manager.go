package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/mcpmux/pkg/secrets/keyring"
)

const keyringService = "mcpmux"

// KeyringManager delegates to the host OS credential store.
type KeyringManager struct {
	provider keyring.Provider
}

// NewKeyringManager constructs the OS-keyring-backed secret provider.
func NewKeyringManager() Provider {
	return &KeyringManager{provider: keyring.NewCompositeProvider()}
}

func (m *KeyringManager) GetSecret(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}
	value, err := m.provider.Get(keyringService, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("secret not found: %s", name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret from keyring: %w", err)
	}
	return value, nil
}

func (m *KeyringManager) SetSecret(_ context.Context, name, value string) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}
	if err := m.provider.Set(keyringService, name, value); err != nil {
		return fmt.Errorf("failed to write secret to keyring: %w", err)
	}
	return nil
}

func (m *KeyringManager) DeleteSecret(_ context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}
	if err := m.provider.Delete(keyringService, name); err != nil {
		return fmt.Errorf("failed to delete secret from keyring: %w", err)
	}
	return nil
}

func (*KeyringManager) ListSecrets(_ context.Context) ([]SecretDescription, error) {
	return nil, fmt.Errorf("keyring provider does not support listing secrets")
}

func (m *KeyringManager) Cleanup() error {
	return m.provider.DeleteAll(keyringService)
}

func (*KeyringManager) Capabilities() Capabilities {
	return Capabilities{CanRead: true, CanWrite: true, CanDelete: true, CanCleanup: true}
}
