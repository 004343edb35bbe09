package secrets

import (
	"context"
	"fmt"
)

// NoneManager is the default Provider: it never stores anything, so
// "${secret:NAME}" references fail loudly instead of silently resolving to
// an empty string when no provider has been configured.
type NoneManager struct{}

// NewNoneManager constructs the no-op secret provider.
func NewNoneManager() (Provider, error) {
	return &NoneManager{}, nil
}

func (*NoneManager) GetSecret(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}
	return "", fmt.Errorf("secret not found: %s: none provider doesn't store secrets", name)
}

func (*NoneManager) SetSecret(_ context.Context, name, _ string) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}
	return fmt.Errorf("none provider doesn't support storing secrets")
}

func (*NoneManager) DeleteSecret(_ context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}
	return fmt.Errorf("cannot delete non-existent secret: %s: none provider doesn't store secrets", name)
}

func (*NoneManager) ListSecrets(_ context.Context) ([]SecretDescription, error) {
	return []SecretDescription{}, nil
}

func (*NoneManager) Cleanup() error {
	return nil
}

func (*NoneManager) Capabilities() Capabilities {
	return Capabilities{CanList: true, CanCleanup: true}
}
