package secrets

import (
	"context"
	"fmt"
	"os"
)

// EnvVarPrefix is prepended to a secret's name to form the environment
// variable the EnvironmentProvider reads.
const EnvVarPrefix = "MCPMUX_SECRET_"

// EnvironmentManager resolves secrets from the proxy's own process
// environment. It is read-only: secrets must be provisioned by whatever
// launched mcpmux, not mutated at runtime.
type EnvironmentManager struct{}

// NewEnvironmentProvider constructs the environment-backed secret provider.
func NewEnvironmentProvider() Provider {
	return &EnvironmentManager{}
}

func (*EnvironmentManager) GetSecret(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}
	value, ok := os.LookupEnv(EnvVarPrefix + name)
	if !ok || value == "" {
		return "", fmt.Errorf("secret not found: %s", name)
	}
	return value, nil
}

func (*EnvironmentManager) SetSecret(_ context.Context, name, _ string) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}
	return fmt.Errorf("environment provider is read-only")
}

func (*EnvironmentManager) DeleteSecret(_ context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}
	return fmt.Errorf("environment provider is read-only")
}

func (*EnvironmentManager) ListSecrets(_ context.Context) ([]SecretDescription, error) {
	return nil, fmt.Errorf("environment provider does not support listing secrets for security reasons")
}

func (*EnvironmentManager) Cleanup() error {
	return nil
}

func (*EnvironmentManager) Capabilities() Capabilities {
	return Capabilities{CanRead: true}
}
