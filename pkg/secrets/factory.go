package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ProviderType selects which Provider implementation CreateSecretProvider
// builds.
type ProviderType string

// Provider types known to the factory.
const (
	NoneType        ProviderType = "none"
	EnvironmentType ProviderType = "environment"
	EncryptedType   ProviderType = "encrypted"
	KeyringType     ProviderType = "keyring"
)

// ErrUnknownManagerType is returned by CreateSecretProvider for an
// unrecognized ProviderType.
var ErrUnknownManagerType = errors.New("unknown secret provider type")

func defaultEncryptedPath() (string, error) {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "mcpmux", "secrets.json"), nil
}

// CreateSecretProvider builds the Provider named by t.
func CreateSecretProvider(t ProviderType) (Provider, error) {
	return CreateSecretProviderWithPassword(t, "")
}

// CreateSecretProviderWithPassword is CreateSecretProvider, additionally
// supplying the passphrase the EncryptedType provider seals its file with.
// Other provider types ignore password.
func CreateSecretProviderWithPassword(t ProviderType, password string) (Provider, error) {
	switch t {
	case NoneType:
		return NewNoneManager()
	case EnvironmentType:
		return NewEnvironmentProvider(), nil
	case EncryptedType:
		path, err := defaultEncryptedPath()
		if err != nil {
			return nil, err
		}
		return NewEncryptedManager(path, password)
	case KeyringType:
		return NewKeyringManager(), nil
	default:
		return nil, ErrUnknownManagerType
	}
}

// SetupResult reports the outcome of ValidateProvider.
type SetupResult struct {
	ProviderType ProviderType
	Success      bool
	Message      string
	Error        error
}

// ValidateProvider constructs the named provider and reports whether
// construction succeeded; the environment type is handed on to
// ValidateEnvironmentProvider. No secret is read.
func ValidateProvider(ctx context.Context, t ProviderType) *SetupResult {
	result := &SetupResult{ProviderType: t}

	provider, err := CreateSecretProvider(t)
	if err != nil {
		result.Success = false
		result.Message = fmt.Sprintf("Failed to initialize %s provider", t)
		result.Error = err
		return result
	}

	if t == EnvironmentType {
		return ValidateEnvironmentProvider(ctx, provider, result)
	}

	result.Success = true
	result.Message = fmt.Sprintf("%s provider validation successful", t)
	return result
}

// ValidateEnvironmentProvider performs the environment-specific validation
// step: there is nothing to connect to, so success just means the provider
// was constructed.
func ValidateEnvironmentProvider(_ context.Context, _ Provider, result *SetupResult) *SetupResult {
	result.Success = true
	result.Message = "Environment provider validation successful"
	result.Error = nil
	return result
}
