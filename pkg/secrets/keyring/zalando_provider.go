package keyring

import (
	"errors"
	"runtime"

	zalando "github.com/zalando/go-keyring"
)

const probeKey = "mcpmux-keyring-probe"

// zalandoProvider delegates to the zalando/go-keyring library, which itself
// dispatches to the platform credential store (macOS Keychain, Windows
// Credential Manager, or the Secret Service D-Bus API on Linux).
type zalandoProvider struct{}

// NewZalandoKeyringProvider returns a Provider backed by zalando/go-keyring.
func NewZalandoKeyringProvider() Provider {
	return &zalandoProvider{}
}

func (*zalandoProvider) Name() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	case "linux":
		return "D-Bus Secret Service"
	default:
		return "Platform Keyring"
	}
}

func (p *zalandoProvider) IsAvailable() bool {
	if err := zalando.Set("mcpmux-probe", probeKey, "probe"); err != nil {
		return false
	}
	_ = zalando.Delete("mcpmux-probe", probeKey)
	return true
}

func (*zalandoProvider) Set(service, key, value string) error {
	return zalando.Set(service, key, value)
}

func (*zalandoProvider) Get(service, key string) (string, error) {
	value, err := zalando.Get(service, key)
	if errors.Is(err, zalando.ErrNotFound) {
		return "", ErrNotFound
	}
	return value, err
}

func (*zalandoProvider) Delete(service, key string) error {
	err := zalando.Delete(service, key)
	if errors.Is(err, zalando.ErrNotFound) {
		return nil
	}
	return err
}

// DeleteAll is best-effort: zalando/go-keyring has no enumeration API, so
// there is no way to discover every key stored under service. Callers that
// need guaranteed cleanup should track key names themselves.
func (*zalandoProvider) DeleteAll(_ string) error {
	return nil
}
