package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"

	"github.com/stacklok/mcpmux/pkg/fileutils"
)

const (
	pbkdf2Iterations = 100_000
	saltSize         = 16
)

// encryptedFile is the on-disk shape: a random salt used to derive the AES
// key from the passphrase, plus one base64 AES-GCM sealed blob per secret
// (nonce prepended to ciphertext).
type encryptedFile struct {
	Salt    string            `json:"salt"`
	Secrets map[string]string `json:"secrets"`
}

// EncryptedManager is a file-backed Provider whose values are sealed with
// AES-GCM under a key derived from a user passphrase via PBKDF2. Unlike the
// OS keyring, this works headlessly and portably, at the cost of the
// passphrase having to be supplied out of band on every process start.
type EncryptedManager struct {
	path     string
	password string
}

// NewEncryptedManager opens (or prepares to create) the secrets file at path,
// sealed under password.
func NewEncryptedManager(path, password string) (Provider, error) {
	if password == "" {
		return nil, fmt.Errorf("encrypted provider requires a non-empty password")
	}
	return &EncryptedManager{path: path, password: password}, nil
}

func (m *EncryptedManager) load() (*encryptedFile, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
		return &encryptedFile{
			Salt:    base64.StdEncoding.EncodeToString(salt),
			Secrets: map[string]string{},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets file: %w", err)
	}

	var f encryptedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file: %w", err)
	}
	if f.Secrets == nil {
		f.Secrets = map[string]string{}
	}
	return &f, nil
}

func (m *EncryptedManager) save(f *encryptedFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal secrets file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}
	return fileutils.AtomicWriteFile(m.path, data, 0o600)
}

func (m *EncryptedManager) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(m.password), salt, pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (m *EncryptedManager) seal(f *encryptedFile, plaintext string) (string, error) {
	salt, err := base64.StdEncoding.DecodeString(f.Salt)
	if err != nil {
		return "", fmt.Errorf("failed to decode salt: %w", err)
	}
	gcm, err := m.gcm(salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (m *EncryptedManager) open(f *encryptedFile, encoded string) (string, error) {
	salt, err := base64.StdEncoding.DecodeString(f.Salt)
	if err != nil {
		return "", fmt.Errorf("failed to decode salt: %w", err)
	}
	gcm, err := m.gcm(salt)
	if err != nil {
		return "", err
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return "", fmt.Errorf("malformed secret ciphertext")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: wrong password or corrupted file: %w", err)
	}
	return string(plaintext), nil
}

func (m *EncryptedManager) GetSecret(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}
	f, err := m.load()
	if err != nil {
		return "", err
	}
	encoded, ok := f.Secrets[name]
	if !ok {
		return "", fmt.Errorf("secret not found: %s", name)
	}
	return m.open(f, encoded)
}

func (m *EncryptedManager) SetSecret(_ context.Context, name, value string) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}
	f, err := m.load()
	if err != nil {
		return err
	}
	sealed, err := m.seal(f, value)
	if err != nil {
		return err
	}
	f.Secrets[name] = sealed
	return m.save(f)
}

func (m *EncryptedManager) DeleteSecret(_ context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}
	f, err := m.load()
	if err != nil {
		return err
	}
	if _, ok := f.Secrets[name]; !ok {
		return fmt.Errorf("cannot delete non-existent secret: %s", name)
	}
	delete(f.Secrets, name)
	return m.save(f)
}

func (m *EncryptedManager) ListSecrets(_ context.Context) ([]SecretDescription, error) {
	f, err := m.load()
	if err != nil {
		return nil, err
	}
	out := make([]SecretDescription, 0, len(f.Secrets))
	for name := range f.Secrets {
		out = append(out, SecretDescription{Name: name})
	}
	return out, nil
}

func (m *EncryptedManager) Cleanup() error {
	f, err := m.load()
	if err != nil {
		return err
	}
	f.Secrets = map[string]string{}
	return m.save(f)
}

func (*EncryptedManager) Capabilities() Capabilities {
	return Capabilities{CanRead: true, CanWrite: true, CanDelete: true, CanList: true, CanCleanup: true}
}
