// Package process manages PID files for the mcpmux controller process, with
// backward-compatible support for a legacy temp-directory location.
package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// dataHome mirrors the XDG Base Directory data-home resolution
// ($XDG_DATA_HOME, falling back to ~/.local/share) without pulling in a
// dependency for a two-line computation.
func dataHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".local", "share")
	}
	return filepath.Join(home, ".local", "share")
}

func pidFileName(name string) string {
	return fmt.Sprintf("mcpmux-%s.pid", name)
}

// getPIDFilePath returns the current (XDG data dir) location for name's PID file.
func getPIDFilePath(name string) (string, error) {
	dir := filepath.Join(dataHome(), "mcpmux", "pids")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create PID directory: %w", err)
	}
	return filepath.Join(dir, pidFileName(name)), nil
}

// getOldPIDFilePath returns the legacy temp-directory location for name's
// PID file, kept for backward compatibility with older mcpmux versions that
// may still be running.
func getOldPIDFilePath(name string) string {
	return filepath.Join(os.TempDir(), pidFileName(name))
}

// getPIDFilePathWithFallback returns the new-location path if it (or neither
// location) exists, and the old-location path only when exclusively the old
// file is present.
func getPIDFilePathWithFallback(name string) (string, error) {
	newPath, err := getPIDFilePath(name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(newPath); err == nil {
		return newPath, nil
	}
	oldPath := getOldPIDFilePath(name)
	if _, err := os.Stat(oldPath); err == nil {
		return oldPath, nil
	}
	return newPath, nil
}

// WritePIDFile writes pid to both the new and legacy locations for name.
func WritePIDFile(name string, pid int) error {
	newPath, err := getPIDFilePath(name)
	if err != nil {
		return err
	}
	data := []byte(strconv.Itoa(pid))

	if err := os.WriteFile(newPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	if err := os.WriteFile(getOldPIDFilePath(name), data, 0o600); err != nil {
		return fmt.Errorf("failed to write legacy PID file: %w", err)
	}
	return nil
}

// WriteCurrentPIDFile writes the calling process's own PID for name.
func WriteCurrentPIDFile(name string) error {
	return WritePIDFile(name, os.Getpid())
}

// ReadPIDFile reads name's PID, preferring the new location over the legacy one.
func ReadPIDFile(name string) (int, error) {
	path, err := getPIDFilePathWithFallback(name)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file contents: %w", err)
	}
	return pid, nil
}

// RemovePIDFile removes name's PID file from both locations. Absence of
// either file is not an error.
func RemovePIDFile(name string) error {
	newPath, err := getPIDFilePath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(newPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	if err := os.Remove(getOldPIDFilePath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove legacy PID file: %w", err)
	}
	return nil
}
