package fileutils

import (
	"fmt"
	"regexp"
	"strings"
)

var backendNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateBackendNameForPath reports whether name is safe to use as a path
// component: derived scratch directories, socket paths, and client-config
// keys are all built from backend names, so a traversal sequence, path
// separator, shell metacharacter, or control byte here would let a
// maliciously named backend escape its own scratch directory.
func ValidateBackendNameForPath(name string) error {
	if name == "" {
		return fmt.Errorf("invalid backend name for path construction: %q: must not be empty", name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("invalid backend name for path construction: %q: contains path traversal sequence", name)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("invalid backend name for path construction: %q: contains path separator", name)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("invalid backend name for path construction: %q: contains null byte", name)
	}
	if !backendNamePattern.MatchString(name) {
		return fmt.Errorf("invalid backend name for path construction: %q: must match %s", name, backendNamePattern.String())
	}
	return nil
}
