// Package util contains small helpers shared across the maintenance engine.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// UserWritableDirPerms represents the standard permissions for newly created directories (rwxr-xr-x).
	UserWritableDirPerms os.FileMode = 0755
	// UserWritableFilePerms represents the standard permissions for newly created files (rw-r--r--).
	UserWritableFilePerms os.FileMode = 0644
	// SecretFilePerms represents permissions for files derived from credential
	// material (rw-------). Registry files carry passphrases and must not be
	// group- or world-readable.
	SecretFilePerms os.FileMode = 0600
)

// ExpandPath expands the tilde (~) prefix in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil // No tilde, return as-is.
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}

	// Replace the tilde with the home directory.
	return filepath.Join(home, path[1:]), nil
}

// InvertMap takes a map[K]V and returns a map[V]K.
// It's a generic helper for creating reverse lookup maps for enums.
func InvertMap[K comparable, V comparable](m map[K]V) map[V]K {
	inv := make(map[V]K, len(m))
	for k, v := range m {
		inv[v] = k
	}
	return inv
}
