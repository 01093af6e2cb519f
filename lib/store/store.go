// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound reports a name the store does not hold.
var ErrNotFound = errors.New("store: object not found")

// Store holds encoded containers by name. Names are slash-separated
// relative paths. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the object's bytes, or an error wrapping
	// ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)

	// Put stores data under name, replacing any existing object.
	// Readers never observe a partial object.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes name. Deleting an absent name is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names beginning with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ValidateName checks that name is a clean relative path that cannot
// escape the store's root.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("store: empty object name")
	case strings.HasPrefix(name, "/"):
		return fmt.Errorf("store: object name %q is absolute", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("store: object name %q contains NUL", name)
	case path.Clean(name) != name:
		return fmt.Errorf("store: object name %q is not clean", name)
	case name == ".." || strings.HasPrefix(name, "../"):
		return fmt.Errorf("store: object name %q escapes the store", name)
	}
	return nil
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func trimKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
}
