// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package seed derives the 256-bit seed that parameterizes the chaotic
// transform. A seed is a pure function of the file content, and of an
// access key when one is supplied. Any single-bit change in either
// input yields an unrelated seed.
//
// Seeds are never written to a container in plaintext. The container
// carries a sealed envelope instead (see lib/sealed).
package seed

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/sigil/lib/digest"
)

// Size is the length of a seed in bytes.
const Size = digest.Size

// hkdfInfo labels keyed seed derivation. Changing it changes every
// keyed seed.
const hkdfInfo = "sigil.seed.v1"

// Seed is the 256-bit value that drives the transform.
type Seed digest.Hash

// Derive returns the seed for content with no access key: the
// seed-domain BLAKE3 hash of the bytes.
func Derive(content []byte) Seed {
	return Seed(digest.Keyed(digest.SeedDomain, content))
}

// DeriveKeyed returns the seed for content under an access key.
// HKDF-SHA256 extracts from the key with the content's seed-domain
// digest as salt, so the same content under two keys yields unrelated
// seeds and the key alone reveals nothing about any seed.
func DeriveKeyed(content []byte, key []byte) (Seed, error) {
	if len(key) == 0 {
		return Seed{}, fmt.Errorf("seed: access key is empty")
	}
	salt := digest.Keyed(digest.SeedDomain, content)
	reader := hkdf.New(sha256.New, key, salt[:], []byte(hkdfInfo))
	var derived Seed
	if _, err := io.ReadFull(reader, derived[:]); err != nil {
		return Seed{}, fmt.Errorf("seed: deriving keyed seed: %w", err)
	}
	return derived, nil
}

// DeriveFile reads path and derives its seed. The only failure is the
// read itself.
func DeriveFile(path string, key []byte) (Seed, []byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, nil, fmt.Errorf("seed: reading %s: %w", path, err)
	}
	if len(key) == 0 {
		return Derive(content), content, nil
	}
	derived, err := DeriveKeyed(content, key)
	if err != nil {
		return Seed{}, nil, err
	}
	return derived, content, nil
}

// Hash returns the seed as a digest, for APIs that take keystream keys.
func (s Seed) Hash() digest.Hash {
	return digest.Hash(s)
}

// Fingerprint returns a short public identifier for the seed: the
// first 12 hex characters of its seed-domain hash. Containers that
// share a lineage seed share a fingerprint; the seed itself cannot be
// recovered from it.
func (s Seed) Fingerprint() string {
	return digest.Short(digest.Keyed(digest.SeedDomain, s[:]))
}
