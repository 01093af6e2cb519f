// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package attest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

const (
	privateKeyFile = "signing-key"
	publicKeyFile  = "signing-key.pub"
)

// PublicKeyPath returns where SaveKeypair puts the public key in dir.
func PublicKeyPath(dir string) string {
	return filepath.Join(dir, publicKeyFile)
}

// GenerateKeypair creates a new Ed25519 signing keypair.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("attest: generating Ed25519 keypair: %w", err)
	}
	return public, private, nil
}

// SaveKeypair writes a keypair into dir. The private key file is 0600,
// the public key file 0644.
func SaveKeypair(dir string, public ed25519.PublicKey, private ed25519.PrivateKey) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("attest: creating key directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, privateKeyFile), private, 0o600); err != nil {
		return fmt.Errorf("attest: writing private key: %w", err)
	}
	if err := os.WriteFile(PublicKeyPath(dir), public, 0o644); err != nil {
		return fmt.Errorf("attest: writing public key: %w", err)
	}
	return nil
}

// LoadKeypair reads a keypair written by SaveKeypair.
func LoadKeypair(dir string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	privateBytes, err := os.ReadFile(filepath.Join(dir, privateKeyFile))
	if err != nil {
		return nil, nil, fmt.Errorf("attest: reading private key: %w", err)
	}
	if len(privateBytes) != ed25519.PrivateKeySize {
		return nil, nil, fmt.Errorf("attest: private key has %d bytes, want %d", len(privateBytes), ed25519.PrivateKeySize)
	}
	public, err := LoadPublicKey(PublicKeyPath(dir))
	if err != nil {
		return nil, nil, err
	}
	private := ed25519.PrivateKey(privateBytes)
	if !public.Equal(private.Public()) {
		return nil, nil, fmt.Errorf("attest: public key in %s does not match the private key", dir)
	}
	return public, private, nil
}

// LoadPublicKey reads a public key file on its own, for verifiers that
// hold no private key.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	publicBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("attest: reading public key: %w", err)
	}
	if len(publicBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("attest: public key has %d bytes, want %d", len(publicBytes), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(publicBytes), nil
}

// LoadOrGenerateKeypair loads the keypair in dir, or generates and
// saves one when no private key exists yet. A private key that exists
// but cannot be loaded is an error, never silently replaced.
func LoadOrGenerateKeypair(dir string) (ed25519.PublicKey, ed25519.PrivateKey, bool, error) {
	public, private, err := LoadKeypair(dir)
	if err == nil {
		return public, private, false, nil
	}
	if _, statErr := os.Stat(filepath.Join(dir, privateKeyFile)); statErr == nil {
		return nil, nil, false, err
	}

	public, private, err = GenerateKeypair()
	if err != nil {
		return nil, nil, false, err
	}
	if err := SaveKeypair(dir, public, private); err != nil {
		return nil, nil, false, err
	}
	return public, private, true, nil
}
