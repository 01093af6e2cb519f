// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/sigil/lib/digest"
	"github.com/bureau-foundation/sigil/lib/secret"
	"github.com/bureau-foundation/sigil/lib/seed"
)

// Mode says how an envelope's seed is protected.
type Mode string

const (
	// ModeOpen seals the seed under a key derived from the container's
	// own binding. Anyone holding the container can open it; the
	// envelope only ties the seed to that container.
	ModeOpen Mode = "open"

	// ModeKey seals the seed under a key derived from a shared access
	// key. Deterministic: the same file and key always produce the
	// same envelope.
	ModeKey Mode = "key"

	// ModeAge encrypts the seed to one or more X25519 recipients.
	// age uses ephemeral keys, so these envelopes differ between runs.
	ModeAge Mode = "age"
)

// HKDF info strings. Changing any of them invalidates every envelope
// sealed in that mode.
var (
	hkdfInfoOpen  = []byte("sigil.envelope.open.v1")
	hkdfInfoKey   = []byte("sigil.envelope.key.v1")
	hkdfInfoNonce = []byte("sigil.envelope.nonce.v1")
)

// ErrSealed reports an envelope that needs a key the caller did not
// supply.
var ErrSealed = errors.New("sealed: seed envelope requires a key")

// ErrWrongKey reports an envelope that failed authentication: the
// wrong key, or an envelope moved from another container.
var ErrWrongKey = errors.New("sealed: seed envelope did not open")

// Envelope is the sealed seed stored in container metadata.
type Envelope struct {
	Mode       Mode   `cbor:"mode"`
	Ciphertext []byte `cbor:"ciphertext"`
}

// Binding is the container identity an envelope is sealed to. It is
// authenticated along with the seed, so an envelope copied into a
// different container fails to open.
//
// Only the Merkle root is bound. The root commits to the payload,
// which carries the transformed length; the stored checksum and
// original length are checked against the restored file afterwards,
// so damage to them is reported as a checksum or length failure.
type Binding struct {
	MerkleRoot digest.Hash
}

func (b Binding) bytes() []byte {
	return append([]byte("sigil.binding.v1:"), b.MerkleRoot[:]...)
}

// SealOptions selects the envelope mode. Recipients take precedence
// over AccessKey; with neither, the envelope is ModeOpen.
type SealOptions struct {
	// AccessKey is borrowed and not closed.
	AccessKey *secret.Buffer

	// Recipients are age X25519 public keys ("age1...").
	Recipients []string
}

// Seal protects s for storage in a container with the given binding.
func Seal(s seed.Seed, binding Binding, options SealOptions) (Envelope, error) {
	switch {
	case len(options.Recipients) > 0:
		ciphertext, err := sealAge(s, binding, options.Recipients)
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{Mode: ModeAge, Ciphertext: ciphertext}, nil
	case options.AccessKey != nil:
		ciphertext, err := sealSymmetric(options.AccessKey.Bytes(), hkdfInfoKey, s, binding)
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{Mode: ModeKey, Ciphertext: ciphertext}, nil
	default:
		ciphertext, err := sealSymmetric(binding.bytes(), hkdfInfoOpen, s, binding)
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{Mode: ModeOpen, Ciphertext: ciphertext}, nil
	}
}

// Opener recovers the seed from an envelope.
type Opener interface {
	Open(envelope Envelope, binding Binding) (seed.Seed, error)
}

// Keyring is an Opener holding whatever keys the caller has. A zero
// Keyring opens ModeOpen envelopes only.
type Keyring struct {
	// AccessKey opens ModeKey envelopes. Borrowed; not closed.
	AccessKey *secret.Buffer

	// Identities are age X25519 identities ("AGE-SECRET-KEY-1...")
	// that open ModeAge envelopes. Borrowed; not closed.
	Identities []*secret.Buffer
}

// Open implements Opener.
func (k Keyring) Open(envelope Envelope, binding Binding) (seed.Seed, error) {
	switch envelope.Mode {
	case ModeOpen:
		return openSymmetric(binding.bytes(), hkdfInfoOpen, envelope.Ciphertext, binding)
	case ModeKey:
		if k.AccessKey == nil {
			return seed.Seed{}, fmt.Errorf("%w: mode %q needs an access key", ErrSealed, envelope.Mode)
		}
		return openSymmetric(k.AccessKey.Bytes(), hkdfInfoKey, envelope.Ciphertext, binding)
	case ModeAge:
		if len(k.Identities) == 0 {
			return seed.Seed{}, fmt.Errorf("%w: mode %q needs an age identity", ErrSealed, envelope.Mode)
		}
		return openAge(k.Identities, envelope.Ciphertext, binding)
	default:
		return seed.Seed{}, fmt.Errorf("sealed: unknown envelope mode %q", envelope.Mode)
	}
}

// sealSymmetric encrypts the seed with XChaCha20-Poly1305 under a key
// and nonce both derived by HKDF from keyMaterial and the binding. The
// key is unique per (keyMaterial, container), so the derived nonce is
// never reused under one key.
func sealSymmetric(keyMaterial, info []byte, s seed.Seed, binding Binding) ([]byte, error) {
	aead, nonce, err := deriveCipher(keyMaterial, info, binding)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, s[:], binding.bytes()), nil
}

func openSymmetric(keyMaterial, info, ciphertext []byte, binding Binding) (seed.Seed, error) {
	aead, nonce, err := deriveCipher(keyMaterial, info, binding)
	if err != nil {
		return seed.Seed{}, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, binding.bytes())
	if err != nil {
		return seed.Seed{}, ErrWrongKey
	}
	if len(plaintext) != seed.Size {
		return seed.Seed{}, fmt.Errorf("%w: plaintext is %d bytes", ErrWrongKey, len(plaintext))
	}
	var result seed.Seed
	copy(result[:], plaintext)
	secret.Zero(plaintext)
	return result, nil
}

func deriveCipher(keyMaterial, info []byte, binding Binding) (cipher.AEAD, []byte, error) {
	salt := binding.MerkleRoot[:]

	key := make([]byte, chacha20poly1305.KeySize)
	defer secret.Zero(key)
	if _, err := io.ReadFull(hkdf.New(sha256.New, keyMaterial, salt, info), key); err != nil {
		return nil, nil, fmt.Errorf("sealed: deriving envelope key: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, salt, hkdfInfoNonce), nonce); err != nil {
		return nil, nil, fmt.Errorf("sealed: deriving envelope nonce: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, fmt.Errorf("sealed: creating cipher: %w", err)
	}
	return aead, nonce, nil
}

// sealAge encrypts seed‖H(binding) to the recipients. age has no
// associated data, so the binding digest rides inside the plaintext.
func sealAge(s seed.Seed, binding Binding, recipientKeys []string) ([]byte, error) {
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("sealed: parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating age encryptor: %w", err)
	}
	bindingDigest := digest.Keyed(digest.SeedDomain, binding.bytes())
	plaintext := append(append(make([]byte, 0, 2*seed.Size), s[:]...), bindingDigest[:]...)
	defer secret.Zero(plaintext)
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("sealed: writing to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("sealed: finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

func openAge(identityKeys []*secret.Buffer, ciphertext []byte, binding Binding) (seed.Seed, error) {
	identities := make([]age.Identity, 0, len(identityKeys))
	for _, key := range identityKeys {
		identity, err := age.ParseX25519Identity(key.String())
		if err != nil {
			return seed.Seed{}, fmt.Errorf("sealed: parsing age identity: %w", err)
		}
		identities = append(identities, identity)
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return seed.Seed{}, fmt.Errorf("%w: %v", ErrWrongKey, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return seed.Seed{}, fmt.Errorf("%w: %v", ErrWrongKey, err)
	}
	defer secret.Zero(plaintext)
	if len(plaintext) != 2*seed.Size {
		return seed.Seed{}, fmt.Errorf("%w: plaintext is %d bytes", ErrWrongKey, len(plaintext))
	}
	bindingDigest := digest.Keyed(digest.SeedDomain, binding.bytes())
	if !bytes.Equal(plaintext[seed.Size:], bindingDigest[:]) {
		return seed.Seed{}, fmt.Errorf("%w: envelope belongs to another container", ErrWrongKey)
	}
	var result seed.Seed
	copy(result[:], plaintext[:seed.Size])
	return result, nil
}
