// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package attest

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/sigil/lib/codec"
	"github.com/bureau-foundation/sigil/lib/digest"
)

// Extension is the conventional suffix for attestation files.
const Extension = ".sig"

const signatureSize = ed25519.SignatureSize

// Statement is the signed claim about one container blob.
type Statement struct {
	// Digest is BLAKE3 over the encoded container bytes.
	Digest digest.Hash `cbor:"1,keyasint"`

	Size uint64 `cbor:"2,keyasint"`

	// Name is the container's name at signing time. Informational:
	// renaming a container does not invalidate its attestation.
	Name string `cbor:"3,keyasint,omitempty"`

	// SignedAt is a Unix timestamp in seconds.
	SignedAt int64 `cbor:"4,keyasint"`

	// Signer is the Ed25519 public key that produced the signature.
	Signer []byte `cbor:"5,keyasint"`
}

var (
	ErrTooShort         = errors.New("attest: attestation too short for signature")
	ErrInvalidSignature = errors.New("attest: invalid Ed25519 signature")
	ErrUntrustedSigner  = errors.New("attest: signed by an untrusted key")
	ErrDigestMismatch   = errors.New("attest: container does not match the signed digest")
)

// Sign attests to container, an encoded container blob. The result is
// the wire-format attestation.
func Sign(private ed25519.PrivateKey, container []byte, name string, now time.Time) ([]byte, error) {
	statement := &Statement{
		Digest:   digest.HashBlob(container),
		Size:     uint64(len(container)),
		Name:     name,
		SignedAt: now.Unix(),
		Signer:   private.Public().(ed25519.PublicKey),
	}
	payload, err := codec.Marshal(statement)
	if err != nil {
		return nil, fmt.Errorf("attest: encoding statement: %w", err)
	}

	result := make([]byte, len(payload)+signatureSize)
	copy(result, payload)
	copy(result[len(payload):], ed25519.Sign(private, payload))
	return result, nil
}

// Parse splits an attestation, checks its signature against the
// embedded signer key, and decodes the statement. It does not decide
// whether the signer is trusted; see Verify.
func Parse(attestation []byte) (*Statement, error) {
	if len(attestation) <= signatureSize {
		return nil, ErrTooShort
	}
	split := len(attestation) - signatureSize
	payload, signature := attestation[:split], attestation[split:]

	var statement Statement
	if err := codec.Unmarshal(payload, &statement); err != nil {
		return nil, fmt.Errorf("attest: decoding statement: %w", err)
	}
	if len(statement.Signer) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: signer key is %d bytes", ErrInvalidSignature, len(statement.Signer))
	}
	if !ed25519.Verify(ed25519.PublicKey(statement.Signer), payload, signature) {
		return nil, ErrInvalidSignature
	}
	return &statement, nil
}

// Verify checks that attestation is a valid signature over container
// by one of the trusted keys. With no trusted keys any valid signature
// is accepted, which proves only that the blob is unchanged since the
// embedded signer signed it.
func Verify(container, attestation []byte, trusted ...ed25519.PublicKey) (*Statement, error) {
	statement, err := Parse(attestation)
	if err != nil {
		return nil, err
	}
	if len(trusted) > 0 && !trustedSigner(statement.Signer, trusted) {
		return nil, fmt.Errorf("%w: %x", ErrUntrustedSigner, statement.Signer)
	}
	if statement.Size != uint64(len(container)) {
		return nil, fmt.Errorf("%w: size is %d, signed %d", ErrDigestMismatch, len(container), statement.Size)
	}
	if digest.HashBlob(container) != statement.Digest {
		return nil, ErrDigestMismatch
	}
	return statement, nil
}

func trustedSigner(signer []byte, trusted []ed25519.PublicKey) bool {
	for _, key := range trusted {
		if key.Equal(ed25519.PublicKey(signer)) {
			return true
		}
	}
	return false
}
