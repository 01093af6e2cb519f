// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bureau-foundation/sigil/lib/digest"
	"github.com/bureau-foundation/sigil/lib/secret"
	"github.com/bureau-foundation/sigil/lib/seed"
)

func testBinding() Binding {
	return Binding{MerkleRoot: digest.HashChunk([]byte("root"))}
}

func accessKey(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(value))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func TestOpenModeRoundTrip(t *testing.T) {
	s := seed.Derive([]byte("file"))
	envelope, err := Seal(s, testBinding(), SealOptions{})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if envelope.Mode != ModeOpen {
		t.Fatalf("mode = %q, want %q", envelope.Mode, ModeOpen)
	}
	if bytes.Contains(envelope.Ciphertext, s[:]) {
		t.Fatal("open envelope contains the seed in plaintext")
	}

	opened, err := Keyring{}.Open(envelope, testBinding())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != s {
		t.Fatal("opened seed differs from sealed seed")
	}
}

func TestSymmetricEnvelopesAreDeterministic(t *testing.T) {
	s := seed.Derive([]byte("file"))
	for _, options := range []SealOptions{{}, {AccessKey: accessKey(t, "k")}} {
		first, err := Seal(s, testBinding(), options)
		if err != nil {
			t.Fatal(err)
		}
		second, err := Seal(s, testBinding(), options)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first.Ciphertext, second.Ciphertext) {
			t.Errorf("mode %q envelopes differ between runs", first.Mode)
		}
	}
}

func TestBindingMismatch(t *testing.T) {
	s := seed.Derive([]byte("file"))
	envelope, err := Seal(s, testBinding(), SealOptions{})
	if err != nil {
		t.Fatal(err)
	}
	other := testBinding()
	other.MerkleRoot[0] ^= 1
	if _, err := (Keyring{}).Open(envelope, other); !errors.Is(err, ErrWrongKey) {
		t.Fatalf("Open with another binding: err = %v, want ErrWrongKey", err)
	}
}

func TestKeyMode(t *testing.T) {
	s := seed.Derive([]byte("file"))
	key := accessKey(t, "correct horse")
	envelope, err := Seal(s, testBinding(), SealOptions{AccessKey: key})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if envelope.Mode != ModeKey {
		t.Fatalf("mode = %q, want %q", envelope.Mode, ModeKey)
	}

	if _, err := (Keyring{}).Open(envelope, testBinding()); !errors.Is(err, ErrSealed) {
		t.Fatalf("Open without key: err = %v, want ErrSealed", err)
	}
	wrong := Keyring{AccessKey: accessKey(t, "battery staple")}
	if _, err := wrong.Open(envelope, testBinding()); !errors.Is(err, ErrWrongKey) {
		t.Fatalf("Open with wrong key: err = %v, want ErrWrongKey", err)
	}
	opened, err := Keyring{AccessKey: key}.Open(envelope, testBinding())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != s {
		t.Fatal("opened seed differs from sealed seed")
	}
}

func TestAgeMode(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()
	if err := ParsePublicKey(keypair.PublicKey); err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}

	s := seed.Derive([]byte("file"))
	envelope, err := Seal(s, testBinding(), SealOptions{Recipients: []string{keypair.PublicKey}})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if envelope.Mode != ModeAge {
		t.Fatalf("mode = %q, want %q", envelope.Mode, ModeAge)
	}

	if _, err := (Keyring{}).Open(envelope, testBinding()); !errors.Is(err, ErrSealed) {
		t.Fatalf("Open without identity: err = %v, want ErrSealed", err)
	}

	keyring := Keyring{Identities: []*secret.Buffer{keypair.PrivateKey}}
	opened, err := keyring.Open(envelope, testBinding())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != s {
		t.Fatal("opened seed differs from sealed seed")
	}

	other := testBinding()
	other.MerkleRoot[31] ^= 1
	if _, err := keyring.Open(envelope, other); !errors.Is(err, ErrWrongKey) {
		t.Fatalf("Open with another binding: err = %v, want ErrWrongKey", err)
	}
}

func TestAgeModeWrongIdentity(t *testing.T) {
	recipient, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer recipient.Close()
	stranger, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer stranger.Close()

	envelope, err := Seal(seed.Derive([]byte("x")), testBinding(), SealOptions{Recipients: []string{recipient.PublicKey}})
	if err != nil {
		t.Fatal(err)
	}
	keyring := Keyring{Identities: []*secret.Buffer{stranger.PrivateKey}}
	if _, err := keyring.Open(envelope, testBinding()); !errors.Is(err, ErrWrongKey) {
		t.Fatalf("Open with stranger identity: err = %v, want ErrWrongKey", err)
	}
}

func TestSealRejectsBadRecipient(t *testing.T) {
	if _, err := Seal(seed.Derive(nil), testBinding(), SealOptions{Recipients: []string{"not-a-key"}}); err == nil {
		t.Fatal("Seal with invalid recipient succeeded, want error")
	}
}
