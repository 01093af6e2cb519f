// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// Size is the length of a digest in bytes.
const Size = 32

// Hash is a 32-byte BLAKE3 digest. Chunk hashes, Merkle nodes, seeds
// and attestation digests are all this size.
type Hash [Size]byte

// Domain is a 32-byte key for BLAKE3 keyed hashing. The same input
// bytes hash differently in each domain.
type Domain [32]byte

// Domain keys are the ASCII domain name zero-padded to 32 bytes.
// Changing any of them invalidates every container ever written.
var (
	ChunkDomain  = newDomain("sigil.chunk")
	MerkleDomain = newDomain("sigil.merkle")
	SeedDomain   = newDomain("sigil.seed")
	ParityDomain = newDomain("sigil.parity")
	StreamDomain = newDomain("sigil.stream")
	BlobDomain   = newDomain("sigil.blob")
)

func newDomain(name string) Domain {
	if len(name) > len(Domain{}) {
		panic("digest: domain name longer than 32 bytes: " + name)
	}
	var domain Domain
	copy(domain[:], name)
	return domain
}

// HashChunk computes the chunk-domain hash of a chunk's stored bytes.
// This is the value recorded in the chunk map and compared during
// verification and sibling matching.
func HashChunk(data []byte) Hash {
	return Keyed(ChunkDomain, data)
}

// HashBlob computes the blob-domain hash of an opaque container
// encoding. Signatures cover this value, never chunk internals.
func HashBlob(data []byte) Hash {
	return Keyed(BlobDomain, data)
}

// Keyed computes the BLAKE3 keyed hash of data in the given domain.
func Keyed(domain Domain, data []byte) Hash {
	hasher := NewHasher(domain)
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// NewHasher returns a keyed BLAKE3 hasher for the domain. Callers that
// hash many small inputs reuse it with Reset, which keeps the key.
func NewHasher(domain Domain) *blake3.Hasher {
	// NewKeyed only fails on a wrong key length, which the Domain
	// type rules out.
	hasher, err := blake3.NewKeyed(domain[:])
	if err != nil {
		panic("digest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

// Stream returns an unbounded keystream derived from key in the
// stream domain, with context selecting an independent stream for the
// same key. Used wherever a seed has to be stretched into more
// pseudo-random bytes than a single digest.
func Stream(key Hash, context string) io.Reader {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("digest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(StreamDomain[:])
	hasher.WriteString(context)
	return hasher.Digest()
}

// Format returns the hex-encoded string representation of a hash.
// This is the canonical format in metadata, logs, and CLI output.
func Format(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// Short returns the first 12 hex characters of a hash, for log lines
// and tabular CLI output.
func Short(hash Hash) string {
	return hex.EncodeToString(hash[:6])
}

// Parse parses a 64-character hex string into a Hash.
func Parse(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing hash: %w", err)
	}
	if len(decoded) != Size {
		return hash, fmt.Errorf("hash is %d bytes, want %d", len(decoded), Size)
	}
	copy(hash[:], decoded)
	return hash, nil
}

// String implements fmt.Stringer with the canonical hex form.
func (h Hash) String() string {
	return Format(h)
}

// IsZero reports whether every byte of the hash is zero.
func (h Hash) IsZero() bool {
	return h == Hash{}
}
