// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/sigil/lib/chunk"
	"github.com/bureau-foundation/sigil/lib/codec"
	"github.com/bureau-foundation/sigil/lib/digest"
	"github.com/bureau-foundation/sigil/lib/entropy"
	"github.com/bureau-foundation/sigil/lib/residual"
	"github.com/bureau-foundation/sigil/lib/sealed"
)

// Format constants. Changing any of them breaks every existing
// container.
const (
	// Magic is the first four bytes of every container.
	Magic = "SIG1"

	// Version is the only layout version this package reads and
	// writes.
	Version uint8 = 1

	// ChunkEntrySize is the encoded size of one chunk map entry:
	// offset (8) + length (4) + hash (32) + entropy (8).
	ChunkEntrySize = 8 + 4 + digest.Size + 8

	// Extension is the conventional file name suffix.
	Extension = ".sg1"
)

// Kind distinguishes file containers from folder containers.
type Kind string

const (
	// KindFile containers hold one file's transformed, coded bytes.
	KindFile Kind = "file"

	// KindFolder containers hold ChildRoot references to other
	// containers, one per chunk, in name order.
	KindFolder Kind = "folder"
)

// RefKind returns how chunks of this kind of container resolve.
func (kind Kind) RefKind() chunk.RefKind {
	if kind == KindFolder {
		return chunk.ChildRoot
	}
	return chunk.RawBytes
}

// ErrMalformedHeader reports a container whose fixed fields cannot be
// parsed: wrong magic, unknown version, or a length that runs past the
// end of the data. Fatal; regeneration cannot help.
var ErrMalformedHeader = errors.New("container: malformed header")

// ErrMerkleMismatch reports a chunk map whose hashes do not produce the
// stored Merkle root.
var ErrMerkleMismatch = errors.New("container: merkle root mismatch")

// ChunkHashMismatchError reports chunks whose bytes are missing or do
// not match their recorded hash. Index is the lowest failing chunk.
type ChunkHashMismatchError struct {
	Index   uint32
	Indices []uint32
}

func (e *ChunkHashMismatchError) Error() string {
	if len(e.Indices) <= 1 {
		return fmt.Sprintf("container: chunk %d hash mismatch", e.Index)
	}
	return fmt.Sprintf("container: chunk %d hash mismatch (%d chunks damaged)", e.Index, len(e.Indices))
}

// ChecksumMismatchError reports a reconstructed file whose CRC32 does
// not match the container's checksum.
type ChecksumMismatchError struct {
	Want uint32
	Got  uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("container: checksum mismatch: stored %08x, computed %08x", e.Want, e.Got)
}

// LengthMismatchError reports a length that disagrees with the one the
// container records.
type LengthMismatchError struct {
	Field string
	Want  uint64
	Got   uint64
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("container: %s is %d, want %d", e.Field, e.Got, e.Want)
}

// Metadata is the CBOR-encoded section following the fixed header.
type Metadata struct {
	Kind Kind `cbor:"kind"`

	// Coder is the coder requested at creation. The payload's first
	// byte records the coder actually used.
	Coder entropy.Tag `cbor:"coder"`

	ChunkSize int           `cbor:"chunk_size"`
	Tier      residual.Tier `cbor:"tier"`

	// Envelope carries the transform seed. Folder containers have
	// none: their payload is not transformed.
	Envelope *sealed.Envelope `cbor:"envelope,omitempty"`

	// Lineage is the seed fingerprint. Containers created from the
	// same lineage seed share it, which is how sibling candidates are
	// found without opening envelopes.
	Lineage string `cbor:"lineage,omitempty"`

	// Children are the child names of a folder container, one per
	// chunk, sorted.
	Children []string `cbor:"children,omitempty"`

	// Tags are free-form labels supplied at creation.
	Tags map[string]string `cbor:"tags,omitempty"`
}

// Container is a decoded container. It is treated as immutable once
// encoded; callers that modify one must re-encode it.
type Container struct {
	Version        uint8
	Metadata       Metadata
	OriginalLength uint64
	Checksum       uint32
	Chunks         []chunk.Chunk
	MerkleRoot     digest.Hash
	Residual       *residual.Residual
	Payload        []byte
}

// Binding returns the identity the seed envelope is sealed to.
func (c *Container) Binding() sealed.Binding {
	return sealed.Binding{MerkleRoot: c.MerkleRoot}
}

// PayloadLength returns the payload length implied by the chunk map.
func (c *Container) PayloadLength() uint64 {
	if len(c.Chunks) == 0 {
		return 0
	}
	return c.Chunks[len(c.Chunks)-1].End()
}

// EncodeMetadata serializes metadata with deterministic CBOR.
func EncodeMetadata(metadata Metadata) ([]byte, error) {
	encoded, err := codec.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("container: encoding metadata: %w", err)
	}
	return encoded, nil
}

// DecodeMetadata parses a metadata section.
func DecodeMetadata(data []byte) (Metadata, error) {
	var metadata Metadata
	if err := codec.UnmarshalStrict(data, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("container: decoding metadata: %w", err)
	}
	switch metadata.Kind {
	case KindFile, KindFolder:
	default:
		return Metadata{}, fmt.Errorf("container: unknown kind %q", metadata.Kind)
	}
	if err := chunk.ValidateSize(metadata.ChunkSize); err != nil {
		return Metadata{}, fmt.Errorf("container: %w", err)
	}
	return metadata, nil
}
