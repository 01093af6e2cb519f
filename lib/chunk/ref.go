// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"encoding/binary"
	"fmt"

	"github.com/bureau-foundation/sigil/lib/digest"
)

// RefKind says what a chunk's bytes stand for.
type RefKind uint8

const (
	// RawBytes chunks hold a slice of transformed, coded file data.
	RawBytes RefKind = iota

	// ChildRoot chunks hold a fixed-size reference to another
	// container: its Merkle root and original length. Folder
	// containers are made of these.
	ChildRoot
)

// ChildRefSize is the encoded size of a ChildRoot chunk: a 32-byte
// Merkle root followed by a little-endian u64 original length.
const ChildRefSize = digest.Size + 8

// String returns the human-readable name of the kind.
func (kind RefKind) String() string {
	switch kind {
	case RawBytes:
		return "raw"
	case ChildRoot:
		return "child"
	default:
		return fmt.Sprintf("unknown(%d)", kind)
	}
}

// Ref is the resolved meaning of one chunk.
type Ref struct {
	Kind RefKind

	// Data is set for RawBytes references.
	Data []byte

	// Root and Length are set for ChildRoot references.
	Root   digest.Hash
	Length uint64
}

// EncodeChildRef returns the chunk bytes that reference a child
// container.
func EncodeChildRef(root digest.Hash, length uint64) []byte {
	encoded := make([]byte, ChildRefSize)
	copy(encoded, root[:])
	binary.LittleEndian.PutUint64(encoded[digest.Size:], length)
	return encoded
}

// Resolve interprets a chunk's bytes as the given kind.
func Resolve(kind RefKind, data []byte) (Ref, error) {
	switch kind {
	case RawBytes:
		return Ref{Kind: RawBytes, Data: data}, nil
	case ChildRoot:
		if len(data) != ChildRefSize {
			return Ref{}, fmt.Errorf("child reference is %d bytes, want %d", len(data), ChildRefSize)
		}
		ref := Ref{Kind: ChildRoot, Length: binary.LittleEndian.Uint64(data[digest.Size:])}
		copy(ref.Root[:], data[:digest.Size])
		return ref, nil
	default:
		return Ref{}, fmt.Errorf("unknown chunk reference kind %d", kind)
	}
}
