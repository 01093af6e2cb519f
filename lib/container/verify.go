// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/bureau-foundation/sigil/lib/chaos"
	"github.com/bureau-foundation/sigil/lib/chunk"
	"github.com/bureau-foundation/sigil/lib/entropy"
	"github.com/bureau-foundation/sigil/lib/merkle"
	"github.com/bureau-foundation/sigil/lib/sealed"
)

// Check names the verification step a container failed.
type Check string

const (
	CheckChunkHash     Check = "chunk-hash"
	CheckMerkleRoot    Check = "merkle-root"
	CheckPayloadLength Check = "payload-length"
	CheckCoder         Check = "coder"
	CheckTransform     Check = "transform"
	CheckLength        Check = "original-length"
	CheckChecksum      Check = "checksum"
)

// Report is the outcome of Verify.
type Report struct {
	Valid bool

	// Check is the failing step; empty when Valid.
	Check Check

	// Reason is the typed integrity error behind Check: a
	// *ChunkHashMismatchError, ErrMerkleMismatch, a
	// *LengthMismatchError, an entropy.ErrCorruptStream, a
	// chaos.ErrMalformed, or a *ChecksumMismatchError.
	Reason error

	// FailedChunks lists every chunk whose bytes failed their hash,
	// ascending.
	FailedChunks []uint32
}

// String renders the report the way the CLI prints it:
// "valid", "invalid: chunk-hash[7]", "invalid: checksum".
func (r *Report) String() string {
	if r.Valid {
		return "valid"
	}
	var mismatch *ChunkHashMismatchError
	if errors.As(r.Reason, &mismatch) {
		return fmt.Sprintf("invalid: %s[%d]", r.Check, mismatch.Index)
	}
	return "invalid: " + string(r.Check)
}

// Checksum computes the CRC32 (IEEE) the container layout stores for
// original bytes.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Verify checks c in order: every chunk's bytes against its hash (in
// parallel), the chunk map against the Merkle root, the payload length
// against the chunk map, and finally the reconstructed file's length
// and checksum. The first failing step is reported.
//
// The returned error is reserved for problems that are not integrity
// failures: a cancelled context, or a seed envelope the opener cannot
// open (sealed.ErrSealed, sealed.ErrWrongKey).
func Verify(ctx context.Context, c *Container, opener sealed.Opener) (*Report, error) {
	report, _, err := check(ctx, c, opener)
	return report, err
}

// Extract verifies c and returns the original file. An integrity
// failure is returned as the report's typed Reason, so callers can
// match it with errors.Is and errors.As.
func Extract(ctx context.Context, c *Container, opener sealed.Opener) ([]byte, error) {
	report, restored, err := check(ctx, c, opener)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		return nil, report.Reason
	}
	return restored, nil
}

func check(ctx context.Context, c *Container, opener sealed.Opener) (*Report, []byte, error) {
	failed, err := chunk.Mismatches(ctx, c.Payload, c.Chunks, 0)
	if err != nil {
		return nil, nil, err
	}
	if len(failed) > 0 {
		return &Report{
			Check:        CheckChunkHash,
			Reason:       &ChunkHashMismatchError{Index: failed[0], Indices: failed},
			FailedChunks: failed,
		}, nil, nil
	}

	if merkle.Root(chunk.Hashes(c.Chunks)) != c.MerkleRoot {
		return &Report{Check: CheckMerkleRoot, Reason: ErrMerkleMismatch}, nil, nil
	}

	if covered := c.PayloadLength(); covered != uint64(len(c.Payload)) {
		return &Report{
			Check:  CheckPayloadLength,
			Reason: &LengthMismatchError{Field: "payload length", Want: covered, Got: uint64(len(c.Payload))},
		}, nil, nil
	}

	restored, err := Restore(c, opener)
	if err != nil {
		if step, ok := integrityCheck(err); ok {
			return &Report{Check: step, Reason: err}, nil, nil
		}
		return nil, nil, err
	}
	return &Report{Valid: true}, restored, nil
}

// Restore reverses the pipeline over an intact payload: open the seed
// envelope, decode the coder stream, invert the transform, and check
// the result's length and checksum. Folder payloads are returned as
// stored. Restore does not check chunk hashes; callers that have not
// already done so should use Verify.
func Restore(c *Container, opener sealed.Opener) ([]byte, error) {
	var restored []byte
	if c.Metadata.Kind == KindFolder {
		restored = c.Payload
	} else {
		decoded, err := entropy.Decode(c.Payload)
		if err != nil {
			return nil, err
		}
		if len(decoded) > 0 {
			if c.Metadata.Envelope == nil {
				return nil, fmt.Errorf("container: file container has no seed envelope")
			}
			if opener == nil {
				opener = sealed.Keyring{}
			}
			s, err := opener.Open(*c.Metadata.Envelope, c.Binding())
			if err != nil {
				return nil, err
			}
			restored, err = chaos.Inverse(decoded, s)
			if err != nil {
				return nil, err
			}
		}
	}

	if uint64(len(restored)) != c.OriginalLength {
		return nil, &LengthMismatchError{Field: "original length", Want: c.OriginalLength, Got: uint64(len(restored))}
	}
	if computed := Checksum(restored); computed != c.Checksum {
		return nil, &ChecksumMismatchError{Want: c.Checksum, Got: computed}
	}
	if restored == nil {
		restored = []byte{}
	}
	return restored, nil
}

// integrityCheck maps a Restore error to the verification step it
// represents. Errors that are not integrity failures return false.
func integrityCheck(err error) (Check, bool) {
	var lengthMismatch *LengthMismatchError
	var checksumMismatch *ChecksumMismatchError
	switch {
	case errors.Is(err, entropy.ErrCorruptStream):
		return CheckCoder, true
	case errors.Is(err, chaos.ErrMalformed):
		return CheckTransform, true
	case errors.As(err, &lengthMismatch):
		return CheckLength, true
	case errors.As(err, &checksumMismatch):
		return CheckChecksum, true
	}
	return "", false
}
