// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/sigil/lib/digest"
)

// Chunk size limits. Chunk boundaries are a pure function of the
// payload length and the chunk size, so changing a container's chunk
// size changes every boundary in it.
const (
	// DefaultSize is the chunk size new containers use unless the
	// caller picks another.
	DefaultSize = 1024

	// MinSize is the smallest accepted chunk size.
	MinSize = 16

	// MaxSize is the largest accepted chunk size. Larger chunks make
	// a single damaged byte cost more to regenerate.
	MaxSize = 16 * 1024 * 1024
)

// Chunk describes one contiguous byte range of a container payload.
type Chunk struct {
	// Index is the chunk's position in the chunk map, dense from 0.
	Index uint32

	// Offset is the byte offset of the chunk within the payload.
	Offset uint64

	// Length is the chunk's byte length. Only the final chunk may be
	// shorter than the container's chunk size.
	Length uint32

	// Hash is the chunk-domain BLAKE3 hash of the chunk's bytes.
	Hash digest.Hash

	// Entropy is the Shannon entropy of the chunk's bytes in bits per
	// byte (0 to 8). Regeneration ranks sibling candidates by how
	// close their score is to this one.
	Entropy float64
}

// End returns the payload offset one past the chunk's last byte.
func (c Chunk) End() uint64 {
	return c.Offset + uint64(c.Length)
}

// Bytes returns the chunk's slice of payload, or false when the
// payload is too short to contain it.
func (c Chunk) Bytes(payload []byte) ([]byte, bool) {
	if c.End() > uint64(len(payload)) {
		return nil, false
	}
	return payload[c.Offset:c.End()], true
}

// ValidateSize checks that size is an acceptable chunk size.
func ValidateSize(size int) error {
	if size < MinSize || size > MaxSize {
		return fmt.Errorf("chunk size %d outside [%d, %d]", size, MinSize, MaxSize)
	}
	return nil
}

// Boundaries returns the chunk ranges for a payload of the given
// length, with Hash and Entropy left zero. The final chunk holds the
// remainder.
func Boundaries(length uint64, size int) []Chunk {
	if length == 0 {
		return nil
	}
	count := (length + uint64(size) - 1) / uint64(size)
	chunks := make([]Chunk, count)
	for i := range chunks {
		offset := uint64(i) * uint64(size)
		chunks[i] = Chunk{
			Index:  uint32(i),
			Offset: offset,
			Length: uint32(min(uint64(size), length-offset)),
		}
	}
	return chunks
}

// CheckBoundaries reports whether chunks are exactly the ranges
// Boundaries returns for a payload of length bytes at the given chunk
// size. It does not allocate, so a declared length far beyond the
// chunk list is rejected without being trusted.
func CheckBoundaries(chunks []Chunk, length uint64, size int) error {
	if err := ValidateSize(size); err != nil {
		return err
	}
	step := uint64(size)
	count := length / step
	if length%step != 0 {
		count++
	}
	if count != uint64(len(chunks)) {
		return fmt.Errorf("%d chunks for a %d-byte payload at chunk size %d, want %d", len(chunks), length, size, count)
	}
	for i, c := range chunks {
		offset := uint64(i) * step
		want := uint32(min(step, length-offset))
		if c.Offset != offset || c.Length != want {
			return fmt.Errorf("chunk %d covers [%d, %d), want [%d, %d)", i, c.Offset, c.End(), offset, offset+uint64(want))
		}
	}
	return nil
}

// Split partitions payload into fixed-size chunks and computes each
// chunk's hash and entropy score. Hashing and scoring run on up to
// workers goroutines (GOMAXPROCS when workers <= 0); results are
// merged by index, so the output never depends on scheduling.
func Split(ctx context.Context, payload []byte, size, workers int) ([]Chunk, error) {
	if err := ValidateSize(size); err != nil {
		return nil, err
	}
	chunks := Boundaries(uint64(len(payload)), size)
	if len(chunks) == 0 {
		return chunks, nil
	}

	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(workerCount(workers))
	for i := range chunks {
		group.Go(func() error {
			if err := groupContext.Err(); err != nil {
				return err
			}
			data := payload[chunks[i].Offset:chunks[i].End()]
			chunks[i].Hash = digest.HashChunk(data)
			chunks[i].Entropy = Score(data)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("splitting payload: %w", err)
	}
	return chunks, nil
}

// Mismatches re-hashes every chunk against payload and returns the
// indices, ascending, whose bytes are absent or whose hash differs
// from the recorded one.
func Mismatches(ctx context.Context, payload []byte, chunks []Chunk, workers int) ([]uint32, error) {
	failed := make([]bool, len(chunks))

	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(workerCount(workers))
	for i := range chunks {
		group.Go(func() error {
			if err := groupContext.Err(); err != nil {
				return err
			}
			data, ok := chunks[i].Bytes(payload)
			failed[i] = !ok || digest.HashChunk(data) != chunks[i].Hash
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("verifying chunks: %w", err)
	}

	var indices []uint32
	for i, bad := range failed {
		if bad {
			indices = append(indices, chunks[i].Index)
		}
	}
	return indices, nil
}

// Score returns the Shannon entropy of data in bits per byte:
// H = −Σ p·log2(p) over the byte-value frequencies. Empty input
// scores 0.
func Score(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, value := range data {
		counts[value]++
	}
	total := float64(len(data))
	entropy := 0.0
	for _, count := range counts {
		if count == 0 {
			continue
		}
		probability := float64(count) / total
		// The conversion keeps the product from fusing with the
		// subtraction, so scores are identical on every platform.
		entropy -= float64(probability * math.Log2(probability))
	}
	return entropy
}

// Hashes returns the chunk hashes in index order, the leaves of the
// container's Merkle tree.
func Hashes(chunks []Chunk) []digest.Hash {
	hashes := make([]digest.Hash, len(chunks))
	for i, chunk := range chunks {
		hashes[i] = chunk.Hash
	}
	return hashes
}

func workerCount(workers int) int {
	if workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return workers
}
