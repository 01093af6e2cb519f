// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/bureau-foundation/sigil/lib/chunk"
	"github.com/bureau-foundation/sigil/lib/digest"
	"github.com/bureau-foundation/sigil/lib/residual"
)

// Encode serializes c in the container layout:
//
//	magic            4   "SIG1"
//	version          1
//	metadata_len     4   u32, then metadata (CBOR)
//	original_length  8   u64
//	checksum         4   CRC32-IEEE of the original bytes
//	chunk_count      4   u32
//	chunk_map        chunk_count × {offset:8, length:4, hash:32, entropy:8}
//	merkle_root      32
//	residual_len     4   u32, then residual (CBOR, empty for tier none)
//	payload_len      8   u64, then payload
//
// All integers are little-endian.
func Encode(c *Container) ([]byte, error) {
	metadata, err := EncodeMetadata(c.Metadata)
	if err != nil {
		return nil, err
	}
	residualBytes, err := c.Residual.Encode()
	if err != nil {
		return nil, fmt.Errorf("container: encoding residual: %w", err)
	}
	if len(metadata) > math.MaxUint32 || len(residualBytes) > math.MaxUint32 || len(c.Chunks) > math.MaxUint32 {
		return nil, fmt.Errorf("container: section too large for a u32 length")
	}

	size := 4 + 1 + 4 + len(metadata) + 8 + 4 + 4 + len(c.Chunks)*ChunkEntrySize +
		digest.Size + 4 + len(residualBytes) + 8 + len(c.Payload)
	output := make([]byte, 0, size)

	output = append(output, Magic...)
	output = append(output, Version)
	output = binary.LittleEndian.AppendUint32(output, uint32(len(metadata)))
	output = append(output, metadata...)
	output = binary.LittleEndian.AppendUint64(output, c.OriginalLength)
	output = binary.LittleEndian.AppendUint32(output, c.Checksum)
	output = binary.LittleEndian.AppendUint32(output, uint32(len(c.Chunks)))
	output = AppendChunkMap(output, c.Chunks)
	output = append(output, c.MerkleRoot[:]...)
	output = binary.LittleEndian.AppendUint32(output, uint32(len(residualBytes)))
	output = append(output, residualBytes...)
	output = binary.LittleEndian.AppendUint64(output, uint64(len(c.Payload)))
	output = append(output, c.Payload...)
	return output, nil
}

// AppendChunkMap appends the encoded chunk map entries to buffer.
func AppendChunkMap(buffer []byte, chunks []chunk.Chunk) []byte {
	for _, entry := range chunks {
		buffer = binary.LittleEndian.AppendUint64(buffer, entry.Offset)
		buffer = binary.LittleEndian.AppendUint32(buffer, entry.Length)
		buffer = append(buffer, entry.Hash[:]...)
		buffer = binary.LittleEndian.AppendUint64(buffer, math.Float64bits(entry.Entropy))
	}
	return buffer
}

// DecodeChunkMap parses chunk map entries and checks that they
// partition [0, payloadLength) contiguously. When the entries parse
// but do not partition the payload, the parsed chunks are returned
// along with the error.
func DecodeChunkMap(data []byte, payloadLength uint64) ([]chunk.Chunk, error) {
	if len(data)%ChunkEntrySize != 0 {
		return nil, fmt.Errorf("chunk map is %d bytes, not a multiple of %d", len(data), ChunkEntrySize)
	}
	chunks := make([]chunk.Chunk, len(data)/ChunkEntrySize)
	for i := range chunks {
		entry := data[i*ChunkEntrySize : (i+1)*ChunkEntrySize]
		chunks[i] = chunk.Chunk{
			Index:   uint32(i),
			Offset:  binary.LittleEndian.Uint64(entry[0:8]),
			Length:  binary.LittleEndian.Uint32(entry[8:12]),
			Entropy: math.Float64frombits(binary.LittleEndian.Uint64(entry[12+digest.Size:])),
		}
		copy(chunks[i].Hash[:], entry[12:12+digest.Size])
	}

	var next uint64
	for i, entry := range chunks {
		if entry.Offset != next {
			return chunks, fmt.Errorf("chunk %d starts at %d, want %d", i, entry.Offset, next)
		}
		if entry.Length == 0 {
			return chunks, fmt.Errorf("chunk %d is empty", i)
		}
		next = entry.End()
	}
	if next != payloadLength {
		return chunks, fmt.Errorf("chunk map covers %d bytes, payload is %d", next, payloadLength)
	}
	return chunks, nil
}

// Scanned is the result of a tolerant parse. Container holds every
// section that could be read; the error fields describe the ones that
// could not.
type Scanned struct {
	Container *Container

	// MetadataBytes and ChunkMapBytes are the raw sections, kept so
	// regeneration can compare them against a Seal-tier backup.
	MetadataBytes []byte
	ChunkMapBytes []byte

	// PayloadLength is the declared payload length.
	PayloadLength uint64

	MetadataErr error
	ChunkMapErr error
	ResidualErr error

	// PayloadMissing counts declared payload bytes absent from the
	// input. Trailing counts bytes after the declared payload.
	PayloadMissing uint64
	Trailing       uint64
}

// Damaged reports whether any section failed to parse or the payload
// is incomplete.
func (s *Scanned) Damaged() bool {
	return s.MetadataErr != nil || s.ChunkMapErr != nil || s.ResidualErr != nil ||
		s.PayloadMissing > 0 || s.Trailing > 0
}

// Scan parses data as leniently as the layout allows. It fails only
// when the fixed fields themselves are unreadable (ErrMalformedHeader);
// a damaged metadata, chunk map or residual section, or a truncated
// payload, is recorded in the result instead.
func Scan(data []byte) (*Scanned, error) {
	r := &reader{data: data}

	magic := r.bytes(4, "magic")
	if r.err == nil && string(magic) != Magic {
		return nil, fmt.Errorf("%w: magic %q, want %q", ErrMalformedHeader, magic, Magic)
	}
	version := r.uint8("version")
	if r.err == nil && version != Version {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrMalformedHeader, version, Version)
	}
	metadataBytes := r.bytes(uint64(r.uint32("metadata_len")), "metadata")
	originalLength := r.uint64("original_length")
	checksum := r.uint32("checksum")
	chunkCount := r.uint32("chunk_count")
	chunkMapBytes := r.bytes(uint64(chunkCount)*ChunkEntrySize, "chunk_map")
	rootBytes := r.bytes(digest.Size, "merkle_root")
	residualBytes := r.bytes(uint64(r.uint32("residual_len")), "residual")
	payloadLength := r.uint64("payload_len")
	if r.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, r.err)
	}

	available := uint64(len(data) - r.position)
	payloadAvailable := min(available, payloadLength)

	scanned := &Scanned{
		Container: &Container{
			Version:        version,
			OriginalLength: originalLength,
			Checksum:       checksum,
			Payload:        data[r.position : r.position+int(payloadAvailable)],
		},
		MetadataBytes:  metadataBytes,
		ChunkMapBytes:  chunkMapBytes,
		PayloadLength:  payloadLength,
		PayloadMissing: payloadLength - payloadAvailable,
		Trailing:       available - payloadAvailable,
	}
	copy(scanned.Container.MerkleRoot[:], rootBytes)

	scanned.Container.Metadata, scanned.MetadataErr = DecodeMetadata(metadataBytes)
	scanned.Container.Chunks, scanned.ChunkMapErr = DecodeChunkMap(chunkMapBytes, payloadLength)
	if scanned.ChunkMapErr == nil && scanned.MetadataErr == nil {
		scanned.ChunkMapErr = chunk.CheckBoundaries(scanned.Container.Chunks, payloadLength, scanned.Container.Metadata.ChunkSize)
	}
	scanned.Container.Residual, scanned.ResidualErr = residual.Decode(residualBytes)
	if scanned.ResidualErr == nil && scanned.ChunkMapErr == nil && scanned.MetadataErr == nil {
		scanned.ResidualErr = scanned.Container.Residual.Validate(scanned.Container.Chunks, scanned.Container.Metadata.ChunkSize)
	}
	return scanned, nil
}

// Decode parses data strictly: every section must parse and the
// payload must be exactly the declared length.
func Decode(data []byte) (*Container, error) {
	scanned, err := Scan(data)
	if err != nil {
		return nil, err
	}
	switch {
	case scanned.MetadataErr != nil:
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, scanned.MetadataErr)
	case scanned.ChunkMapErr != nil:
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, scanned.ChunkMapErr)
	case scanned.ResidualErr != nil:
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, scanned.ResidualErr)
	case scanned.PayloadMissing > 0:
		return nil, fmt.Errorf("%w: payload short by %d bytes: %w", ErrMalformedHeader, scanned.PayloadMissing, io.ErrUnexpectedEOF)
	case scanned.Trailing > 0:
		return nil, fmt.Errorf("%w: %d trailing bytes after payload", ErrMalformedHeader, scanned.Trailing)
	}
	return scanned.Container, nil
}

// reader walks a byte slice, latching the first error so a sequence
// of reads can be checked once.
type reader struct {
	data     []byte
	position int
	err      error
}

func (r *reader) bytes(length uint64, field string) []byte {
	if r.err != nil {
		return nil
	}
	if length > uint64(len(r.data)-r.position) {
		r.err = fmt.Errorf("%s: need %d bytes, have %d: %w", field, length, len(r.data)-r.position, io.ErrUnexpectedEOF)
		return nil
	}
	result := r.data[r.position : r.position+int(length)]
	r.position += int(length)
	return result
}

func (r *reader) uint8(field string) uint8 {
	if raw := r.bytes(1, field); raw != nil {
		return raw[0]
	}
	return 0
}

func (r *reader) uint32(field string) uint32 {
	if raw := r.bytes(4, field); raw != nil {
		return binary.LittleEndian.Uint32(raw)
	}
	return 0
}

func (r *reader) uint64(field string) uint64 {
	if raw := r.bytes(8, field); raw != nil {
		return binary.LittleEndian.Uint64(raw)
	}
	return 0
}
