// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package entropy is the lossless coder applied to transformed bytes
// before chunking. A coded stream is one tag byte followed by the body:
//
//	none: tag ‖ raw bytes
//	lz4:  tag ‖ uvarint(decoded length) ‖ LZ4 block
//	zstd: tag ‖ zstd frame
//
// Encode falls back to none whenever the chosen coder does not shrink
// the input, so coded output is never more than one byte longer than
// its input. Empty input codes to an empty stream.
package entropy

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the coder used for a stream. Tags are stored as the
// first byte of the payload and are format constants.
type Tag uint8

const (
	// None stores bytes unchanged.
	None Tag = 0

	// LZ4 is LZ4 block compression: fast, modest ratio.
	LZ4 Tag = 1

	// Zstd is zstd at the default level. This is the coder new
	// containers request.
	Zstd Tag = 2
)

// Default is the coder requested when the caller does not pick one.
const Default = Zstd

// maxDecodedLength bounds the length an LZ4 header may claim, so a
// corrupt header cannot force a huge allocation.
const maxDecodedLength = 1 << 34

// ErrCorruptStream reports a coded stream that cannot be decoded. The
// surrounding container may still be regenerable.
var ErrCorruptStream = errors.New("entropy: corrupt stream")

// errIncompressible is returned internally when a coder does not make
// the data smaller.
var errIncompressible = errors.New("entropy: data is incompressible")

// String returns the human-readable name of a tag.
func (tag Tag) String() string {
	switch tag {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseTag parses a tag from its string representation.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown coder %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler so tags appear by name
// in metadata and configuration.
func (tag Tag) MarshalText() ([]byte, error) {
	return []byte(tag.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (tag *Tag) UnmarshalText(text []byte) error {
	parsed, err := ParseTag(string(text))
	if err != nil {
		return err
	}
	*tag = parsed
	return nil
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("entropy: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedLength))
	if err != nil {
		panic("entropy: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode codes data with the requested coder, falling back to None
// when the coder does not shrink it. The returned stream's first byte
// records the coder actually used.
func Encode(data []byte, tag Tag) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}

	var body []byte
	var err error
	switch tag {
	case None:
		err = errIncompressible
	case LZ4:
		body, err = encodeLZ4(data)
	case Zstd:
		body, err = encodeZstd(data)
	default:
		return nil, fmt.Errorf("entropy: unsupported coder %s", tag)
	}
	if errors.Is(err, errIncompressible) {
		stream := make([]byte, 1+len(data))
		stream[0] = byte(None)
		copy(stream[1:], data)
		return stream, nil
	}
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(tag)}, body...), nil
}

// Decode reverses Encode. Any failure wraps ErrCorruptStream.
func Decode(stream []byte) ([]byte, error) {
	if len(stream) == 0 {
		return []byte{}, nil
	}

	tag, body := Tag(stream[0]), stream[1:]
	switch tag {
	case None:
		return append([]byte(nil), body...), nil
	case LZ4:
		return decodeLZ4(body)
	case Zstd:
		return decodeZstd(body)
	default:
		return nil, fmt.Errorf("%w: unknown coder tag %d", ErrCorruptStream, stream[0])
	}
}

// StreamTag returns the coder recorded in a stream's first byte.
func StreamTag(stream []byte) (Tag, error) {
	if len(stream) == 0 {
		return None, nil
	}
	tag := Tag(stream[0])
	if tag > Zstd {
		return tag, fmt.Errorf("%w: unknown coder tag %d", ErrCorruptStream, stream[0])
	}
	return tag, nil
}

func encodeLZ4(data []byte) ([]byte, error) {
	header := binary.AppendUvarint(nil, uint64(len(data)))
	destination := make([]byte, len(header)+lz4.CompressBlockBound(len(data)))
	copy(destination, header)
	written, err := lz4.CompressBlock(data, destination[len(header):], nil)
	if err != nil {
		return nil, fmt.Errorf("entropy: lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || len(header)+written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:len(header)+written], nil
}

func decodeLZ4(body []byte) ([]byte, error) {
	length, headerLength := binary.Uvarint(body)
	if headerLength <= 0 {
		return nil, fmt.Errorf("%w: lz4 length header unreadable", ErrCorruptStream)
	}
	if length == 0 || length > maxDecodedLength {
		return nil, fmt.Errorf("%w: lz4 length %d out of range", ErrCorruptStream, length)
	}
	destination := make([]byte, length)
	read, err := lz4.UncompressBlock(body[headerLength:], destination)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %v", ErrCorruptStream, err)
	}
	if uint64(read) != length {
		return nil, fmt.Errorf("%w: lz4 produced %d bytes, header says %d", ErrCorruptStream, read, length)
	}
	return destination, nil
}

func encodeZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decodeZstd(body []byte) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrCorruptStream, err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: zstd frame decoded to nothing", ErrCorruptStream)
	}
	return result, nil
}
