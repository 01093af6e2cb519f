// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package entropy

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"
)

func compressible() []byte {
	return bytes.Repeat([]byte("sigil regenerative archive, sigil regenerative archive\n"), 200)
}

func incompressible() []byte {
	generator := rand.New(rand.NewPCG(1, 2))
	data := make([]byte, 8192)
	for i := range data {
		data[i] = byte(generator.Uint32())
	}
	return data
}

func TestTagString(t *testing.T) {
	tests := []struct {
		tag  Tag
		want string
	}{
		{None, "none"},
		{LZ4, "lz4"},
		{Zstd, "zstd"},
		{Tag(99), "unknown(99)"},
	}
	for _, test := range tests {
		t.Run(test.want, func(t *testing.T) {
			if got := test.tag.String(); got != test.want {
				t.Errorf("Tag(%d).String() = %q, want %q", test.tag, got, test.want)
			}
		})
	}
}

func TestParseTagRoundTrip(t *testing.T) {
	for _, tag := range []Tag{None, LZ4, Zstd} {
		parsed, err := ParseTag(tag.String())
		if err != nil {
			t.Fatalf("ParseTag(%q): %v", tag, err)
		}
		if parsed != tag {
			t.Errorf("ParseTag(%q) = %v, want %v", tag.String(), parsed, tag)
		}
	}
	if _, err := ParseTag("brotli"); err == nil {
		t.Error("ParseTag(brotli) succeeded, want error")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"compressible":   compressible(),
		"incompressible": incompressible(),
		"single byte":    {0x42},
	}
	for _, tag := range []Tag{None, LZ4, Zstd} {
		for name, data := range inputs {
			t.Run(tag.String()+"/"+name, func(t *testing.T) {
				stream, err := Encode(data, tag)
				if err != nil {
					t.Fatalf("Encode: %v", err)
				}
				decoded, err := Decode(stream)
				if err != nil {
					t.Fatalf("Decode: %v", err)
				}
				if !bytes.Equal(decoded, data) {
					t.Fatal("round trip changed the data")
				}
			})
		}
	}
}

func TestEncodeShrinksCompressibleInput(t *testing.T) {
	data := compressible()
	for _, tag := range []Tag{LZ4, Zstd} {
		stream, err := Encode(data, tag)
		if err != nil {
			t.Fatalf("Encode(%s): %v", tag, err)
		}
		if Tag(stream[0]) != tag {
			t.Errorf("Encode(%s) recorded tag %s", tag, Tag(stream[0]))
		}
		if len(stream) >= len(data) {
			t.Errorf("Encode(%s) = %d bytes, input %d", tag, len(stream), len(data))
		}
	}
}

func TestEncodeFallsBackToNone(t *testing.T) {
	data := incompressible()
	for _, tag := range []Tag{LZ4, Zstd} {
		stream, err := Encode(data, tag)
		if err != nil {
			t.Fatalf("Encode(%s): %v", tag, err)
		}
		if Tag(stream[0]) != None {
			t.Errorf("Encode(%s) of random data used %s, want none", tag, Tag(stream[0]))
		}
		if len(stream) != len(data)+1 {
			t.Errorf("Encode(%s) = %d bytes, want %d", tag, len(stream), len(data)+1)
		}
	}
}

func TestEmpty(t *testing.T) {
	stream, err := Encode(nil, Zstd)
	if err != nil {
		t.Fatalf("Encode(empty): %v", err)
	}
	if len(stream) != 0 {
		t.Fatalf("Encode(empty) = %d bytes, want 0", len(stream))
	}
	decoded, err := Decode(stream)
	if err != nil || len(decoded) != 0 {
		t.Fatalf("Decode(empty) = %d bytes, %v", len(decoded), err)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	zstdStream, err := Encode(compressible(), Zstd)
	if err != nil {
		t.Fatal(err)
	}
	lz4Stream, err := Encode(compressible(), LZ4)
	if err != nil {
		t.Fatal(err)
	}

	damagedZstd := append([]byte(nil), zstdStream...)
	damagedZstd = damagedZstd[:len(damagedZstd)/2]

	tests := []struct {
		name   string
		stream []byte
	}{
		{"unknown tag", []byte{0x7f, 1, 2, 3}},
		{"truncated zstd", damagedZstd},
		{"lz4 header only", lz4Stream[:2]},
		{"lz4 bad header", []byte{byte(LZ4), 0x80}},
		{"lz4 huge length", append([]byte{byte(LZ4)}, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Decode(test.stream); !errors.Is(err, ErrCorruptStream) {
				t.Fatalf("Decode: err = %v, want ErrCorruptStream", err)
			}
		})
	}
}

func TestStreamTag(t *testing.T) {
	if tag, err := StreamTag([]byte{byte(LZ4)}); err != nil || tag != LZ4 {
		t.Fatalf("StreamTag = %v, %v; want lz4, nil", tag, err)
	}
	if _, err := StreamTag([]byte{9}); !errors.Is(err, ErrCorruptStream) {
		t.Fatalf("StreamTag(9): err = %v, want ErrCorruptStream", err)
	}
}
