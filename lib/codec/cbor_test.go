// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// sampleRecord is a representative CBOR-only record.
type sampleRecord struct {
	Kind      string `cbor:"kind"`
	ChunkSize int    `cbor:"chunk_size"`
	Note      string `cbor:"note,omitempty"`
}

// sampleDualRecord uses json tags, relying on fxamacker's fallback.
type sampleDualRecord struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
}

// level is a text-marshaled enumeration.
type level int

func (l level) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("level-%d", int(l))), nil
}

func (l *level) UnmarshalText(text []byte) error {
	var value int
	if _, err := fmt.Sscanf(string(text), "level-%d", &value); err != nil {
		return err
	}
	*l = level(value)
	return nil
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRecord{Kind: "file", ChunkSize: 1024, Note: "x"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleRecord
	if err := UnmarshalStrict(data, &decoded); err != nil {
		t.Fatalf("UnmarshalStrict: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"zeta": 1, "alpha": 2, "mid": []byte{1, 2}}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding violated: %x != %x", first, again)
		}
	}
}

func TestTextMarshalerAsString(t *testing.T) {
	type holder struct {
		Level level `cbor:"level"`
	}
	data, err := Marshal(holder{Level: 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"level-3"`) {
		t.Errorf("notation %q does not contain the text form", notation)
	}

	var decoded holder
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Level != 3 {
		t.Errorf("decoded level = %d, want 3", decoded.Level)
	}
}

func TestJSONTagFallback(t *testing.T) {
	original := sampleDualRecord{Version: 1, Name: "container"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleDualRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("json-tag roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{"kind": "file", "chunk_size": 64, "future": true})
	if err != nil {
		t.Fatal(err)
	}
	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ChunkSize != 64 {
		t.Errorf("chunk_size = %d, want 64", decoded.ChunkSize)
	}
}

func TestUnmarshalStrictRejectsUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{"kind": "file", "chunk_size": 64, "future": true})
	if err != nil {
		t.Fatal(err)
	}
	var decoded sampleRecord
	if err := UnmarshalStrict(data, &decoded); err == nil {
		t.Fatal("UnmarshalStrict accepted an unknown field")
	}
}

func TestUnmarshalStrictRejectsDuplicateKeys(t *testing.T) {
	// {"kind": "a", "kind": "b"}
	data := []byte{0xa2, 0x64, 'k', 'i', 'n', 'd', 0x61, 'a', 0x64, 'k', 'i', 'n', 'd', 0x61, 'b'}
	var decoded sampleRecord
	if err := UnmarshalStrict(data, &decoded); err == nil {
		t.Fatal("UnmarshalStrict accepted duplicate map keys")
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var decoded sampleRecord
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &decoded); err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	records := []sampleRecord{
		{Kind: "file", ChunkSize: 1024},
		{Kind: "folder", ChunkSize: 40},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range records {
		var got sampleRecord
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode record %d: %v", i, err)
		}
		if got != want {
			t.Errorf("record %d: got %+v, want %+v", i, got, want)
		}
	}
}

func BenchmarkMarshal(b *testing.B) {
	record := sampleRecord{Kind: "file", ChunkSize: 1024, Note: "benchmark"}

	b.ReportAllocs()
	for b.Loop() {
		Marshal(record)
	}
}
