// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"context"
	"math"
	"testing"

	"github.com/bureau-foundation/sigil/lib/digest"
)

func payload(length int) []byte {
	data := make([]byte, length)
	for i := range data {
		data[i] = byte(i*31 + i/7)
	}
	return data
}

func TestBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		length     uint64
		size       int
		wantCount  int
		wantLength uint32
	}{
		{"empty", 0, 1024, 0, 0},
		{"exact", 4096, 1024, 4, 1024},
		{"remainder", 10003, 1024, 10, 787},
		{"smaller than a chunk", 10, 1024, 1, 10},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			chunks := Boundaries(test.length, test.size)
			if len(chunks) != test.wantCount {
				t.Fatalf("chunk count = %d, want %d", len(chunks), test.wantCount)
			}
			if len(chunks) == 0 {
				return
			}
			var next uint64
			for i, chunk := range chunks {
				if chunk.Index != uint32(i) {
					t.Errorf("chunk %d has index %d", i, chunk.Index)
				}
				if chunk.Offset != next {
					t.Errorf("chunk %d offset = %d, want %d", i, chunk.Offset, next)
				}
				next = chunk.End()
			}
			if next != test.length {
				t.Errorf("chunks cover %d bytes, want %d", next, test.length)
			}
			if last := chunks[len(chunks)-1].Length; last != test.wantLength {
				t.Errorf("last chunk length = %d, want %d", last, test.wantLength)
			}
		})
	}
}

func TestCheckBoundaries(t *testing.T) {
	exact := Boundaries(10003, 1024)
	stretched := Boundaries(10003, 1024)
	stretched[9].Length = 1024
	overlong := []Chunk{{Index: 0, Offset: 0, Length: 100}}

	tests := []struct {
		name   string
		chunks []Chunk
		length uint64
		size   int
		valid  bool
	}{
		{"exact", exact, 10003, 1024, true},
		{"empty", nil, 0, 1024, true},
		{"huge declared length", exact, math.MaxUint64, 1024, false},
		{"final chunk too long", stretched, 10003, 1024, false},
		{"chunk longer than chunk size", overlong, 100, 64, false},
		{"invalid chunk size", exact, 10003, 0, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := CheckBoundaries(test.chunks, test.length, test.size)
			if (err == nil) != test.valid {
				t.Fatalf("CheckBoundaries error = %v, want valid %v", err, test.valid)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	data := payload(10003)
	chunks, err := Split(context.Background(), data, 1024, 3)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 10 {
		t.Fatalf("chunk count = %d, want 10", len(chunks))
	}
	for _, chunk := range chunks {
		bytes, ok := chunk.Bytes(data)
		if !ok {
			t.Fatalf("chunk %d out of range", chunk.Index)
		}
		if chunk.Hash != digest.HashChunk(bytes) {
			t.Errorf("chunk %d hash does not match its bytes", chunk.Index)
		}
		if chunk.Entropy != Score(bytes) {
			t.Errorf("chunk %d entropy = %v, want %v", chunk.Index, chunk.Entropy, Score(bytes))
		}
	}
}

func TestSplitIndependentOfWorkers(t *testing.T) {
	data := payload(50000)
	serial, err := Split(context.Background(), data, 512, 1)
	if err != nil {
		t.Fatal(err)
	}
	parallel, err := Split(context.Background(), data, 512, 16)
	if err != nil {
		t.Fatal(err)
	}
	if len(serial) != len(parallel) {
		t.Fatalf("chunk counts differ: %d vs %d", len(serial), len(parallel))
	}
	for i := range serial {
		if serial[i] != parallel[i] {
			t.Fatalf("chunk %d differs between 1 and 16 workers", i)
		}
	}
}

func TestSplitRejectsBadSize(t *testing.T) {
	for _, size := range []int{0, MinSize - 1, MaxSize + 1} {
		if _, err := Split(context.Background(), payload(100), size, 0); err == nil {
			t.Errorf("Split with size %d succeeded, want error", size)
		}
	}
}

func TestSplitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Split(ctx, payload(100000), 64, 2); err == nil {
		t.Fatal("Split with cancelled context succeeded, want error")
	}
}

func TestMismatches(t *testing.T) {
	data := payload(10003)
	chunks, err := Split(context.Background(), data, 1024, 0)
	if err != nil {
		t.Fatal(err)
	}

	damaged := append([]byte(nil), data...)
	damaged[7*1024+5] ^= 0xff
	damaged[2*1024] ^= 0x01
	got, err := Mismatches(context.Background(), damaged, chunks, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 7 {
		t.Fatalf("Mismatches = %v, want [2 7]", got)
	}

	truncated := data[:9*1024+10]
	got, err = Mismatches(context.Background(), truncated, chunks, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 9 {
		t.Fatalf("Mismatches on truncated payload = %v, want [9]", got)
	}
}

func TestScore(t *testing.T) {
	uniform := make([]byte, 256*4)
	for i := range uniform {
		uniform[i] = byte(i)
	}
	tests := []struct {
		name string
		data []byte
		want float64
	}{
		{"empty", nil, 0},
		{"constant", make([]byte, 100), 0},
		{"two values", []byte{0, 1, 0, 1}, 1},
		{"uniform", uniform, 8},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Score(test.data); math.Abs(got-test.want) > 1e-9 {
				t.Errorf("Score = %v, want %v", got, test.want)
			}
		})
	}
}

func TestChildRef(t *testing.T) {
	root := digest.HashChunk([]byte("child"))
	encoded := EncodeChildRef(root, 123456)
	if len(encoded) != ChildRefSize {
		t.Fatalf("encoded child ref = %d bytes, want %d", len(encoded), ChildRefSize)
	}
	ref, err := Resolve(ChildRoot, encoded)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.Kind != ChildRoot || ref.Root != root || ref.Length != 123456 {
		t.Fatalf("Resolve = %+v, want root %s length 123456", ref, root)
	}
	if _, err := Resolve(ChildRoot, encoded[:10]); err == nil {
		t.Fatal("Resolve of short child ref succeeded, want error")
	}

	raw, err := Resolve(RawBytes, []byte("abc"))
	if err != nil || raw.Kind != RawBytes || string(raw.Data) != "abc" {
		t.Fatalf("Resolve(RawBytes) = %+v, %v", raw, err)
	}
}
