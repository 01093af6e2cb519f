// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package residual

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/bureau-foundation/sigil/lib/chunk"
)

func split(t *testing.T, length, size int) ([]byte, []chunk.Chunk) {
	t.Helper()
	payload := make([]byte, length)
	for i := range payload {
		payload[i] = byte(i*13 + i/251)
	}
	chunks, err := chunk.Split(context.Background(), payload, size, 0)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	return payload, chunks
}

func TestParityShards(t *testing.T) {
	tests := []struct {
		tier Tier
		data int
		want int
	}{
		{TierNone, 16, 0},
		{TierReflection, 16, 4},
		{TierReflection, 3, 1},
		{TierSeal, 16, 16},
		{TierSeal, 5, 5},
	}
	for _, test := range tests {
		if got := test.tier.ParityShards(test.data); got != test.want {
			t.Errorf("%s.ParityShards(%d) = %d, want %d", test.tier, test.data, got, test.want)
		}
	}
}

func TestTierParse(t *testing.T) {
	for _, tier := range []Tier{TierNone, TierReflection, TierSeal} {
		parsed, err := ParseTier(tier.String())
		if err != nil || parsed != tier {
			t.Errorf("ParseTier(%q) = %v, %v", tier.String(), parsed, err)
		}
	}
	if _, err := ParseTier("platinum"); err == nil {
		t.Error("ParseTier(platinum) succeeded, want error")
	}
}

func TestBuildNone(t *testing.T) {
	payload, chunks := split(t, 5000, 256)
	result, err := Build(payload, chunks, 256, TierNone, 0)
	if err != nil || result != nil {
		t.Fatalf("Build(TierNone) = %v, %v; want nil, nil", result, err)
	}
}

func TestBuildStripes(t *testing.T) {
	payload, chunks := split(t, 10003, 1024)
	result, err := Build(payload, chunks, 1024, TierReflection, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(result.Stripes) != 3 {
		t.Fatalf("stripe count = %d, want 3", len(result.Stripes))
	}
	if err := result.Validate(chunks, 1024); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	last := result.Stripes[2]
	if last.First != 8 || last.DataShards != 2 || len(last.Parity) != 1 {
		t.Fatalf("last stripe = first %d, %d data, %d parity; want 8, 2, 1",
			last.First, last.DataShards, len(last.Parity))
	}
}

func TestBuildRejectsWideStripes(t *testing.T) {
	payload, chunks := split(t, 1000, 64)
	if _, err := Build(payload, chunks, 64, TierSeal, MaxStripeWidth+1); err == nil {
		t.Fatal("Build with oversized stripe width succeeded, want error")
	}
}

func TestRecoverReflection(t *testing.T) {
	payload, chunks := split(t, 10003, 1024)
	result, err := Build(payload, chunks, 1024, TierReflection, 8)
	if err != nil {
		t.Fatal(err)
	}

	damaged := append([]byte(nil), payload...)
	for i := 7 * 1024; i < 8*1024; i++ {
		damaged[i] = 0
	}
	recovered := result.Recover(damaged, chunks, []uint32{7})
	data, ok := recovered[7]
	if !ok {
		t.Fatal("chunk 7 not recovered")
	}
	if !bytes.Equal(data, payload[7*1024:8*1024]) {
		t.Fatal("recovered chunk 7 differs from the original")
	}
}

func TestRecoverShortFinalChunk(t *testing.T) {
	payload, chunks := split(t, 10003, 1024)
	result, err := Build(payload, chunks, 1024, TierReflection, 16)
	if err != nil {
		t.Fatal(err)
	}
	recovered := result.Recover(payload[:9*1024], chunks, []uint32{9})
	if !bytes.Equal(recovered[9], payload[9*1024:]) {
		t.Fatal("final short chunk not recovered")
	}
}

func TestRecoverBeyondParity(t *testing.T) {
	payload, chunks := split(t, 8*512, 512)
	result, err := Build(payload, chunks, 512, TierReflection, 8)
	if err != nil {
		t.Fatal(err)
	}
	// Eight data shards carry two parity shards; three losses are too
	// many.
	recovered := result.Recover(payload, chunks, []uint32{1, 4, 6})
	if len(recovered) != 0 {
		t.Fatalf("recovered %d chunks past the parity budget", len(recovered))
	}
}

func TestRecoverSealHalfLost(t *testing.T) {
	payload, chunks := split(t, 16*256, 256)
	result, err := Build(payload, chunks, 256, TierSeal, 8)
	if err != nil {
		t.Fatal(err)
	}
	missing := []uint32{0, 2, 4, 6, 9, 11, 13, 15}
	recovered := result.Recover(make([]byte, len(payload)), chunks, nil)
	if len(recovered) != 0 {
		t.Fatal("Recover with nothing missing returned chunks")
	}
	damaged := append([]byte(nil), payload...)
	for _, index := range missing {
		for i := range 256 {
			damaged[int(index)*256+i] ^= 0x5a
		}
	}
	recovered = result.Recover(damaged, chunks, missing)
	for _, index := range missing {
		want := payload[int(index)*256 : int(index+1)*256]
		if !bytes.Equal(recovered[index], want) {
			t.Errorf("chunk %d not recovered", index)
		}
	}
}

func TestRecoverIgnoresDamagedParity(t *testing.T) {
	payload, chunks := split(t, 4*256, 256)
	result, err := Build(payload, chunks, 256, TierSeal, 4)
	if err != nil {
		t.Fatal(err)
	}
	// Damage every parity shard: nothing can be recovered, and
	// nothing wrong may be returned.
	for _, shard := range result.Stripes[0].Parity {
		shard[0] ^= 0xff
	}
	if recovered := result.Recover(payload, chunks, []uint32{2}); len(recovered) != 0 {
		t.Fatalf("recovered %d chunks from damaged parity", len(recovered))
	}
}

func TestEncodeDecode(t *testing.T) {
	payload, chunks := split(t, 3000, 512)
	result, err := Build(payload, chunks, 512, TierSeal, 4)
	if err != nil {
		t.Fatal(err)
	}
	result.AttachBackup([]byte("metadata"), []byte("chunk map"), chunks[0].Hash)

	encoded, err := result.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := decoded.Validate(chunks, 512); err != nil {
		t.Fatalf("Validate after decode: %v", err)
	}
	if !decoded.Backup.Intact() {
		t.Fatal("decoded backup is not intact")
	}
	decoded.Backup.ChunkMap[0] ^= 1
	if decoded.Backup.Intact() {
		t.Fatal("modified backup still reports intact")
	}
}

func TestAttachBackupOnlyForSeal(t *testing.T) {
	payload, chunks := split(t, 3000, 512)
	result, err := Build(payload, chunks, 512, TierReflection, 4)
	if err != nil {
		t.Fatal(err)
	}
	result.AttachBackup([]byte("m"), []byte("c"), chunks[0].Hash)
	if result.Backup != nil {
		t.Fatal("reflection residual carries a backup")
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0x00}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Decode(garbage): err = %v, want ErrInvalid", err)
	}
	result, err := Decode(nil)
	if err != nil || result != nil {
		t.Fatalf("Decode(nil) = %v, %v; want nil, nil", result, err)
	}
}

func TestValidateMismatch(t *testing.T) {
	payload, chunks := split(t, 3000, 512)
	result, err := Build(payload, chunks, 512, TierReflection, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := result.Validate(chunks[:3], 512); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate with fewer chunks: err = %v, want ErrInvalid", err)
	}
	if err := result.Validate(chunks, 1024); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate with wrong shard size: err = %v, want ErrInvalid", err)
	}
}

func TestChunkLongerThanShard(t *testing.T) {
	payload, chunks := split(t, 3000, 512)
	result, err := Build(payload, chunks, 512, TierReflection, 4)
	if err != nil {
		t.Fatal(err)
	}

	// A chunk map claiming a first chunk longer than the shard size
	// cannot be protected by these stripes.
	oversized := slices.Clone(chunks)
	oversized[0].Length = 600
	if err := result.Validate(oversized, 512); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate with an oversized chunk: err = %v, want ErrInvalid", err)
	}
	recovered := result.Recover(payload, oversized, []uint32{0})
	if len(recovered) != 0 {
		t.Fatalf("recovered %d chunks from a stripe with an oversized chunk", len(recovered))
	}
}
