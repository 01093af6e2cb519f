// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package container_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"slices"
	"testing"

	"github.com/bureau-foundation/sigil/lib/archive"
	"github.com/bureau-foundation/sigil/lib/chunk"
	"github.com/bureau-foundation/sigil/lib/container"
	"github.com/bureau-foundation/sigil/lib/digest"
	"github.com/bureau-foundation/sigil/lib/merkle"
	"github.com/bureau-foundation/sigil/lib/residual"
	"github.com/bureau-foundation/sigil/lib/testutil"
)

// fixture is an encoded container plus the offsets tests use to
// damage specific fields.
type fixture struct {
	content   []byte
	container *container.Container
	data      []byte

	checksumOffset int
	rootOffset     int
	payloadOffset  int
}

func newFixture(t *testing.T, content []byte, options archive.Options) fixture {
	t.Helper()
	c, err := archive.Create(context.Background(), content, options)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	data, err := container.Encode(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	metadata, err := container.EncodeMetadata(c.Metadata)
	if err != nil {
		t.Fatalf("EncodeMetadata: %v", err)
	}
	checksumOffset := 4 + 1 + 4 + len(metadata) + 8
	rootOffset := checksumOffset + 4 + 4 + len(c.Chunks)*container.ChunkEntrySize
	return fixture{
		content:        content,
		container:      c,
		data:           data,
		checksumOffset: checksumOffset,
		rootOffset:     rootOffset,
		payloadOffset:  len(data) - len(c.Payload),
	}
}

func verify(t *testing.T, data []byte) *container.Report {
	t.Helper()
	report, err := archive.Verify(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	return report
}

func TestTenKilobyteExample(t *testing.T) {
	// Decimal kilobytes: 10,000 bytes plus the coder tag is 10 chunks
	// of 1 KiB, where 10,240 bytes would spill into an eleventh.
	f := newFixture(t, testutil.Content(7, 10_000), archive.DefaultOptions())

	if got := len(f.container.Chunks); got != 10 {
		t.Fatalf("chunk_count = %d, want 10", got)
	}
	stored := binary.LittleEndian.Uint32(f.data[f.checksumOffset:])
	if want := container.Checksum(f.content); stored != want {
		t.Fatalf("stored checksum = %08x, want CRC32 %08x", stored, want)
	}
	if report := verify(t, f.data); !report.Valid {
		t.Fatalf("Verify = %s, want valid", report)
	}

	chunk7 := f.container.Chunks[7]
	start := f.payloadOffset + int(chunk7.Offset)
	damaged := testutil.RemoveRange(f.data, start, start+int(chunk7.Length))

	report := verify(t, damaged)
	if got, want := report.String(), "invalid: chunk-hash[7]"; got != want {
		t.Fatalf("Verify = %q, want %q", got, want)
	}
	var mismatch *container.ChunkHashMismatchError
	if !errors.As(report.Reason, &mismatch) || mismatch.Index != 7 {
		t.Fatalf("Reason = %v, want ChunkHashMismatchError{Index: 7}", report.Reason)
	}
	// Removing bytes shifts every later chunk too.
	if want := []uint32{7, 8, 9}; !slices.Equal(report.FailedChunks, want) {
		t.Fatalf("FailedChunks = %v, want %v", report.FailedChunks, want)
	}
}

func TestVerifySoundness(t *testing.T) {
	f := newFixture(t, testutil.Content(8, 6000), archive.DefaultOptions())

	tests := []struct {
		name  string
		bit   int
		check container.Check
		want  string
	}{
		{"payload chunk 0", (f.payloadOffset + 10) * 8, container.CheckChunkHash, "invalid: chunk-hash[0]"},
		{"payload chunk 3", (f.payloadOffset+3*1024+500)*8 + 5, container.CheckChunkHash, "invalid: chunk-hash[3]"},
		{"last payload byte", len(f.data)*8 - 1, container.CheckChunkHash, "invalid: chunk-hash[5]"},
		{"merkle root", f.rootOffset * 8, container.CheckMerkleRoot, "invalid: merkle-root"},
		{"checksum", f.checksumOffset*8 + 3, container.CheckChecksum, "invalid: checksum"},
		{"original length", (f.checksumOffset - 8) * 8, container.CheckLength, "invalid: original-length"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			report := verify(t, testutil.FlipBit(f.data, test.bit))
			if report.Valid {
				t.Fatal("Verify = valid after flipping a bit")
			}
			if report.Check != test.check {
				t.Fatalf("Check = %s, want %s", report.Check, test.check)
			}
			if got := report.String(); got != test.want {
				t.Fatalf("Verify = %q, want %q", got, test.want)
			}
		})
	}
}

func TestVerifyTypedReasons(t *testing.T) {
	f := newFixture(t, testutil.Content(9, 3000), archive.DefaultOptions())

	report := verify(t, testutil.FlipBit(f.data, f.rootOffset*8))
	if !errors.Is(report.Reason, container.ErrMerkleMismatch) {
		t.Fatalf("Reason = %v, want ErrMerkleMismatch", report.Reason)
	}

	report = verify(t, testutil.FlipBit(f.data, f.checksumOffset*8))
	var checksum *container.ChecksumMismatchError
	if !errors.As(report.Reason, &checksum) {
		t.Fatalf("Reason = %v, want ChecksumMismatchError", report.Reason)
	}
	if checksum.Got != container.Checksum(f.content) {
		t.Fatalf("computed checksum = %08x, want %08x", checksum.Got, container.Checksum(f.content))
	}

	_, err := archive.Extract(context.Background(), testutil.FlipBit(f.data, f.checksumOffset*8), nil)
	if !errors.As(err, &checksum) {
		t.Fatalf("Extract error = %v, want ChecksumMismatchError", err)
	}
}

func TestMerkleIntegrity(t *testing.T) {
	// Swapping two chunk map entries keeps every hash matching some
	// payload range but changes the tree.
	f := newFixture(t, testutil.Content(10, 4096), archive.DefaultOptions())
	c := *f.container
	c.Chunks = slices.Clone(c.Chunks)
	c.Chunks[0].Hash, c.Chunks[1].Hash = c.Chunks[1].Hash, c.Chunks[0].Hash

	report, err := container.Verify(context.Background(), &c, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Check != container.CheckChunkHash {
		t.Fatalf("Check = %s, want %s", report.Check, container.CheckChunkHash)
	}

	// With the payload swapped to match, the chunk hashes pass and
	// the root catches the reordering.
	first, _ := f.container.Chunks[0].Bytes(f.container.Payload)
	second, _ := f.container.Chunks[1].Bytes(f.container.Payload)
	c.Payload = slices.Concat(second, first, f.container.Payload[2048:])
	report, err = container.Verify(context.Background(), &c, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Check != container.CheckMerkleRoot {
		t.Fatalf("Check = %s, want %s", report.Check, container.CheckMerkleRoot)
	}
}

func TestEncodeDecode(t *testing.T) {
	options := archive.DefaultOptions()
	options.Tier = residual.TierSeal
	options.StripeWidth = 4
	options.Tags = map[string]string{"owner": "ops"}
	f := newFixture(t, testutil.Content(11, 9000), options)

	decoded, err := container.Decode(f.data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.MerkleRoot != f.container.MerkleRoot {
		t.Fatal("decoded Merkle root differs")
	}
	if !slices.Equal(decoded.Chunks, f.container.Chunks) {
		t.Fatal("decoded chunk map differs")
	}
	if decoded.Metadata.Tags["owner"] != "ops" {
		t.Fatalf("decoded tags = %v", decoded.Metadata.Tags)
	}
	if decoded.Residual == nil || decoded.Residual.Backup == nil || !decoded.Residual.Backup.Intact() {
		t.Fatal("decoded Seal-tier residual lost its backup")
	}

	reencoded, err := container.Encode(decoded)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(reencoded, f.data) {
		t.Fatal("re-encoding a decoded container changed its bytes")
	}
}

func TestDecodeMalformed(t *testing.T) {
	f := newFixture(t, []byte("malformed header tests"), archive.DefaultOptions())

	wrongMagic := bytes.Clone(f.data)
	copy(wrongMagic, "ZIP!")
	wrongVersion := bytes.Clone(f.data)
	wrongVersion[4] = 9

	tests := []struct {
		name string
		data []byte
		eof  bool
	}{
		{"empty", nil, true},
		{"magic only", f.data[:4], true},
		{"wrong magic", wrongMagic, false},
		{"wrong version", wrongVersion, false},
		{"cut in chunk map", f.data[:f.checksumOffset+10], true},
		{"cut in payload", testutil.Truncate(f.data, 1), true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := container.Decode(test.data)
			if !errors.Is(err, container.ErrMalformedHeader) {
				t.Fatalf("Decode error = %v, want ErrMalformedHeader", err)
			}
			if test.eof && !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Fatalf("Decode error = %v, want it to wrap io.ErrUnexpectedEOF", err)
			}
		})
	}

	if _, err := container.Decode(append(bytes.Clone(f.data), 0)); !errors.Is(err, container.ErrMalformedHeader) {
		t.Fatalf("Decode with trailing byte error = %v, want ErrMalformedHeader", err)
	}
}

func TestScanKeepsDamagedSections(t *testing.T) {
	f := newFixture(t, testutil.Content(12, 5000), archive.DefaultOptions())

	scanned, err := container.Scan(testutil.Truncate(f.data, 2000))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !scanned.Damaged() {
		t.Fatal("Damaged = false for a truncated container")
	}
	if scanned.PayloadMissing != 2000 {
		t.Fatalf("PayloadMissing = %d, want 2000", scanned.PayloadMissing)
	}
	if scanned.MetadataErr != nil || scanned.ChunkMapErr != nil {
		t.Fatalf("header sections failed to parse: %v, %v", scanned.MetadataErr, scanned.ChunkMapErr)
	}
	if len(scanned.Container.Chunks) != len(f.container.Chunks) {
		t.Fatalf("scanned %d chunks, want %d", len(scanned.Container.Chunks), len(f.container.Chunks))
	}
}

func TestIrregularChunkMap(t *testing.T) {
	f := newFixture(t, testutil.Content(13, 5000), archive.DefaultOptions())

	// Merge the first two chunks: the map still partitions the payload
	// and matches its Merkle root, but the first chunk is twice the
	// chunk size.
	c := *f.container
	first := chunk.Chunk{Index: 0, Offset: 0, Length: c.Chunks[0].Length + c.Chunks[1].Length}
	data, _ := first.Bytes(c.Payload)
	first.Hash = digest.HashChunk(data)
	first.Entropy = chunk.Score(data)
	c.Chunks = append([]chunk.Chunk{first}, slices.Clone(c.Chunks[2:])...)
	for i := range c.Chunks {
		c.Chunks[i].Index = uint32(i)
	}
	c.MerkleRoot = merkle.Root(chunk.Hashes(c.Chunks))
	encoded, err := container.Encode(&c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	scanned, err := container.Scan(encoded)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scanned.ChunkMapErr == nil {
		t.Fatal("Scan accepted a chunk map with an oversized chunk")
	}
	if _, err := container.Decode(encoded); !errors.Is(err, container.ErrMalformedHeader) {
		t.Fatalf("Decode error = %v, want ErrMalformedHeader", err)
	}
	if _, err := archive.Verify(context.Background(), encoded, nil); !errors.Is(err, container.ErrMalformedHeader) {
		t.Fatalf("Verify error = %v, want ErrMalformedHeader", err)
	}
}

func TestReportString(t *testing.T) {
	tests := []struct {
		report container.Report
		want   string
	}{
		{container.Report{Valid: true}, "valid"},
		{container.Report{Check: container.CheckChecksum, Reason: &container.ChecksumMismatchError{}}, "invalid: checksum"},
		{container.Report{
			Check:  container.CheckChunkHash,
			Reason: &container.ChunkHashMismatchError{Index: 4, Indices: []uint32{4, 6}},
		}, "invalid: chunk-hash[4]"},
	}
	for _, test := range tests {
		if got := test.report.String(); got != test.want {
			t.Fatalf("String = %q, want %q", got, test.want)
		}
	}
}
