// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package residual

import (
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"

	"github.com/bureau-foundation/sigil/lib/chunk"
	"github.com/bureau-foundation/sigil/lib/codec"
	"github.com/bureau-foundation/sigil/lib/digest"
)

// DefaultStripeWidth is the number of data chunks per parity stripe.
const DefaultStripeWidth = 16

// MaxStripeWidth keeps data plus parity shards within the 256 shards a
// GF(2^8) Reed–Solomon code supports, at every tier.
const MaxStripeWidth = 128

// Residual is the redundancy record stored after a container's Merkle
// root. It is CBOR-encoded; an empty residual section means TierNone.
type Residual struct {
	Tier        Tier     `cbor:"tier"`
	StripeWidth int      `cbor:"stripe_width"`
	ShardSize   int      `cbor:"shard_size"`
	Stripes     []Stripe `cbor:"stripes"`
	Backup      *Backup  `cbor:"backup,omitempty"`
}

// Stripe is the parity for a run of consecutive chunks. Data shards
// are the chunks' bytes zero-padded to ShardSize.
type Stripe struct {
	// First is the index of the stripe's first chunk.
	First uint32 `cbor:"first"`

	// DataShards is the number of chunks in the stripe.
	DataShards int `cbor:"data_shards"`

	// Parity holds the parity shards, each ShardSize bytes.
	Parity [][]byte `cbor:"parity"`

	// Hashes holds the chunk-domain hash of each parity shard, so a
	// damaged shard is dropped instead of poisoning reconstruction.
	Hashes []digest.Hash `cbor:"hashes"`
}

// Backup holds second copies of a container's metadata and encoded
// chunk map, kept at TierSeal so a damaged chunk map can be replaced.
type Backup struct {
	Metadata   []byte      `cbor:"metadata"`
	ChunkMap   []byte      `cbor:"chunk_map"`
	MerkleRoot digest.Hash `cbor:"merkle_root"`

	// Digest is the parity-domain hash of Metadata‖ChunkMap‖MerkleRoot.
	Digest digest.Hash `cbor:"digest"`
}

// ErrInvalid reports a residual record that does not describe the
// container it is attached to.
var ErrInvalid = errors.New("residual: invalid record")

// Build computes parity stripes over payload's chunks at the given
// tier. It returns nil for TierNone and for an empty payload.
func Build(payload []byte, chunks []chunk.Chunk, shardSize int, tier Tier, stripeWidth int) (*Residual, error) {
	if tier == TierNone || len(chunks) == 0 {
		return nil, nil
	}
	if tier > TierSeal {
		return nil, fmt.Errorf("residual: unsupported tier %s", tier)
	}
	if stripeWidth <= 0 {
		stripeWidth = DefaultStripeWidth
	}
	if stripeWidth > MaxStripeWidth {
		return nil, fmt.Errorf("residual: stripe width %d exceeds %d", stripeWidth, MaxStripeWidth)
	}

	result := &Residual{Tier: tier, StripeWidth: stripeWidth, ShardSize: shardSize}
	for first := 0; first < len(chunks); first += stripeWidth {
		members := chunks[first:min(first+stripeWidth, len(chunks))]
		parityShards := tier.ParityShards(len(members))

		encoder, err := reedsolomon.New(len(members), parityShards)
		if err != nil {
			return nil, fmt.Errorf("residual: stripe at chunk %d: %w", first, err)
		}
		shards := make([][]byte, len(members)+parityShards)
		for i, member := range members {
			data, ok := member.Bytes(payload)
			if !ok {
				return nil, fmt.Errorf("residual: chunk %d extends past payload", member.Index)
			}
			shards[i] = padded(data, shardSize)
		}
		for i := len(members); i < len(shards); i++ {
			shards[i] = make([]byte, shardSize)
		}
		if err := encoder.Encode(shards); err != nil {
			return nil, fmt.Errorf("residual: encoding stripe at chunk %d: %w", first, err)
		}

		stripe := Stripe{
			First:      uint32(first),
			DataShards: len(members),
			Parity:     shards[len(members):],
			Hashes:     make([]digest.Hash, parityShards),
		}
		for i, shard := range stripe.Parity {
			stripe.Hashes[i] = digest.Keyed(digest.ParityDomain, shard)
		}
		result.Stripes = append(result.Stripes, stripe)
	}
	return result, nil
}

// AttachBackup records backup copies of the container's metadata and
// encoded chunk map. Only TierSeal residuals carry a backup.
func (r *Residual) AttachBackup(metadata, chunkMap []byte, merkleRoot digest.Hash) {
	if r == nil || r.Tier != TierSeal {
		return
	}
	r.Backup = &Backup{
		Metadata:   append([]byte(nil), metadata...),
		ChunkMap:   append([]byte(nil), chunkMap...),
		MerkleRoot: merkleRoot,
	}
	r.Backup.Digest = r.Backup.computeDigest()
}

// Intact reports whether the backup's contents match its digest.
func (b *Backup) Intact() bool {
	return b != nil && b.computeDigest() == b.Digest
}

func (b *Backup) computeDigest() digest.Hash {
	hasher := digest.NewHasher(digest.ParityDomain)
	hasher.Write(b.Metadata)
	hasher.Write(b.ChunkMap)
	hasher.Write(b.MerkleRoot[:])
	var result digest.Hash
	copy(result[:], hasher.Sum(nil))
	return result
}

// Encode serializes the residual. A nil residual encodes as empty.
func (r *Residual) Encode() ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return codec.Marshal(r)
}

// Decode parses an encoded residual. Empty input yields nil.
func Decode(data []byte) (*Residual, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var result Residual
	if err := codec.UnmarshalStrict(data, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &result, nil
}

// Validate checks the residual's shape against the chunk map it is
// meant to protect.
func (r *Residual) Validate(chunks []chunk.Chunk, shardSize int) error {
	if r == nil {
		return nil
	}
	if r.ShardSize != shardSize {
		return fmt.Errorf("%w: shard size %d, chunk size %d", ErrInvalid, r.ShardSize, shardSize)
	}
	for _, member := range chunks {
		if int64(member.Length) > int64(r.ShardSize) {
			return fmt.Errorf("%w: chunk %d is %d bytes, longer than a %d-byte shard", ErrInvalid, member.Index, member.Length, r.ShardSize)
		}
	}
	var next uint32
	for i, stripe := range r.Stripes {
		if stripe.First != next {
			return fmt.Errorf("%w: stripe %d starts at chunk %d, want %d", ErrInvalid, i, stripe.First, next)
		}
		if stripe.DataShards <= 0 || len(stripe.Parity) == 0 ||
			stripe.DataShards+len(stripe.Parity) > 256 || len(stripe.Parity) != len(stripe.Hashes) {
			return fmt.Errorf("%w: stripe %d has %d data and %d parity shards", ErrInvalid, i, stripe.DataShards, len(stripe.Parity))
		}
		next += uint32(stripe.DataShards)
	}
	if int(next) != len(chunks) {
		return fmt.Errorf("%w: stripes cover %d chunks, container has %d", ErrInvalid, next, len(chunks))
	}
	return nil
}

// Recover reconstructs missing chunks from parity. payload must hold
// valid bytes for every chunk not listed in missing; bytes at missing
// chunks are ignored. Each recovered chunk is checked against its
// recorded hash before it is returned, so the result never contains
// wrong bytes. Stripes with more losses than surviving parity, or with
// a chunk longer than a shard, are skipped.
func (r *Residual) Recover(payload []byte, chunks []chunk.Chunk, missing []uint32) map[uint32][]byte {
	recovered := make(map[uint32][]byte)
	if r == nil || len(missing) == 0 {
		return recovered
	}

	lost := make(map[uint32]bool, len(missing))
	for _, index := range missing {
		lost[index] = true
	}

	for _, stripe := range r.Stripes {
		end := stripe.First + uint32(stripe.DataShards)
		if int(end) > len(chunks) {
			continue
		}
		members := chunks[stripe.First:end]

		damaged := false
		for _, member := range members {
			if lost[member.Index] {
				damaged = true
				break
			}
		}
		if !damaged || !fitsShards(members, r.ShardSize) {
			continue
		}

		shards := make([][]byte, stripe.DataShards+len(stripe.Parity))
		for i, member := range members {
			if lost[member.Index] {
				continue
			}
			data, ok := member.Bytes(payload)
			if !ok {
				continue
			}
			shards[i] = padded(data, r.ShardSize)
		}
		for i, shard := range stripe.Parity {
			if len(shard) == r.ShardSize && digest.Keyed(digest.ParityDomain, shard) == stripe.Hashes[i] {
				shards[stripe.DataShards+i] = shard
			}
		}

		encoder, err := reedsolomon.New(stripe.DataShards, len(stripe.Parity))
		if err != nil {
			continue
		}
		if err := encoder.ReconstructData(shards); err != nil {
			continue
		}
		for i, member := range members {
			if !lost[member.Index] {
				continue
			}
			candidate := shards[i][:member.Length]
			if digest.HashChunk(candidate) == member.Hash {
				recovered[member.Index] = candidate
			}
		}
	}
	return recovered
}

func fitsShards(members []chunk.Chunk, shardSize int) bool {
	for _, member := range members {
		if int64(member.Length) > int64(shardSize) {
			return false
		}
	}
	return true
}

// padded returns data zero-extended to size, always as a fresh slice
// so the encoder never writes into the payload.
func padded(data []byte, size int) []byte {
	shard := make([]byte, size)
	copy(shard, data)
	return shard
}
