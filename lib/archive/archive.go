// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/sigil/lib/chaos"
	"github.com/bureau-foundation/sigil/lib/chunk"
	"github.com/bureau-foundation/sigil/lib/container"
	"github.com/bureau-foundation/sigil/lib/digest"
	"github.com/bureau-foundation/sigil/lib/entropy"
	"github.com/bureau-foundation/sigil/lib/merkle"
	"github.com/bureau-foundation/sigil/lib/residual"
	"github.com/bureau-foundation/sigil/lib/sealed"
	"github.com/bureau-foundation/sigil/lib/secret"
	"github.com/bureau-foundation/sigil/lib/seed"
)

// Options controls container creation. Start from DefaultOptions.
type Options struct {
	// ChunkSize is the payload chunk size in bytes.
	ChunkSize int

	// Coder is the entropy coder to request. Incompressible payloads
	// are stored uncoded regardless.
	Coder entropy.Tag

	// Tier is the resilience tier.
	Tier residual.Tier

	// StripeWidth is the number of chunks per parity stripe. Zero
	// means residual.DefaultStripeWidth.
	StripeWidth int

	// AccessKey, when set, keys seed derivation and seals the seed
	// envelope under the key. Borrowed; not closed.
	AccessKey *secret.Buffer

	// Recipients, when set, encrypt the seed envelope to these age
	// X25519 public keys.
	Recipients []string

	// Lineage, when set, is used as the seed instead of deriving one
	// from the content. New versions of a file created with their
	// parent's seed are siblings of it wherever their payloads agree.
	Lineage *seed.Seed

	// Tags are stored in the metadata.
	Tags map[string]string

	// Workers bounds chunk hashing concurrency. Zero means GOMAXPROCS.
	Workers int

	// Logger receives debug events. Nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns the options new containers use unless the
// caller overrides them.
func DefaultOptions() Options {
	return Options{
		ChunkSize:   chunk.DefaultSize,
		Coder:       entropy.Default,
		Tier:        residual.TierNone,
		StripeWidth: residual.DefaultStripeWidth,
	}
}

func (o *Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Create runs the forward pipeline over content: seed derivation, the
// chaotic transform, the entropy coder, chunking, the Merkle tree,
// the seed envelope, and the residual. The same content with the same
// options always produces a byte-identical container, except that
// age-recipient envelopes are randomized.
func Create(ctx context.Context, content []byte, options Options) (*container.Container, error) {
	if options.ChunkSize == 0 {
		options.ChunkSize = chunk.DefaultSize
	}
	if err := chunk.ValidateSize(options.ChunkSize); err != nil {
		return nil, err
	}

	s, err := deriveSeed(content, options)
	if err != nil {
		return nil, err
	}

	transformed := chaos.Forward(content, s)
	payload, err := entropy.Encode(transformed, options.Coder)
	if err != nil {
		return nil, fmt.Errorf("coding payload: %w", err)
	}
	chunks, err := chunk.Split(ctx, payload, options.ChunkSize, options.Workers)
	if err != nil {
		return nil, err
	}

	result := &container.Container{
		Version:        container.Version,
		OriginalLength: uint64(len(content)),
		Checksum:       container.Checksum(content),
		Chunks:         chunks,
		MerkleRoot:     merkle.Root(chunk.Hashes(chunks)),
		Payload:        payload,
	}

	envelope, err := sealed.Seal(s, result.Binding(), sealed.SealOptions{
		AccessKey:  options.AccessKey,
		Recipients: options.Recipients,
	})
	if err != nil {
		return nil, fmt.Errorf("sealing seed: %w", err)
	}
	result.Metadata = container.Metadata{
		Kind:      container.KindFile,
		Coder:     options.Coder,
		ChunkSize: options.ChunkSize,
		Tier:      options.Tier,
		Envelope:  &envelope,
		Lineage:   s.Fingerprint(),
		Tags:      options.Tags,
	}

	if err := attachResidual(result, options); err != nil {
		return nil, err
	}

	codedWith, _ := entropy.StreamTag(payload)
	options.logger().Debug("container created",
		"original_length", len(content),
		"payload_length", len(payload),
		"coder", codedWith.String(),
		"chunk_count", len(chunks),
		"tier", options.Tier.String(),
		"merkle_root", digest.Short(result.MerkleRoot),
		"envelope", string(envelope.Mode),
	)
	return result, nil
}

func deriveSeed(content []byte, options Options) (seed.Seed, error) {
	switch {
	case options.Lineage != nil:
		return *options.Lineage, nil
	case options.AccessKey != nil:
		return seed.DeriveKeyed(content, options.AccessKey.Bytes())
	default:
		return seed.Derive(content), nil
	}
}

// attachResidual builds parity for the container's tier and, at
// TierSeal, the metadata and chunk map backups.
func attachResidual(c *container.Container, options Options) error {
	built, err := residual.Build(c.Payload, c.Chunks, c.Metadata.ChunkSize, options.Tier, options.StripeWidth)
	if err != nil {
		return err
	}
	if built != nil && options.Tier == residual.TierSeal {
		metadata, err := container.EncodeMetadata(c.Metadata)
		if err != nil {
			return err
		}
		built.AttachBackup(metadata, container.AppendChunkMap(nil, c.Chunks), c.MerkleRoot)
	}
	c.Residual = built
	return nil
}

// Extract decodes data strictly, verifies it, and returns the
// original file. Integrity failures come back as the container
// package's typed errors.
func Extract(ctx context.Context, data []byte, opener sealed.Opener) ([]byte, error) {
	c, err := container.Decode(data)
	if err != nil {
		return nil, err
	}
	return container.Extract(ctx, c, opener)
}

// Verify checks encoded container bytes. The header must parse; a
// truncated or damaged payload is reported as chunk-hash failures
// rather than a parse error, so a container missing some bytes still
// yields a report naming the damaged chunks. A chunk map whose ranges
// are not the fixed-size boundaries of the chunk size is a malformed
// header.
func Verify(ctx context.Context, data []byte, opener sealed.Opener) (*container.Report, error) {
	scanned, err := container.Scan(data)
	if err != nil {
		return nil, err
	}
	if scanned.MetadataErr != nil {
		return nil, fmt.Errorf("%w: %w", container.ErrMalformedHeader, scanned.MetadataErr)
	}
	if scanned.ChunkMapErr != nil {
		// A damaged payload_len field is tolerated; irregular chunk
		// ranges are not.
		c := scanned.Container
		if c.Chunks == nil || chunk.CheckBoundaries(c.Chunks, c.PayloadLength(), c.Metadata.ChunkSize) != nil {
			return nil, fmt.Errorf("%w: %w", container.ErrMalformedHeader, scanned.ChunkMapErr)
		}
	}
	return container.Verify(ctx, scanned.Container, opener)
}
