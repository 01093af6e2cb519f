// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sigil/cmd/sigil/cli"
	"github.com/bureau-foundation/sigil/lib/chunk"
	"github.com/bureau-foundation/sigil/lib/container"
	"github.com/bureau-foundation/sigil/lib/entropy"
	"github.com/bureau-foundation/sigil/lib/merkle"
)

type inspectParams struct {
	Environment
	cli.JSONOutput
	Chunks bool `flag:"chunks" desc:"list every chunk's offset, length, hash and entropy score"`
	Proof  int  `flag:"proof" default:"-1" desc:"print the Merkle audit path of this chunk index"`
}

type inspectResult struct {
	Name           string            `json:"name"`
	Kind           string            `json:"kind"`
	Version        uint8             `json:"version"`
	Coder          string            `json:"coder"`
	Tier           string            `json:"tier"`
	ChunkSize      int               `json:"chunk_size"`
	ChunkCount     int               `json:"chunk_count"`
	OriginalLength uint64            `json:"original_length"`
	PayloadLength  uint64            `json:"payload_length"`
	Checksum       string            `json:"checksum"`
	MerkleRoot     string            `json:"merkle_root"`
	Envelope       string            `json:"envelope,omitempty"`
	Lineage        string            `json:"lineage,omitempty"`
	ParityStripes  int               `json:"parity_stripes"`
	Backup         bool              `json:"backup"`
	Children       []string          `json:"children,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	Problems       []string          `json:"problems,omitempty"`
	Chunks         []inspectChunk    `json:"chunks,omitempty"`
	Proof          *inspectProof     `json:"proof,omitempty"`
}

type inspectChunk struct {
	Index   uint32  `json:"index"`
	Offset  uint64  `json:"offset"`
	Length  uint32  `json:"length"`
	Hash    string  `json:"hash"`
	Entropy float64 `json:"entropy"`
}

// inspectProof is the Merkle audit path of one chunk: the sibling
// hashes from the leaf up to the root.
type inspectProof struct {
	Index int      `json:"index"`
	Leaf  string   `json:"leaf"`
	Path  []string `json:"path"`
	Valid bool     `json:"valid"`
}

func inspectCommand(out io.Writer) *cli.Command {
	var params inspectParams

	return &cli.Command{
		Name:    "inspect",
		Summary: "Show a container's metadata",
		Usage:   "sigil inspect <container> [flags]",
		Description: `Print what a container records about itself without restoring it.

The container is parsed tolerantly: a damaged metadata section, chunk
map or residual, or a truncated payload, is listed under "problems"
instead of failing the command. Nothing is hash-checked; use
"sigil verify" for that.

With --proof N, the audit path of chunk N is printed along with whether
it leads from the chunk's recorded hash to the recorded Merkle root.
The path alone is enough for a third party holding only the root to
check that one chunk belongs to the container.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("inspect", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("inspect takes exactly one container")
			}
			s, err := params.open(ctx, "inspect", out)
			if err != nil {
				return err
			}
			defer s.Close()

			data, err := s.load(ctx, args[0])
			if err != nil {
				return err
			}
			scanned, err := container.Scan(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			result := describe(args[0], scanned, params.Chunks)
			if params.Proof >= 0 {
				result.Proof, err = chunkProof(scanned.Container, params.Proof)
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
			}

			if done, err := params.EmitJSON(s.out, result); done {
				return err
			}
			return printInspect(s.out, result)
		},
	}
}

func describe(name string, scanned *container.Scanned, withChunks bool) inspectResult {
	c := scanned.Container
	result := inspectResult{
		Name:           name,
		Kind:           string(c.Metadata.Kind),
		Version:        c.Version,
		Coder:          coderName(c),
		Tier:           c.Metadata.Tier.String(),
		ChunkSize:      c.Metadata.ChunkSize,
		ChunkCount:     len(c.Chunks),
		OriginalLength: c.OriginalLength,
		PayloadLength:  scanned.PayloadLength,
		Checksum:       fmt.Sprintf("%08x", c.Checksum),
		MerkleRoot:     c.MerkleRoot.String(),
		Lineage:        c.Metadata.Lineage,
		Children:       c.Metadata.Children,
		Tags:           c.Metadata.Tags,
	}
	if c.Metadata.Envelope != nil {
		result.Envelope = string(c.Metadata.Envelope.Mode)
	}
	if c.Residual != nil {
		result.ParityStripes = len(c.Residual.Stripes)
		result.Backup = c.Residual.Backup != nil
	}

	if scanned.MetadataErr != nil {
		result.Problems = append(result.Problems, "metadata: "+scanned.MetadataErr.Error())
	}
	if scanned.ChunkMapErr != nil {
		result.Problems = append(result.Problems, "chunk map: "+scanned.ChunkMapErr.Error())
	}
	if scanned.ResidualErr != nil {
		result.Problems = append(result.Problems, "residual: "+scanned.ResidualErr.Error())
	}
	if scanned.PayloadMissing > 0 {
		result.Problems = append(result.Problems, fmt.Sprintf("payload: %d bytes missing", scanned.PayloadMissing))
	}
	if scanned.Trailing > 0 {
		result.Problems = append(result.Problems, fmt.Sprintf("payload: %d trailing bytes", scanned.Trailing))
	}

	if withChunks {
		result.Chunks = make([]inspectChunk, len(c.Chunks))
		for i, entry := range c.Chunks {
			result.Chunks[i] = inspectChunk{
				Index:   entry.Index,
				Offset:  entry.Offset,
				Length:  entry.Length,
				Hash:    entry.Hash.String(),
				Entropy: entry.Entropy,
			}
		}
	}
	return result
}

func printInspect(w io.Writer, result inspectResult) error {
	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(table, "name:\t%s\n", result.Name)
	fmt.Fprintf(table, "kind:\t%s (format v%d)\n", result.Kind, result.Version)
	fmt.Fprintf(table, "original:\t%s (%d bytes, crc32 %s)\n", humanize.IBytes(result.OriginalLength), result.OriginalLength, result.Checksum)
	fmt.Fprintf(table, "payload:\t%s in %d chunks of %s\n", humanize.IBytes(result.PayloadLength), result.ChunkCount, humanize.IBytes(uint64(result.ChunkSize)))
	fmt.Fprintf(table, "coder:\t%s\n", result.Coder)
	fmt.Fprintf(table, "tier:\t%s (%d parity stripes, backup %t)\n", result.Tier, result.ParityStripes, result.Backup)
	fmt.Fprintf(table, "merkle root:\t%s\n", result.MerkleRoot)
	if result.Envelope != "" {
		fmt.Fprintf(table, "envelope:\t%s\n", result.Envelope)
	}
	if result.Lineage != "" {
		fmt.Fprintf(table, "lineage:\t%s\n", result.Lineage)
	}
	for _, key := range slices.Sorted(maps.Keys(result.Tags)) {
		fmt.Fprintf(table, "tag:\t%s=%s\n", key, result.Tags[key])
	}
	for _, child := range result.Children {
		fmt.Fprintf(table, "child:\t%s\n", child)
	}
	for _, problem := range result.Problems {
		fmt.Fprintf(table, "problem:\t%s\n", problem)
	}
	if err := table.Flush(); err != nil {
		return err
	}

	if len(result.Chunks) > 0 {
		fmt.Fprintln(w)
		table = tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(table, "INDEX\tOFFSET\tLENGTH\tENTROPY\tHASH\t")
		for _, entry := range result.Chunks {
			fmt.Fprintf(table, "%d\t%d\t%d\t%.3f\t%s\t\n", entry.Index, entry.Offset, entry.Length, entry.Entropy, entry.Hash[:12])
		}
		if err := table.Flush(); err != nil {
			return err
		}
	}

	if proof := result.Proof; proof != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "proof of chunk %d (%s): valid %t\n", proof.Index, proof.Leaf[:12], proof.Valid)
		for level, step := range proof.Path {
			fmt.Fprintf(w, "  %2d  %s\n", level, step)
		}
	}
	return nil
}

// chunkProof returns the audit path of chunk index and whether it
// leads from the chunk's hash to the container's Merkle root.
func chunkProof(c *container.Container, index int) (*inspectProof, error) {
	hashes := chunk.Hashes(c.Chunks)
	path, err := merkle.Proof(hashes, index)
	if err != nil {
		return nil, err
	}
	proof := &inspectProof{
		Index: index,
		Leaf:  hashes[index].String(),
		Path:  make([]string, len(path)),
		Valid: merkle.VerifyProof(c.MerkleRoot, hashes[index], index, path),
	}
	for i, step := range path {
		proof.Path[i] = step.String()
	}
	return proof, nil
}

// coderName returns the coder a container's payload was actually
// written with, which can differ from the one requested when the
// payload did not compress.
func coderName(c *container.Container) string {
	if c.Metadata.Kind == container.KindFolder || len(c.Payload) == 0 {
		return entropy.None.String()
	}
	return entropy.Tag(c.Payload[0]).String()
}
