// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sigil/cmd/sigil/cli"
	"github.com/bureau-foundation/sigil/lib/archive"
	"github.com/bureau-foundation/sigil/lib/container"
	"github.com/bureau-foundation/sigil/lib/entropy"
	"github.com/bureau-foundation/sigil/lib/residual"
	"github.com/bureau-foundation/sigil/lib/store"
)

type createParams struct {
	Environment
	cli.JSONOutput
	Name        string   `flag:"name" desc:"store name (default <file>.sg1)"`
	Output      string   `flag:"output,o" desc:"write the container to this path instead of the store"`
	ChunkSize   int      `flag:"chunk-size" desc:"chunk size in bytes (overrides archive.chunk_size)"`
	Coder       string   `flag:"coder" desc:"entropy coder: none, lz4, zstd (overrides archive.coder)"`
	Tier        string   `flag:"tier" desc:"resilience tier: none, reflection, seal (overrides archive.tier)"`
	StripeWidth int      `flag:"stripe-width" desc:"chunks per parity stripe (overrides archive.stripe_width)"`
	Recipients  []string `flag:"recipient" desc:"age public key to encrypt the seed to (repeatable)"`
	Lineage     string   `flag:"lineage" desc:"container whose seed the new container inherits, making the two siblings"`
	Tags        []string `flag:"tag" desc:"metadata tag as key=value (repeatable)"`
	Index       bool     `flag:"index" desc:"add the new container to the chunk index"`
}

type createResult struct {
	Name           string `json:"name"`
	MerkleRoot     string `json:"merkle_root"`
	OriginalLength uint64 `json:"original_length"`
	ContainerSize  int    `json:"container_size"`
	ChunkCount     int    `json:"chunk_count"`
	Coder          string `json:"coder"`
	Tier           string `json:"tier"`
}

func createCommand(out io.Writer) *cli.Command {
	var params createParams

	return &cli.Command{
		Name:    "create",
		Summary: "Create a container from a file",
		Usage:   "sigil create <file> [flags]",
		Description: `Run the forward pipeline over a file and store the container.

The file is transformed under a seed derived from its content (or from
the access key, or inherited with --lineage), entropy coded, chunked,
hashed into a Merkle tree and sealed. The container is written to the
store under --name, or to a local path with --output. Use "-" to read
the file from stdin.

Containers created with --lineage share the parent's seed. Wherever the
two files agree, their payload chunks are identical, which is what lets
one regenerate the other.`,
		Examples: []cli.Example{
			{
				Description: "Archive a file with full redundancy",
				Command:     "sigil create report.pdf --tier seal",
			},
			{
				Description: "Archive a new version as a sibling of the old one",
				Command:     "sigil create report-v2.pdf --lineage report.pdf.sg1 --index",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("create", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("create takes exactly one file argument")
			}
			s, err := params.open(ctx, "create", out)
			if err != nil {
				return err
			}
			defer s.Close()
			return runCreate(ctx, s, &params, args[0])
		},
	}
}

func runCreate(ctx context.Context, s *session, params *createParams, path string) error {
	options, err := params.options(ctx, s)
	if err != nil {
		return err
	}
	content, err := readInput(path, &options)
	if err != nil {
		return err
	}

	c, err := archive.Create(ctx, content, options)
	if err != nil {
		return fmt.Errorf("creating container: %w", err)
	}
	encoded, err := container.Encode(c)
	if err != nil {
		return err
	}

	name := params.Name
	if name == "" {
		name = defaultName(path)
	}
	if params.Output != "" {
		if err := s.writeOutput(params.Output, encoded); err != nil {
			return err
		}
	} else {
		if err := store.ValidateName(name); err != nil {
			return err
		}
		if err := s.store.Put(ctx, name, encoded); err != nil {
			return fmt.Errorf("storing %s: %w", name, err)
		}
	}

	if params.Index {
		index, err := s.openIndex()
		if err != nil {
			return err
		}
		defer index.Close()
		if err := index.Add(ctx, name, c); err != nil {
			return err
		}
	}

	s.logger.Info("container created",
		"name", name,
		"original_length", len(content),
		"container_size", len(encoded),
		"chunk_count", len(c.Chunks),
		"lineage", c.Metadata.Lineage,
	)

	result := createResult{
		Name:           name,
		MerkleRoot:     c.MerkleRoot.String(),
		OriginalLength: c.OriginalLength,
		ContainerSize:  len(encoded),
		ChunkCount:     len(c.Chunks),
		Coder:          coderName(c),
		Tier:           c.Metadata.Tier.String(),
	}
	if done, err := params.EmitJSON(s.out, result); done {
		return err
	}
	fmt.Fprintf(s.out, "%s  %s  %s -> %s  (%d chunks, %s, tier %s)\n",
		result.Name, result.MerkleRoot,
		humanize.IBytes(result.OriginalLength), humanize.IBytes(uint64(result.ContainerSize)),
		result.ChunkCount, result.Coder, result.Tier)
	return nil
}

// options merges configuration defaults with flag overrides.
func (p *createParams) options(ctx context.Context, s *session) (archive.Options, error) {
	options := s.archiveOptions()
	if p.ChunkSize != 0 {
		options.ChunkSize = p.ChunkSize
	}
	if p.Coder != "" {
		coder, err := entropy.ParseTag(p.Coder)
		if err != nil {
			return options, err
		}
		options.Coder = coder
	}
	if p.Tier != "" {
		tier, err := residual.ParseTier(p.Tier)
		if err != nil {
			return options, err
		}
		options.Tier = tier
	}
	if p.StripeWidth != 0 {
		options.StripeWidth = p.StripeWidth
	}
	options.Recipients = append(options.Recipients, p.Recipients...)

	if len(p.Tags) > 0 {
		options.Tags = make(map[string]string, len(p.Tags))
		for _, tag := range p.Tags {
			key, value, ok := strings.Cut(tag, "=")
			if !ok || key == "" {
				return options, fmt.Errorf("tag %q is not key=value", tag)
			}
			options.Tags[key] = value
		}
	}

	if p.Lineage != "" {
		parent, err := s.loadContainer(ctx, p.Lineage)
		if err != nil {
			return options, fmt.Errorf("loading lineage parent: %w", err)
		}
		if parent.Metadata.Envelope == nil {
			return options, fmt.Errorf("lineage parent %s carries no seed", p.Lineage)
		}
		inherited, err := s.keyring.Open(*parent.Metadata.Envelope, parent.Binding())
		if err != nil {
			return options, fmt.Errorf("opening lineage parent's seed: %w", err)
		}
		options.Lineage = &inherited
	}
	return options, nil
}
