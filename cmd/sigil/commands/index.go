// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sigil/cmd/sigil/cli"
	"github.com/bureau-foundation/sigil/lib/container"
	"github.com/bureau-foundation/sigil/lib/digest"
)

func indexCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "index",
		Summary: "Maintain the chunk index used to find siblings",
		Description: `The chunk index records which stored containers hold which chunk
hashes. "sigil regenerate --auto" uses it to pick siblings for a
damaged container.`,
		Subcommands: []*cli.Command{
			indexAddCommand(out),
			indexRemoveCommand(out),
			indexSiblingsCommand(out),
			indexLocateCommand(out),
		},
	}
}

type indexAddParams struct {
	Environment
	All bool `flag:"all" desc:"index every container in the store"`
}

func indexAddCommand(out io.Writer) *cli.Command {
	var params indexAddParams

	return &cli.Command{
		Name:    "add",
		Summary: "Index stored containers",
		Usage:   "sigil index add <container>... | --all",
		Description: `Add containers to the chunk index, replacing any earlier entry under
the same name. With --all, every name in the store ending in .sg1 is
indexed. Damaged containers are skipped with a warning.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("add", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 && !params.All {
				return fmt.Errorf("name containers to index, or use --all")
			}
			s, err := params.open(ctx, "index add", out)
			if err != nil {
				return err
			}
			defer s.Close()

			names := args
			if params.All {
				names, err = storedContainers(ctx, s, "")
				if err != nil {
					return err
				}
			}

			index, err := s.openIndex()
			if err != nil {
				return err
			}
			defer index.Close()

			added := 0
			for _, name := range names {
				c, err := s.loadContainer(ctx, name)
				if err != nil {
					s.logger.Warn("container skipped", "name", name, "error", err)
					continue
				}
				if err := index.Add(ctx, name, c); err != nil {
					return err
				}
				added++
			}
			fmt.Fprintf(s.out, "indexed %d of %d containers\n", added, len(names))
			return nil
		},
	}
}

type indexRemoveParams struct {
	Environment
}

func indexRemoveCommand(out io.Writer) *cli.Command {
	var params indexRemoveParams

	return &cli.Command{
		Name:    "remove",
		Summary: "Drop containers from the index",
		Usage:   "sigil index remove <name>...",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("remove", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("name containers to remove")
			}
			s, err := params.open(ctx, "index remove", out)
			if err != nil {
				return err
			}
			defer s.Close()

			index, err := s.openIndex()
			if err != nil {
				return err
			}
			defer index.Close()
			for _, name := range args {
				if err := index.Remove(ctx, name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

type indexSiblingsParams struct {
	Environment
	cli.JSONOutput
	Limit int `flag:"limit" default:"10" desc:"maximum number of siblings to list (0 for all)"`
}

type siblingResult struct {
	Name       string `json:"name"`
	MerkleRoot string `json:"merkle_root"`
	Lineage    string `json:"lineage,omitempty"`
	Shared     uint64 `json:"shared"`
	Total      int    `json:"total"`
}

func indexSiblingsCommand(out io.Writer) *cli.Command {
	var params indexSiblingsParams

	return &cli.Command{
		Name:    "siblings",
		Summary: "List indexed containers sharing chunks with a container",
		Usage:   "sigil index siblings <container> [--limit N]",
		Description: `Rank indexed containers by how many of the given container's chunk
hashes they also hold. Only the chunk map is read, so a container with
a damaged payload can still be looked up.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("siblings", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("siblings takes exactly one container")
			}
			s, err := params.open(ctx, "index siblings", out)
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
			if scanned.ChunkMapErr != nil && len(scanned.Container.Chunks) == 0 {
				return fmt.Errorf("%s: chunk map unreadable: %w", args[0], scanned.ChunkMapErr)
			}
			target := scanned.Container

			index, err := s.openIndex()
			if err != nil {
				return err
			}
			defer index.Close()
			matches, err := index.Siblings(ctx, target, params.Limit)
			if err != nil {
				return err
			}

			results := make([]siblingResult, len(matches))
			for i, match := range matches {
				results[i] = siblingResult{
					Name:       match.Name,
					MerkleRoot: match.MerkleRoot.String(),
					Lineage:    match.Lineage,
					Shared:     match.Shared(),
					Total:      len(target.Chunks),
				}
			}
			if done, err := params.EmitJSON(s.out, results); done {
				return err
			}
			for i, result := range results {
				lineage := ""
				if result.Lineage != "" && result.Lineage == target.Metadata.Lineage {
					lineage = "  same lineage"
				}
				fmt.Fprintf(s.out, "%s  %s  %d/%d chunks%s\n",
					result.Name, digest.Short(matches[i].MerkleRoot), result.Shared, result.Total, lineage)
			}
			return nil
		},
	}
}

type indexLocateParams struct {
	Environment
	cli.JSONOutput
}

type locateResult struct {
	Hash    string  `json:"hash"`
	Name    string  `json:"name"`
	Index   uint32  `json:"index"`
	Entropy float64 `json:"entropy"`
}

func indexLocateCommand(out io.Writer) *cli.Command {
	var params indexLocateParams

	return &cli.Command{
		Name:    "locate",
		Summary: "Find the indexed containers holding a chunk hash",
		Usage:   "sigil index locate <hash>...",
		Description: `List every indexed chunk with the given BLAKE3 chunk hash, as
printed by "sigil inspect --chunks --json", by container name and
chunk index.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("locate", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("name chunk hashes to locate")
			}
			hashes := make([]digest.Hash, len(args))
			for i, arg := range args {
				hash, err := digest.Parse(arg)
				if err != nil {
					return err
				}
				hashes[i] = hash
			}
			s, err := params.open(ctx, "index locate", out)
			if err != nil {
				return err
			}
			defer s.Close()

			index, err := s.openIndex()
			if err != nil {
				return err
			}
			defer index.Close()

			results := []locateResult{}
			for _, hash := range hashes {
				locations, err := index.Locate(ctx, hash)
				if err != nil {
					return err
				}
				for _, location := range locations {
					results = append(results, locateResult{
						Hash:    hash.String(),
						Name:    location.Name,
						Index:   location.Index,
						Entropy: location.Entropy,
					})
				}
			}
			if done, err := params.EmitJSON(s.out, results); done {
				return err
			}
			for _, result := range results {
				fmt.Fprintf(s.out, "%s  %s  chunk %d\n", result.Hash[:12], result.Name, result.Index)
			}
			return nil
		},
	}
}

// storedContainers lists the container names under prefix in the
// store.
func storedContainers(ctx context.Context, s *session, prefix string) ([]string, error) {
	names, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	containers := names[:0]
	for _, name := range names {
		if strings.HasSuffix(name, container.Extension) {
			containers = append(containers, name)
		}
	}
	return containers, nil
}
