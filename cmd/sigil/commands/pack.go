// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sigil/cmd/sigil/cli"
	"github.com/bureau-foundation/sigil/lib/archive"
	"github.com/bureau-foundation/sigil/lib/container"
)

type packParams struct {
	Environment
	cli.JSONOutput
	Tier  string `flag:"tier" desc:"resilience tier for the folder container (overrides archive.tier)"`
	Index bool   `flag:"index" desc:"add the folder container to the chunk index"`
}

type packResult struct {
	Name       string   `json:"name"`
	MerkleRoot string   `json:"merkle_root"`
	Children   []string `json:"children"`
}

func packCommand(out io.Writer) *cli.Command {
	var params packParams

	return &cli.Command{
		Name:    "pack",
		Summary: "Group stored containers into a folder container",
		Usage:   "sigil pack <folder-name> <container>... [flags]",
		Description: `Create a folder container referencing existing containers.

Each child is recorded by its Merkle root and original length under its
name without the .sg1 extension. Children must live in the same store
directory the folder is written to, which is where "sigil extract"
looks them up.`,
		Examples: []cli.Example{
			{
				Description: "Pack two archived files into a folder",
				Command:     "sigil pack reports.sg1 q3.pdf.sg1 q4.pdf.sg1",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("pack", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("pack needs a folder name and at least one container")
			}
			s, err := params.open(ctx, "pack", out)
			if err != nil {
				return err
			}
			defer s.Close()

			folderName := args[0]
			folderDir := path.Dir(folderName)
			children := make([]archive.Child, 0, len(args)-1)
			for _, childName := range args[1:] {
				if path.Dir(childName) != folderDir {
					return fmt.Errorf("%s is not in the folder's directory %q", childName, folderDir)
				}
				child, err := s.loadContainer(ctx, childName)
				if err != nil {
					return err
				}
				children = append(children, archive.Child{
					Name:      strings.TrimSuffix(path.Base(childName), container.Extension),
					Container: child,
				})
			}

			options := s.archiveOptions()
			if params.Tier != "" {
				if err := options.Tier.UnmarshalText([]byte(params.Tier)); err != nil {
					return err
				}
			}
			folder, err := archive.Pack(ctx, children, options)
			if err != nil {
				return err
			}
			encoded, err := container.Encode(folder)
			if err != nil {
				return err
			}
			if err := s.save(ctx, folderName, encoded); err != nil {
				return err
			}
			if params.Index {
				index, err := s.openIndex()
				if err != nil {
					return err
				}
				defer index.Close()
				if err := index.Add(ctx, folderName, folder); err != nil {
					return err
				}
			}
			s.logger.Info("folder packed", "name", folderName, "children", len(children))

			result := packResult{
				Name:       folderName,
				MerkleRoot: folder.MerkleRoot.String(),
				Children:   folder.Metadata.Children,
			}
			if done, err := params.EmitJSON(s.out, result); done {
				return err
			}
			fmt.Fprintf(s.out, "%s  %s  (%d children)\n", result.Name, result.MerkleRoot, len(result.Children))
			return nil
		},
	}
}
