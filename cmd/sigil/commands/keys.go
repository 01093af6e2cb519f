// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sigil/cmd/sigil/cli"
	"github.com/bureau-foundation/sigil/lib/sealed"
	"github.com/bureau-foundation/sigil/lib/version"
)

type keygenParams struct {
	Output string `flag:"output,o" desc:"identity file to write (required; never overwritten)"`
}

func keygenCommand(out io.Writer) *cli.Command {
	var params keygenParams

	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an age keypair for sealed seed envelopes",
		Usage:   "sigil keygen -o identity.key",
		Description: `Write a new age X25519 identity to --output (mode 0600) and print its
public key. Pass the public key to "sigil create --recipient" and the
identity file to --identity when extracting or regenerating.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("keygen", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("keygen takes no arguments")
			}
			if params.Output == "" {
				return fmt.Errorf("--output is required")
			}
			if _, err := os.Stat(params.Output); err == nil {
				return fmt.Errorf("%s already exists", params.Output)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}
			defer keypair.Close()

			if err := os.MkdirAll(filepath.Dir(params.Output), 0o700); err != nil {
				return err
			}
			file, err := os.OpenFile(params.Output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err != nil {
				return err
			}
			if _, err := file.Write(keypair.PrivateKey.Bytes()); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintln(out, keypair.PublicKey)
			return nil
		},
	}
}

type listParams struct {
	Environment
	cli.JSONOutput
}

func listCommand(out io.Writer) *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List containers in the store",
		Usage:   "sigil list [prefix]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("list takes at most one prefix")
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			s, err := params.open(ctx, "list", out)
			if err != nil {
				return err
			}
			defer s.Close()

			names, err := storedContainers(ctx, s, prefix)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(s.out, names); done {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(s.out, name)
			}
			return nil
		},
	}
}

type versionParams struct {
	Verbose bool `flag:"verbose,v" desc:"include container format, Go version and platform"`
}

func versionCommand(out io.Writer) *cli.Command {
	var params versionParams

	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("version", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if params.Verbose {
				fmt.Fprintln(out, "sigil "+version.Full())
			} else {
				fmt.Fprintln(out, "sigil "+version.Info())
			}
			return nil
		},
	}
}
