// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the sigil command tree.
package commands

import (
	"io"

	"github.com/bureau-foundation/sigil/cmd/sigil/cli"
)

// Root returns the sigil command tree. Command output goes to out;
// help and diagnostics go to stderr.
func Root(out io.Writer) *cli.Command {
	return &cli.Command{
		Name: "sigil",
		Description: `Sigil: a regenerative archive.

Files are stored as self-verifying containers: a chaotic transform of
the file, entropy coded and split into content-hashed chunks under a
Merkle root, with optional Reed-Solomon parity. A damaged container is
repaired from its own parity or from sibling containers that share
chunks with it, and the result is either bit-identical to the original
or reported as a partial recovery with the ranges that survived.

Configuration is read from --config or $SIGIL_CONFIG (YAML, TOML or
JSONC). Exit codes: 0 success, 1 error, 2 invalid container,
3 partial recovery, 4 recovery failed.`,
		Subcommands: []*cli.Command{
			createCommand(out),
			verifyCommand(out),
			extractCommand(out),
			regenerateCommand(out),
			inspectCommand(out),
			packCommand(out),
			listCommand(out),
			indexCommand(out),
			signCommand(out),
			attestCommand(out),
			keygenCommand(out),
			versionCommand(out),
		},
		Examples: []cli.Example{
			{
				Description: "Archive a file into the configured store",
				Command:     "sigil create report.pdf --tier reflection",
			},
			{
				Description: "Check every container named on the command line",
				Command:     "sigil verify report.pdf.sg1 photo.raw.sg1",
			},
			{
				Description: "Repair a container using siblings from the chunk index",
				Command:     "sigil regenerate photo.raw.sg1 --auto 4 -o photo.raw",
			},
		},
	}
}
