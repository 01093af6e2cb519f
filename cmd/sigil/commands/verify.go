// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sigil/cmd/sigil/cli"
	"github.com/bureau-foundation/sigil/lib/archive"
	"github.com/bureau-foundation/sigil/lib/chaos"
	"github.com/bureau-foundation/sigil/lib/container"
	"github.com/bureau-foundation/sigil/lib/entropy"
)

type verifyParams struct {
	Environment
	cli.JSONOutput
}

type verifyResult struct {
	Name         string   `json:"name"`
	Valid        bool     `json:"valid"`
	Status       string   `json:"status"`
	FailedChunks []uint32 `json:"failed_chunks,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func verifyCommand(out io.Writer) *cli.Command {
	var params verifyParams

	return &cli.Command{
		Name:    "verify",
		Summary: "Check containers for damage",
		Usage:   "sigil verify <container>... [flags]",
		Description: `Verify one or more containers.

Each container's chunks are checked against their hashes, the chunk
map against the Merkle root, and the restored file against its length
and checksum. The first failing check is reported:

  report.pdf.sg1: valid
  photo.raw.sg1: invalid: chunk-hash[7]

Arguments naming a local file are read from disk; anything else is a
store name. Exits 2 if any container is invalid.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("verify", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("verify needs at least one container")
			}
			s, err := params.open(ctx, "verify", out)
			if err != nil {
				return err
			}
			defer s.Close()

			results := make([]verifyResult, 0, len(args))
			invalid := false
			for _, name := range args {
				result, err := verifyOne(ctx, s, name)
				if err != nil {
					return err
				}
				invalid = invalid || !result.Valid
				results = append(results, result)
			}

			if done, err := params.EmitJSON(s.out, results); done {
				if err != nil {
					return err
				}
			} else {
				for _, result := range results {
					if result.Error != "" {
						fmt.Fprintf(s.out, "%s: %s (%s)\n", result.Name, result.Status, result.Error)
					} else {
						fmt.Fprintf(s.out, "%s: %s\n", result.Name, result.Status)
					}
				}
			}
			if invalid {
				return &cli.ExitError{Code: cli.ExitInvalid}
			}
			return nil
		},
	}
}

// verifyOne verifies a single container. A container too damaged to
// parse is reported invalid rather than returned as an error.
func verifyOne(ctx context.Context, s *session, name string) (verifyResult, error) {
	data, err := s.load(ctx, name)
	if err != nil {
		return verifyResult{}, err
	}
	report, err := archive.Verify(ctx, data, s.keyring)
	if errors.Is(err, container.ErrMalformedHeader) {
		s.logger.Warn("container header unreadable", "name", name, "error", err)
		return verifyResult{Name: name, Status: "invalid: header", Error: err.Error()}, nil
	}
	if err != nil {
		return verifyResult{}, fmt.Errorf("%s: %w", name, err)
	}
	if !report.Valid {
		s.logger.Warn("container invalid", "name", name, "check", report.Check, "reason", report.Reason)
	}
	return verifyResult{
		Name:         name,
		Valid:        report.Valid,
		Status:       report.String(),
		FailedChunks: report.FailedChunks,
	}, nil
}

type extractParams struct {
	Environment
	Output string `flag:"output,o" desc:"output path (default stdout; required for folders, where it names a directory)"`
}

func extractCommand(out io.Writer) *cli.Command {
	var params extractParams

	return &cli.Command{
		Name:    "extract",
		Summary: "Restore the original file from a container",
		Usage:   "sigil extract <container> [-o path] [flags]",
		Description: `Verify a container and write the original file.

Nothing is written unless the container verifies: a damaged container
exits 2 with the failing check, and "sigil regenerate" is the way to
repair it. Folder containers are expanded into the directory named by
--output, resolving each child container from the store next to the
folder.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("extract", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("extract takes exactly one container")
			}
			s, err := params.open(ctx, "extract", out)
			if err != nil {
				return err
			}
			defer s.Close()

			name := args[0]
			data, err := s.load(ctx, name)
			if err != nil {
				return err
			}
			c, err := container.Decode(data)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: invalid: header: %v\n", name, err)
				return &cli.ExitError{Code: cli.ExitInvalid}
			}

			if c.Metadata.Kind == container.KindFolder {
				return extractFolder(ctx, s, name, c, params.Output)
			}

			original, err := container.Extract(ctx, c, s.keyring)
			if err != nil {
				if isIntegrityError(err) {
					fmt.Fprintf(os.Stderr, "%s: invalid: %v\n", name, err)
					return &cli.ExitError{Code: cli.ExitInvalid}
				}
				return fmt.Errorf("%s: %w", name, err)
			}
			if err := s.writeOutput(params.Output, original); err != nil {
				return err
			}
			s.logger.Info("container extracted", "name", name, "original_length", len(original))
			return nil
		},
	}
}

func extractFolder(ctx context.Context, s *session, name string, folder *container.Container, dir string) error {
	if dir == "" || dir == "-" {
		return fmt.Errorf("%s is a folder; use --output to name a directory", name)
	}
	report, err := container.Verify(ctx, folder, s.keyring)
	if err != nil {
		return err
	}
	if !report.Valid {
		fmt.Fprintf(os.Stderr, "%s: %s\n", name, report)
		return &cli.ExitError{Code: cli.ExitInvalid}
	}

	var total uint64
	count := 0
	err = archive.Walk(ctx, folder, s.lookup(name), func(member string, file *container.Container) error {
		relative := filepath.FromSlash(member)
		if !filepath.IsLocal(relative) {
			return fmt.Errorf("%w: %q escapes the output directory", archive.ErrInvalidName, member)
		}
		original, err := container.Extract(ctx, file, s.keyring)
		if err != nil {
			return fmt.Errorf("%s: %w", member, err)
		}
		if err := s.writeOutput(filepath.Join(dir, relative), original); err != nil {
			return err
		}
		total += uint64(len(original))
		count++
		return nil
	})
	if err != nil {
		if isIntegrityError(err) || errors.Is(err, archive.ErrChildMismatch) || errors.Is(err, archive.ErrInvalidName) {
			fmt.Fprintf(os.Stderr, "%s: invalid: %v\n", name, err)
			return &cli.ExitError{Code: cli.ExitInvalid}
		}
		return err
	}
	s.logger.Info("folder extracted", "name", name, "files", count, "bytes", humanize.IBytes(total))
	return nil
}

// isIntegrityError reports whether err is one of the typed integrity
// failures container.Extract returns.
func isIntegrityError(err error) bool {
	var chunkMismatch *container.ChunkHashMismatchError
	var checksumMismatch *container.ChecksumMismatchError
	var lengthMismatch *container.LengthMismatchError
	return errors.As(err, &chunkMismatch) ||
		errors.As(err, &checksumMismatch) ||
		errors.As(err, &lengthMismatch) ||
		errors.Is(err, container.ErrMerkleMismatch) ||
		errors.Is(err, container.ErrMalformedHeader) ||
		errors.Is(err, entropy.ErrCorruptStream) ||
		errors.Is(err, chaos.ErrMalformed)
}
