// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sigil/cmd/sigil/cli"
	"github.com/bureau-foundation/sigil/lib/attest"
)

type signParams struct {
	Environment
}

func signCommand(out io.Writer) *cli.Command {
	var params signParams

	return &cli.Command{
		Name:    "sign",
		Summary: "Attest to stored containers with the local signing key",
		Usage:   "sigil sign <container>...",
		Description: `Sign each container's exact bytes and store the attestation next to
it as <name>.sig. The Ed25519 signing key lives in keys.dir and is
generated on first use; its public half (signing-key.pub) is what
others pass to "sigil attest --trust".

An attestation covers the container as stored. A regenerated container
that is byte-identical to the original still verifies.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("sign", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("sign needs at least one container")
			}
			s, err := params.open(ctx, "sign", out)
			if err != nil {
				return err
			}
			defer s.Close()

			public, private, generated, err := attest.LoadOrGenerateKeypair(s.config.Keys.Dir)
			if err != nil {
				return err
			}
			if generated {
				s.logger.Info("signing key generated", "path", attest.PublicKeyPath(s.config.Keys.Dir))
			}

			for _, name := range args {
				data, err := s.load(ctx, name)
				if err != nil {
					return err
				}
				attestation, err := attest.Sign(private, data, name, time.Now())
				if err != nil {
					return err
				}
				if isLocalFile(name) {
					err = os.WriteFile(name+attest.Extension, attestation, 0o644)
				} else {
					err = s.save(ctx, name+attest.Extension, attestation)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "%s: signed by %s\n", name, hex.EncodeToString(public[:8]))
			}
			return nil
		},
	}
}

type attestParams struct {
	Environment
	cli.JSONOutput
	Trust       []string `flag:"trust" desc:"public key file of a trusted signer (repeatable; default the local signing key)"`
	Attestation string   `flag:"attestation" desc:"attestation to check (default <container>.sig)"`
}

type attestResult struct {
	Name     string `json:"name"`
	Valid    bool   `json:"valid"`
	Signer   string `json:"signer,omitempty"`
	SignedAt string `json:"signed_at,omitempty"`
	Error    string `json:"error,omitempty"`
}

func attestCommand(out io.Writer) *cli.Command {
	var params attestParams

	return &cli.Command{
		Name:    "attest",
		Summary: "Check a container against its signed attestation",
		Usage:   "sigil attest <container> [--trust key.pub]... [flags]",
		Description: `Verify that a container is byte-for-byte what a trusted key signed.

The attestation is read from <container>.sig unless --attestation names
another. Exits 2 if the signature is bad, the signer is not trusted, or
the container differs from what was signed.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("attest", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("attest takes exactly one container")
			}
			s, err := params.open(ctx, "attest", out)
			if err != nil {
				return err
			}
			defer s.Close()

			trustFiles := params.Trust
			if len(trustFiles) == 0 {
				trustFiles = []string{attest.PublicKeyPath(s.config.Keys.Dir)}
			}
			trusted := make([]ed25519.PublicKey, 0, len(trustFiles))
			for _, path := range trustFiles {
				key, err := attest.LoadPublicKey(path)
				if err != nil {
					return err
				}
				trusted = append(trusted, key)
			}

			name := args[0]
			data, err := s.load(ctx, name)
			if err != nil {
				return err
			}
			attestationName := params.Attestation
			if attestationName == "" {
				attestationName = name + attest.Extension
			}
			attestation, err := s.load(ctx, attestationName)
			if err != nil {
				return err
			}

			result := attestResult{Name: name}
			statement, err := attest.Verify(data, attestation, trusted...)
			if err != nil {
				s.logger.Warn("attestation rejected", "name", name, "attestation", attestationName, "error", err)
				result.Error = err.Error()
			} else {
				result.Valid = true
				result.Signer = hex.EncodeToString(statement.Signer)
				result.SignedAt = time.Unix(statement.SignedAt, 0).UTC().Format(time.RFC3339)
			}

			if done, err := params.EmitJSON(s.out, result); done {
				if err != nil {
					return err
				}
			} else if result.Valid {
				fmt.Fprintf(s.out, "%s: attested by %s at %s\n", name, result.Signer[:16], result.SignedAt)
			} else {
				fmt.Fprintf(os.Stderr, "%s: %s\n", name, result.Error)
			}
			if !result.Valid {
				return &cli.ExitError{Code: cli.ExitInvalid}
			}
			return nil
		},
	}
}
