// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sigil/cmd/sigil/cli"
	"github.com/bureau-foundation/sigil/lib/chunk"
	"github.com/bureau-foundation/sigil/lib/chunkindex"
	"github.com/bureau-foundation/sigil/lib/container"
	"github.com/bureau-foundation/sigil/lib/regen"
)

type regenerateParams struct {
	Environment
	cli.JSONOutput
	Siblings []string `flag:"sibling" desc:"sibling container to draw chunks from (repeatable)"`
	Auto     int      `flag:"auto" desc:"pick up to this many siblings from the chunk index"`
	Output   string   `flag:"output,o" desc:"write the recovered file to this path"`
	Replace  bool     `flag:"replace" desc:"overwrite the damaged container with the repaired one"`
}

type regenerateResult struct {
	Name          string              `json:"name"`
	State         string              `json:"state"`
	Confidence    float64             `json:"confidence"`
	Siblings      []string            `json:"siblings"`
	Substitutions []regenSubstitution `json:"substitutions"`
	Unresolved    []uint32            `json:"unresolved"`
	Reason        string              `json:"reason,omitempty"`
}

type regenSubstitution struct {
	Chunk   uint32 `json:"chunk"`
	Source  string `json:"source"`
	Sibling string `json:"sibling,omitempty"`
}

func regenerateCommand(out io.Writer) *cli.Command {
	var params regenerateParams

	return &cli.Command{
		Name:    "regenerate",
		Summary: "Rebuild a damaged container from parity and siblings",
		Usage:   "sigil regenerate <container> [--sibling name]... [--auto N] [flags]",
		Description: `Recover a damaged container.

Missing or corrupt chunks are rebuilt from the container's own parity
residual first, then copied from sibling containers that hold chunks
with the same hash. Siblings come from --sibling, or from the chunk
index with --auto, which picks the indexed containers that together
cover the most damaged chunks. Every substituted chunk is re-hashed
before it is used.

Exit status is 0 when the file was recovered bit-identical, 3 for a
partial recovery, and 4 when nothing could be recovered.`,
		Examples: []cli.Example{
			{
				Description: "Repair from a known sibling and write the file",
				Command:     "sigil regenerate report-v1.pdf.sg1 --sibling report-v2.pdf.sg1 -o report-v1.pdf",
			},
			{
				Description: "Let the index pick siblings and repair in place",
				Command:     "sigil regenerate photo.raw.sg1 --auto 4 --replace",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("regenerate", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("regenerate takes exactly one container")
			}
			if params.Auto < 0 {
				return fmt.Errorf("--auto must not be negative")
			}
			s, err := params.open(ctx, "regenerate", out)
			if err != nil {
				return err
			}
			defer s.Close()
			return runRegenerate(ctx, s, &params, args[0])
		},
	}
}

func runRegenerate(ctx context.Context, s *session, params *regenerateParams, name string) error {
	target, err := s.load(ctx, name)
	if err != nil {
		return err
	}

	siblingNames := slices.Clone(params.Siblings)
	if params.Auto > 0 {
		picked, err := pickSiblings(ctx, s, target, params.Auto)
		if err != nil {
			return err
		}
		for _, pick := range picked {
			if pick != name && !slices.Contains(siblingNames, pick) {
				siblingNames = append(siblingNames, pick)
			}
		}
	}

	siblings := make([]regen.Sibling, 0, len(siblingNames))
	for _, siblingName := range siblingNames {
		sibling, err := loadSibling(ctx, s, siblingName)
		if err != nil {
			return err
		}
		siblings = append(siblings, regen.Sibling{Name: siblingName, Container: sibling})
	}
	s.logger.Info("regenerating", "name", name, "siblings", len(siblings))

	engine := regen.New(regen.Config{
		Opener:  s.keyring,
		Workers: s.config.Archive.Workers,
		Logger:  s.logger,
		OnProgress: func(event regen.Progress) {
			if event.Source != regen.SourceNone {
				s.logger.Debug("chunk substituted",
					"chunk", event.Chunk,
					"source", event.Source.String(),
					"sibling", event.Sibling,
					"confidence", event.Confidence,
				)
				return
			}
			s.logger.Debug("regeneration state",
				"state", event.State.String(),
				"resolved", event.Resolved,
				"total", event.Total,
			)
		},
	})
	result, err := engine.Run(ctx, target, siblings)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	if result.State == regen.Recovered {
		if params.Output != "" {
			if err := s.writeOutput(params.Output, result.File); err != nil {
				return err
			}
		}
		if params.Replace {
			if err := replaceContainer(ctx, s, name, result.Container); err != nil {
				return err
			}
		}
	}

	summary := regenerateResult{
		Name:          name,
		State:         result.State.String(),
		Confidence:    result.Confidence,
		Siblings:      siblingNames,
		Substitutions: make([]regenSubstitution, len(result.Substitutions)),
		Unresolved:    result.Unresolved,
	}
	for i, substitution := range result.Substitutions {
		summary.Substitutions[i] = regenSubstitution{
			Chunk:   substitution.Index,
			Source:  substitution.Source.String(),
			Sibling: substitution.Sibling,
		}
	}
	if result.Reason != nil {
		summary.Reason = result.Reason.Error()
	}

	if done, err := params.EmitJSON(s.out, summary); done {
		if err != nil {
			return err
		}
	} else if params.Output != "-" {
		fmt.Fprintf(s.out, "%s: %s (confidence %.2f, %d substituted", name, summary.State, summary.Confidence, len(summary.Substitutions))
		if len(summary.Unresolved) > 0 {
			fmt.Fprintf(s.out, ", %d unresolved", len(summary.Unresolved))
		}
		fmt.Fprintln(s.out, ")")
		if summary.Reason != "" {
			fmt.Fprintf(s.out, "  %s\n", summary.Reason)
		}
	}

	switch result.State {
	case regen.Recovered:
		return nil
	case regen.PartialRecovery:
		return &cli.ExitError{Code: cli.ExitPartial}
	default:
		return &cli.ExitError{Code: cli.ExitFailed}
	}
}

// pickSiblings asks the chunk index for containers sharing chunks with
// target and returns the names of up to limit of them, chosen to cover
// as many damaged chunks as possible.
func pickSiblings(ctx context.Context, s *session, target []byte, limit int) ([]string, error) {
	scanned, err := container.Scan(target)
	if err != nil {
		s.logger.Warn("header unreadable, skipping index lookup", "error", err)
		return nil, nil
	}
	if scanned.ChunkMapErr != nil && len(scanned.Container.Chunks) == 0 {
		s.logger.Warn("chunk map unreadable, skipping index lookup", "error", scanned.ChunkMapErr)
		return nil, nil
	}
	header := scanned.Container

	damaged, err := chunk.Mismatches(ctx, header.Payload, header.Chunks, s.config.Archive.Workers)
	if err != nil {
		return nil, err
	}
	if len(damaged) == 0 {
		return nil, nil
	}

	index, err := s.openIndex()
	if err != nil {
		return nil, err
	}
	defer index.Close()

	matches, err := index.Siblings(ctx, header, 0)
	if err != nil {
		return nil, err
	}
	chosen, uncovered := chunkindex.Cover(matches, damaged)
	if len(chosen) > limit {
		chosen = chosen[:limit]
	}
	names := make([]string, len(chosen))
	for i, match := range chosen {
		names[i] = match.Name
	}
	s.logger.Info("siblings picked from index",
		"candidates", len(matches),
		"picked", len(names),
		"damaged", len(damaged),
		"uncovered_by_index", len(uncovered),
	)
	return names, nil
}

// loadSibling parses a sibling tolerantly. A sibling may itself be
// damaged; the engine re-hashes every chunk it takes from one, so only
// an unreadable chunk map makes it useless.
func loadSibling(ctx context.Context, s *session, name string) (*container.Container, error) {
	data, err := s.load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("loading sibling: %w", err)
	}
	scanned, err := container.Scan(data)
	if err != nil {
		return nil, fmt.Errorf("sibling %s: %w", name, err)
	}
	if scanned.Damaged() {
		s.logger.Warn("sibling is damaged", "sibling", name)
	}
	return scanned.Container, nil
}

// replaceContainer writes the repaired container over the damaged one.
func replaceContainer(ctx context.Context, s *session, name string, repaired *container.Container) error {
	encoded, err := container.Encode(repaired)
	if err != nil {
		return err
	}
	if err := s.save(ctx, name, encoded); err != nil {
		return err
	}
	s.logger.Info("container replaced", "name", name, "container_size", len(encoded))
	return nil
}
