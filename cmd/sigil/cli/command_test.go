// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "sigil",
		Subcommands: []*Command{
			{
				Name: "verify",
				Run: func(_ context.Context, args []string) error {
					called = "verify"
					return nil
				},
			},
			{
				Name: "extract",
				Run: func(_ context.Context, args []string) error {
					called = "extract"
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"extract"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "extract" {
		t.Errorf("dispatched to %q, want %q", called, "extract")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var receivedArgs []string

	root := &Command{Name: "sigil"}
	add := &Command{
		Name: "add",
		Run: func(_ context.Context, args []string) error {
			receivedArgs = args
			return nil
		},
	}
	root.Subcommands = []*Command{{Name: "index", Subcommands: []*Command{add}}}

	if err := root.Execute(context.Background(), []string{"index", "add", "report.sg1"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "report.sg1" {
		t.Errorf("args = %v, want [report.sg1]", receivedArgs)
	}
	if name := add.fullName(); name != "sigil index add" {
		t.Errorf("fullName = %q, want %q", name, "sigil index add")
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var params struct {
		Output string `flag:"output,o" desc:"output path"`
		Limit  int    `flag:"limit" desc:"result limit" default:"5"`
	}
	var target string

	command := &Command{
		Name: "extract",
		Flags: func() *pflag.FlagSet {
			return FlagsFromParams("extract", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"-o", "/tmp/out", "report.sg1"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if params.Output != "/tmp/out" {
		t.Errorf("Output = %q, want %q", params.Output, "/tmp/out")
	}
	if params.Limit != 5 {
		t.Errorf("Limit = %d, want default 5", params.Limit)
	}
	if target != "report.sg1" {
		t.Errorf("target = %q, want %q", target, "report.sg1")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "regenerate",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("regenerate", pflag.ContinueOnError)
			flagSet.StringArray("sibling", nil, "sibling container")
			flagSet.Int("workers", 0, "worker count")
			return flagSet
		},
		Run: func(context.Context, []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--siblng", "a.sg1"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --sibling?") {
		t.Errorf("error = %q, want suggestion for --sibling", err.Error())
	}
}

func TestCommand_Execute_UnknownCommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "sigil",
		Subcommands: []*Command{
			{Name: "verify", Run: func(context.Context, []string) error { return nil }},
			{Name: "extract", Run: func(context.Context, []string) error { return nil }},
		},
	}

	err := root.Execute(context.Background(), []string{"verfy"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "verify"?`) {
		t.Errorf("error = %q, want suggestion for verify", err.Error())
	}

	err = root.Execute(context.Background(), []string{"zzzzzzzzzz"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want unknown command without suggestion", err)
	}
}

func TestCommand_Execute_HelpAndMissingSubcommand(t *testing.T) {
	var help bytes.Buffer
	root := &Command{
		Name:        "sigil",
		Description: "Regenerative archive containers.",
		Output:      &help,
		Subcommands: []*Command{
			{Name: "verify", Summary: "Verify containers", Run: func(context.Context, []string) error { return nil }},
		},
		Examples: []Example{{Description: "Verify one container", Command: "sigil verify report.sg1"}},
	}

	if err := root.Execute(context.Background(), []string{"--help"}); err != nil {
		t.Fatalf("Execute(--help) error: %v", err)
	}
	for _, want := range []string{"Regenerative archive containers.", "verify", "Verify containers", "sigil verify report.sg1"} {
		if !strings.Contains(help.String(), want) {
			t.Errorf("help output missing %q:\n%s", want, help.String())
		}
	}

	help.Reset()
	if err := root.Execute(context.Background(), nil); err == nil {
		t.Fatal("expected error when no subcommand is given")
	}
	if help.Len() == 0 {
		t.Error("help not printed when no subcommand is given")
	}
}

func TestCommand_Execute_PropagatesRunError(t *testing.T) {
	exit := &ExitError{Code: ExitInvalid}
	command := &Command{
		Name: "verify",
		Run:  func(context.Context, []string) error { return exit },
	}

	err := command.Execute(context.Background(), nil)
	var coder interface{ ExitCode() int }
	if !errors.As(err, &coder) || coder.ExitCode() != ExitInvalid {
		t.Fatalf("Execute error = %v, want exit code %d", err, ExitInvalid)
	}
}
