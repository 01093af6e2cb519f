// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command framework for the sigil binary: a
// tree of [Command] values dispatched by name, pflag-based flag parsing
// bound from tagged parameter structs ([FlagsFromParams]), typo
// suggestions for unknown commands and flags, a stderr logger that
// switches between text and JSON by terminal, and [ExitError] for
// commands whose non-zero exit is an outcome rather than a failure.
package cli
