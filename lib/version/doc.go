// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the sigil binary.
//
// Three package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//
// [Version] is set by hand for releases. Uninjected builds, including
// test runs, report "unknown" and "0.1.0-dev".
//
// [Full] also names the container layout the binary writes, since a
// binary can only read containers whose layout version it knows.
package version
