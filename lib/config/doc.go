// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads configuration for the sigil command.
//
// Configuration comes from a single file named by the SIGIL_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no ~/.config discovery and no file search;
// without a file the defaults apply. The file format follows the
// extension: YAML by default, TOML for .toml, and JSON with comments
// and trailing commas for .json and .jsonc.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${SIGIL_ROOT}, and ${VAR:-default} patterns are expanded.
// No environment variable overrides a config value directly. Store
// credentials never appear in the file: it names the variables that
// hold them.
//
// Key exports:
//
//   - [Config] -- master struct with Archive, Store, Index, Keys, Log
//   - [Default] -- the base configuration
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
