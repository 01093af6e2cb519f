// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Log formats accepted by NewCommandLogger.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// NewCommandLogger creates a structured logger for CLI command
// operations on stderr. FormatAuto uses slog.TextHandler when stderr is
// a terminal and slog.JSONHandler when it is piped or redirected (CI,
// scripts, integration tests).
//
// Callers scope the logger with command-specific context via With():
//
//	logger := cli.NewCommandLogger(slog.LevelInfo, cli.FormatAuto).With(
//	    "command", "index/add",
//	    "container", name,
//	)
func NewCommandLogger(level slog.Level, format string) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: level}
	text := format == FormatText || (format != FormatJSON && term.IsTerminal(int(os.Stderr.Fd())))
	if text {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
