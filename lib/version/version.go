// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"

	"github.com/bureau-foundation/sigil/lib/container"
)

// Set via -ldflags, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/sigil/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"

	// Version is the semantic version.
	Version = "0.1.0-dev"
)

// Info returns the one-line form printed by "sigil version":
// "0.1.0-dev (abc1234-dirty, 2026-10-16T09:00:00Z)".
func Info() string {
	commit := GitCommit
	if GitDirty == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, BuildTime)
}

// Format returns the container layout this binary writes, as
// "SIG1 v1".
func Format() string {
	return fmt.Sprintf("%s v%d", container.Magic, container.Version)
}

// Full returns Info followed by the container format, Go version, and
// platform.
func Full() string {
	return fmt.Sprintf("%s\n  Container format: %s\n  Go: %s\n  Platform: %s/%s",
		Info(), Format(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
