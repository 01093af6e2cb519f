// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Sigil packages.
//
// [Content] and [Variant] produce deterministic pseudo-random file
// bodies, so tests that assert on container layout (chunk counts,
// coder fallback, sibling overlap) see the same bytes on every run.
// Random bodies do not compress, which keeps the payload length equal
// to the transformed length plus the coder tag.
//
// [FlipBit], [Truncate], and [RemoveRange] damage encoded containers
// in the ways regeneration and verification tests need.
//
// [WriteFile] writes a fixture into a test's temporary directory.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Sigil-internal dependencies.
package testutil
