// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds access keys and age identities in memory that
// the Go runtime never sees.
//
// [Buffer] allocates an anonymous mmap region, locks it into RAM, and
// marks it excluded from core dumps. On Close the memory is zeroed,
// unlocked, and unmapped. Because the region is outside the Go heap,
// the garbage collector cannot leave stray copies of a key behind.
//
// Depends on golang.org/x/sys/unix. Imported by lib/sealed for seed
// envelope keys and by cmd/sigil for --key-file.
package secret
