// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package container implements the SIG1 container format: a fixed
// little-endian header, deterministic CBOR metadata, a chunk map of
// (offset, length, hash, entropy) entries, the Merkle root over the
// chunk hashes, an optional residual, and the payload.
//
// [Decode] parses strictly and is what extraction uses. [Scan] parses
// as much as it can and reports damaged sections separately, which is
// what regeneration starts from. [Verify] checks chunk hashes, the
// Merkle root, and the reconstructed file's length and CRC32, and
// names the first failing step.
package container
