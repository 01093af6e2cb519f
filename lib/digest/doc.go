// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest provides the BLAKE3 hashing primitives used across
// sigil: domain-separated keyed hashes for chunks, Merkle nodes,
// seeds and parity shards, an extendable keystream for seed
// stretching, and the canonical hex form of a digest.
//
// Every hash is computed in keyed mode with a fixed 32-byte domain
// key, so a chunk hash can never be confused with a Merkle node or a
// seed even when the hashed bytes coincide.
package digest
