// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chaos implements the seeded, reversible byte transform that
// sits between seed derivation and the entropy coder.
//
// Each byte is XORed with a keystream byte and then multiplied, in
// GF(257), by a mask taken from a logistic-map orbit (x ← r·x·(1−x),
// r in the chaotic band). Byte pairs are then shuffled inside every
// 256-byte block by a seeded Fisher–Yates permutation. The keystream,
// the orbit, and the permutations all derive from the seed alone, so
// the transform is position-local: two inputs under the same seed that
// agree on a block produce identical output for that block.
//
// The output is framed as uvarint(original length) followed by the
// body. Inputs shorter than one block are zero-padded to a block.
package chaos
