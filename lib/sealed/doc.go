// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed protects the transform seed stored in a container.
//
// A container cannot be extracted without its seed, and the seed is a
// function of the original file, so every container carries the seed
// in an [Envelope]. The envelope is always authenticated against the
// container's Merkle root and comes in three modes:
//
//   - open: sealed under a key derived from the binding itself.
//     Anyone with the container can extract it.
//   - key: sealed under an HKDF-derived key from a shared access key.
//   - age: encrypted to X25519 recipients with filippo.io/age.
//
// Open and key envelopes are deterministic, so identical inputs still
// produce byte-identical containers. Age envelopes are not.
package sealed
