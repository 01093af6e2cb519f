// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package regen rebuilds damaged containers.
//
// An [Engine] takes the bytes of a damaged container and any number
// of [Sibling] containers and works through four states:
//
//   - Scanning: parse the target tolerantly and mark every chunk whose
//     bytes are missing or fail their hash.
//   - Matching: look for replacements, first in the target's own
//     parity residual, then in siblings' chunk maps by hash.
//   - Substituting: write each replacement into the output buffer,
//     after re-hashing it against the target's recorded hash.
//   - Reassembling: verify the rebuilt payload and reverse the coder
//     and transform.
//
// A run ends Recovered (the original file, bit-identical),
// PartialRecovery (the verified byte ranges, the unresolved chunk
// indices, and a confidence of resolved/total chunks), or Failed (the
// chunk map itself could not be trusted). The engine never returns
// bytes that did not verify.
//
// Siblings are found by chunk hash alone. Two containers share chunk
// hashes only where their payload bytes agree, which for transformed
// files means they were created from the same lineage seed; see
// archive.Options.Lineage.
//
// Sibling scans run concurrently and only read; substitutions are
// serialized. The context is consulted between sibling scans.
package regen
