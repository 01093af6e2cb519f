// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive is the pipeline facade: it turns file bytes into a
// [container.Container] and back.
//
// [Create] runs the forward pipeline. The seed is derived from the
// content (or from the content and an access key, or taken from a
// lineage parent), the content is passed through the chaotic
// transform and the entropy coder, and the resulting payload is
// chunked, hashed, and committed to a Merkle root. The seed is then
// sealed into an envelope bound to that root and stored in metadata.
// At the Reflection and Seal tiers a parity residual is attached.
//
// [Extract] and [Verify] run the reverse direction over encoded bytes.
// Verify tolerates a damaged payload so it can name the failing
// chunks; Extract decodes strictly.
//
// [Pack] builds folder containers whose chunks are references to
// child containers rather than file bytes. [Entries], [Resolve], and
// [Walk] read them back.
//
// Creation is deterministic: identical content and options produce
// byte-identical containers, except for age-recipient envelopes,
// whose ciphertext uses ephemeral keys.
package archive
