// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package attest signs encoded containers as opaque blobs.
//
// An attestation is a detached Ed25519 signature over a statement
// naming the container's BLAKE3 digest and size. The container's own
// structure is never read: anything that can be hashed can be
// attested, and a container that later needs regeneration keeps its
// attestation once it is restored bit for bit.
//
// # Wire format
//
// An attestation is raw bytes: the CBOR-encoded [Statement] followed by
// a 64-byte Ed25519 signature over the statement bytes.
//
//	[CBOR statement bytes] [64-byte Ed25519 signature]
//
// The split point is always len(attestation) - 64. Attestations are
// conventionally stored next to the container with the [Extension]
// suffix appended.
package attest
