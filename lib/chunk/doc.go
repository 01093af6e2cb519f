// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk splits a container payload into fixed-size chunks and
// describes each one: offset, length, chunk-domain hash, and Shannon
// entropy score. Chunk boundaries depend only on the payload length
// and chunk size.
//
// A chunk's bytes normally hold coded file data (RawBytes). Folder
// containers instead hold one ChildRoot reference per chunk, naming a
// child container by its Merkle root.
package chunk
