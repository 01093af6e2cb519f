// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package merkle computes the binary Merkle tree that binds a
// container's chunk map. Leaves are chunk hashes in index order;
// internal nodes are the merkle-domain hash of left‖right. When a
// level has an odd number of nodes, the last node is paired with
// itself.
package merkle

import (
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/sigil/lib/digest"
)

// EmptyRoot is the root of a tree with no leaves: the merkle-domain
// hash of the empty string. Zero-length files have this root.
var EmptyRoot = digest.Keyed(digest.MerkleDomain, nil)

// Root returns the Merkle root over leaves. A single leaf is its own
// root. The caller's slice is not modified.
func Root(leaves []digest.Hash) digest.Hash {
	if len(leaves) == 0 {
		return EmptyRoot
	}
	if len(leaves) == 1 {
		return leaves[0]
	}

	hasher := digest.NewHasher(digest.MerkleDomain)
	level := make([]digest.Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		next := make([]digest.Hash, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next[i/2] = pair(hasher, level[i], right)
		}
		level = next
	}
	return level[0]
}

// Proof returns the sibling path from leaf index up to the root. Each
// step is the sibling at that level; a duplicated last node is its own
// sibling.
func Proof(leaves []digest.Hash, index int) ([]digest.Hash, error) {
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("merkle: leaf index %d out of range [0, %d)", index, len(leaves))
	}

	hasher := digest.NewHasher(digest.MerkleDomain)
	level := make([]digest.Hash, len(leaves))
	copy(level, leaves)

	var path []digest.Hash
	for len(level) > 1 {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index
		}
		path = append(path, level[sibling])

		next := make([]digest.Hash, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next[i/2] = pair(hasher, level[i], right)
		}
		level = next
		index /= 2
	}
	return path, nil
}

// VerifyProof reports whether leaf at index, combined with path,
// hashes to root.
func VerifyProof(root, leaf digest.Hash, index int, path []digest.Hash) bool {
	if index < 0 {
		return false
	}
	hasher := digest.NewHasher(digest.MerkleDomain)
	current := leaf
	for _, sibling := range path {
		if index%2 == 0 {
			current = pair(hasher, current, sibling)
		} else {
			current = pair(hasher, sibling, current)
		}
		index /= 2
	}
	return index == 0 && current == root
}

// pair hashes left‖right with a reused keyed hasher. Reset keeps the
// domain key.
func pair(hasher *blake3.Hasher, left, right digest.Hash) digest.Hash {
	var combined [2 * digest.Size]byte
	copy(combined[:digest.Size], left[:])
	copy(combined[digest.Size:], right[:])
	hasher.Reset()
	hasher.Write(combined[:])
	var result digest.Hash
	copy(result[:], hasher.Sum(nil))
	return result
}
