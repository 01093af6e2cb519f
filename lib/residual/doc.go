// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package residual builds and applies a container's redundancy record.
//
// Chunks are grouped into stripes of consecutive chunks. Each stripe
// carries Reed–Solomon parity shards sized to the container's chunk
// size, so any combination of lost chunks up to the stripe's parity
// count can be rebuilt from the survivors. The Seal tier adds backup
// copies of the metadata and chunk map.
package residual
