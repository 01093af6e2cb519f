// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunkindex records which stored containers hold which chunk
// hashes, so a caller about to regenerate a damaged container can
// find the siblings most likely to help.
//
// The index is a SQLite database (see lib/sqlitepool) with one row
// per container and one row per chunk. [Index.Siblings] ranks other
// containers by the number of a target's chunks they hold, returning
// each match's coverage as a roaring bitmap of target chunk indices;
// [Cover] uses those bitmaps to choose a small set of siblings that
// covers a set of missing chunks.
//
// A damaged container's chunk map is usually still readable, so its
// hashes can be looked up even when its payload is gone.
package chunkindex
