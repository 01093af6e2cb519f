// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
)

// Content returns length pseudo-random bytes determined entirely by
// seed.
func Content(seed uint64, length int) []byte {
	generator := rand.New(rand.NewPCG(seed, seed^0x5349474c))
	data := make([]byte, length)
	for i := range data {
		data[i] = byte(generator.Uint32())
	}
	return data
}

// Variant returns a copy of base with the bytes in [start, end)
// replaced by different pseudo-random bytes drawn from seed. Every
// byte in the range differs from the original.
func Variant(base []byte, seed uint64, start, end int) []byte {
	variant := append([]byte(nil), base...)
	replacement := Content(seed, end-start)
	for i := range replacement {
		value := replacement[i]
		if value == base[start+i] {
			value ^= 0xff
		}
		variant[start+i] = value
	}
	return variant
}

// FlipBit returns a copy of data with one bit inverted.
func FlipBit(data []byte, bit int) []byte {
	flipped := append([]byte(nil), data...)
	flipped[bit/8] ^= 1 << (bit % 8)
	return flipped
}

// Truncate returns a copy of data without its last n bytes.
func Truncate(data []byte, n int) []byte {
	return append([]byte(nil), data[:len(data)-n]...)
}

// RemoveRange returns a copy of data with [start, end) cut out.
func RemoveRange(data []byte, start, end int) []byte {
	removed := make([]byte, 0, len(data)-(end-start))
	removed = append(removed, data[:start]...)
	return append(removed, data[end:]...)
}

// WriteFile writes data to name inside a fresh temporary directory
// and returns the full path.
func WriteFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
