// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chaos

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/bureau-foundation/sigil/lib/digest"
	"github.com/bureau-foundation/sigil/lib/seed"
)

// BlockSize is the permutation block length. Inputs shorter than one
// block are zero-padded to a full block before masking.
const BlockSize = 256

// modulus is the prime field the byte combine works in. Every byte
// value plus one is a nonzero element of GF(257), so multiplying by a
// nonzero mask is a bijection on bytes.
const modulus = 257

// Logistic map parameter range. The map is chaotic for r in
// (3.57, 4); the upper bound stays clear of 4 where the orbit can
// escape the unit interval through rounding.
const (
	rMin  = 3.5700001
	rSpan = 0.4289999
)

// ErrMalformed reports a transformed stream that cannot be inverted:
// a bad length prefix, a body of the wrong size, or nonzero padding.
var ErrMalformed = errors.New("chaos: malformed transform stream")

// inverse257 holds multiplicative inverses in GF(257), indexed by
// element (1..256).
var inverse257 [modulus]uint32

func init() {
	for a := uint32(1); a < modulus; a++ {
		// Fermat: a^(p-2) is the inverse of a mod p.
		result, base, exponent := uint32(1), a, uint32(modulus-2)
		for exponent > 0 {
			if exponent&1 == 1 {
				result = result * base % modulus
			}
			base = base * base % modulus
			exponent >>= 1
		}
		inverse257[a] = result
	}
}

// Forward applies the chaotic transform to data under s. The result is
// uvarint(len(data)) followed by the masked and permuted body. Empty
// input yields empty output.
func Forward(data []byte, s seed.Seed) []byte {
	if len(data) == 0 {
		return []byte{}
	}

	bodyLength := max(len(data), BlockSize)
	output := binary.AppendUvarint(make([]byte, 0, binary.MaxVarintLen64+bodyLength), uint64(len(data)))
	prefixLength := len(output)
	output = output[:prefixLength+bodyLength]
	body := output[prefixLength:]
	copy(body, data)

	keys, masks := maskSchedule(s, bodyLength)
	for i := range body {
		x := uint32(body[i]^keys[i]) + 1
		body[i] = byte(x*(uint32(masks[i])+1)%modulus - 1)
	}

	permutation := newPermuter(s)
	scratch := make([]byte, BlockSize)
	for start := 0; start < bodyLength; start += BlockSize {
		block := body[start:min(start+BlockSize, bodyLength)]
		order := permutation.next(len(block) / 2)
		copy(scratch, block)
		for i, from := range order {
			block[2*i] = scratch[2*from]
			block[2*i+1] = scratch[2*from+1]
		}
	}

	return output
}

// Inverse reverses Forward. It fails with ErrMalformed rather than
// returning partial output.
func Inverse(data []byte, s seed.Seed) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}

	length, prefixLength := binary.Uvarint(data)
	if prefixLength <= 0 {
		return nil, fmt.Errorf("%w: unreadable length prefix", ErrMalformed)
	}
	if length == 0 {
		return nil, fmt.Errorf("%w: zero length with nonempty body", ErrMalformed)
	}
	encoded := data[prefixLength:]
	expected := max(length, BlockSize)
	if uint64(len(encoded)) != expected {
		return nil, fmt.Errorf("%w: body is %d bytes, want %d", ErrMalformed, len(encoded), expected)
	}

	bodyLength := len(encoded)
	body := make([]byte, bodyLength)
	copy(body, encoded)

	permutation := newPermuter(s)
	scratch := make([]byte, BlockSize)
	for start := 0; start < bodyLength; start += BlockSize {
		block := body[start:min(start+BlockSize, bodyLength)]
		order := permutation.next(len(block) / 2)
		copy(scratch, block)
		for i, from := range order {
			block[2*from] = scratch[2*i]
			block[2*from+1] = scratch[2*i+1]
		}
	}

	keys, masks := maskSchedule(s, bodyLength)
	for i := range body {
		y := uint32(body[i]) + 1
		x := y * inverse257[uint32(masks[i])+1] % modulus
		body[i] = byte(x-1) ^ keys[i]
	}

	for _, padding := range body[length:] {
		if padding != 0 {
			return nil, fmt.Errorf("%w: nonzero padding (wrong seed?)", ErrMalformed)
		}
	}
	return body[:length], nil
}

// maskSchedule produces the per-position XOR keys and multiplier masks
// for a body of n bytes. Keys come from the seed's keystream; masks
// come from the logistic map orbit seeded by it. Both depend only on
// the seed and n, so Forward and Inverse see identical schedules.
func maskSchedule(s seed.Seed, n int) (keys, masks []byte) {
	keys = make([]byte, n)
	if _, err := io.ReadFull(digest.Stream(s.Hash(), "chaos.keys"), keys); err != nil {
		panic("chaos: reading keystream: " + err.Error())
	}

	orbit := newLogistic(s)
	masks = make([]byte, n)
	for i := range masks {
		masks[i] = orbit.step()
	}
	return keys, masks
}

// logistic iterates x <- r·x·(1−x) and emits one mask byte per step
// from the mantissa bits of the state.
type logistic struct {
	r, x    float64
	reseeds io.Reader
}

func newLogistic(s seed.Seed) *logistic {
	stream := digest.Stream(s.Hash(), "chaos.logistic")
	var parameters [16]byte
	if _, err := io.ReadFull(stream, parameters[:]); err != nil {
		panic("chaos: reading logistic parameters: " + err.Error())
	}
	orbit := &logistic{
		r:       rMin + rSpan*unitInterval(binary.LittleEndian.Uint64(parameters[:8])),
		reseeds: stream,
	}
	orbit.x = openUnitInterval(binary.LittleEndian.Uint64(parameters[8:]))
	// Discard the transient so the first masks do not reflect x0
	// directly.
	for range 64 {
		orbit.advance()
	}
	return orbit
}

func (l *logistic) step() byte {
	l.advance()
	return byte(math.Float64bits(l.x) >> 20)
}

func (l *logistic) advance() {
	previous := l.x
	// The explicit conversion rounds r·x before the second multiply,
	// so no platform fuses the expression differently.
	l.x = float64(l.r*l.x) * (1 - l.x)
	if l.x <= 0 || l.x >= 1 || l.x == previous {
		var raw [8]byte
		if _, err := io.ReadFull(l.reseeds, raw[:]); err != nil {
			panic("chaos: reading reseed material: " + err.Error())
		}
		l.x = openUnitInterval(binary.LittleEndian.Uint64(raw[:]))
	}
}

// unitInterval maps 53 random bits to [0, 1).
func unitInterval(bits uint64) float64 {
	return float64(bits>>11) / (1 << 53)
}

// openUnitInterval maps 53 random bits to (0, 1).
func openUnitInterval(bits uint64) float64 {
	return (float64(bits>>11) + 0.5) / (1 << 53)
}

// permuter draws seeded Fisher–Yates permutations of byte pairs, one
// per block, from a single keystream.
type permuter struct {
	stream *bufio.Reader
	order  []int
}

func newPermuter(s seed.Seed) *permuter {
	return &permuter{
		stream: bufio.NewReaderSize(digest.Stream(s.Hash(), "chaos.permute"), 4096),
		order:  make([]int, BlockSize/2),
	}
}

// next returns a permutation of [0, pairs). The returned slice is
// reused by the following call.
func (p *permuter) next(pairs int) []int {
	order := p.order[:pairs]
	for i := range order {
		order[i] = i
	}
	for i := pairs - 1; i > 0; i-- {
		j := p.uniform(uint32(i + 1))
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// uniform returns an unbiased value in [0, bound) by rejection.
func (p *permuter) uniform(bound uint32) int {
	limit := math.MaxUint32 - math.MaxUint32%bound
	var raw [4]byte
	for {
		if _, err := io.ReadFull(p.stream, raw[:]); err != nil {
			panic("chaos: reading permutation keystream: " + err.Error())
		}
		value := binary.LittleEndian.Uint32(raw[:])
		if value < limit {
			return int(value % bound)
		}
	}
}
