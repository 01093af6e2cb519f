// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package residual

import "fmt"

// Tier is a container's resilience level: how much redundancy it
// carries beyond the chunk hashes.
type Tier uint8

const (
	// TierNone carries no residual. Damaged chunks can only be
	// recovered from siblings.
	TierNone Tier = iota

	// TierReflection carries one parity shard per four data chunks in
	// each stripe (at least one).
	TierReflection

	// TierSeal carries as many parity shards as data chunks in each
	// stripe, plus backup copies of the metadata and chunk map.
	TierSeal
)

// String returns the human-readable name of a tier.
func (tier Tier) String() string {
	switch tier {
	case TierNone:
		return "none"
	case TierReflection:
		return "reflection"
	case TierSeal:
		return "seal"
	default:
		return fmt.Sprintf("unknown(%d)", tier)
	}
}

// ParseTier parses a tier from its string representation.
func ParseTier(name string) (Tier, error) {
	switch name {
	case "none":
		return TierNone, nil
	case "reflection":
		return TierReflection, nil
	case "seal":
		return TierSeal, nil
	default:
		return 0, fmt.Errorf("unknown resilience tier %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (tier Tier) MarshalText() ([]byte, error) {
	return []byte(tier.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (tier *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*tier = parsed
	return nil
}

// ParityShards returns how many parity shards a stripe of dataShards
// chunks carries at this tier.
func (tier Tier) ParityShards(dataShards int) int {
	switch tier {
	case TierReflection:
		return max(1, dataShards/4)
	case TierSeal:
		return dataShards
	default:
		return 0
	}
}
