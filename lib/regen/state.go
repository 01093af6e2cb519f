// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package regen

import "fmt"

// State is a step of a regeneration run. A run moves through
// Scanning, Matching, Substituting, and Reassembling, and ends in
// exactly one of Recovered, PartialRecovery, or Failed.
type State uint8

const (
	Scanning State = iota
	Matching
	Substituting
	Reassembling
	Recovered
	PartialRecovery
	Failed
)

// String returns the state's name as logged and printed by the CLI.
func (state State) String() string {
	switch state {
	case Scanning:
		return "scanning"
	case Matching:
		return "matching"
	case Substituting:
		return "substituting"
	case Reassembling:
		return "reassembling"
	case Recovered:
		return "recovered"
	case PartialRecovery:
		return "partial"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// Terminal reports whether state ends a run.
func (state State) Terminal() bool {
	return state >= Recovered
}

// Source says where a substituted chunk came from.
type Source uint8

const (
	// SourceNone marks progress events that are not substitutions.
	SourceNone Source = iota

	// SourceParity chunks were rebuilt from the container's own
	// residual parity.
	SourceParity

	// SourceSibling chunks were copied from a sibling container
	// holding a chunk with the same hash.
	SourceSibling
)

// String returns the source's name.
func (source Source) String() string {
	switch source {
	case SourceNone:
		return "none"
	case SourceParity:
		return "parity"
	case SourceSibling:
		return "sibling"
	default:
		return fmt.Sprintf("unknown(%d)", source)
	}
}
