// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides sigil's standard CBOR encoding configuration.
//
// Container metadata, residual records, and signature envelopes are
// CBOR. Every package encodes through this one configuration so that
// the same logical value always produces identical bytes: the encoder
// uses Core Deterministic Encoding (RFC 8949 §4.2), which is what
// makes two containers of the same file byte-identical.
//
//	data, err := codec.Marshal(value)
//	err = codec.UnmarshalStrict(data, &value)
//
// Types serialized only as CBOR use `cbor` struct tags. Types that
// also appear in CLI --json output use `json` tags, which
// fxamacker/cbor reads as a fallback. Never put both tags on one
// field.
package codec
