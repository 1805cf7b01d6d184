// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used for on-disk state.
//
// Wire formats to model backends are JSON and are handled by the
// adapters in lib/llm. Everything converse writes for itself (session
// transcripts) is CBOR, encoded with Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. The same logical value always produces the
// same bytes.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Files are additionally zstd-compressed:
//
//	data, err := codec.MarshalCompressed(value)
//	err = codec.UnmarshalCompressed(data, &value)
//
// Types that are only ever stored as CBOR use `cbor` struct tags.
package codec
