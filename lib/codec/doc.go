// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration rtmsync uses wherever the
// exact bytes matter.
//
// Content hashes of RTM entities are computed over the encoded form of
// their labeling-relevant fields, so the encoding has to be canonical:
// the encoder uses Core Deterministic Encoding (RFC 8949 §4.2) with
// sorted map keys and smallest-width integers. The same logical value
// always encodes to the same bytes, across processes and releases.
//
// The traceability store also keeps small set-valued columns (GDPR
// flags) as CBOR blobs.
//
// JSON remains the format of every external interface (GitHub API,
// report output, CLI --json).
package codec
