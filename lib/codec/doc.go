// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used for machine-readable
// reports: the version diff written by "longtail diff --output" and
// the block store statistics written by --stats-output.
//
// Index files have their own fixed little-endian layout and do not go
// through this package. Reports are for tooling, so they use a
// self-describing format, and the encoder uses Core Deterministic
// Encoding (RFC 8949 §4.2) so the same report always produces
// identical bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(report)
//	err = codec.Unmarshal(data, &report)
//
// For report files on a storage:
//
//	err := codec.WriteFile(fs, "diff.cbor", report)
//	err = codec.ReadFile(fs, "diff.cbor", &report)
//
// Report types carry `cbor` struct tags with snake_case keys.
package codec
