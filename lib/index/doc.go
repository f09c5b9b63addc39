// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package index holds the data model of longtail and the protocol
// that reconciles versions against stores.
//
// A [VersionIndex] describes a directory snapshot as ordered chunk
// lists per asset. A [StoreIndex] describes which chunks live in which
// block. A [ContentIndex] is a store index plus the packing limits that
// produced it. The reconciliation operations answer the questions an
// upload or download needs:
//
//   - [CreateContentIndex] packs every chunk of a version into blocks.
//   - [CreateMissingContent] packs only the chunks a store lacks.
//   - [MergeStoreIndex] and [MergeContentIndex] combine indexes by
//     block hash, the first argument winning on duplicates.
//   - [GetExistingStoreIndex] picks the blocks worth fetching for a
//     chunk set, and [RetargetContent] maps local content onto the
//     blocks a remote store holds.
//   - [ValidateContent] checks that a store can rebuild a version.
//   - [CreateVersionDiff] and [GetRequiredChunkHashes] plan a
//     version change.
//   - [PruneStoreIndex] drops blocks outside a keep set.
//
// Every index is immutable once built. Operations return new
// instances and never modify their inputs.
//
// Binary layouts are little-endian. Each index file starts with a
// four-byte magic and a u32 format version; corrupt or truncated
// input reports errno.EBADF.
package index
