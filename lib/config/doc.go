// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for longtail.
//
// Configuration comes from a single optional file named by either the
// LONGTAIL_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). Fields the file leaves out keep the values of
// [Default], which are the documented command-line defaults. Command
// line flags the user sets explicitly override file values; that
// merge happens in the CLI, not here.
//
// Variable expansion is performed on the cache path after loading:
// ${HOME} and ${VAR:-default} patterns are expanded.
//
// Key exports:
//
//   - [Config] -- master struct with Chunking, Blocks, Workers, Cache, Log
//   - [Default] -- returns a Config with the built-in defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
