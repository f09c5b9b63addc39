// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the longtail
// binary.
//
// Version information is injected at build time via -ldflags, for
// example:
//
//	go build -ldflags "-X github.com/bureau-foundation/longtail/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without -ldflags the commit comes from the VCS stamp the go tool
// records in the binary.
package version
