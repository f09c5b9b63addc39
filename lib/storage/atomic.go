// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package storage

import "github.com/google/renameio"

func atomicWriteFile(path string, data []byte) error {
	return renameio.WriteFile(path, data, 0o644)
}
