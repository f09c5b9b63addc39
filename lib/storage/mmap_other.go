// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !(darwin || linux)

package storage

import "github.com/bureau-foundation/longtail/lib/errno"

func mapFile(path string, offset, length int64) ([]byte, func() error, error) {
	return nil, nil, errno.ENOTSUP
}
