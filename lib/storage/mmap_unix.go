// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package storage

import (
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/longtail/lib/errno"
)

// mapFile maps [offset, offset+length) of path read-only. mmap
// requires a page-aligned offset, so the mapping starts at the page
// holding offset and the returned slice skips the lead-in.
func mapFile(path string, offset, length int64) ([]byte, func() error, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, nil, err
	}
	// The mapping outlives the descriptor.
	defer unix.Close(fd)

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return nil, nil, err
	}
	if offset+length > stat.Size {
		return nil, nil, errno.Wrap(errno.EINVAL, "range %d+%d beyond size %d", offset, length, stat.Size)
	}

	pageSize := int64(unix.Getpagesize())
	aligned := offset &^ (pageSize - 1)
	lead := offset - aligned
	mapped, err := unix.Mmap(fd, aligned, int(length+lead), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return mapped[lead : lead+length : lead+length], func() error { return unix.Munmap(mapped) }, nil
}
