// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/storage"
)

// File is one entry below a snapshot root. Directory paths end with a
// slash and have zero size.
type File struct {
	Path        string
	Size        uint64
	Permissions uint16
}

// IsDir reports whether the entry is a directory.
func (f File) IsDir() bool { return strings.HasSuffix(f.Path, "/") }

// GetFilesRecursively lists every file and directory below root in
// lexical order, parents before children. Anything that is neither a
// regular file nor a directory is skipped.
func GetFilesRecursively(ctx context.Context, fs storage.Storage, root string) ([]File, error) {
	var files []File
	err := fs.Walk(root, func(entry storage.Entry) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w (%w)", errno.ECANCELED, err)
		}
		file := File{Path: entry.Path, Permissions: entry.Permissions}
		if entry.IsDir {
			file.Path += "/"
		} else {
			file.Size = uint64(entry.Size)
		}
		files = append(files, file)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return files, nil
}
