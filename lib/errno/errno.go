// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package errno defines the POSIX-style error taxonomy shared by every
// longtail layer. Errors travel as ordinary Go errors wrapped with
// fmt.Errorf; the Errno values below are the sentinels at the bottom
// of each chain, tested with errors.Is.
//
// The numeric values match Linux so that the CLI can hand them back
// as process exit codes.
package errno

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Errno is a POSIX-style error code.
type Errno int

const (
	// EPERM reports an operation refused because of a conflicting
	// open handle (in-memory storage) or missing privilege.
	EPERM Errno = 1

	// ENOENT reports a missing block, path or hash. Often a
	// legitimate miss rather than a fault.
	ENOENT Errno = 2

	// EIO reports a transient or unclassified I/O failure.
	EIO Errno = 5

	// EBADF reports a corrupt or truncated binary format.
	EBADF Errno = 9

	// ENOMEM reports exhaustion of a bounded resource, such as an
	// LRU pool with every slot referenced.
	ENOMEM Errno = 12

	// EACCES reports a permission failure.
	EACCES Errno = 13

	// EEXIST reports that a path already exists. The filesystem
	// block store treats it as success for content-addressed files.
	EEXIST Errno = 17

	// EINVAL reports a bad argument or contract violation.
	EINVAL Errno = 22

	// ENOTSUP reports a capability a layer intentionally does not
	// implement. Callers skip optional optimizations on it.
	ENOTSUP Errno = 95

	// ECANCELED reports that cooperative cancellation was observed.
	ECANCELED Errno = 125
)

var names = map[Errno]string{
	EPERM:     "operation not permitted",
	ENOENT:    "no such entry",
	EIO:       "input/output error",
	EBADF:     "bad format",
	ENOMEM:    "out of resources",
	EACCES:    "permission denied",
	EEXIST:    "already exists",
	EINVAL:    "invalid argument",
	ENOTSUP:   "not supported",
	ECANCELED: "operation canceled",
}

func (e Errno) Error() string {
	if name, ok := names[e]; ok {
		return name
	}
	return fmt.Sprintf("errno %d", int(e))
}

// Is bridges the taxonomy to the standard library's sentinel errors,
// so errors.Is(errno.ENOENT, fs.ErrNotExist) holds.
func (e Errno) Is(target error) bool {
	switch e {
	case ENOENT:
		return target == fs.ErrNotExist
	case EEXIST:
		return target == fs.ErrExist
	case EPERM, EACCES:
		return target == fs.ErrPermission
	case ECANCELED:
		return target == context.Canceled
	}
	return false
}

// FromError classifies err into an Errno. A nil error maps to zero.
// Errors that already carry an Errno keep it; standard library
// sentinels are translated; everything else maps to fallback.
func FromError(err error, fallback Errno) Errno {
	if err == nil {
		return 0
	}
	var code Errno
	if errors.As(err, &code) {
		return code
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ENOENT
	case errors.Is(err, fs.ErrExist):
		return EEXIST
	case errors.Is(err, fs.ErrPermission):
		return EACCES
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ECANCELED
	case errors.Is(err, syscall.EINVAL):
		return EINVAL
	case errors.Is(err, syscall.ENOMEM):
		return ENOMEM
	case errors.Is(err, syscall.EBADF):
		return EBADF
	}
	return fallback
}

// Code returns the process exit code for err: zero for nil, the
// classified Errno otherwise, and 1 when nothing classifies it.
func Code(err error) int {
	if err == nil {
		return 0
	}
	code := FromError(err, 0)
	if code == 0 {
		return 1
	}
	return int(code)
}

// Wrap annotates code with a formatted message while keeping it
// reachable through errors.Is.
func Wrap(code Errno, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), code)
}
