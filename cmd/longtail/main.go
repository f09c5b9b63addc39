// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// longtail stores directory snapshots as deduplicated, compressed
// blocks and reconstructs them incrementally.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/longtail/cmd/longtail/cli"
	"github.com/bureau-foundation/longtail/cmd/longtail/commands"
	"github.com/bureau-foundation/longtail/lib/errno"
)

func main() {
	os.Exit(exitCode(run(), os.Stderr))
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return commands.Root().Execute(ctx, os.Args[1:])
}

// exitCode reports err on stderr and maps it to a process exit code.
// Commands that print their own output return an error with an
// ExitCode method; no extra line is printed for those.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var usage *cli.UsageError
	if errors.As(err, &usage) {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(stderr, "ERROR: %v\n", err)
	return errno.Code(err)
}
