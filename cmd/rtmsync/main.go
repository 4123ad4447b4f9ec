// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// rtmsync keeps a requirements traceability matrix (epics, user
// stories, tests and defects) in SQLite and mirrors it onto GitHub
// issues, labeling each issue by rule.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp(os.Stdout, os.Stderr).root().Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		// Commands that already reported their outcome return an
		// ExitError; don't print a redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
