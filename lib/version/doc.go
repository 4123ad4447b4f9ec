// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build information for the rtmsync binary.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//	go build -ldflags "-X github.com/bureau-foundation/rtmsync/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/rtmsync
//
// When GitCommit is not injected, [Current] falls back to the VCS
// stamp the Go toolchain embeds in the binary. [Info] and [Full] format
// the result for `rtmsync version`.
package version
