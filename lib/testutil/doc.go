// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] wraps the select-with-timeout pattern for goroutine
// handoffs so tests never block forever on a channel. It is the only
// place in the test suite where a real wall-clock timeout is used;
// everything else runs on [clock.Fake].
//
// [clock.Fake]: github.com/bureau-foundation/rtmsync/lib/clock.Fake
package testutil
