// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets rtmsync components take time as a dependency.
//
// The GitHub client sleeps between retries, the synchronizer enforces a
// wall-clock budget per cycle and ticks between cycles in daemon mode.
// All of them hold a Clock instead of calling the time package, so tests
// can drive backoff and timeouts without sleeping:
//
//	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go client.GetIssue(ctx, "owner", "repo", 1) // blocks in backoff
//	fakeClock.WaitForTimers(1)
//	fakeClock.Advance(2 * time.Second)
package clock
