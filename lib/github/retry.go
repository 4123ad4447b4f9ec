// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import "time"

// RetryPolicy bounds how the client retries transient failures.
type RetryPolicy struct {
	// MaxAttempts counts the first try. Defaults to 4.
	MaxAttempts int

	// InitialBackoff is the delay after the first failure; each later
	// failure doubles it. Defaults to 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential delay. Defaults to 30s. A rate
	// limit reset may still exceed it.
	MaxBackoff time.Duration

	// MaxRateLimitWait is the longest rate-limit reset the client will
	// sleep through. A longer reset fails the request as unavailable
	// at once. Zero means no limit beyond the caller's context.
	MaxRateLimitWait time.Duration
}

// DefaultRetryPolicy returns 4 attempts, 1s initial backoff, 30s cap
// and a 15 minute rate-limit ceiling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      4,
		InitialBackoff:   time.Second,
		MaxBackoff:       30 * time.Second,
		MaxRateLimitWait: 15 * time.Minute,
	}
}

// withDefaults fills unset fields. The zero policy becomes
// [DefaultRetryPolicy] entirely, including its rate-limit ceiling.
func (policy RetryPolicy) withDefaults() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if policy == (RetryPolicy{}) {
		return defaults
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaults.MaxAttempts
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = defaults.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = defaults.MaxBackoff
	}
	if policy.MaxRateLimitWait < 0 {
		policy.MaxRateLimitWait = 0
	}
	return policy
}

// backoff returns the delay after the given failed attempt (1-based).
func (policy RetryPolicy) backoff(attempt int) time.Duration {
	delay := policy.InitialBackoff
	for range attempt - 1 {
		delay *= 2
		if delay >= policy.MaxBackoff {
			return policy.MaxBackoff
		}
	}
	return min(delay, policy.MaxBackoff)
}
