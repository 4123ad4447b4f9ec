// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package github is a small typed client for the parts of the GitHub
// REST API that rtmsync uses: issues, issue labels and repository
// labels.
//
// Every request carries a bearer token, the pinned API version header
// and the vnd.github+json media type. The client refuses non-HTTPS base
// URLs.
//
// Transient failures (network errors, 5xx responses, primary and
// secondary rate limits) are retried with exponential backoff on the
// injected [clock.Clock]. A rate-limited attempt waits at least until
// the advertised reset. When the retry budget runs out the client
// returns an [*UnavailableError]; permanent failures (404, 422, 401)
// come back immediately as [*APIError]. POST requests are retried only
// after a rate-limit rejection, since GitHub may have acted on a POST
// that timed out or failed with a 5xx.
//
// GET responses are cached by ETag so unchanged resources are served
// from a 304 without spending rate-limit budget. Paginated endpoints
// follow RFC 5988 Link headers through [PageIterator].
package github
