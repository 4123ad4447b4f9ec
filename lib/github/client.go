// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/rtmsync/lib/clock"
)

const (
	apiVersion     = "2022-11-28"
	defaultBaseURL = "https://api.github.com"

	// maxResponseSize bounds response body reads.
	maxResponseSize int64 = 64 << 20
)

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL defaults to https://api.github.com. Must use HTTPS.
	BaseURL string

	// Token is a personal access token or fine-grained token.
	// Required.
	Token string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Retry defaults to [DefaultRetryPolicy].
	Retry RetryPolicy

	// RequestsPerSecond paces outgoing requests client-side. Zero
	// disables pacing; GitHub's own limits are still honored.
	RequestsPerSecond float64

	// Burst is the pacing burst size. Defaults to 1 when pacing is
	// enabled.
	Burst int

	// Clock defaults to clock.Real(). Backoff and rate-limit waits
	// run on it.
	Clock clock.Clock

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Client is a GitHub REST API client. Safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      RetryPolicy
	limiter    *rate.Limiter
	rateLimit  *rateLimitTracker
	etagCache  *etagCache
	clock      clock.Clock
	logger     *slog.Logger
}

// NewClient validates config and returns a Client.
func NewClient(config Config) (*Client, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("github: API client requires HTTPS (got %q)", baseURL)
	}
	if config.Token == "" {
		return nil, fmt.Errorf("github: Token is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:    baseURL,
		token:      config.Token,
		httpClient: httpClient,
		retry:      config.Retry.withDefaults(),
		limiter:    limiter,
		rateLimit:  newRateLimitTracker(clk),
		etagCache:  newETagCache(defaultETagEntries),
		clock:      clk,
		logger:     logger,
	}, nil
}

// response is a completed 2xx exchange.
type response struct {
	body   []byte
	header http.Header
}

// send performs one logical request with retries. url is absolute
// (pagination follows server-provided URLs); path is only used in
// errors and logs.
func (client *Client) send(ctx context.Context, method, url string, requestBody any) (*response, error) {
	var encoded []byte
	if requestBody != nil {
		var err error
		encoded, err = json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("github: encoding request body: %w", err)
		}
	}
	path := strings.TrimPrefix(url, client.baseURL)

	for attempt := 1; ; attempt++ {
		result, failure, retryAfter, err := client.attempt(ctx, method, url, encoded)
		if err != nil {
			return nil, err
		}
		if failure == nil {
			return result, nil
		}

		retryable := failure.transient && (method != http.MethodPost || failure.rateLimited)
		if !retryable {
			if failure.apiError != nil {
				return nil, failure.apiError
			}
			return nil, &UnavailableError{Method: method, Path: path, Attempts: attempt, Err: failure.err}
		}

		delay := client.retry.backoff(attempt)
		if failure.rateLimited {
			delay = max(delay, retryAfter)
			if client.retry.MaxRateLimitWait > 0 && retryAfter > client.retry.MaxRateLimitWait {
				return nil, &UnavailableError{Method: method, Path: path, Attempts: attempt, RetryAfter: retryAfter, Err: failure.cause()}
			}
		}
		if attempt >= client.retry.MaxAttempts {
			return nil, &UnavailableError{Method: method, Path: path, Attempts: attempt, RetryAfter: retryAfter, Err: failure.cause()}
		}

		client.logger.Info("github request failed, retrying",
			"method", method,
			"path", path,
			"attempt", attempt,
			"delay", delay,
			"error", failure.cause(),
		)
		select {
		case <-client.clock.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("github: %s %s: %w", method, path, ctx.Err())
		}
	}
}

// attemptFailure describes why one attempt did not produce a 2xx.
type attemptFailure struct {
	apiError    *APIError
	err         error
	transient   bool
	rateLimited bool
}

func (failure *attemptFailure) cause() error {
	if failure.apiError != nil {
		return failure.apiError
	}
	return failure.err
}

// attempt sends one HTTP request. A non-nil error is fatal for the
// whole request (context cancellation, malformed request); everything
// the retry loop can act on comes back as an attemptFailure.
func (client *Client) attempt(ctx context.Context, method, url string, encoded []byte) (*response, *attemptFailure, time.Duration, error) {
	if client.limiter != nil {
		if err := client.limiter.Wait(ctx); err != nil {
			return nil, nil, 0, fmt.Errorf("github: pacing: %w", err)
		}
	}
	if err := client.rateLimit.wait(ctx); err != nil {
		return nil, nil, 0, fmt.Errorf("github: waiting for rate limit reset: %w", err)
	}

	var bodyReader io.Reader
	if encoded != nil {
		bodyReader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("github: creating request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+client.token)
	request.Header.Set("Accept", "application/vnd.github+json")
	request.Header.Set("X-GitHub-Api-Version", apiVersion)
	if encoded != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodGet {
		if etag := client.etagCache.get(url); etag != "" {
			request.Header.Set("If-None-Match", etag)
		}
	}

	httpResponse, err := client.httpClient.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, 0, fmt.Errorf("github: %s %s: %w", method, url, ctx.Err())
		}
		return nil, &attemptFailure{err: fmt.Errorf("github: %s %s: %w", method, url, err), transient: true}, 0, nil
	}
	defer httpResponse.Body.Close()
	client.rateLimit.update(httpResponse.Header)

	body, err := io.ReadAll(io.LimitReader(httpResponse.Body, maxResponseSize))
	if err != nil {
		return nil, &attemptFailure{err: fmt.Errorf("github: reading response body: %w", err), transient: true}, 0, nil
	}

	status := httpResponse.StatusCode
	if status == http.StatusNotModified && method == http.MethodGet {
		if cached := client.etagCache.body(url); cached != nil {
			return &response{body: cached, header: httpResponse.Header}, nil, 0, nil
		}
	}
	if status >= 200 && status < 300 {
		if method == http.MethodGet {
			client.etagCache.put(url, httpResponse.Header.Get("ETag"), body)
		}
		return &response{body: body, header: httpResponse.Header}, nil, 0, nil
	}

	apiError := parseAPIError(status, body)
	if isRateLimitResponse(status, apiError.Message) {
		return nil, &attemptFailure{apiError: apiError, transient: true, rateLimited: true},
			client.rateLimit.retryAfter(httpResponse.Header), nil
	}
	return nil, &attemptFailure{apiError: apiError, transient: isServerError(status)}, 0, nil
}

func (client *Client) get(ctx context.Context, path string, result any) error {
	resp, err := client.send(ctx, http.MethodGet, client.baseURL+path, nil)
	if err != nil {
		return err
	}
	return decode(resp.body, result)
}

func (client *Client) post(ctx context.Context, path string, requestBody, result any) error {
	resp, err := client.send(ctx, http.MethodPost, client.baseURL+path, requestBody)
	if err != nil {
		return err
	}
	return decode(resp.body, result)
}

func (client *Client) put(ctx context.Context, path string, requestBody, result any) error {
	resp, err := client.send(ctx, http.MethodPut, client.baseURL+path, requestBody)
	if err != nil {
		return err
	}
	return decode(resp.body, result)
}

func decode(body []byte, result any) error {
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("github: decoding response: %w", err)
	}
	return nil
}

func parseAPIError(statusCode int, body []byte) *APIError {
	apiError := &APIError{StatusCode: statusCode}
	var wireError struct {
		Message          string            `json:"message"`
		DocumentationURL string            `json:"documentation_url"`
		Errors           []ValidationError `json:"errors"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Message != "" {
		apiError.Message = wireError.Message
		apiError.DocumentationURL = wireError.DocumentationURL
		apiError.Errors = wireError.Errors
	} else {
		apiError.Message = strings.TrimSpace(string(body))
	}
	return apiError
}
