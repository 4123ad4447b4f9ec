// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/rtmsync/lib/clock"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, server *httptest.Server, clk clock.Clock) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Token:      "test-token",
		HTTPClient: server.Client(),
		Clock:      clk,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

// advanceThroughBackoffs releases n successive retry sleeps.
func advanceThroughBackoffs(fakeClock *clock.FakeClock, n int, step time.Duration) {
	for range n {
		fakeClock.WaitForTimers(1)
		fakeClock.Advance(step)
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://api.github.com", Token: "t"})
	if err == nil || err.Error() != `github: API client requires HTTPS (got "http://api.github.com")` {
		t.Errorf("HTTP base URL: err = %v", err)
	}
	if _, err := NewClient(Config{}); err == nil {
		t.Error("missing token accepted")
	}
}

func TestClientHeaders(t *testing.T) {
	var auth, accept, version string
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		auth = request.Header.Get("Authorization")
		accept = request.Header.Get("Accept")
		version = request.Header.Get("X-GitHub-Api-Version")
		writer.Write([]byte(`{"number":1,"title":"Café ✓"}`))
	}))
	defer server.Close()

	issue, err := newTestClient(t, server, clock.Real()).GetIssue(context.Background(), "owner", "repo", 1)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if issue.Title != "Café ✓" {
		t.Errorf("title = %q, UTF-8 not preserved", issue.Title)
	}
	if auth != "Bearer test-token" {
		t.Errorf("Authorization = %q", auth)
	}
	if accept != "application/vnd.github+json" {
		t.Errorf("Accept = %q", accept)
	}
	if version != "2022-11-28" {
		t.Errorf("X-GitHub-Api-Version = %q", version)
	}
}

func TestClientWaitsForRateLimitReset(t *testing.T) {
	fakeClock := clock.Fake(testEpoch)
	resetTime := testEpoch.Add(45 * time.Second)
	var requests atomic.Int32

	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if requests.Add(1) == 1 {
			writer.Header().Set("X-RateLimit-Remaining", "0")
			writer.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))
			writer.WriteHeader(http.StatusForbidden)
			json.NewEncoder(writer).Encode(map[string]string{"message": "API rate limit exceeded"})
			return
		}
		writer.Header().Set("X-RateLimit-Remaining", "4999")
		writer.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Add(time.Hour).Unix(), 10))
		writer.Write([]byte(`{"number":42}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, fakeClock)
	done := make(chan error, 1)
	go func() {
		_, err := client.GetIssue(context.Background(), "owner", "repo", 42)
		done <- err
	}()

	// The retry sleeps until the reset, not just the 1s backoff.
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(44 * time.Second)
	if got := requests.Load(); got != 1 {
		t.Fatalf("retried before reset: %d requests", got)
	}
	fakeClock.Advance(time.Second)

	if err := <-done; err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestClientServerErrorsExhaustBudget(t *testing.T) {
	fakeClock := clock.Fake(testEpoch)
	var requests atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		requests.Add(1)
		writer.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server, fakeClock)
	done := make(chan error, 1)
	go func() {
		_, err := client.ReplaceIssueLabels(context.Background(), "owner", "repo", 7, []string{"priority/high"})
		done <- err
	}()
	advanceThroughBackoffs(fakeClock, 3, 30*time.Second)

	err := <-done
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want *UnavailableError", err)
	}
	if unavailable.Attempts != 4 || requests.Load() != 4 {
		t.Errorf("attempts = %d, requests = %d, want 4 and 4", unavailable.Attempts, requests.Load())
	}
}

func TestClientRecoversAfterTransientFailure(t *testing.T) {
	fakeClock := clock.Fake(testEpoch)
	var requests atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if requests.Add(1) < 3 {
			writer.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writer.Write([]byte(`[{"name":"priority/high"}]`))
	}))
	defer server.Close()

	client := newTestClient(t, server, fakeClock)
	done := make(chan error, 1)
	go func() {
		_, err := client.ReplaceIssueLabels(context.Background(), "owner", "repo", 7, []string{"priority/high"})
		done <- err
	}()
	advanceThroughBackoffs(fakeClock, 2, 30*time.Second)

	if err := <-done; err != nil {
		t.Fatalf("ReplaceIssueLabels: %v", err)
	}
}

func TestClientDoesNotRetryPermanentErrors(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		requests.Add(1)
		writer.WriteHeader(http.StatusNotFound)
		json.NewEncoder(writer).Encode(map[string]string{"message": "Not Found"})
	}))
	defer server.Close()

	_, err := newTestClient(t, server, clock.Fake(testEpoch)).GetIssue(context.Background(), "owner", "repo", 999)
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
	if IsUnavailable(err) {
		t.Error("404 classified as unavailable")
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1", requests.Load())
	}
}

func TestClientDoesNotRetryPostOnServerError(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		requests.Add(1)
		writer.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(t, server, clock.Fake(testEpoch)).CreateIssue(context.Background(), "owner", "repo",
		CreateIssueRequest{Title: "[EP-00001] Auth"})
	if err == nil {
		t.Fatal("CreateIssue succeeded on 500")
	}
	if requests.Load() != 1 {
		t.Errorf("POST sent %d times, want 1", requests.Load())
	}
}

func TestClientRetriesPostAfterSecondaryRateLimit(t *testing.T) {
	fakeClock := clock.Fake(testEpoch)
	var requests atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if requests.Add(1) == 1 {
			writer.Header().Set("Retry-After", "10")
			writer.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writer.WriteHeader(http.StatusCreated)
		writer.Write([]byte(`{"name":"needs-triage","color":"ededed"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, fakeClock)
	done := make(chan error, 1)
	go func() {
		_, err := client.CreateLabel(context.Background(), "owner", "repo", Label{Name: "needs-triage", Color: "#ededed"})
		done <- err
	}()
	advanceThroughBackoffs(fakeClock, 1, 10*time.Second)

	if err := <-done; err != nil {
		t.Fatalf("CreateLabel: %v", err)
	}
	if requests.Load() != 2 {
		t.Errorf("requests = %d, want 2", requests.Load())
	}
}

func TestClientGivesUpOnDistantReset(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Retry-After", "3600")
		writer.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Token:      "test-token",
		HTTPClient: server.Client(),
		Clock:      clock.Fake(testEpoch),
		Retry:      RetryPolicy{MaxAttempts: 4, MaxRateLimitWait: time.Minute},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.GetIssue(context.Background(), "owner", "repo", 1)
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want *UnavailableError", err)
	}
	if unavailable.RetryAfter != time.Hour || unavailable.Attempts != 1 {
		t.Errorf("RetryAfter = %v, Attempts = %d", unavailable.RetryAfter, unavailable.Attempts)
	}
}

func TestClientCancelledDuringBackoff(t *testing.T) {
	fakeClock := clock.Fake(testEpoch)
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server, fakeClock)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.GetIssue(ctx, "owner", "repo", 1)
		done <- err
	}()
	fakeClock.WaitForTimers(1)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestClientETagCaching(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		requests.Add(1)
		if request.Header.Get("If-None-Match") == `"etag-123"` {
			writer.WriteHeader(http.StatusNotModified)
			return
		}
		writer.Header().Set("ETag", `"etag-123"`)
		writer.Write([]byte(`{"number":1,"title":"Cached"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, clock.Real())
	for i := range 2 {
		issue, err := client.GetIssue(context.Background(), "owner", "repo", 1)
		if err != nil {
			t.Fatalf("GetIssue #%d: %v", i, err)
		}
		if issue.Title != "Cached" {
			t.Errorf("GetIssue #%d title = %q", i, issue.Title)
		}
	}
	if requests.Load() != 2 {
		t.Errorf("requests = %d, want 2", requests.Load())
	}
}

func TestReplaceIssueLabelsBody(t *testing.T) {
	var method, path string
	var body struct {
		Labels []string `json:"labels"`
	}
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		method, path = request.Method, request.URL.Path
		json.NewDecoder(request.Body).Decode(&body)
		writer.Write([]byte(`[]`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server, clock.Real()).ReplaceIssueLabels(context.Background(), "owner", "repo", 12, nil)
	if err != nil {
		t.Fatalf("ReplaceIssueLabels: %v", err)
	}
	if method != http.MethodPut || path != "/repos/owner/repo/issues/12/labels" {
		t.Errorf("request = %s %s", method, path)
	}
	if body.Labels == nil || len(body.Labels) != 0 {
		t.Errorf("labels = %#v, want an explicit empty list", body.Labels)
	}
}

func TestListLabelsFollowsPages(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Query().Get("page") == "2" {
			writer.Write([]byte(`[{"name":"status/backlog"}]`))
			return
		}
		writer.Header().Set("Link", "<"+server.URL+request.URL.Path+`?per_page=100&page=2>; rel="next"`)
		writer.Write([]byte(`[{"name":"priority/high"},{"name":"needs-triage"}]`))
	}))
	defer server.Close()

	labels, err := newTestClient(t, server, clock.Real()).ListLabels("owner", "repo").Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var names []string
	for _, label := range labels {
		names = append(names, label.Name)
	}
	if want := []string{"priority/high", "needs-triage", "status/backlog"}; !slices.Equal(names, want) {
		t.Errorf("labels = %v, want %v", names, want)
	}
}

func TestListIssuesQuery(t *testing.T) {
	var query string
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		query = request.URL.RawQuery
		writer.Write([]byte(`[]`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server, clock.Real()).ListIssues("owner", "repo", ListIssuesOptions{
		State:     "all",
		Since:     testEpoch,
		Sort:      "updated",
		Direction: "asc",
		PerPage:   100,
	}).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := "direction=asc&per_page=100&since=2026-03-01T12%3A00%3A00Z&sort=updated&state=all"
	if query != want {
		t.Errorf("query = %q, want %q", query, want)
	}
}
