// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// CreateIssueRequest holds the fields for a new issue.
type CreateIssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

// ListIssuesOptions filters a repository issue listing.
type ListIssuesOptions struct {
	// State is "open", "closed" or "all". GitHub defaults to "open".
	State string

	// Since keeps only issues updated at or after the instant.
	Since time.Time

	// Sort is "created", "updated" or "comments".
	Sort string

	// Direction is "asc" or "desc".
	Direction string

	// PerPage is capped at 100 by GitHub.
	PerPage int
}

func (options ListIssuesOptions) query() string {
	values := url.Values{}
	if options.State != "" {
		values.Set("state", options.State)
	}
	if !options.Since.IsZero() {
		values.Set("since", options.Since.UTC().Format(time.RFC3339))
	}
	if options.Sort != "" {
		values.Set("sort", options.Sort)
	}
	if options.Direction != "" {
		values.Set("direction", options.Direction)
	}
	if options.PerPage > 0 {
		values.Set("per_page", strconv.Itoa(options.PerPage))
	}
	return values.Encode()
}

func issuePath(owner, repo string, number int) string {
	return fmt.Sprintf("/repos/%s/%s/issues/%d", url.PathEscape(owner), url.PathEscape(repo), number)
}

// GetIssue returns one issue.
func (client *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	var issue Issue
	if err := client.get(ctx, issuePath(owner, repo, number), &issue); err != nil {
		return nil, fmt.Errorf("getting issue %s/%s#%d: %w", owner, repo, number, err)
	}
	return &issue, nil
}

// ListIssues iterates over a repository's issues. The listing includes
// pull requests; see [Issue.PullRequest].
func (client *Client) ListIssues(owner, repo string, options ListIssuesOptions) *PageIterator[Issue] {
	path := fmt.Sprintf("/repos/%s/%s/issues", url.PathEscape(owner), url.PathEscape(repo))
	if query := options.query(); query != "" {
		path += "?" + query
	}
	return listPages[Issue](client, path)
}

// CreateIssue opens a new issue.
func (client *Client) CreateIssue(ctx context.Context, owner, repo string, request CreateIssueRequest) (*Issue, error) {
	var issue Issue
	path := fmt.Sprintf("/repos/%s/%s/issues", url.PathEscape(owner), url.PathEscape(repo))
	if err := client.post(ctx, path, request, &issue); err != nil {
		return nil, fmt.Errorf("creating issue in %s/%s: %w", owner, repo, err)
	}
	return &issue, nil
}

// ReplaceIssueLabels sets the issue's labels to exactly labels and
// returns the resulting set. An empty slice clears every label.
func (client *Client) ReplaceIssueLabels(ctx context.Context, owner, repo string, number int, labels []string) ([]Label, error) {
	if labels == nil {
		labels = []string{}
	}
	request := struct {
		Labels []string `json:"labels"`
	}{Labels: labels}

	var result []Label
	if err := client.put(ctx, issuePath(owner, repo, number)+"/labels", request, &result); err != nil {
		return nil, fmt.Errorf("replacing labels on %s/%s#%d: %w", owner, repo, number, err)
	}
	client.etagCache.invalidate(client.baseURL + issuePath(owner, repo, number))
	return result, nil
}
