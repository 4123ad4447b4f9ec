// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bureau-foundation/rtmsync/lib/github"
)

// GitHub is the [Client] for one GitHub repository.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHub returns a Client for owner/repo.
func NewGitHub(client *github.Client, owner, repo string) *GitHub {
	return &GitHub{client: client, owner: owner, repo: repo}
}

// FetchIssue implements [Client].
func (g *GitHub) FetchIssue(ctx context.Context, number int) (Issue, error) {
	issue, err := g.client.GetIssue(ctx, g.owner, g.repo, number)
	if err != nil {
		return Issue{}, classify("fetch issue", number, err)
	}
	return fromGitHub(issue), nil
}

// ListIssuesUpdatedSince implements [Client]. Pull requests are
// skipped.
func (g *GitHub) ListIssuesUpdatedSince(ctx context.Context, since time.Time) ([]Issue, error) {
	iterator := g.client.ListIssues(g.owner, g.repo, github.ListIssuesOptions{
		State:     "all",
		Since:     since,
		Sort:      "updated",
		Direction: "asc",
		PerPage:   100,
	})
	var issues []Issue
	for {
		page, err := iterator.Next(ctx)
		if err != nil {
			return nil, classify("list issues", 0, err)
		}
		if page == nil {
			return issues, nil
		}
		for i := range page {
			if page[i].PullRequest != nil {
				continue
			}
			issues = append(issues, fromGitHub(&page[i]))
		}
	}
}

// SetLabels implements [Client].
func (g *GitHub) SetLabels(ctx context.Context, number int, labels []string) error {
	if _, err := g.client.ReplaceIssueLabels(ctx, g.owner, g.repo, number, labels); err != nil {
		return classify("set labels", number, err)
	}
	return nil
}

// ListRepositoryLabels implements [Client].
func (g *GitHub) ListRepositoryLabels(ctx context.Context) ([]Label, error) {
	remote, err := g.client.ListLabels(g.owner, g.repo).Collect(ctx)
	if err != nil {
		return nil, classify("list labels", 0, err)
	}
	labels := make([]Label, len(remote))
	for i, label := range remote {
		labels[i] = Label{Name: label.Name, Color: label.Color, Description: label.Description}
	}
	return labels, nil
}

// CreateLabel implements [Client].
func (g *GitHub) CreateLabel(ctx context.Context, label Label) error {
	_, err := g.client.CreateLabel(ctx, g.owner, g.repo, github.Label{
		Name:        label.Name,
		Color:       label.Color,
		Description: label.Description,
	})
	if err != nil {
		return classify("create label "+label.Name, 0, err)
	}
	return nil
}

// CreateIssue implements [Client].
func (g *GitHub) CreateIssue(ctx context.Context, title, body string, labels []string) (Issue, error) {
	issue, err := g.client.CreateIssue(ctx, g.owner, g.repo, github.CreateIssueRequest{
		Title:  title,
		Body:   body,
		Labels: labels,
	})
	if err != nil {
		return Issue{}, classify("create issue", 0, err)
	}
	return fromGitHub(issue), nil
}

func fromGitHub(issue *github.Issue) Issue {
	return Issue{
		Number:    issue.Number,
		Title:     issue.Title,
		Body:      issue.Body,
		Labels:    issue.LabelNames(),
		UpdatedAt: issue.UpdatedAt,
		URL:       issue.HTMLURL,
	}
}

// classify maps lib/github errors onto the tracker's kinds. The client
// does not retry a POST on a server error, since the request may have
// created the issue; the 5xx still means the remote is unavailable.
func classify(op string, number int, err error) error {
	var unavailable *github.UnavailableError
	var apiErr *github.APIError
	switch {
	case errors.As(err, &unavailable):
		return &RemoteUnavailableError{Op: op, Number: number, RetryAfter: unavailable.RetryAfter, Err: err}
	case errors.As(err, &apiErr) && apiErr.StatusCode >= http.StatusInternalServerError:
		return &RemoteUnavailableError{Op: op, Number: number, Err: err}
	case github.IsNotFound(err):
		return fmt.Errorf("tracker: %s #%d: %w: %w", op, number, ErrNotFound, err)
	default:
		return fmt.Errorf("tracker: %s: %w", op, err)
	}
}
