// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// ListLabels iterates over every label defined in the repository.
func (client *Client) ListLabels(owner, repo string) *PageIterator[Label] {
	path := fmt.Sprintf("/repos/%s/%s/labels?per_page=100", url.PathEscape(owner), url.PathEscape(repo))
	return listPages[Label](client, path)
}

// CreateLabel defines a new repository label. Color is six hex digits
// with or without a leading '#'.
func (client *Client) CreateLabel(ctx context.Context, owner, repo string, label Label) (*Label, error) {
	label.Color = strings.TrimPrefix(label.Color, "#")
	var created Label
	path := fmt.Sprintf("/repos/%s/%s/labels", url.PathEscape(owner), url.PathEscape(repo))
	if err := client.post(ctx, path, label, &created); err != nil {
		return nil, fmt.Errorf("creating label %q in %s/%s: %w", label.Name, owner, repo, err)
	}
	return &created, nil
}
