// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// PageIterator fetches a paginated endpoint one page at a time,
// following the Link rel="next" URL. Not safe for concurrent use.
type PageIterator[T any] struct {
	client  *Client
	nextURL string
}

func listPages[T any](client *Client, path string) *PageIterator[T] {
	return &PageIterator[T]{client: client, nextURL: client.baseURL + path}
}

// Next returns the next page. Returns nil, nil after the last page.
// Each page goes through the same retry and rate-limit handling as any
// other request.
func (iterator *PageIterator[T]) Next(ctx context.Context) ([]T, error) {
	if iterator.nextURL == "" {
		return nil, nil
	}
	resp, err := iterator.client.send(ctx, http.MethodGet, iterator.nextURL, nil)
	if err != nil {
		return nil, err
	}

	var items []T
	if err := json.Unmarshal(resp.body, &items); err != nil {
		return nil, fmt.Errorf("github: decoding page: %w", err)
	}
	iterator.nextURL = parseLinkNext(resp.header.Get("Link"))
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Collect fetches every remaining page.
func (iterator *PageIterator[T]) Collect(ctx context.Context) ([]T, error) {
	var all []T
	for {
		items, err := iterator.Next(ctx)
		if err != nil {
			return all, err
		}
		if items == nil {
			return all, nil
		}
		all = append(all, items...)
	}
}

// parseLinkNext extracts the rel="next" URL from an RFC 5988 Link
// header:
//
//	<https://api.github.com/...?page=2>; rel="next", <...>; rel="last"
func parseLinkNext(header string) string {
	for part := range strings.SplitSeq(header, ",") {
		target, params, ok := strings.Cut(strings.TrimSpace(part), ";")
		if !ok || !strings.Contains(params, `rel="next"`) {
			continue
		}
		target = strings.TrimSpace(target)
		if strings.HasPrefix(target, "<") && strings.HasSuffix(target, ">") {
			return target[1 : len(target)-1]
		}
	}
	return ""
}
