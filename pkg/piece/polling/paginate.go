// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package polling

import (
	"context"
	"fmt"
)

// DefaultMaxPages caps the pages fetched in one poll cycle. A remote API
// that keeps reporting has_more would otherwise drive unbounded work.
const DefaultMaxPages = 50

// Page is one page of results from a cursor-paginated remote list call.
type Page struct {
	// Items are the records on this page.
	Items []Item

	// NextCursor is the remote pagination token for the next page.
	NextCursor string

	// HasMore indicates the remote API has further pages.
	HasMore bool
}

// FetchPageFunc fetches one page. cursor is empty for the first page.
type FetchPageFunc func(ctx context.Context, cursor string) (Page, error)

// FetchAll accumulates every page of a poll cycle.
//
// Any page failure aborts the whole cycle: the caller must not advance its
// dedupe cursor, so the failed window is retried intact on the next poll.
// maxPages <= 0 applies DefaultMaxPages; exceeding the cap is treated as a
// failed cycle too.
func FetchAll(ctx context.Context, fetch FetchPageFunc, maxPages int) ([]Item, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var items []Item
	cursor := ""

	for page := 1; ; page++ {
		if page > maxPages {
			return nil, fmt.Errorf("pagination exceeded %d pages; aborting poll cycle", maxPages)
		}

		p, err := fetch(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetching page %d: %w", page, err)
		}

		items = append(items, p.Items...)

		if !p.HasMore {
			return items, nil
		}
		cursor = p.NextCursor
	}
}
