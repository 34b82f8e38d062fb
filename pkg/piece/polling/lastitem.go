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

// LastItemResult is the outcome of a LastItem dedupe pass.
type LastItemResult struct {
	// NewItems are the items to emit as new events, in remote order.
	NewItems []Item

	// NextCursor is the "<id>|<epochMillis>" cursor to persist for the
	// next poll. Equal to the previous cursor when nothing advanced.
	NextCursor string
}

// DedupeLastItem applies the LastItem strategy to a fetched batch.
//
// previousCursor is the persisted "<id>|<epochMillis>" cursor, or empty on
// first run. serverFiltered indicates the fetch was already parameterized
// by a server-side timestamp filter (only items after the cursor's
// timestamp were returned).
//
// On first run without a server-side filter, every fetched item counts as
// already seen: the cursor is seeded from the newest item but nothing is
// emitted, so enabling a trigger never replays history. Otherwise every
// fetched item is new and the cursor advances to the key of the item with
// the maximum timestamp.
//
// Items sharing the maximum timestamp keep remote order; the first one
// encountered wins the cursor. The returned cursor's timestamp never
// decreases below the previous cursor's.
func DedupeLastItem(items []Item, previousCursor string, serverFiltered bool) (LastItemResult, error) {
	var prev *LastItemCursor
	if previousCursor != "" {
		c, err := ParseLastItemCursor(previousCursor)
		if err != nil {
			return LastItemResult{}, err
		}
		prev = &c
	}

	newest := newestItem(items)

	// First run with an unfiltered fetch: seed the cursor, emit nothing.
	if prev == nil && !serverFiltered {
		res := LastItemResult{NewItems: []Item{}}
		if newest != nil {
			res.NextCursor = newest.Key()
		}
		return res, nil
	}

	result := LastItemResult{
		NewItems:   items,
		NextCursor: previousCursor,
	}
	if result.NewItems == nil {
		result.NewItems = []Item{}
	}

	if newest == nil {
		return result, nil
	}

	// Cursor timestamps are monotonically non-decreasing across polls.
	if prev != nil && newest.Timestamp.UnixMilli() < prev.TimestampMillis {
		return result, nil
	}

	result.NextCursor = newest.Key()
	return result, nil
}

// newestItem returns the item with the maximum timestamp, preserving remote
// order between equal timestamps (the earlier occurrence wins).
func newestItem(items []Item) *Item {
	var newest *Item
	for i := range items {
		if newest == nil || items[i].Timestamp.After(newest.Timestamp) {
			newest = &items[i]
		}
	}
	return newest
}
