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

// TimeBasedResult is the outcome of a TimeBased dedupe pass.
type TimeBasedResult struct {
	// NewItems are the items to emit as new events, in remote order.
	NewItems []Item

	// NextCursorMillis is the watermark to persist for the next poll.
	// Unchanged from the previous cursor when the batch is empty.
	NextCursorMillis int64
}

// DedupeTimeBased applies the TimeBased strategy to a fetched batch.
//
// previousCursorMillis is the persisted epoch-millis watermark; 0 means
// first run. On first run the caller fetches the most recent page in
// descending order so the batch establishes a sane high-water mark without
// a historical scan; the watermark is seeded and nothing is emitted.
// Subsequent runs fetch ascending from the watermark so boundary items
// sharing a timestamp are not skipped.
//
// Items at or below the watermark are always dropped, even when the remote
// fetch already filters server-side. An empty batch leaves the
// watermark unchanged, so re-running with no items is idempotent.
func DedupeTimeBased(items []Item, previousCursorMillis int64) TimeBasedResult {
	result := TimeBasedResult{
		NewItems:         []Item{},
		NextCursorMillis: previousCursorMillis,
	}

	for _, it := range items {
		millis := it.Timestamp.UnixMilli()
		if millis > result.NextCursorMillis {
			result.NextCursorMillis = millis
		}
		if previousCursorMillis > 0 && millis > previousCursorMillis {
			result.NewItems = append(result.NewItems, it)
		}
	}

	return result
}
