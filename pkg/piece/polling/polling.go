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

// Package polling converts raw batches of remotely fetched items into
// deduplicated, cursor-advancing result sets for polling triggers.
//
// Two dedupe strategies exist and are fixed per trigger:
//
//   - LastItem tracks a composite "<id>|<epochMillis>" cursor of the last
//     seen item.
//   - TimeBased tracks a bare epoch-millis watermark.
//
// Cursors are monotonically non-decreasing across polls. The cursor for a
// cycle is only advanced after every page of the cycle was fetched
// successfully; a mid-pagination failure aborts the whole cycle so no item
// is silently skipped.
package polling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Strategy selects the dedupe strategy for a polling trigger.
type Strategy string

const (
	// StrategyLastItem tracks the last seen item's composite id+timestamp.
	StrategyLastItem Strategy = "LAST_ITEM"

	// StrategyTimeBased tracks only a timestamp watermark.
	StrategyTimeBased Strategy = "TIMEBASED"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyLastItem || s == StrategyTimeBased
}

// Item is one remote record (page, database row, comment) from a poll
// fetch. Items are transient: held only long enough to build the next
// cursor and emit results, never cached across poll cycles.
type Item struct {
	// ID is the remote record identifier.
	ID string

	// Timestamp is the record's created_time or last_edited_time,
	// depending on the trigger's semantics.
	Timestamp time.Time

	// Data is the raw record payload emitted to the flow.
	Data map[string]interface{}
}

// Key returns the item's composite dedupe key "<id>|<epochMillis>".
func (it Item) Key() string {
	return it.ID + "|" + strconv.FormatInt(it.Timestamp.UnixMilli(), 10)
}

// LastItemCursor is the decoded form of a LastItem strategy cursor.
type LastItemCursor struct {
	// ID is the last seen item's identifier.
	ID string

	// TimestampMillis is the last seen item's timestamp in epoch millis.
	TimestampMillis int64
}

// String encodes the cursor to its wire form "<id>|<epochMillis>".
func (c LastItemCursor) String() string {
	return c.ID + "|" + strconv.FormatInt(c.TimestampMillis, 10)
}

// ParseLastItemCursor decodes a "<id>|<epochMillis>" cursor string.
// The id portion may itself contain '|'; the timestamp is everything after
// the final separator.
func ParseLastItemCursor(s string) (LastItemCursor, error) {
	idx := strings.LastIndex(s, "|")
	if idx < 0 {
		return LastItemCursor{}, fmt.Errorf("malformed cursor %q: missing separator", s)
	}

	millis, err := strconv.ParseInt(s[idx+1:], 10, 64)
	if err != nil {
		return LastItemCursor{}, fmt.Errorf("malformed cursor %q: %w", s, err)
	}

	return LastItemCursor{ID: s[:idx], TimestampMillis: millis}, nil
}
