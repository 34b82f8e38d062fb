package polling

import (
	"strconv"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestDedupeLastItemFirstRunSeedsCursor(t *testing.T) {
	items := []Item{
		{ID: "a", Timestamp: mustTime(t, "2024-01-01T00:00:00Z")},
		{ID: "b", Timestamp: mustTime(t, "2024-01-02T00:00:00Z")},
	}

	res, err := DedupeLastItem(items, "", false)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.NewItems) != 0 {
		t.Errorf("first run must not replay history, got %d items", len(res.NewItems))
	}

	wantCursor := "b|" + millisString(t, "2024-01-02T00:00:00Z")
	if res.NextCursor != wantCursor {
		t.Errorf("NextCursor = %q, want %q", res.NextCursor, wantCursor)
	}
}

func TestDedupeLastItemServerFilteredFirstRun(t *testing.T) {
	// When the fetch itself was parameterized by a server-side timestamp
	// filter, all returned items are genuinely new even on first run.
	items := []Item{
		{ID: "a", Timestamp: mustTime(t, "2024-01-01T00:00:00Z")},
	}

	res, err := DedupeLastItem(items, "", true)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.NewItems) != 1 || res.NewItems[0].ID != "a" {
		t.Fatalf("NewItems = %v, want [a]", res.NewItems)
	}

	wantCursor := "a|" + millisString(t, "2024-01-01T00:00:00Z")
	if res.NextCursor != wantCursor {
		t.Errorf("NextCursor = %q, want %q", res.NextCursor, wantCursor)
	}
}

func TestDedupeLastItemEmitsAllFetchedItems(t *testing.T) {
	prev := LastItemCursor{ID: "old", TimestampMillis: mustTime(t, "2024-01-01T00:00:00Z").UnixMilli()}
	items := []Item{
		{ID: "n1", Timestamp: mustTime(t, "2024-01-03T00:00:00Z")},
		{ID: "n2", Timestamp: mustTime(t, "2024-01-02T00:00:00Z")},
	}

	res, err := DedupeLastItem(items, prev.String(), true)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.NewItems) != 2 {
		t.Fatalf("NewItems count = %d, want 2", len(res.NewItems))
	}
	// Remote order preserved, not re-sorted.
	if res.NewItems[0].ID != "n1" || res.NewItems[1].ID != "n2" {
		t.Errorf("remote order not preserved: %v", res.NewItems)
	}
	if res.NextCursor != items[0].Key() {
		t.Errorf("NextCursor = %q, want key of max-timestamp item %q", res.NextCursor, items[0].Key())
	}
}

func TestDedupeLastItemCursorNeverDecreases(t *testing.T) {
	prev := LastItemCursor{ID: "x", TimestampMillis: mustTime(t, "2024-06-01T00:00:00Z").UnixMilli()}

	// Batch contains only items older than the cursor (remote clock skew).
	items := []Item{
		{ID: "stale", Timestamp: mustTime(t, "2024-01-01T00:00:00Z")},
	}

	res, err := DedupeLastItem(items, prev.String(), true)
	if err != nil {
		t.Fatal(err)
	}

	got, err := ParseLastItemCursor(res.NextCursor)
	if err != nil {
		t.Fatal(err)
	}
	if got.TimestampMillis < prev.TimestampMillis {
		t.Errorf("cursor went backwards: %d < %d", got.TimestampMillis, prev.TimestampMillis)
	}
}

func TestDedupeLastItemEmptyBatchKeepsCursor(t *testing.T) {
	prev := LastItemCursor{ID: "x", TimestampMillis: 1700000000000}

	res, err := DedupeLastItem(nil, prev.String(), true)
	if err != nil {
		t.Fatal(err)
	}

	if res.NextCursor != prev.String() {
		t.Errorf("NextCursor = %q, want unchanged %q", res.NextCursor, prev.String())
	}
	if len(res.NewItems) != 0 {
		t.Errorf("NewItems = %v, want empty", res.NewItems)
	}
}

func TestDedupeLastItemMalformedCursor(t *testing.T) {
	if _, err := DedupeLastItem(nil, "no-separator", true); err == nil {
		t.Error("expected error for malformed cursor")
	}
	if _, err := DedupeLastItem(nil, "id|not-a-number", true); err == nil {
		t.Error("expected error for non-numeric timestamp")
	}
}

func TestDedupeLastItemSameTimestampTieBreak(t *testing.T) {
	ts := mustTime(t, "2024-03-01T12:00:00Z")
	items := []Item{
		{ID: "first", Timestamp: ts},
		{ID: "second", Timestamp: ts},
	}

	res, err := DedupeLastItem(items, "old|0", true)
	if err != nil {
		t.Fatal(err)
	}

	// Remote order is preserved and the first max-timestamp item wins the cursor.
	if res.NextCursor != items[0].Key() {
		t.Errorf("NextCursor = %q, want %q", res.NextCursor, items[0].Key())
	}
}

func TestParseLastItemCursorRoundTrip(t *testing.T) {
	c := LastItemCursor{ID: "4f1c|odd-id", TimestampMillis: 1704067200000}

	parsed, err := ParseLastItemCursor(c.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != c {
		t.Errorf("round trip = %+v, want %+v", parsed, c)
	}
}

func millisString(t *testing.T, rfc string) string {
	t.Helper()
	return strconv.FormatInt(mustTime(t, rfc).UnixMilli(), 10)
}
