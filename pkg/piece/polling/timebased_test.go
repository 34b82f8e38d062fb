package polling

import (
	"testing"
	"time"
)

func TestDedupeTimeBasedFirstRunSeedsWatermark(t *testing.T) {
	// First run fetches descending (most recent first) so the first page
	// establishes the high-water mark.
	newest := mustTime(t, "2024-05-02T00:00:00Z")
	items := []Item{
		{ID: "newest", Timestamp: newest},
		{ID: "oldest", Timestamp: mustTime(t, "2024-05-01T00:00:00Z")},
	}

	res := DedupeTimeBased(items, 0)

	if res.NextCursorMillis != newest.UnixMilli() {
		t.Errorf("NextCursorMillis = %d, want %d", res.NextCursorMillis, newest.UnixMilli())
	}
	if len(res.NewItems) != 0 {
		t.Errorf("first run must not emit items, got %d", len(res.NewItems))
	}
}

func TestDedupeTimeBasedEmitsItemsAboveWatermark(t *testing.T) {
	watermark := mustTime(t, "2024-05-01T00:00:00Z").UnixMilli()
	items := []Item{
		{ID: "a", Timestamp: mustTime(t, "2024-05-01T01:00:00Z")},
		{ID: "b", Timestamp: mustTime(t, "2024-05-01T02:00:00Z")},
	}

	res := DedupeTimeBased(items, watermark)

	if len(res.NewItems) != 2 {
		t.Fatalf("NewItems count = %d, want 2", len(res.NewItems))
	}
	want := mustTime(t, "2024-05-01T02:00:00Z").UnixMilli()
	if res.NextCursorMillis != want {
		t.Errorf("NextCursorMillis = %d, want %d", res.NextCursorMillis, want)
	}
}

func TestDedupeTimeBasedDropsItemsAtOrBelowWatermark(t *testing.T) {
	watermark := mustTime(t, "2024-05-01T02:00:00Z").UnixMilli()
	items := []Item{
		{ID: "boundary", Timestamp: mustTime(t, "2024-05-01T02:00:00Z")},
		{ID: "stale", Timestamp: mustTime(t, "2024-05-01T01:00:00Z")},
		{ID: "fresh", Timestamp: mustTime(t, "2024-05-01T03:00:00Z")},
	}

	res := DedupeTimeBased(items, watermark)

	if len(res.NewItems) != 1 || res.NewItems[0].ID != "fresh" {
		t.Errorf("NewItems = %v, want [fresh]", res.NewItems)
	}
}

func TestDedupeTimeBasedEmptyBatchIsIdempotent(t *testing.T) {
	cursor := int64(1714000000000)

	res := DedupeTimeBased([]Item{}, cursor)

	if res.NextCursorMillis != cursor {
		t.Errorf("NextCursorMillis = %d, want unchanged %d", res.NextCursorMillis, cursor)
	}
	if len(res.NewItems) != 0 {
		t.Errorf("NewItems = %v, want empty", res.NewItems)
	}
}

func TestDedupeTimeBasedWatermarkNeverDecreases(t *testing.T) {
	cursor := time.Now().UnixMilli()
	items := []Item{
		{ID: "old", Timestamp: time.UnixMilli(cursor - 60_000)},
	}

	res := DedupeTimeBased(items, cursor)

	if res.NextCursorMillis < cursor {
		t.Errorf("watermark went backwards: %d < %d", res.NextCursorMillis, cursor)
	}
}
