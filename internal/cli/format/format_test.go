package format

import (
	"strings"
	"testing"
)

func TestTableAlignsColumns(t *testing.T) {
	out := Table(
		[]string{"NAME", "KIND"},
		[][]string{
			{"database_id", "dynamic_dropdown"},
			{"title", "short_text"},
		},
	)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), out)
	}

	if !strings.HasPrefix(lines[0], "NAME") {
		t.Errorf("header missing: %q", lines[0])
	}
	if !strings.Contains(lines[2], "dynamic_dropdown") {
		t.Errorf("row missing: %q", lines[2])
	}

	// The KIND column starts at the same offset in every row.
	headerIdx := strings.Index(lines[0], "KIND")
	rowIdx := strings.Index(lines[3], "short_text")
	if headerIdx != rowIdx {
		t.Errorf("columns misaligned: header at %d, row at %d", headerIdx, rowIdx)
	}
}

func TestTablePadsShortRows(t *testing.T) {
	out := Table([]string{"A", "B"}, [][]string{{"only"}})
	if !strings.Contains(out, "only") {
		t.Errorf("short row dropped:\n%s", out)
	}
}

func TestJSONIndents(t *testing.T) {
	out, err := JSON(map[string]interface{}{"name": "notion"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "  \"name\": \"notion\"") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestIsTTYRespectsNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if IsTTY() {
		t.Error("expected false with NO_COLOR set")
	}
}

func TestIsTTYRejectsDumbTerm(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("TERM", "dumb")
	if IsTTY() {
		t.Error("expected false with TERM=dumb")
	}
}
