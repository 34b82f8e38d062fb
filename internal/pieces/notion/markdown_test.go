package notion

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pieceflow/pieceflow/pkg/piece"
)

func TestBlocksToMarkdown(t *testing.T) {
	blocks := []map[string]interface{}{
		block("heading_1", "Project"),
		block("paragraph", "Status update."),
		block("bulleted_list_item", "first"),
		block("numbered_list_item", "one"),
		block("numbered_list_item", "two"),
		{"type": "divider", "divider": map[string]interface{}{}},
		block("quote", "ship it"),
	}

	got := blocksToMarkdown(blocks)
	assert.Equal(t, "# Project\nStatus update.\n- first\n1. one\n2. two\n---\n> ship it", got)
}

func TestBlocksToMarkdownRestartsNumbering(t *testing.T) {
	blocks := []map[string]interface{}{
		block("numbered_list_item", "one"),
		block("paragraph", "break"),
		block("numbered_list_item", "again"),
	}

	got := blocksToMarkdown(blocks)
	assert.Equal(t, "1. one\nbreak\n1. again", got)
}

func TestBlocksToMarkdownToDoAndCode(t *testing.T) {
	todo := block("to_do", "write tests")
	todo["to_do"].(map[string]interface{})["checked"] = true
	code := block("code", "fmt.Println(\"hi\")")
	code["code"].(map[string]interface{})["language"] = "go"

	got := blocksToMarkdown([]map[string]interface{}{todo, code})
	assert.Equal(t, "- [x] write tests\n```go\nfmt.Println(\"hi\")\n```", got)
}

func TestBlocksToMarkdownSkipsUnknownTypes(t *testing.T) {
	blocks := []map[string]interface{}{
		block("paragraph", "kept"),
		{"type": "synced_block", "synced_block": map[string]interface{}{}},
	}
	assert.Equal(t, "kept", blocksToMarkdown(blocks))
}

func TestGetPageMarkdownActionPaginates(t *testing.T) {
	calls := 0
	factory := testFactory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/blocks/page1/children", r.URL.Path)
		if r.URL.Query().Get("start_cursor") == "" {
			w.Write([]byte(`{
				"results": [{"type": "heading_1", "heading_1": {"rich_text": [{"plain_text": "Title"}]}}],
				"next_cursor": "c2",
				"has_more": true
			}`))
			return
		}
		w.Write([]byte(`{
			"results": [{"type": "paragraph", "paragraph": {"rich_text": [{"plain_text": "Body"}]}}],
			"has_more": false
		}`))
	}))

	action := getPageMarkdownAction(factory)
	result, err := action.Run(context.Background(), piece.RunContext{
		Auth:  "tok",
		Props: map[string]interface{}{"page_id": "page1"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, map[string]interface{}{"markdown": "# Title\nBody"}, result)
}

func block(blockType, text string) map[string]interface{} {
	return map[string]interface{}{
		"type": blockType,
		blockType: map[string]interface{}{
			"rich_text": []interface{}{
				map[string]interface{}{"plain_text": text},
			},
		},
	}
}
