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

package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/pieceflow/pieceflow/pkg/errors"
	"github.com/pieceflow/pieceflow/pkg/piece"
)

// maxContentPages bounds the block-children pagination loop.
const maxContentPages = 20

// getPageMarkdownAction fetches a page's block children and renders them
// as markdown.
func getPageMarkdownAction(factory clientFactory) *piece.Action {
	return &piece.Action{
		Name:        "get_page_markdown",
		DisplayName: "Get Page Content",
		Description: "Returns the page's content rendered as markdown.",
		Props: piece.MustPropertyMap(
			piece.Property{
				Name:        "page_id",
				DisplayName: "Page ID",
				Kind:        piece.KindShortText,
				Required:    true,
			},
		),
		Run: func(ctx context.Context, rc piece.RunContext) (interface{}, error) {
			pageID, _ := rc.Props["page_id"].(string)
			if pageID == "" {
				return nil, &errors.ValidationError{Field: "page_id", Message: "no page selected"}
			}

			client, err := factory(rc.Auth)
			if err != nil {
				return nil, err
			}

			var blocks []map[string]interface{}
			cursor := ""
			for page := 0; ; page++ {
				if page >= maxContentPages {
					return nil, &errors.ValidationError{
						Field:   "page_id",
						Message: fmt.Sprintf("page has more than %d batches of blocks", maxContentPages),
					}
				}
				batch, next, hasMore, err := client.ListBlockChildren(ctx, pageID, cursor)
				if err != nil {
					return nil, err
				}
				blocks = append(blocks, batch...)
				if !hasMore {
					break
				}
				cursor = next
			}

			return map[string]interface{}{"markdown": blocksToMarkdown(blocks)}, nil
		},
	}
}

// blocksToMarkdown renders a flat block list as markdown. Block types
// without a markdown shape are skipped.
func blocksToMarkdown(blocks []map[string]interface{}) string {
	var lines []string
	numbered := 0

	for _, block := range blocks {
		blockType, _ := block["type"].(string)
		if blockType != "numbered_list_item" {
			numbered = 0
		}

		switch blockType {
		case "paragraph":
			lines = append(lines, blockText(block, blockType))
		case "heading_1":
			lines = append(lines, "# "+blockText(block, blockType))
		case "heading_2":
			lines = append(lines, "## "+blockText(block, blockType))
		case "heading_3":
			lines = append(lines, "### "+blockText(block, blockType))
		case "bulleted_list_item":
			lines = append(lines, "- "+blockText(block, blockType))
		case "numbered_list_item":
			numbered++
			lines = append(lines, fmt.Sprintf("%d. %s", numbered, blockText(block, blockType)))
		case "to_do":
			marker := "[ ]"
			if body, ok := block[blockType].(map[string]interface{}); ok {
				if checked, _ := body["checked"].(bool); checked {
					marker = "[x]"
				}
			}
			lines = append(lines, "- "+marker+" "+blockText(block, blockType))
		case "quote":
			lines = append(lines, "> "+blockText(block, blockType))
		case "code":
			lang := ""
			if body, ok := block[blockType].(map[string]interface{}); ok {
				lang, _ = body["language"].(string)
			}
			lines = append(lines, "```"+lang, blockText(block, blockType), "```")
		case "divider":
			lines = append(lines, "---")
		}
	}

	return strings.Join(lines, "\n")
}

// blockText flattens a block's rich text runs into plain text.
func blockText(block map[string]interface{}, blockType string) string {
	body, ok := block[blockType].(map[string]interface{})
	if !ok {
		return ""
	}
	runs, ok := body["rich_text"].([]interface{})
	if !ok {
		return ""
	}

	var sb strings.Builder
	for _, run := range runs {
		m, ok := run.(map[string]interface{})
		if !ok {
			continue
		}
		if plain, ok := m["plain_text"].(string); ok {
			sb.WriteString(plain)
		}
	}
	return sb.String()
}
