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
	"strings"

	"github.com/pieceflow/pieceflow/pkg/errors"
	"github.com/pieceflow/pieceflow/pkg/piece"
)

// createDatabaseItemAction creates a row in the selected database from the
// dynamic field group.
func createDatabaseItemAction(factory clientFactory) *piece.Action {
	return &piece.Action{
		Name:        "create_database_item",
		DisplayName: "Create Database Item",
		Description: "Adds an item to the selected database.",
		Props: piece.MustPropertyMap(
			databaseProperty(factory),
			databaseFieldsProperty(factory),
		),
		Run: func(ctx context.Context, rc piece.RunContext) (interface{}, error) {
			databaseID, _ := rc.Props["database_id"].(string)
			if databaseID == "" {
				return nil, &errors.ValidationError{Field: "database_id", Message: "no database selected"}
			}
			fields, _ := rc.Props["fields"].(map[string]interface{})

			client, err := factory(rc.Auth)
			if err != nil {
				return nil, err
			}

			db, err := client.RetrieveDatabase(ctx, databaseID)
			if err != nil {
				return nil, err
			}

			properties, err := buildPageProperties(db, fields)
			if err != nil {
				return nil, err
			}

			return client.CreatePage(ctx, map[string]interface{}{
				"parent":     map[string]string{"database_id": databaseID},
				"properties": properties,
			})
		},
	}
}

// updateDatabaseItemAction patches an existing row. A missing item id is a
// configuration error reported before any API call is made.
func updateDatabaseItemAction(factory clientFactory) *piece.Action {
	return &piece.Action{
		Name:        "update_database_item",
		DisplayName: "Update Database Item",
		Description: "Updates the selected database item's fields.",
		Props: piece.MustPropertyMap(
			databaseProperty(factory),
			databaseItemProperty(factory),
			databaseFieldsProperty(factory),
		),
		Run: func(ctx context.Context, rc piece.RunContext) (interface{}, error) {
			databaseID, _ := rc.Props["database_id"].(string)
			if databaseID == "" {
				return nil, &errors.ValidationError{Field: "database_id", Message: "no database selected"}
			}
			itemID, _ := rc.Props["database_item_id"].(string)
			if itemID == "" {
				return nil, &errors.ValidationError{Field: "database_item_id", Message: "no database item selected"}
			}
			fields, _ := rc.Props["fields"].(map[string]interface{})

			client, err := factory(rc.Auth)
			if err != nil {
				return nil, err
			}

			db, err := client.RetrieveDatabase(ctx, databaseID)
			if err != nil {
				return nil, err
			}

			properties, err := buildPageProperties(db, fields)
			if err != nil {
				return nil, err
			}
			return client.UpdatePage(ctx, itemID, properties)
		},
	}
}

// createPageAction creates a plain page under a parent page with optional
// paragraph content.
func createPageAction(factory clientFactory) *piece.Action {
	return &piece.Action{
		Name:        "create_page",
		DisplayName: "Create Page",
		Description: "Creates a page under a parent page.",
		Props: piece.MustPropertyMap(
			piece.Property{
				Name:        "parent_page_id",
				DisplayName: "Parent Page ID",
				Kind:        piece.KindShortText,
				Required:    true,
			},
			piece.Property{
				Name:        "title",
				DisplayName: "Title",
				Kind:        piece.KindShortText,
				Required:    true,
			},
			piece.Property{
				Name:        "content",
				DisplayName: "Content",
				Description: "Optional paragraph content for the new page.",
				Kind:        piece.KindLongText,
			},
		),
		Run: func(ctx context.Context, rc piece.RunContext) (interface{}, error) {
			parentID, _ := rc.Props["parent_page_id"].(string)
			title, _ := rc.Props["title"].(string)
			if parentID == "" {
				return nil, &errors.ValidationError{Field: "parent_page_id", Message: "no parent page selected"}
			}
			if title == "" {
				return nil, &errors.ValidationError{Field: "title", Message: "title cannot be empty"}
			}

			client, err := factory(rc.Auth)
			if err != nil {
				return nil, err
			}

			body := map[string]interface{}{
				"parent": map[string]string{"page_id": parentID},
				"properties": map[string]interface{}{
					"title": map[string]interface{}{
						"title": []map[string]interface{}{{"text": map[string]string{"content": title}}},
					},
				},
			}
			if content, _ := rc.Props["content"].(string); content != "" {
				body["children"] = []map[string]interface{}{paragraphBlock(content)}
			}

			return client.CreatePage(ctx, body)
		},
	}
}

// appendToPageAction appends a paragraph block to a page.
func appendToPageAction(factory clientFactory) *piece.Action {
	return &piece.Action{
		Name:        "append_to_page",
		DisplayName: "Append to Page",
		Description: "Appends text to the end of a page.",
		Props: piece.MustPropertyMap(
			piece.Property{
				Name:        "page_id",
				DisplayName: "Page ID",
				Kind:        piece.KindShortText,
				Required:    true,
			},
			piece.Property{
				Name:        "content",
				DisplayName: "Content",
				Kind:        piece.KindLongText,
				Required:    true,
			},
		),
		Run: func(ctx context.Context, rc piece.RunContext) (interface{}, error) {
			pageID, _ := rc.Props["page_id"].(string)
			content, _ := rc.Props["content"].(string)
			if pageID == "" {
				return nil, &errors.ValidationError{Field: "page_id", Message: "no page selected"}
			}

			client, err := factory(rc.Auth)
			if err != nil {
				return nil, err
			}
			return client.AppendBlockChildren(ctx, pageID, []map[string]interface{}{paragraphBlock(content)})
		},
	}
}

// createCommentAction adds a comment to a page.
func createCommentAction(factory clientFactory) *piece.Action {
	return &piece.Action{
		Name:        "create_comment",
		DisplayName: "Create Comment",
		Description: "Adds a comment to a page.",
		Props: piece.MustPropertyMap(
			piece.Property{
				Name:        "page_id",
				DisplayName: "Page ID",
				Kind:        piece.KindShortText,
				Required:    true,
			},
			piece.Property{
				Name:        "text",
				DisplayName: "Comment",
				Kind:        piece.KindLongText,
				Required:    true,
			},
		),
		Run: func(ctx context.Context, rc piece.RunContext) (interface{}, error) {
			pageID, _ := rc.Props["page_id"].(string)
			text, _ := rc.Props["text"].(string)
			if pageID == "" {
				return nil, &errors.ValidationError{Field: "page_id", Message: "no page selected"}
			}
			if text == "" {
				return nil, &errors.ValidationError{Field: "text", Message: "comment cannot be empty"}
			}

			client, err := factory(rc.Auth)
			if err != nil {
				return nil, err
			}
			return client.CreateComment(ctx, pageID, text)
		},
	}
}

// findDatabaseItemsAction queries rows of a database, optionally filtered
// on one column's value.
func findDatabaseItemsAction(factory clientFactory) *piece.Action {
	return &piece.Action{
		Name:        "find_database_items",
		DisplayName: "Find Database Items",
		Description: "Returns rows of the selected database, optionally filtered on a column value.",
		Props: piece.MustPropertyMap(
			databaseProperty(factory),
			piece.Property{
				Name:        "filter_column",
				DisplayName: "Filter Column",
				Kind:        piece.KindShortText,
			},
			piece.Property{
				Name:        "filter_value",
				DisplayName: "Filter Value",
				Kind:        piece.KindShortText,
			},
		),
		Run: func(ctx context.Context, rc piece.RunContext) (interface{}, error) {
			databaseID, _ := rc.Props["database_id"].(string)
			if databaseID == "" {
				return nil, &errors.ValidationError{Field: "database_id", Message: "no database selected"}
			}

			client, err := factory(rc.Auth)
			if err != nil {
				return nil, err
			}

			query := map[string]interface{}{"page_size": 100}
			column, _ := rc.Props["filter_column"].(string)
			value, _ := rc.Props["filter_value"].(string)
			if column != "" && value != "" {
				filter, err := columnFilter(ctx, client, databaseID, column, value)
				if err != nil {
					return nil, err
				}
				query["filter"] = filter
			}

			rows, _, _, err := client.QueryDatabase(ctx, databaseID, query)
			if err != nil {
				return nil, err
			}
			return rows, nil
		},
	}
}

// findUserAction looks up workspace users by name or email.
func findUserAction(factory clientFactory) *piece.Action {
	return &piece.Action{
		Name:        "find_user",
		DisplayName: "Find User",
		Description: "Finds workspace users by name or email.",
		Props: piece.MustPropertyMap(
			piece.Property{
				Name:        "query",
				DisplayName: "Name or Email",
				Description: "Matches user names case-insensitively; emails must match exactly.",
				Kind:        piece.KindShortText,
				Required:    true,
			},
		),
		Run: func(ctx context.Context, rc piece.RunContext) (interface{}, error) {
			query, _ := rc.Props["query"].(string)
			if query == "" {
				return nil, &errors.ValidationError{Field: "query", Message: "query cannot be empty"}
			}

			client, err := factory(rc.Auth)
			if err != nil {
				return nil, err
			}

			var matches []User
			cursor := ""
			for {
				users, next, hasMore, err := client.ListUsers(ctx, cursor)
				if err != nil {
					return nil, err
				}
				for _, u := range users {
					if userMatches(u, query) {
						matches = append(matches, u)
					}
				}
				if !hasMore {
					break
				}
				cursor = next
			}
			return matches, nil
		},
	}
}

func userMatches(u User, query string) bool {
	if u.Person != nil && u.Person.Email == query {
		return true
	}
	return strings.Contains(strings.ToLower(u.Name), strings.ToLower(query))
}

// columnFilter builds a query filter for one column, dispatching on the
// column's schema type.
func columnFilter(ctx context.Context, client *Client, databaseID, column, value string) (map[string]interface{}, error) {
	db, err := client.RetrieveDatabase(ctx, databaseID)
	if err != nil {
		return nil, err
	}

	col, ok := db.Properties[column]
	if !ok {
		return nil, &errors.ValidationError{Field: "filter_column", Message: "no such column in the selected database"}
	}

	var condition map[string]interface{}
	switch col.Type {
	case "title", "rich_text", "url", "email", "phone_number":
		condition = map[string]interface{}{col.Type: map[string]string{"equals": value}}
	case "select", "status":
		condition = map[string]interface{}{col.Type: map[string]string{"equals": value}}
	case "multi_select":
		condition = map[string]interface{}{"multi_select": map[string]string{"contains": value}}
	case "checkbox":
		condition = map[string]interface{}{"checkbox": map[string]bool{"equals": value == "true"}}
	default:
		return nil, &errors.ValidationError{
			Field:   "filter_column",
			Message: "filtering on column type " + col.Type + " is not supported",
		}
	}

	condition["property"] = column
	return condition, nil
}

func paragraphBlock(text string) map[string]interface{} {
	return map[string]interface{}{
		"object": "block",
		"type":   "paragraph",
		"paragraph": map[string]interface{}{
			"rich_text": []map[string]interface{}{{"text": map[string]string{"content": text}}},
		},
	}
}
