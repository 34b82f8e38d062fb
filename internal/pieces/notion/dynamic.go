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
	"time"

	"github.com/pieceflow/pieceflow/pkg/piece"
	"github.com/pieceflow/pieceflow/pkg/piece/polling"
)

// clientFactory builds an API client from a connection token. Tests swap
// it for a factory pointed at a local server.
type clientFactory func(token string) (*Client, error)

// databaseProperty returns the database picker shared by every action and
// trigger that targets a database. Options are the databases shared with
// the integration.
func databaseProperty(factory clientFactory) piece.Property {
	return piece.Property{
		Name:        "database_id",
		DisplayName: "Database",
		Description: "The database to operate on. Only databases shared with the integration appear here.",
		Kind:        piece.KindDynamicDropdown,
		Required:    true,
		Refreshers:  []string{piece.AuthProperty},
		FetchOptions: func(ctx context.Context, auth string, _ map[string]interface{}) (*piece.DropdownState, error) {
			client, err := factory(auth)
			if err != nil {
				return nil, err
			}

			var options []piece.Option
			cursor := ""
			for {
				databases, next, hasMore, err := client.SearchDatabases(ctx, "", cursor)
				if err != nil {
					return nil, err
				}
				for _, db := range databases {
					options = append(options, piece.Option{Label: db.DisplayTitle(), Value: db.ID})
				}
				if !hasMore {
					break
				}
				cursor = next
			}

			if len(options) == 0 {
				return piece.DisabledDropdown("No databases found. Share a database with the integration in Notion."), nil
			}
			return &piece.DropdownState{Options: options}, nil
		},
	}
}

// databaseFieldsProperty returns the dynamic field group whose sub-form
// mirrors the selected database's writable columns.
func databaseFieldsProperty(factory clientFactory) piece.Property {
	return piece.Property{
		Name:        "fields",
		DisplayName: "Fields",
		Description: "Values for the database's columns.",
		Kind:        piece.KindDynamicGroup,
		Required:    true,
		Refreshers:  []string{piece.AuthProperty, "database_id"},
		FetchProps: func(ctx context.Context, auth string, refreshers map[string]interface{}) (*piece.PropertyMap, error) {
			databaseID, _ := refreshers["database_id"].(string)

			client, err := factory(auth)
			if err != nil {
				return nil, err
			}

			db, err := client.RetrieveDatabase(ctx, databaseID)
			if err != nil {
				return nil, err
			}
			return propertiesFromSchema(db)
		},
	}
}

// databaseItemProperty returns a picker over a database's existing rows,
// used by the update action. Row labels come from the title column.
func databaseItemProperty(factory clientFactory) piece.Property {
	return piece.Property{
		Name:        "database_item_id",
		DisplayName: "Item",
		Description: "The database item to update.",
		Kind:        piece.KindDynamicDropdown,
		Required:    true,
		Refreshers:  []string{piece.AuthProperty, "database_id"},
		FetchOptions: func(ctx context.Context, auth string, refreshers map[string]interface{}) (*piece.DropdownState, error) {
			databaseID, _ := refreshers["database_id"].(string)

			client, err := factory(auth)
			if err != nil {
				return nil, err
			}

			rows, _, _, err := client.QueryDatabase(ctx, databaseID, map[string]interface{}{
				"page_size": 100,
			})
			if err != nil {
				return nil, err
			}

			options := make([]piece.Option, 0, len(rows))
			for _, row := range rows {
				id, _ := row["id"].(string)
				options = append(options, piece.Option{Label: rowTitle(row), Value: id})
			}

			if len(options) == 0 {
				return piece.DisabledDropdown("The selected database has no items yet."), nil
			}
			return &piece.DropdownState{Options: options}, nil
		},
	}
}

// rowTitle extracts the plain text of a row's title column.
func rowTitle(row map[string]interface{}) string {
	props, _ := row["properties"].(map[string]interface{})
	for _, raw := range props {
		col, _ := raw.(map[string]interface{})
		if col["type"] != "title" {
			continue
		}
		runs, _ := col["title"].([]interface{})
		var title string
		for _, r := range runs {
			run, _ := r.(map[string]interface{})
			text, _ := run["plain_text"].(string)
			title += text
		}
		if title != "" {
			return title
		}
	}
	return "Untitled"
}

// fetchItemsSorted queries a database sorted ascending on the given
// timestamp field and converts rows into poll items keyed on that field.
// When sinceMillis is non-zero the query carries a server-side timestamp
// filter, and rows at or below the watermark are dropped locally as well
// in case the service rounds timestamps coarser than the cursor. A test
// poll samples just the first page instead of walking the full result
// set.
func fetchItemsSorted(ctx context.Context, client *Client, databaseID, timestampField string, sinceMillis int64, maxPages int, sample bool) ([]polling.Item, error) {
	fetch := func(ctx context.Context, cursor string) (polling.Page, error) {
		query := map[string]interface{}{
			"sorts": []map[string]string{
				{"timestamp": timestampField, "direction": "ascending"},
			},
			"page_size": 100,
		}
		if sinceMillis > 0 {
			query["filter"] = map[string]interface{}{
				"timestamp": timestampField,
				timestampField: map[string]string{
					"after": time.UnixMilli(sinceMillis).UTC().Format(time.RFC3339),
				},
			}
		}
		if cursor != "" {
			query["start_cursor"] = cursor
		}

		rows, next, hasMore, err := client.QueryDatabase(ctx, databaseID, query)
		if err != nil {
			return polling.Page{}, err
		}

		page := polling.Page{NextCursor: next, HasMore: hasMore}
		for _, row := range rows {
			item, err := rowToItem(row, timestampField)
			if err != nil {
				return polling.Page{}, err
			}
			if sinceMillis > 0 && item.Timestamp.UnixMilli() <= sinceMillis {
				continue
			}
			page.Items = append(page.Items, item)
		}
		return page, nil
	}

	if sample {
		page, err := fetch(ctx, "")
		if err != nil {
			return nil, err
		}
		return page.Items, nil
	}
	return polling.FetchAll(ctx, fetch, maxPages)
}
