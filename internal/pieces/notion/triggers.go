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
	"time"

	"github.com/pieceflow/pieceflow/pkg/errors"
	"github.com/pieceflow/pieceflow/pkg/piece"
	"github.com/pieceflow/pieceflow/pkg/piece/polling"
)

// rowToItem converts a database row into a poll item keyed on the given
// timestamp field ("created_time" or "last_edited_time").
func rowToItem(row map[string]interface{}, timestampField string) (polling.Item, error) {
	id, _ := row["id"].(string)
	if id == "" {
		return polling.Item{}, fmt.Errorf("row has no id")
	}

	raw, _ := row[timestampField].(string)
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return polling.Item{}, fmt.Errorf("parsing %s of row %s: %w", timestampField, id, err)
	}

	return polling.Item{ID: id, Timestamp: ts, Data: row}, nil
}

// commentToItem converts a comment object into a poll item keyed on its
// creation time.
func commentToItem(comment map[string]interface{}) (polling.Item, error) {
	id, _ := comment["id"].(string)
	if id == "" {
		return polling.Item{}, fmt.Errorf("comment has no id")
	}

	raw, _ := comment["created_time"].(string)
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return polling.Item{}, fmt.Errorf("parsing created_time of comment %s: %w", id, err)
	}

	return polling.Item{ID: id, Timestamp: ts, Data: comment}, nil
}

// newDatabaseItemTrigger fires for each row added to the selected
// database.
func newDatabaseItemTrigger(factory clientFactory) *piece.Trigger {
	return &piece.Trigger{
		Name:        "new_database_item",
		DisplayName: "New Database Item",
		Description: "Fires when an item is created in the selected database.",
		Type:        piece.TriggerPolling,
		Props:       piece.MustPropertyMap(databaseProperty(factory)),
		Polling: &piece.PollingDescriptor{
			Strategy: polling.StrategyLastItem,
			Items:    databaseItemsFetch(factory, "created_time"),
		},
	}
}

// updatedDatabaseItemTrigger fires for each edit to a row of the selected
// database. The same row can fire repeatedly as it keeps changing.
func updatedDatabaseItemTrigger(factory clientFactory) *piece.Trigger {
	return &piece.Trigger{
		Name:        "updated_database_item",
		DisplayName: "Updated Database Item",
		Description: "Fires when an item in the selected database is edited.",
		Type:        piece.TriggerPolling,
		Props:       piece.MustPropertyMap(databaseProperty(factory)),
		Polling: &piece.PollingDescriptor{
			Strategy: polling.StrategyLastItem,
			Items:    databaseItemsFetch(factory, "last_edited_time"),
		},
	}
}

// databaseItemsFetch builds the poll fetch for a database trigger keyed on
// the given timestamp field. The persisted cursor's timestamp narrows the
// query so a poll only fetches rows newer than the last emitted one.
func databaseItemsFetch(factory clientFactory, timestampField string) func(context.Context, piece.PollRequest) ([]polling.Item, error) {
	return func(ctx context.Context, req piece.PollRequest) ([]polling.Item, error) {
		databaseID, _ := req.Props["database_id"].(string)
		if databaseID == "" {
			return nil, &errors.ValidationError{Field: "database_id", Message: "no database selected"}
		}

		var sinceMillis int64
		if req.LastCursor != "" {
			cursor, err := polling.ParseLastItemCursor(req.LastCursor)
			if err != nil {
				return nil, err
			}
			sinceMillis = cursor.TimestampMillis
		}

		client, err := factory(req.Auth)
		if err != nil {
			return nil, err
		}

		return fetchItemsSorted(ctx, client, databaseID, timestampField, sinceMillis, req.MaxPages, req.Test)
	}
}

// newCommentTrigger fires for each comment added to the selected page.
func newCommentTrigger(factory clientFactory) *piece.Trigger {
	return &piece.Trigger{
		Name:        "new_comment",
		DisplayName: "New Comment",
		Description: "Fires when a comment is added to the selected page.",
		Type:        piece.TriggerPolling,
		Props: piece.MustPropertyMap(piece.Property{
			Name:        "page_id",
			DisplayName: "Page ID",
			Description: "The page whose comments to watch.",
			Kind:        piece.KindShortText,
			Required:    true,
		}),
		Polling: &piece.PollingDescriptor{
			Strategy: polling.StrategyTimeBased,
			Items: func(ctx context.Context, req piece.PollRequest) ([]polling.Item, error) {
				pageID, _ := req.Props["page_id"].(string)
				if pageID == "" {
					return nil, &errors.ValidationError{Field: "page_id", Message: "no page selected"}
				}

				client, err := factory(req.Auth)
				if err != nil {
					return nil, err
				}

				fetch := func(ctx context.Context, cursor string) (polling.Page, error) {
					comments, next, hasMore, err := client.ListComments(ctx, pageID, cursor)
					if err != nil {
						return polling.Page{}, err
					}

					page := polling.Page{NextCursor: next, HasMore: hasMore}
					for _, c := range comments {
						item, err := commentToItem(c)
						if err != nil {
							return polling.Page{}, err
						}
						page.Items = append(page.Items, item)
					}
					return page, nil
				}

				if req.Test {
					page, err := fetch(ctx, "")
					if err != nil {
						return nil, err
					}
					return page.Items, nil
				}
				return polling.FetchAll(ctx, fetch, req.MaxPages)
			},
		},
	}
}
