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
	"github.com/pieceflow/pieceflow/pkg/piece"
)

// New assembles the Notion piece against the production API.
func New() *piece.Piece {
	return NewWithFactory(NewClientWithToken)
}

// NewWithFactory assembles the piece with a custom client factory. Tests
// use it to point the piece at a local server.
func NewWithFactory(factory clientFactory) *piece.Piece {
	return &piece.Piece{
		Name:        "notion",
		DisplayName: "Notion",
		Description: "Workspace pages, databases and comments.",
		Version:     "0.2.0",
		Auth:        piece.AuthOAuth2,
		Actions: []*piece.Action{
			createDatabaseItemAction(factory),
			updateDatabaseItemAction(factory),
			createPageAction(factory),
			appendToPageAction(factory),
			getPageMarkdownAction(factory),
			createCommentAction(factory),
			findDatabaseItemsAction(factory),
			findUserAction(factory),
		},
		Triggers: []*piece.Trigger{
			newDatabaseItemTrigger(factory),
			updatedDatabaseItemTrigger(factory),
			newCommentTrigger(factory),
		},
	}
}
