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

// Database is a Notion database object, trimmed to the fields the piece
// reads.
type Database struct {
	ID         string                    `json:"id"`
	Title      []RichText                `json:"title"`
	Properties map[string]SchemaProperty `json:"properties"`
}

// DisplayTitle flattens the database title's rich text runs.
func (d *Database) DisplayTitle() string {
	var title string
	for _, rt := range d.Title {
		title += rt.PlainText
	}
	if title == "" {
		title = "Untitled"
	}
	return title
}

// RichText is one run of Notion rich text.
type RichText struct {
	PlainText string `json:"plain_text"`
}

// SchemaProperty is one column definition in a database schema.
type SchemaProperty struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	Select      *SelectSchema `json:"select,omitempty"`
	MultiSelect *SelectSchema `json:"multi_select,omitempty"`
	Status      *SelectSchema `json:"status,omitempty"`
}

// SelectSchema holds the declared options of a select-like column.
type SelectSchema struct {
	Options []SelectOption `json:"options"`
}

// SelectOption is one declared option of a select-like column.
type SelectOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User is a Notion workspace user.
type User struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Type   string  `json:"type"`
	Person *Person `json:"person,omitempty"`
}

// Person holds the person-specific part of a user object.
type Person struct {
	Email string `json:"email"`
}
