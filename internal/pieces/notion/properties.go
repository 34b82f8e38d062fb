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
	"fmt"

	"github.com/pieceflow/pieceflow/pkg/errors"
	"github.com/pieceflow/pieceflow/pkg/piece"
)

// propertiesFromSchema converts a database's column schema into a form
// property map. Read-only and unsupported column types are skipped; the
// form only shows fields a create or update call can actually write.
func propertiesFromSchema(db *Database) (*piece.PropertyMap, error) {
	m, err := piece.NewPropertyMap()
	if err != nil {
		return nil, err
	}

	for name, col := range db.Properties {
		prop, ok := propertyFromColumn(name, col)
		if !ok {
			continue
		}
		if err := m.Add(prop); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// propertyFromColumn maps one column definition to a form property. The
// second return value is false for column types that cannot be written
// through the API.
func propertyFromColumn(name string, col SchemaProperty) (piece.Property, bool) {
	prop := piece.Property{
		Name:        name,
		DisplayName: name,
	}

	switch col.Type {
	case "title":
		prop.Kind = piece.KindShortText
		prop.Required = true
	case "rich_text":
		prop.Kind = piece.KindLongText
	case "number":
		prop.Kind = piece.KindNumber
	case "checkbox":
		prop.Kind = piece.KindCheckbox
	case "select":
		prop.Kind = piece.KindStaticDropdown
		prop.Options = selectOptions(col.Select)
	case "status":
		prop.Kind = piece.KindStaticDropdown
		prop.Options = selectOptions(col.Status)
	case "multi_select":
		prop.Kind = piece.KindMultiSelect
		prop.Options = selectOptions(col.MultiSelect)
	case "date":
		prop.Kind = piece.KindShortText
		prop.Description = "ISO 8601 date or date-time"
	case "url", "email", "phone_number":
		prop.Kind = piece.KindShortText
	default:
		// created_time, last_edited_time, formula, rollup, files,
		// relation, people and the rest are read-only or need richer
		// payloads than a flat form value.
		return piece.Property{}, false
	}

	return prop, true
}

func selectOptions(s *SelectSchema) []piece.Option {
	if s == nil {
		return nil
	}
	opts := make([]piece.Option, 0, len(s.Options))
	for _, o := range s.Options {
		opts = append(opts, piece.Option{Label: o.Name, Value: o.Name})
	}
	return opts
}

// buildPageProperties converts form values into a Notion page-properties
// payload, using the database schema to pick each column's payload shape.
// Nil values are skipped so an update call leaves untouched columns alone.
func buildPageProperties(db *Database, values map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(values))

	for name, value := range values {
		if value == nil {
			continue
		}

		col, ok := db.Properties[name]
		if !ok {
			return nil, &errors.ValidationError{
				Field:   name,
				Message: "no such column in the selected database",
			}
		}

		payload, err := columnPayload(name, col, value)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			out[name] = payload
		}
	}
	return out, nil
}

// columnPayload builds the API payload for one column value.
func columnPayload(name string, col SchemaProperty, value interface{}) (interface{}, error) {
	switch col.Type {
	case "title":
		s, err := stringValue(name, value)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"title": []map[string]interface{}{{"text": map[string]string{"content": s}}},
		}, nil
	case "rich_text":
		s, err := stringValue(name, value)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"rich_text": []map[string]interface{}{{"text": map[string]string{"content": s}}},
		}, nil
	case "number":
		n, ok := value.(float64)
		if !ok {
			if i, isInt := value.(int); isInt {
				n = float64(i)
			} else {
				return nil, &errors.ValidationError{Field: name, Message: "expected a number"}
			}
		}
		return map[string]interface{}{"number": n}, nil
	case "checkbox":
		b, ok := value.(bool)
		if !ok {
			return nil, &errors.ValidationError{Field: name, Message: "expected a boolean"}
		}
		return map[string]interface{}{"checkbox": b}, nil
	case "select":
		s, err := stringValue(name, value)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"select": map[string]string{"name": s}}, nil
	case "status":
		s, err := stringValue(name, value)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": map[string]string{"name": s}}, nil
	case "multi_select":
		names, err := stringSlice(name, value)
		if err != nil {
			return nil, err
		}
		tags := make([]map[string]string, 0, len(names))
		for _, n := range names {
			tags = append(tags, map[string]string{"name": n})
		}
		return map[string]interface{}{"multi_select": tags}, nil
	case "date":
		s, err := stringValue(name, value)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"date": map[string]string{"start": s}}, nil
	case "url":
		s, err := stringValue(name, value)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"url": s}, nil
	case "email":
		s, err := stringValue(name, value)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"email": s}, nil
	case "phone_number":
		s, err := stringValue(name, value)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"phone_number": s}, nil
	default:
		return nil, &errors.ValidationError{
			Field:   name,
			Message: fmt.Sprintf("column type %q cannot be written", col.Type),
		}
	}
}

func stringValue(field string, value interface{}) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", &errors.ValidationError{Field: field, Message: "expected a string"}
	}
	return s, nil
}

func stringSlice(field string, value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &errors.ValidationError{Field: field, Message: "expected a list of strings"}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &errors.ValidationError{Field: field, Message: "expected a list of strings"}
	}
}
