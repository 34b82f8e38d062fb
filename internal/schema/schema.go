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

// Package schema serializes property maps to JSON-schema-like nodes for
// consumption by the builder's form renderer.
package schema

import (
	"github.com/pieceflow/pieceflow/pkg/piece"
)

// Node is one JSON-schema-like form schema node.
type Node struct {
	// Type is a JSON type name, or a [T, "null"] union for optional
	// properties.
	Type interface{} `json:"type,omitempty"`

	// Title is the property's display name.
	Title string `json:"title,omitempty"`

	// Description is the property's help text.
	Description string `json:"description,omitempty"`

	// Enum lists allowed values for dropdown kinds with static options.
	Enum []interface{} `json:"enum,omitempty"`

	// Default is the declared default value.
	Default interface{} `json:"default,omitempty"`

	// Properties holds sub-nodes for object nodes.
	Properties map[string]*Node `json:"properties,omitempty"`

	// Required lists the names of required sub-properties.
	Required []string `json:"required,omitempty"`

	// Order preserves the property map's insertion order, which JSON
	// objects cannot express.
	Order []string `json:"x-property-order,omitempty"`

	// Kind is the original property kind, for renderers that dispatch on
	// it directly.
	Kind string `json:"x-kind,omitempty"`

	// Dynamic marks properties that resolve through a network fetch.
	Dynamic bool `json:"x-dynamic,omitempty"`

	// Refreshers lists the dependency properties of a dynamic node.
	Refreshers []string `json:"x-refreshers,omitempty"`
}

// FromPropertyMap serializes a property map to an object node. Each
// property becomes a sub-node; required properties are listed in the
// object's required array, and optional ones get a nullable type union.
func FromPropertyMap(m *piece.PropertyMap) *Node {
	node := &Node{
		Type:       "object",
		Properties: make(map[string]*Node, m.Len()),
		Order:      m.Names(),
	}

	m.Each(func(p piece.Property) bool {
		node.Properties[p.Name] = FromProperty(p)
		if p.Required {
			node.Required = append(node.Required, p.Name)
		}
		return true
	})

	return node
}

// FromProperty serializes one property descriptor. Optional properties
// are wrapped as a union with null, since the form treats absent and null
// as distinct from any concrete value.
func FromProperty(p piece.Property) *Node {
	node := &Node{
		Title:       p.DisplayName,
		Description: p.Description,
		Default:     p.Default,
		Kind:        string(p.Kind),
		Dynamic:     p.Kind.IsDynamic(),
	}
	if p.Kind.IsDynamic() {
		node.Refreshers = append([]string(nil), p.Refreshers...)
	}

	baseType := jsonType(p.Kind)
	if p.Required {
		node.Type = baseType
	} else {
		node.Type = []interface{}{baseType, "null"}
	}

	for _, opt := range p.Options {
		node.Enum = append(node.Enum, opt.Value)
	}

	return node
}

// jsonType maps a property kind to its JSON schema type.
func jsonType(k piece.Kind) string {
	switch k {
	case piece.KindShortText, piece.KindLongText, piece.KindMarkdown, piece.KindJSON,
		piece.KindStaticDropdown, piece.KindDynamicDropdown:
		return "string"
	case piece.KindNumber:
		return "number"
	case piece.KindCheckbox:
		return "boolean"
	case piece.KindMultiSelect, piece.KindArray:
		return "array"
	case piece.KindObject, piece.KindDynamicGroup:
		return "object"
	default:
		k.MustValidate()
		return ""
	}
}
