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

package piece

import (
	"context"
	"fmt"
)

// Kind identifies the closed set of property kinds. Dispatch over Kind is
// an exhaustive switch; an unknown Kind is a programmer error and panics.
type Kind string

const (
	KindShortText       Kind = "short_text"
	KindLongText        Kind = "long_text"
	KindNumber          Kind = "number"
	KindCheckbox        Kind = "checkbox"
	KindStaticDropdown  Kind = "static_dropdown"
	KindDynamicDropdown Kind = "dynamic_dropdown"
	KindMultiSelect     Kind = "multi_select"
	KindObject          Kind = "object"
	KindArray           Kind = "array"
	KindJSON            Kind = "json"
	KindMarkdown        Kind = "markdown"
	KindDynamicGroup    Kind = "dynamic_group"
)

// AuthProperty is the implicit pseudo-property name that dynamic properties
// may list as a refresher. It is always considered present in a PropertyMap.
const AuthProperty = "auth"

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindShortText, KindLongText, KindNumber, KindCheckbox,
		KindStaticDropdown, KindDynamicDropdown, KindMultiSelect,
		KindObject, KindArray, KindJSON, KindMarkdown, KindDynamicGroup:
		return true
	}
	return false
}

// IsDynamic reports whether properties of this kind require a network fetch
// to resolve their options or sub-fields.
func (k Kind) IsDynamic() bool {
	return k == KindDynamicDropdown || k == KindDynamicGroup
}

// MustValidate panics if k is not a known kind. Property kinds come from
// piece definitions compiled into the binary or validated manifests, so an
// unknown kind here is a bug, not a runtime condition.
func (k Kind) MustValidate() {
	if !k.Valid() {
		panic(fmt.Sprintf("piece: unsupported property kind: %q", k))
	}
}

// Option is one selectable entry in a dropdown or multi-select property.
type Option struct {
	Label string      `json:"label"`
	Value interface{} `json:"value"`
}

// DropdownState is the resolved state of a dynamic dropdown property.
// When a required refresher is unset or the options fetch fails, the
// dropdown degrades to a disabled placeholder instead of an error; dynamic
// resolution failures must never break form rendering.
type DropdownState struct {
	// Disabled indicates the dropdown cannot currently be used.
	Disabled bool `json:"disabled"`

	// Placeholder explains why the dropdown is disabled or what to select.
	Placeholder string `json:"placeholder,omitempty"`

	// Options are the selectable entries. Empty when disabled.
	Options []Option `json:"options"`
}

// DisabledDropdown returns a disabled DropdownState with the given
// explanatory placeholder.
func DisabledDropdown(placeholder string) *DropdownState {
	return &DropdownState{
		Disabled:    true,
		Placeholder: placeholder,
		Options:     []Option{},
	}
}

// OptionsFunc fetches dropdown options for a dynamic dropdown property.
// refresherValues holds the current values of the property's declared
// refreshers, keyed by property name (AuthProperty for the auth token).
type OptionsFunc func(ctx context.Context, auth string, refresherValues map[string]interface{}) (*DropdownState, error)

// PropsFunc fetches the sub-properties of a dynamic group property.
type PropsFunc func(ctx context.Context, auth string, refresherValues map[string]interface{}) (*PropertyMap, error)

// Property describes one configurable input field on an action or trigger.
type Property struct {
	// Name is the unique key within the PropertyMap.
	Name string

	// DisplayName is the human-readable label shown in the builder.
	DisplayName string

	// Description is shown as help text under the field.
	Description string

	// Kind selects the field type and its default-value semantics.
	Kind Kind

	// Required marks the field as mandatory for a valid form.
	Required bool

	// Default is the declared default value, or nil if none.
	Default interface{}

	// Options lists the choices for static dropdown and multi-select kinds.
	Options []Option

	// Refreshers is the ordered list of property names whose value changes
	// trigger re-resolution of this (dynamic) property. May include
	// AuthProperty. A property must not refresh on itself.
	Refreshers []string

	// FetchOptions resolves options for dynamic dropdown properties.
	FetchOptions OptionsFunc

	// FetchProps resolves sub-fields for dynamic group properties.
	FetchProps PropsFunc
}

// DefaultValue returns the form default for the property: the declared
// default when present, otherwise the kind-specific zero value. Single
// select dropdowns default to nil (explicit null) so the form stays invalid
// until the user picks a value.
func (p Property) DefaultValue() interface{} {
	if p.Default != nil {
		return p.Default
	}

	switch p.Kind {
	case KindShortText, KindLongText, KindMarkdown, KindJSON:
		return ""
	case KindCheckbox:
		return false
	case KindMultiSelect, KindArray:
		return []interface{}{}
	case KindObject, KindDynamicGroup:
		return map[string]interface{}{}
	case KindNumber, KindStaticDropdown, KindDynamicDropdown:
		return nil
	default:
		p.Kind.MustValidate()
		return nil
	}
}
