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

// Package resolver turns declarative property maps into concrete form
// state.
//
// Static resolution applies defaults and previously entered input in map
// order. Dynamic resolution fetches options or sub-fields for properties
// whose choices depend on other property values; it degrades to a disabled
// placeholder on any failure so the form layer never sees an error. A
// Session tracks per-property resolution state across refresher changes
// with last-request-wins semantics.
package resolver

import (
	"github.com/pieceflow/pieceflow/pkg/piece"
)

// ResolveStatic produces form values for every property in the map, in map
// order. A key present in existing wins even when its value is nil:
// explicit nulls are legitimate values and are preserved, only absent keys
// fall back to the kind default.
//
// The output keys exactly match the map's property names; no extra keys
// are introduced and none are omitted. Unknown property kinds panic (a
// malformed kind is a programmer error, not a runtime condition).
func ResolveStatic(m *piece.PropertyMap, existing map[string]interface{}) map[string]interface{} {
	values := make(map[string]interface{}, m.Len())

	m.Each(func(p piece.Property) bool {
		if v, ok := existing[p.Name]; ok {
			values[p.Name] = v
			return true
		}
		values[p.Name] = p.DefaultValue()
		return true
	})

	return values
}

// FormValid reports whether the resolved values form a submittable form:
// every required, non-dynamic property must have a non-nil value. Dynamic
// properties are excluded because their validity depends on resolution
// state, not raw values.
func FormValid(m *piece.PropertyMap, values map[string]interface{}) bool {
	valid := true
	m.Each(func(p piece.Property) bool {
		if p.Required && !p.Kind.IsDynamic() && values[p.Name] == nil {
			valid = false
			return false
		}
		return true
	})
	return valid
}
