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
	"github.com/pieceflow/pieceflow/pkg/errors"
)

// PropertyMap is an insertion-ordered mapping from property name to
// Property. Form rendering and static resolution iterate in declaration
// order, so order is part of the contract.
type PropertyMap struct {
	order []string
	props map[string]Property
}

// NewPropertyMap builds a PropertyMap from the given properties in order.
// Returns a ValidationError for duplicate names, unknown kinds,
// self-refreshers, or refreshers naming properties absent from the map
// (AuthProperty is always allowed).
func NewPropertyMap(props ...Property) (*PropertyMap, error) {
	m := &PropertyMap{
		order: make([]string, 0, len(props)),
		props: make(map[string]Property, len(props)),
	}

	for _, p := range props {
		if err := m.Add(p); err != nil {
			return nil, err
		}
	}

	if err := m.validateRefreshers(); err != nil {
		return nil, err
	}

	return m, nil
}

// MustPropertyMap is like NewPropertyMap but panics on error. Intended for
// compiled-in piece definitions where a bad map is a programmer error.
func MustPropertyMap(props ...Property) *PropertyMap {
	m, err := NewPropertyMap(props...)
	if err != nil {
		panic(err)
	}
	return m
}

// Add appends a property, rejecting duplicates and unknown kinds.
// Refresher references are not checked here; call Validate (or build the
// map through NewPropertyMap) once all properties are added.
func (m *PropertyMap) Add(p Property) error {
	if p.Name == "" {
		return &errors.ValidationError{
			Field:   "name",
			Message: "property name cannot be empty",
		}
	}
	if !p.Kind.Valid() {
		return &errors.ValidationError{
			Field:   p.Name,
			Message: "unknown property kind: " + string(p.Kind),
		}
	}
	if _, exists := m.props[p.Name]; exists {
		return &errors.ValidationError{
			Field:   p.Name,
			Message: "duplicate property name",
		}
	}

	if m.props == nil {
		m.props = make(map[string]Property)
	}
	m.order = append(m.order, p.Name)
	m.props[p.Name] = p
	return nil
}

// Validate checks refresher references on all properties.
func (m *PropertyMap) Validate() error {
	return m.validateRefreshers()
}

func (m *PropertyMap) validateRefreshers() error {
	for _, name := range m.order {
		p := m.props[name]
		for _, ref := range p.Refreshers {
			if ref == name {
				return &errors.ValidationError{
					Field:      name,
					Message:    "property lists itself as a refresher",
					Suggestion: "remove the self-reference; a property cannot depend on its own value",
				}
			}
			if ref == AuthProperty {
				continue
			}
			if _, ok := m.props[ref]; !ok {
				return &errors.ValidationError{
					Field:   name,
					Message: "refresher references unknown property: " + ref,
				}
			}
		}
	}
	return nil
}

// Get returns the property with the given name.
func (m *PropertyMap) Get(name string) (Property, bool) {
	p, ok := m.props[name]
	return p, ok
}

// Names returns the property names in insertion order. The returned slice
// is a copy.
func (m *PropertyMap) Names() []string {
	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// Len returns the number of properties in the map.
func (m *PropertyMap) Len() int {
	return len(m.order)
}

// Each calls fn for every property in insertion order. Iteration stops if
// fn returns false.
func (m *PropertyMap) Each(fn func(p Property) bool) {
	for _, name := range m.order {
		if !fn(m.props[name]) {
			return
		}
	}
}

// Dependents returns the names of dynamic properties that list the given
// property (or AuthProperty) among their refreshers, in insertion order.
func (m *PropertyMap) Dependents(name string) []string {
	var out []string
	for _, n := range m.order {
		p := m.props[n]
		for _, ref := range p.Refreshers {
			if ref == name {
				out = append(out, n)
				break
			}
		}
	}
	return out
}
