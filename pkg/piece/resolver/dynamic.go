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

package resolver

import (
	"context"
	"fmt"

	"github.com/pieceflow/pieceflow/pkg/piece"
)

// DynamicResult is the outcome of resolving one dynamic property: either a
// dropdown state (dynamic dropdowns, and any failure path) or a resolved
// sub-property map (dynamic groups).
type DynamicResult struct {
	// Dropdown is set for dynamic dropdown properties and for every
	// degraded outcome.
	Dropdown *piece.DropdownState

	// Props is set when a dynamic group resolved its sub-fields.
	Props *piece.PropertyMap
}

// Disabled reports whether the result is a disabled placeholder.
func (r DynamicResult) Disabled() bool {
	return r.Dropdown != nil && r.Dropdown.Disabled
}

// ResolveDynamic resolves a dynamic property against the current refresher
// values.
//
// Auth is an implicit refresher of every dynamic fetch, whether or not the
// property declares it. If auth or any declared refresher is unset (absent
// key, nil value, or an empty auth token, such as a parent dropdown not
// yet chosen or a missing connection), the resolver short-circuits to a
// disabled placeholder without attempting the network call. A fetch
// failure likewise maps to a disabled placeholder: dynamic property
// resolution must never crash form rendering, so no error is ever
// returned to the caller.
func ResolveDynamic(ctx context.Context, prop piece.Property, refresherValues map[string]interface{}) DynamicResult {
	auth, _ := refresherValues[piece.AuthProperty].(string)
	if auth == "" {
		return DynamicResult{Dropdown: piece.DisabledDropdown(unsetPlaceholder(piece.AuthProperty))}
	}

	for _, ref := range prop.Refreshers {
		if ref == piece.AuthProperty {
			continue
		}
		v, ok := refresherValues[ref]
		if !ok || v == nil {
			return DynamicResult{Dropdown: piece.DisabledDropdown(unsetPlaceholder(ref))}
		}
	}

	switch prop.Kind {
	case piece.KindDynamicDropdown:
		if prop.FetchOptions == nil {
			return DynamicResult{Dropdown: piece.DisabledDropdown("No options available")}
		}
		state, err := prop.FetchOptions(ctx, auth, refresherValues)
		if err != nil {
			return DynamicResult{Dropdown: piece.DisabledDropdown(fetchFailedPlaceholder(err))}
		}
		return DynamicResult{Dropdown: state}

	case piece.KindDynamicGroup:
		if prop.FetchProps == nil {
			return DynamicResult{Dropdown: piece.DisabledDropdown("No fields available")}
		}
		props, err := prop.FetchProps(ctx, auth, refresherValues)
		if err != nil {
			return DynamicResult{Dropdown: piece.DisabledDropdown(fetchFailedPlaceholder(err))}
		}
		return DynamicResult{Props: props}

	default:
		prop.Kind.MustValidate()
		return DynamicResult{Dropdown: piece.DisabledDropdown("Property is not dynamic")}
	}
}

func unsetPlaceholder(refresher string) string {
	if refresher == piece.AuthProperty {
		return "Connect your account first"
	}
	return fmt.Sprintf("Select a %s first", refresher)
}

func fetchFailedPlaceholder(err error) string {
	return fmt.Sprintf("Unable to load options: %v", err)
}
