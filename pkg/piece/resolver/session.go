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
	"reflect"
	"sync"

	"github.com/pieceflow/pieceflow/pkg/piece"
)

// State is the resolution state of one dynamic property.
type State string

const (
	// StateIdle means resolution has not been attempted yet.
	StateIdle State = "idle"

	// StateLoading means a resolution fetch is in flight.
	StateLoading State = "loading"

	// StateResolved means options or sub-fields are available.
	StateResolved State = "resolved"

	// StateDisabled means the property degraded to a disabled placeholder
	// (unmet refreshers or a failed fetch). There is no error terminal
	// state; fetch errors map here.
	StateDisabled State = "disabled"
)

// Session holds the form state for one step configuration: resolved
// values, per-dynamic-property resolution state, and the request tokens
// that implement last-request-wins for in-flight fetches.
//
// All mutations are serialized through the session's mutex; callers hold
// no locks of their own.
type Session struct {
	mu sync.Mutex

	props  *piece.PropertyMap
	values map[string]interface{}

	states  map[string]State
	results map[string]DynamicResult

	// tokens holds the latest issued fetch token per dynamic property.
	// Tokens increase monotonically; a completing fetch whose token is no
	// longer the latest is stale and its result is discarded.
	tokens  map[string]uint64
	counter uint64
}

// NewSession validates the map and resolves static values, optionally
// pre-populated from existing input.
func NewSession(m *piece.PropertyMap, existing map[string]interface{}) (*Session, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		props:   m,
		values:  ResolveStatic(m, existing),
		states:  make(map[string]State),
		results: make(map[string]DynamicResult),
		tokens:  make(map[string]uint64),
	}

	m.Each(func(p piece.Property) bool {
		if p.Kind.IsDynamic() {
			s.states[p.Name] = StateIdle
		}
		return true
	})

	return s, nil
}

// SetAuth stores the auth credential and returns the dynamic properties
// that must re-resolve because they refresh on auth.
func (s *Session) SetAuth(auth string) []string {
	return s.SetValue(piece.AuthProperty, auth)
}

// SetValue updates one property value and returns the names of dynamic
// properties that must re-resolve because they list the property as a
// refresher.
//
// Comparison is by deep value equality, not reference: setting the same
// value again is a no-op, so a change burst triggers Loading exactly once.
// For each affected dynamic property the current value and any resolved
// sub-field values are cleared before the refetch; stale sub-values from a
// previous parent selection are structurally invalid for the new one.
func (s *Session) SetValue(name string, value interface{}) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name != piece.AuthProperty {
		if _, ok := s.props.Get(name); !ok && !s.isSubFieldLocked(name) {
			return nil
		}
	}

	if current, ok := s.values[name]; ok && reflect.DeepEqual(current, value) {
		return nil
	}
	s.values[name] = value

	dependents := s.props.Dependents(name)
	for _, dep := range dependents {
		s.clearLocked(dep)
		s.states[dep] = StateLoading
		s.counter++
		s.tokens[dep] = s.counter
	}
	return dependents
}

// isSubFieldLocked reports whether name is a sub-field of a resolved
// dynamic group. Sub-fields become settable once their group resolves.
func (s *Session) isSubFieldLocked(name string) bool {
	for _, res := range s.results {
		if res.Props == nil {
			continue
		}
		if _, ok := res.Props.Get(name); ok {
			return true
		}
	}
	return false
}

// clearLocked resets a dynamic property's value, resolved result, and the
// values of any previously resolved sub-fields.
func (s *Session) clearLocked(name string) {
	s.values[name] = nil

	if res, ok := s.results[name]; ok && res.Props != nil {
		res.Props.Each(func(sub piece.Property) bool {
			delete(s.values, sub.Name)
			return true
		})
	}
	delete(s.results, name)
}

// Begin snapshots the refresher values for a dynamic property fetch and
// issues its request token. ok is false when the property is unknown or
// not dynamic.
func (s *Session) Begin(name string) (token uint64, refresherValues map[string]interface{}, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, found := s.props.Get(name)
	if !found || !p.Kind.IsDynamic() {
		return 0, nil, false
	}

	s.states[name] = StateLoading
	s.counter++
	s.tokens[name] = s.counter

	// Auth rides along even when undeclared; every dynamic fetch needs it.
	refresherValues = make(map[string]interface{}, len(p.Refreshers)+1)
	if v, present := s.values[piece.AuthProperty]; present {
		refresherValues[piece.AuthProperty] = v
	}
	for _, ref := range p.Refreshers {
		if v, present := s.values[ref]; present {
			refresherValues[ref] = v
		}
	}

	return s.tokens[name], refresherValues, true
}

// Complete records a fetch outcome. Returns false and discards the result
// when the token is stale: a newer request was issued for the property
// while this fetch was in flight (last-request-wins, not
// first-response-wins).
func (s *Session) Complete(name string, token uint64, result DynamicResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens[name] != token {
		return false
	}

	s.results[name] = result
	if result.Disabled() {
		s.states[name] = StateDisabled
	} else {
		s.states[name] = StateResolved
	}
	return true
}

// Resolve runs the full Begin -> ResolveDynamic -> Complete cycle
// synchronously for one dynamic property and returns its result.
func (s *Session) Resolve(ctx context.Context, name string) DynamicResult {
	token, refresherValues, ok := s.Begin(name)
	if !ok {
		return DynamicResult{Dropdown: piece.DisabledDropdown("Unknown dynamic property")}
	}

	p, _ := s.props.Get(name)
	result := ResolveDynamic(ctx, p, refresherValues)
	s.Complete(name, token, result)
	return result
}

// State returns the resolution state of a dynamic property.
func (s *Session) State(name string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[name]; ok {
		return st
	}
	return StateIdle
}

// Result returns the last recorded resolution result for a property.
func (s *Session) Result(name string) (DynamicResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.results[name]
	return res, ok
}

// Value returns the current value of a property.
func (s *Session) Value(name string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[name]
}

// Values returns a copy of the current form values, excluding the auth
// pseudo-property.
func (s *Session) Values() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		if k == piece.AuthProperty {
			continue
		}
		out[k] = v
	}
	return out
}

// Valid reports whether the form is submittable: every required,
// non-dynamic property has a non-nil value.
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FormValid(s.props, s.values)
}
