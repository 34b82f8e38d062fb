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

// Package builder holds the shared mutable state of one flow-builder
// session: the step list, the selected step, the sidebar mode, and each
// step's form session with dirty tracking.
//
// All state transitions go through typed methods on Store; components
// never mutate fields directly. This is the single-writer substitute for
// the frontend's client-side store.
package builder

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pieceflow/pieceflow/pkg/errors"
	"github.com/pieceflow/pieceflow/pkg/piece"
	"github.com/pieceflow/pieceflow/pkg/piece/resolver"
)

// SidebarMode identifies which right-hand sidebar panel is open.
type SidebarMode string

const (
	// SidebarNone means no sidebar is open.
	SidebarNone SidebarMode = "none"

	// SidebarPieceSelector shows the piece/operation catalog.
	SidebarPieceSelector SidebarMode = "piece_selector"

	// SidebarStepSettings shows the selected step's configuration form.
	SidebarStepSettings SidebarMode = "step_settings"

	// SidebarCopilot shows the AI copilot panel.
	SidebarCopilot SidebarMode = "copilot"
)

// StepKind distinguishes trigger steps from action steps.
type StepKind string

const (
	StepTrigger StepKind = "trigger"
	StepAction  StepKind = "action"
)

// Step is one configured flow step.
type Step struct {
	// ID is the step's stable identifier within the session.
	ID string

	// Kind marks the step as the flow's trigger or an action.
	Kind StepKind

	// PieceName and Operation identify the configured piece operation.
	PieceName string
	Operation string

	// Session is the step's form state.
	Session *resolver.Session

	// Dirty marks unsaved form edits.
	Dirty bool
}

// Store is the builder session state container.
type Store struct {
	mu sync.RWMutex

	registry *piece.Registry

	steps map[string]*Step
	order []string

	selected string
	sidebar  SidebarMode
}

// NewStore creates an empty builder session over the given piece catalog.
func NewStore(registry *piece.Registry) *Store {
	return &Store{
		registry: registry,
		steps:    make(map[string]*Step),
		sidebar:  SidebarNone,
	}
}

// Registry returns the piece catalog this session builds against.
func (s *Store) Registry() *piece.Registry {
	return s.registry
}

// AddStep appends a step configured with the named piece operation and
// selects it. The step's form session is resolved from the operation's
// property map.
func (s *Store) AddStep(kind StepKind, pieceName, operation string) (*Step, error) {
	props, err := s.operationProps(kind, pieceName, operation)
	if err != nil {
		return nil, err
	}

	session, err := resolver.NewSession(props, nil)
	if err != nil {
		return nil, err
	}

	step := &Step{
		ID:        uuid.NewString(),
		Kind:      kind,
		PieceName: pieceName,
		Operation: operation,
		Session:   session,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.steps[step.ID] = step
	s.order = append(s.order, step.ID)
	s.selected = step.ID
	s.sidebar = SidebarStepSettings
	return step, nil
}

// SelectStep makes the given step current and opens its settings panel.
func (s *Store) SelectStep(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.steps[id]; !ok {
		return &errors.NotFoundError{Resource: "step", ID: id}
	}
	s.selected = id
	s.sidebar = SidebarStepSettings
	return nil
}

// SelectedStep returns the current step, or nil if none is selected.
func (s *Store) SelectedStep() *Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.steps[s.selected]
}

// SetSidebar switches the sidebar panel.
func (s *Store) SetSidebar(mode SidebarMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sidebar = mode
}

// Sidebar returns the current sidebar mode.
func (s *Store) Sidebar() SidebarMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sidebar
}

// Steps returns the steps in flow order.
func (s *Store) Steps() []*Step {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Step, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.steps[id])
	}
	return out
}

// UpdateInput sets one property value on a step's form, marks the step
// dirty, and returns the dynamic properties that must re-resolve.
func (s *Store) UpdateInput(stepID, property string, value interface{}) ([]string, error) {
	s.mu.Lock()
	step, ok := s.steps[stepID]
	s.mu.Unlock()
	if !ok {
		return nil, &errors.NotFoundError{Resource: "step", ID: stepID}
	}

	changed := step.Session.SetValue(property, value)

	s.mu.Lock()
	step.Dirty = true
	s.mu.Unlock()
	return changed, nil
}

// SwitchOperation reconfigures a step to a different piece operation. The
// previous form session is discarded entirely: values from the old
// operation's property map are structurally invalid for the new one.
func (s *Store) SwitchOperation(stepID string, kind StepKind, pieceName, operation string) error {
	props, err := s.operationProps(kind, pieceName, operation)
	if err != nil {
		return err
	}

	session, err := resolver.NewSession(props, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.steps[stepID]
	if !ok {
		return &errors.NotFoundError{Resource: "step", ID: stepID}
	}

	step.Kind = kind
	step.PieceName = pieceName
	step.Operation = operation
	step.Session = session
	step.Dirty = true
	return nil
}

// MarkSaved clears a step's dirty flag after the backend persisted it.
func (s *Store) MarkSaved(stepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.steps[stepID]
	if !ok {
		return &errors.NotFoundError{Resource: "step", ID: stepID}
	}
	step.Dirty = false
	return nil
}

func (s *Store) operationProps(kind StepKind, pieceName, operation string) (*piece.PropertyMap, error) {
	p, err := s.registry.Get(pieceName)
	if err != nil {
		return nil, err
	}

	switch kind {
	case StepAction:
		a, err := p.Action(operation)
		if err != nil {
			return nil, err
		}
		return a.Props, nil
	case StepTrigger:
		t, err := p.Trigger(operation)
		if err != nil {
			return nil, err
		}
		return t.Props, nil
	default:
		return nil, fmt.Errorf("unknown step kind: %s", kind)
	}
}
