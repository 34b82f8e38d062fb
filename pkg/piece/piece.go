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

	"github.com/pieceflow/pieceflow/pkg/errors"
	"github.com/pieceflow/pieceflow/pkg/piece/polling"
)

// AuthKind describes how a piece authenticates against its service.
type AuthKind string

const (
	// AuthSecret is a static integration secret or API key.
	AuthSecret AuthKind = "secret"

	// AuthOAuth2 is an OAuth2 access token obtained out of band.
	AuthOAuth2 AuthKind = "oauth2"
)

// RunContext carries the resolved inputs for one action execution.
type RunContext struct {
	// Auth is the resolved credential (access token or secret).
	Auth string

	// Props are the resolved property values, keyed by property name.
	Props map[string]interface{}
}

// PollRequest carries the inputs for one trigger poll cycle.
type PollRequest struct {
	// Auth is the resolved credential.
	Auth string

	// Props are the resolved trigger property values.
	Props map[string]interface{}

	// LastCursor is the persisted dedupe cursor: "<id>|<epochMillis>" for
	// LastItem triggers, a bare epoch-millis string for TimeBased ones.
	// Empty on first run.
	LastCursor string

	// Test marks a test poll: fetch a small recent sample without
	// advancing any cursor.
	Test bool

	// MaxPages caps pagination for this cycle (0 = default).
	MaxPages int
}

// Action is a declarative operation a piece exposes to the builder.
type Action struct {
	// Name is the unique action identifier within the piece.
	Name string

	// DisplayName is the human-readable label shown in the builder.
	DisplayName string

	// Description explains what the action does.
	Description string

	// Props declares the action's configurable inputs.
	Props *PropertyMap

	// Run executes the action with resolved inputs and returns the JSON
	// payload passed to subsequent flow steps.
	Run func(ctx context.Context, rc RunContext) (interface{}, error)
}

// TriggerType identifies how a trigger detects events.
type TriggerType string

// TriggerPolling detects events by periodically querying the remote API
// and diffing against a saved cursor.
const TriggerPolling TriggerType = "POLLING"

// PollingDescriptor declares the dedupe strategy and fetch logic of a
// polling trigger.
type PollingDescriptor struct {
	// Strategy is fixed per trigger and never mixed across polls.
	Strategy polling.Strategy

	// Items fetches the raw batch for one poll cycle, already filtered
	// server-side by the request cursor where the remote API supports it.
	Items func(ctx context.Context, req PollRequest) ([]polling.Item, error)
}

// Trigger is a declarative event source a piece exposes to the builder.
type Trigger struct {
	// Name is the unique trigger identifier within the piece.
	Name string

	// DisplayName is the human-readable label shown in the builder.
	DisplayName string

	// Description explains when the trigger fires.
	Description string

	// Type is the trigger mechanism. Only polling is supported here;
	// webhook push delivery is owned by the backend.
	Type TriggerType

	// Props declares the trigger's configurable inputs.
	Props *PropertyMap

	// Polling describes the dedupe strategy and fetch for polling triggers.
	Polling *PollingDescriptor
}

// Piece is a connector module exposing typed actions and triggers for one
// external service.
type Piece struct {
	// Name is the unique piece identifier (e.g., "notion").
	Name string

	// DisplayName is the human-readable piece name.
	DisplayName string

	// Description summarizes the integrated service.
	Description string

	// Version is the piece's semantic version.
	Version string

	// Auth describes the credential the piece expects.
	Auth AuthKind

	// Actions lists the piece's actions in catalog order.
	Actions []*Action

	// Triggers lists the piece's triggers in catalog order.
	Triggers []*Trigger
}

// Action returns the named action.
func (p *Piece) Action(name string) (*Action, error) {
	for _, a := range p.Actions {
		if a.Name == name {
			return a, nil
		}
	}
	return nil, &errors.NotFoundError{Resource: "action", ID: p.Name + "/" + name}
}

// Trigger returns the named trigger.
func (p *Piece) Trigger(name string) (*Trigger, error) {
	for _, t := range p.Triggers {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, &errors.NotFoundError{Resource: "trigger", ID: p.Name + "/" + name}
}

// Validate checks the piece's declared structure: non-empty name, valid
// property maps, and coherent polling descriptors.
func (p *Piece) Validate() error {
	if p.Name == "" {
		return &errors.ValidationError{Field: "name", Message: "piece name cannot be empty"}
	}

	for _, a := range p.Actions {
		if a.Name == "" {
			return &errors.ValidationError{Field: p.Name, Message: "action name cannot be empty"}
		}
		if a.Props != nil {
			if err := a.Props.Validate(); err != nil {
				return err
			}
		}
		if a.Run == nil {
			return &errors.ValidationError{Field: p.Name + "/" + a.Name, Message: "action has no run function"}
		}
	}

	for _, t := range p.Triggers {
		if t.Name == "" {
			return &errors.ValidationError{Field: p.Name, Message: "trigger name cannot be empty"}
		}
		if t.Type != TriggerPolling {
			return &errors.ValidationError{
				Field:   p.Name + "/" + t.Name,
				Message: "unsupported trigger type: " + string(t.Type),
			}
		}
		if t.Polling == nil || t.Polling.Items == nil {
			return &errors.ValidationError{
				Field:   p.Name + "/" + t.Name,
				Message: "polling trigger has no polling descriptor",
			}
		}
		if !t.Polling.Strategy.Valid() {
			return &errors.ValidationError{
				Field:   p.Name + "/" + t.Name,
				Message: "unknown dedupe strategy: " + string(t.Polling.Strategy),
			}
		}
		if t.Props != nil {
			if err := t.Props.Validate(); err != nil {
				return err
			}
		}
	}

	return nil
}
