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

// Package manifest loads declarative piece definitions from YAML files.
// A manifest describes an HTTP-backed piece without Go code: its
// properties, request shapes, jq response transforms, and polling
// triggers. Manifest pieces register alongside native pieces and are
// indistinguishable to the builder.
package manifest

import (
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/pieceflow/pieceflow/internal/jq"
	"github.com/pieceflow/pieceflow/pkg/piece"
	"github.com/pieceflow/pieceflow/pkg/piece/polling"
)

// Manifest is one declarative piece definition.
type Manifest struct {
	Version     string            `yaml:"version"`
	Name        string            `yaml:"name"`
	DisplayName string            `yaml:"display_name,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Auth        string            `yaml:"auth,omitempty"`
	BaseURL     string            `yaml:"base_url"`
	Headers     map[string]string `yaml:"headers,omitempty"`

	Actions  map[string]ActionDef  `yaml:"actions,omitempty"`
	Triggers map[string]TriggerDef `yaml:"triggers,omitempty"`
}

// ActionDef is one declarative action.
type ActionDef struct {
	DisplayName string     `yaml:"display_name,omitempty"`
	Description string     `yaml:"description,omitempty"`
	Props       []PropDef  `yaml:"props,omitempty"`
	Request     RequestDef `yaml:"request"`

	// Transform is a jq expression applied to the response body.
	Transform string `yaml:"transform,omitempty"`
}

// TriggerDef is one declarative polling trigger.
type TriggerDef struct {
	DisplayName string     `yaml:"display_name,omitempty"`
	Description string     `yaml:"description,omitempty"`
	Strategy    string     `yaml:"strategy"`
	Props       []PropDef  `yaml:"props,omitempty"`
	Request     RequestDef `yaml:"request"`

	// Items is a jq expression extracting the item array from the
	// response body.
	Items string `yaml:"items"`

	// IDField and TimestampField name the item fields carrying the
	// dedupe identity and event time (RFC 3339).
	IDField        string `yaml:"id_field"`
	TimestampField string `yaml:"timestamp_field"`
}

// PropDef is one declarative property.
type PropDef struct {
	Name        string      `yaml:"name"`
	DisplayName string      `yaml:"display_name,omitempty"`
	Description string      `yaml:"description,omitempty"`
	Kind        string      `yaml:"kind"`
	Required    bool        `yaml:"required,omitempty"`
	Default     interface{} `yaml:"default,omitempty"`
	Options     []OptionDef `yaml:"options,omitempty"`
	Refreshers  []string    `yaml:"refreshers,omitempty"`

	// Validate is an expr expression over `value`; it must evaluate to
	// true for the input to be accepted.
	Validate string `yaml:"validate,omitempty"`

	// OptionsRequest fetches options for dynamic dropdowns.
	OptionsRequest *RequestDef `yaml:"options_request,omitempty"`

	// OptionsTransform is a jq expression mapping the options response
	// to [{label, value}].
	OptionsTransform string `yaml:"options_transform,omitempty"`
}

// OptionDef is one static dropdown option.
type OptionDef struct {
	Label string      `yaml:"label"`
	Value interface{} `yaml:"value"`
}

// RequestDef describes one HTTP request. Path segments may reference
// property values as {name}; {auth} in headers expands to the credential.
type RequestDef struct {
	Method string            `yaml:"method"`
	Path   string            `yaml:"path"`
	Query  map[string]string `yaml:"query,omitempty"`

	// BodyFromProps sends the non-nil property values as the JSON body.
	BodyFromProps bool `yaml:"body_from_props,omitempty"`

	// Body is a literal JSON body template; property references as
	// {name} are substituted before sending.
	Body map[string]interface{} `yaml:"body,omitempty"`
}

// Validate checks the manifest's structure, compiling every jq transform
// and expr rule so broken manifests fail at load time rather than at run
// time.
func (m *Manifest) Validate() error {
	if m.Version == "" {
		return fmt.Errorf("manifest missing 'version' field")
	}
	if m.Name == "" {
		return fmt.Errorf("manifest missing 'name' field")
	}
	if m.BaseURL == "" {
		return fmt.Errorf("manifest %q missing 'base_url' field", m.Name)
	}
	if len(m.Actions) == 0 && len(m.Triggers) == 0 {
		return fmt.Errorf("manifest %q defines no actions or triggers", m.Name)
	}

	executor := jq.NewExecutor(0, 0)

	for name, action := range m.Actions {
		if err := validateRequest(action.Request); err != nil {
			return fmt.Errorf("action %q in manifest %q: %w", name, m.Name, err)
		}
		if err := executor.Validate(action.Transform); err != nil {
			return fmt.Errorf("action %q in manifest %q: %w", name, m.Name, err)
		}
		if err := validateProps(action.Props, executor); err != nil {
			return fmt.Errorf("action %q in manifest %q: %w", name, m.Name, err)
		}
	}

	for name, trigger := range m.Triggers {
		strategy := polling.Strategy(trigger.Strategy)
		if !strategy.Valid() {
			return fmt.Errorf("trigger %q in manifest %q: unknown strategy %q", name, m.Name, trigger.Strategy)
		}
		if err := validateRequest(trigger.Request); err != nil {
			return fmt.Errorf("trigger %q in manifest %q: %w", name, m.Name, err)
		}
		if trigger.Items == "" {
			return fmt.Errorf("trigger %q in manifest %q: missing 'items' expression", name, m.Name)
		}
		if err := executor.Validate(trigger.Items); err != nil {
			return fmt.Errorf("trigger %q in manifest %q: %w", name, m.Name, err)
		}
		if trigger.IDField == "" || trigger.TimestampField == "" {
			return fmt.Errorf("trigger %q in manifest %q: id_field and timestamp_field are required", name, m.Name)
		}
		if err := validateProps(trigger.Props, executor); err != nil {
			return fmt.Errorf("trigger %q in manifest %q: %w", name, m.Name, err)
		}
	}

	return nil
}

func validateRequest(req RequestDef) error {
	if req.Method == "" {
		return fmt.Errorf("request missing 'method' field")
	}
	if req.Path == "" {
		return fmt.Errorf("request missing 'path' field")
	}
	return nil
}

func validateProps(props []PropDef, executor *jq.Executor) error {
	for _, p := range props {
		if p.Name == "" {
			return fmt.Errorf("property missing 'name' field")
		}
		if !piece.Kind(p.Kind).Valid() {
			return fmt.Errorf("property %q: unknown kind %q", p.Name, p.Kind)
		}
		if p.Validate != "" {
			if _, err := expr.Compile(p.Validate, expr.Env(validateEnv{}), expr.AsBool()); err != nil {
				return fmt.Errorf("property %q: invalid validate expression: %w", p.Name, err)
			}
		}
		if p.OptionsRequest != nil {
			if err := validateRequest(*p.OptionsRequest); err != nil {
				return fmt.Errorf("property %q options request: %w", p.Name, err)
			}
			if err := executor.Validate(p.OptionsTransform); err != nil {
				return fmt.Errorf("property %q: %w", p.Name, err)
			}
		}
	}
	return nil
}

// validateEnv is the expression environment for property validate rules.
type validateEnv struct {
	Value interface{}            `expr:"value"`
	Props map[string]interface{} `expr:"props"`
}
