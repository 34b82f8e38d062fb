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

// Package resolve implements the interactive property form command.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/pieceflow/pieceflow/internal/cli/format"
	"github.com/pieceflow/pieceflow/internal/commands/shared"
	"github.com/pieceflow/pieceflow/pkg/errors"
	"github.com/pieceflow/pieceflow/pkg/piece"
	"github.com/pieceflow/pieceflow/pkg/piece/resolver"
)

var resolveConnection string

// NewCommand creates the resolve command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <piece> <operation>",
		Short: "Fill in an operation's property form interactively",
		Long: `Walk through an action or trigger's property form.

Properties are prompted in declaration order. Dynamic dropdowns are
resolved against the live service using the given connection; choosing
a parent value re-resolves its dependents.

Examples:
  pieceflow resolve notion create_database_item --connection notion-prod
  pieceflow resolve notion new_database_item --connection notion-prod`,
		Args: cobra.ExactArgs(2),
		RunE: runResolve,
	}

	cmd.Flags().StringVar(&resolveConnection, "connection", "", "Connection name for dynamic property fetches")
	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	logger := shared.NewLogger(cfg)

	registry, err := shared.BuildRegistry(cfg, logger)
	if err != nil {
		return err
	}

	p, err := registry.Get(args[0])
	if err != nil {
		return err
	}

	props, err := operationProps(p, args[1])
	if err != nil {
		return err
	}
	if props == nil || props.Len() == 0 {
		fmt.Println("Operation has no configurable properties")
		return nil
	}

	session, err := resolver.NewSession(props, nil)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if resolveConnection != "" {
		creds, err := shared.NewSecretsResolver()
		if err != nil {
			return err
		}
		auth, err := creds.Get(ctx, resolveConnection)
		if err != nil {
			return err
		}
		session.SetAuth(auth)
	}

	if err := FillSession(ctx, session, props); err != nil {
		return err
	}

	if !session.Valid() {
		return &errors.ValidationError{Field: args[1], Message: "required properties are missing"}
	}

	rendered, err := format.JSON(session.Values())
	if err != nil {
		return err
	}
	fmt.Println(rendered)
	return nil
}

// FillSession prompts for every property in props, in declaration order,
// and records the collected values on the session. Dynamic properties are
// resolved against the session's auth and current values before prompting.
func FillSession(ctx context.Context, session *resolver.Session, props *piece.PropertyMap) error {
	var failed error
	props.Each(func(prop piece.Property) bool {
		value, err := promptProperty(ctx, session, prop)
		if err != nil {
			failed = err
			return false
		}
		if value != nil {
			session.SetValue(prop.Name, value)
		}
		return true
	})
	return failed
}

// promptProperty collects one property's value, resolving dynamic kinds
// against the live service first. A nil value means "leave unset".
func promptProperty(ctx context.Context, session *resolver.Session, prop piece.Property) (interface{}, error) {
	switch prop.Kind {
	case piece.KindDynamicDropdown:
		result := session.Resolve(ctx, prop.Name)
		return promptDropdown(prop, result.Dropdown, false)

	case piece.KindDynamicGroup:
		result := session.Resolve(ctx, prop.Name)
		if result.Props == nil {
			if result.Dropdown != nil {
				fmt.Println(format.RenderWarn(prop.DisplayName + ": " + result.Dropdown.Placeholder))
			}
			return nil, nil
		}

		values := make(map[string]interface{})
		var failed error
		result.Props.Each(func(sub piece.Property) bool {
			v, err := promptStatic(sub)
			if err != nil {
				failed = err
				return false
			}
			if v != nil {
				values[sub.Name] = v
			}
			return true
		})
		if failed != nil {
			return nil, failed
		}
		if len(values) == 0 {
			return nil, nil
		}
		return values, nil

	default:
		return promptStatic(prop)
	}
}

func promptStatic(prop piece.Property) (interface{}, error) {
	switch prop.Kind {
	case piece.KindShortText:
		return promptInput(prop, func(s string) (interface{}, error) { return s, nil })

	case piece.KindNumber:
		return promptInput(prop, func(s string) (interface{}, error) {
			n, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("not a number: %q", s)
			}
			return n, nil
		})

	case piece.KindLongText, piece.KindMarkdown:
		var value string
		field := huh.NewText().Title(title(prop)).Description(prop.Description).Value(&value)
		if err := runField(field); err != nil {
			return nil, err
		}
		if value == "" {
			return nil, nil
		}
		return value, nil

	case piece.KindJSON, piece.KindObject, piece.KindArray:
		return promptInput(prop, func(s string) (interface{}, error) {
			var parsed interface{}
			if err := json.Unmarshal([]byte(s), &parsed); err != nil {
				return nil, fmt.Errorf("invalid JSON: %w", err)
			}
			return parsed, nil
		})

	case piece.KindCheckbox:
		var value bool
		if b, ok := prop.DefaultValue().(bool); ok {
			value = b
		}
		field := huh.NewConfirm().Title(title(prop)).Description(prop.Description).Value(&value)
		if err := runField(field); err != nil {
			return nil, err
		}
		return value, nil

	case piece.KindStaticDropdown:
		return promptDropdown(prop, &piece.DropdownState{Options: prop.Options}, false)

	case piece.KindMultiSelect:
		return promptDropdown(prop, &piece.DropdownState{Options: prop.Options}, true)

	default:
		prop.Kind.MustValidate()
		return nil, fmt.Errorf("property %q: kind %s cannot be prompted here", prop.Name, prop.Kind)
	}
}

// promptInput runs a single-line input with a parse function. Optional
// properties accept empty input as unset.
func promptInput(prop piece.Property, parse func(string) (interface{}, error)) (interface{}, error) {
	var raw string
	if def := prop.DefaultValue(); def != nil {
		raw = fmt.Sprintf("%v", def)
	}

	field := huh.NewInput().
		Title(title(prop)).
		Description(prop.Description).
		Value(&raw).
		Validate(func(s string) error {
			if s == "" {
				if prop.Required {
					return fmt.Errorf("%s is required", prop.DisplayName)
				}
				return nil
			}
			_, err := parse(s)
			return err
		})

	if err := runField(field); err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	return parse(raw)
}

// promptDropdown selects one or more options by index so values keep
// their original types.
func promptDropdown(prop piece.Property, state *piece.DropdownState, multi bool) (interface{}, error) {
	if state == nil || len(state.Options) == 0 || state.Disabled {
		placeholder := "No options available"
		if state != nil && state.Placeholder != "" {
			placeholder = state.Placeholder
		}
		fmt.Println(format.RenderWarn(title(prop) + ": " + placeholder))
		return nil, nil
	}

	options := make([]huh.Option[int], len(state.Options))
	for i, opt := range state.Options {
		label := opt.Label
		if label == "" {
			label = fmt.Sprintf("%v", opt.Value)
		}
		options[i] = huh.NewOption(label, i)
	}

	if multi {
		var picked []int
		field := huh.NewMultiSelect[int]().
			Title(title(prop)).
			Description(prop.Description).
			Options(options...).
			Value(&picked)
		if err := runField(field); err != nil {
			return nil, err
		}
		if len(picked) == 0 {
			return nil, nil
		}
		values := make([]interface{}, len(picked))
		for i, idx := range picked {
			values[i] = state.Options[idx].Value
		}
		return values, nil
	}

	var picked int
	field := huh.NewSelect[int]().
		Title(title(prop)).
		Description(prop.Description).
		Options(options...).
		Value(&picked)
	if err := runField(field); err != nil {
		return nil, err
	}
	return state.Options[picked].Value, nil
}

func runField(field huh.Field) error {
	return huh.NewForm(huh.NewGroup(field)).Run()
}

func title(prop piece.Property) string {
	name := prop.DisplayName
	if name == "" {
		name = prop.Name
	}
	if prop.Required {
		return name + " *"
	}
	return name
}

func operationProps(p *piece.Piece, operation string) (*piece.PropertyMap, error) {
	if a, err := p.Action(operation); err == nil {
		return a.Props, nil
	}
	t, err := p.Trigger(operation)
	if err != nil {
		return nil, err
	}
	return t.Props, nil
}
