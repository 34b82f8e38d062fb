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

// Package pieces implements the piece catalog commands.
package pieces

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pieceflow/pieceflow/internal/cli/format"
	"github.com/pieceflow/pieceflow/internal/commands/shared"
	"github.com/pieceflow/pieceflow/internal/schema"
	"github.com/pieceflow/pieceflow/pkg/piece"
)

// NewCommand creates the pieces command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pieces",
		Short: "Browse the connector piece catalog",
		Long: `Browse the connector piece catalog.

Pieces expose declarative actions and polling triggers for third-party
services. The catalog contains compiled-in pieces plus any manifest
pieces loaded from the configured directories.

Examples:
  pieceflow pieces list
  pieceflow pieces show notion
  pieceflow pieces schema notion create_database_item`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newSchemaCommand())

	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all registered pieces",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <piece>",
		Short: "Show a piece's actions, triggers and properties",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <piece> <operation>",
		Short: "Export an operation's property form as a JSON schema",
		Long: `Export the property form of an action or trigger as a JSON schema.

The schema describes each property's type and constraints; optional
properties are emitted as nullable unions.

Examples:
  pieceflow pieces schema notion create_database_item
  pieceflow pieces schema notion new_database_item`,
		Args: cobra.ExactArgs(2),
		RunE: runSchema,
	}
}

func runList(cmd *cobra.Command, args []string) error {
	registry, err := buildRegistry()
	if err != nil {
		return err
	}

	pieces := registry.List()

	if shared.JSONOutput() {
		type entry struct {
			Name        string `json:"name"`
			DisplayName string `json:"display_name"`
			Version     string `json:"version"`
			Auth        string `json:"auth"`
			Actions     int    `json:"actions"`
			Triggers    int    `json:"triggers"`
		}
		out := make([]entry, 0, len(pieces))
		for _, p := range pieces {
			out = append(out, entry{
				Name:        p.Name,
				DisplayName: p.DisplayName,
				Version:     p.Version,
				Auth:        string(p.Auth),
				Actions:     len(p.Actions),
				Triggers:    len(p.Triggers),
			})
		}
		rendered, err := format.JSON(out)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	}

	rows := make([][]string, 0, len(pieces))
	for _, p := range pieces {
		rows = append(rows, []string{
			p.Name,
			p.Version,
			string(p.Auth),
			strconv.Itoa(len(p.Actions)),
			strconv.Itoa(len(p.Triggers)),
		})
	}

	fmt.Print(format.Table([]string{"PIECE", "VERSION", "AUTH", "ACTIONS", "TRIGGERS"}, rows))
	fmt.Printf("\nTotal: %d piece(s)\n", len(pieces))
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	registry, err := buildRegistry()
	if err != nil {
		return err
	}

	p, err := registry.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Println(format.Header.Render(p.DisplayName) + " " + format.RenderLabel("v"+p.Version))
	if p.Description != "" {
		fmt.Println(p.Description)
	}
	fmt.Println(format.RenderLabel("auth:") + " " + string(p.Auth))

	if len(p.Actions) > 0 {
		fmt.Println()
		fmt.Println(format.Bold.Render("Actions"))
		for _, a := range p.Actions {
			fmt.Printf("  %s %s\n", a.Name, format.RenderLabel(a.Description))
			printProps(a.Props)
		}
	}

	if len(p.Triggers) > 0 {
		fmt.Println()
		fmt.Println(format.Bold.Render("Triggers"))
		for _, t := range p.Triggers {
			strategy := ""
			if t.Polling != nil {
				strategy = string(t.Polling.Strategy)
			}
			fmt.Printf("  %s [%s] %s\n", t.Name, strategy, format.RenderLabel(t.Description))
			printProps(t.Props)
		}
	}

	return nil
}

func runSchema(cmd *cobra.Command, args []string) error {
	registry, err := buildRegistry()
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

	rendered, err := format.JSON(schema.FromPropertyMap(props))
	if err != nil {
		return err
	}
	fmt.Println(rendered)
	return nil
}

// operationProps finds the property map of the named action or trigger.
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

func printProps(props *piece.PropertyMap) {
	if props == nil {
		return
	}
	props.Each(func(prop piece.Property) bool {
		attrs := []string{string(prop.Kind)}
		if prop.Required {
			attrs = append(attrs, "required")
		}
		if len(prop.Refreshers) > 0 {
			attrs = append(attrs, "refreshes on "+strings.Join(prop.Refreshers, ", "))
		}
		fmt.Printf("      %-24s %s\n", prop.Name, format.RenderLabel(strings.Join(attrs, ", ")))
		return true
	})
}

func buildRegistry() (*piece.Registry, error) {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return nil, err
	}
	return shared.BuildRegistry(cfg, shared.NewLogger(cfg))
}
