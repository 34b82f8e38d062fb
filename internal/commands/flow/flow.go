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

// Package flow implements the interactive flow builder command.
package flow

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/pieceflow/pieceflow/internal/builder"
	"github.com/pieceflow/pieceflow/internal/cli/format"
	"github.com/pieceflow/pieceflow/internal/commands/resolve"
	"github.com/pieceflow/pieceflow/internal/commands/shared"
	"github.com/pieceflow/pieceflow/pkg/piece"
)

var flowConnection string

// NewCommand creates the flow command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Build a flow interactively",
	}

	build := &cobra.Command{
		Use:   "build",
		Short: "Assemble a flow step by step",
		Long: `Assemble a flow in the terminal: pick a trigger, add action steps
and fill in each step's property form. The finished flow is printed as
JSON.

Dynamic properties resolve against the live service when a connection
is given.`,
		Args: cobra.NoArgs,
		RunE: runBuild,
	}
	build.Flags().StringVar(&flowConnection, "connection", "", "Connection name for dynamic property fetches")

	cmd.AddCommand(build)
	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	logger := shared.NewLogger(cfg)

	registry, err := shared.BuildRegistry(cfg, logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var auth string
	if flowConnection != "" {
		creds, err := shared.NewSecretsResolver()
		if err != nil {
			return err
		}
		auth, err = creds.Get(ctx, flowConnection)
		if err != nil {
			return err
		}
	}

	store := builder.NewStore(registry)

	// Every flow starts with its trigger.
	if err := addStep(ctx, store, registry, builder.StepTrigger, auth); err != nil {
		return err
	}

	for {
		var choice string
		field := huh.NewSelect[string]().
			Title("Flow").
			Options(
				huh.NewOption("Add an action step", "add"),
				huh.NewOption("Edit a step", "edit"),
				huh.NewOption("Finish", "done"),
			).
			Value(&choice)
		if err := huh.NewForm(huh.NewGroup(field)).Run(); err != nil {
			return err
		}

		switch choice {
		case "add":
			if err := addStep(ctx, store, registry, builder.StepAction, auth); err != nil {
				return err
			}
		case "edit":
			if err := editStep(ctx, store); err != nil {
				return err
			}
		case "done":
			store.SetSidebar(builder.SidebarNone)
			return printFlow(store)
		}
	}
}

// addStep walks the piece selector and the new step's property form.
func addStep(ctx context.Context, store *builder.Store, registry *piece.Registry, kind builder.StepKind, auth string) error {
	store.SetSidebar(builder.SidebarPieceSelector)

	pieceName, operation, err := selectOperation(registry, kind)
	if err != nil {
		return err
	}
	if operation == "" {
		return nil
	}

	step, err := store.AddStep(kind, pieceName, operation)
	if err != nil {
		return err
	}
	if auth != "" {
		step.Session.SetAuth(auth)
	}

	return configureStep(ctx, store, step)
}

func editStep(ctx context.Context, store *builder.Store) error {
	steps := store.Steps()
	if len(steps) == 0 {
		fmt.Println(format.RenderWarn("No steps yet"))
		return nil
	}

	options := make([]huh.Option[string], len(steps))
	for i, st := range steps {
		options[i] = huh.NewOption(stepLabel(st), st.ID)
	}

	var id string
	field := huh.NewSelect[string]().Title("Step").Options(options...).Value(&id)
	if err := huh.NewForm(huh.NewGroup(field)).Run(); err != nil {
		return err
	}

	if err := store.SelectStep(id); err != nil {
		return err
	}
	return configureStep(ctx, store, store.SelectedStep())
}

// configureStep fills the step's property form and marks it saved.
func configureStep(ctx context.Context, store *builder.Store, step *builder.Step) error {
	props, err := operationProps(store, step)
	if err != nil {
		return err
	}
	if props == nil || props.Len() == 0 {
		return store.MarkSaved(step.ID)
	}

	if err := resolve.FillSession(ctx, step.Session, props); err != nil {
		return err
	}
	if !step.Session.Valid() {
		fmt.Println(format.RenderWarn(stepLabel(step) + ": required properties are missing"))
	}
	return store.MarkSaved(step.ID)
}

// selectOperation prompts for a piece and one of its operations. An empty
// operation means the catalog had nothing to offer for this step kind.
func selectOperation(registry *piece.Registry, kind builder.StepKind) (string, string, error) {
	pieces := registry.List()
	candidates := make([]*piece.Piece, 0, len(pieces))
	for _, p := range pieces {
		if len(operations(p, kind)) > 0 {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		fmt.Println(format.RenderWarn("No pieces offer this step type"))
		return "", "", nil
	}

	pieceOptions := make([]huh.Option[int], len(candidates))
	for i, p := range candidates {
		label := p.DisplayName
		if label == "" {
			label = p.Name
		}
		pieceOptions[i] = huh.NewOption(label, i)
	}

	var pieceIdx int
	field := huh.NewSelect[int]().Title("Piece").Options(pieceOptions...).Value(&pieceIdx)
	if err := huh.NewForm(huh.NewGroup(field)).Run(); err != nil {
		return "", "", err
	}
	chosen := candidates[pieceIdx]

	ops := operations(chosen, kind)
	opOptions := make([]huh.Option[string], len(ops))
	for i, op := range ops {
		opOptions[i] = huh.NewOption(op.label, op.name)
	}

	var operation string
	opField := huh.NewSelect[string]().Title("Operation").Options(opOptions...).Value(&operation)
	if err := huh.NewForm(huh.NewGroup(opField)).Run(); err != nil {
		return "", "", err
	}
	return chosen.Name, operation, nil
}

type operationEntry struct {
	name  string
	label string
}

func operations(p *piece.Piece, kind builder.StepKind) []operationEntry {
	var out []operationEntry
	switch kind {
	case builder.StepTrigger:
		for _, t := range p.Triggers {
			out = append(out, operationEntry{name: t.Name, label: entryLabel(t.DisplayName, t.Name)})
		}
	case builder.StepAction:
		for _, a := range p.Actions {
			out = append(out, operationEntry{name: a.Name, label: entryLabel(a.DisplayName, a.Name)})
		}
	}
	return out
}

func entryLabel(displayName, name string) string {
	if displayName != "" {
		return displayName
	}
	return name
}

func operationProps(store *builder.Store, step *builder.Step) (*piece.PropertyMap, error) {
	p, err := store.Registry().Get(step.PieceName)
	if err != nil {
		return nil, err
	}
	if step.Kind == builder.StepAction {
		a, err := p.Action(step.Operation)
		if err != nil {
			return nil, err
		}
		return a.Props, nil
	}
	t, err := p.Trigger(step.Operation)
	if err != nil {
		return nil, err
	}
	return t.Props, nil
}

func stepLabel(step *builder.Step) string {
	return fmt.Sprintf("%s/%s (%s)", step.PieceName, step.Operation, step.Kind)
}

func printFlow(store *builder.Store) error {
	type stepOut struct {
		ID        string                 `json:"id"`
		Kind      string                 `json:"kind"`
		Piece     string                 `json:"piece"`
		Operation string                 `json:"operation"`
		Valid     bool                   `json:"valid"`
		Settings  map[string]interface{} `json:"settings"`
	}

	steps := store.Steps()
	out := make([]stepOut, len(steps))
	for i, st := range steps {
		out[i] = stepOut{
			ID:        st.ID,
			Kind:      string(st.Kind),
			Piece:     st.PieceName,
			Operation: st.Operation,
			Valid:     st.Session.Valid(),
			Settings:  st.Session.Values(),
		}
	}

	rendered, err := format.JSON(out)
	if err != nil {
		return err
	}
	fmt.Println(rendered)
	return nil
}
