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

// Package cli assembles the root command and shared CLI behavior.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pieceflow/pieceflow/internal/cli/format"
	"github.com/pieceflow/pieceflow/internal/commands/shared"
	pieceflowerrors "github.com/pieceflow/pieceflow/pkg/errors"
)

// SetVersion sets the version information (called from main).
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for pieceflow.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pieceflow",
		Short: "Pieceflow - connector pieces and polling triggers",
		Long: `Pieceflow manages a catalog of connector pieces: declarative actions
and polling triggers for third-party services, with typed property
forms and credential management.

Run 'pieceflow pieces list' to browse the catalog.
Run 'pieceflow connections set <name>' to store a credential.
Run 'pieceflow triggers serve' to start the polling service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/pieceflow/config.yaml)")

	// Accept underscores in flag names for consistency with config keys.
	cmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	return cmd
}

// HandleExitError prints the error and exits non-zero. User-visible
// errors get their friendly message and suggestion.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var visible pieceflowerrors.UserVisibleError
	if pieceflowerrors.As(err, &visible) && visible.IsUserVisible() {
		fmt.Fprintln(os.Stderr, format.RenderError(visible.UserMessage()))
		if suggestion := visible.Suggestion(); suggestion != "" {
			fmt.Fprintln(os.Stderr, format.RenderLabel("  "+suggestion))
		}
	} else {
		fmt.Fprintln(os.Stderr, format.RenderError(err.Error()))
	}
	os.Exit(1)
}
