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

// Package connections implements credential management commands.
package connections

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pieceflow/pieceflow/internal/cli/format"
	"github.com/pieceflow/pieceflow/internal/commands/shared"
	"github.com/pieceflow/pieceflow/internal/secrets"
)

var (
	connBackend string
	connUnmask  bool
	connForce   bool
)

// NewCommand creates the connections command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Manage piece credentials (tokens, API keys)",
		Long: `Manage the credentials pieces authenticate with.

Connections are stored in a tiered backend chain with automatic
fallback:
  1. Environment variables (highest priority, read-only)
  2. System keychain (macOS Keychain, Linux Secret Service, Windows Credential Manager)
  3. Encrypted file (fallback for headless servers)

Examples:
  pieceflow connections set notion-prod
  pieceflow connections get notion-prod
  pieceflow connections list
  pieceflow connections delete notion-prod`,
	}

	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newDeleteCommand())

	return cmd
}

func newSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a credential securely",
		Long: `Store a credential in the first writable backend.

The value can be provided via:
  - Interactive prompt (hidden input, default)
  - Standard input: echo "secret_..." | pieceflow connections set notion-prod

Examples:
  pieceflow connections set notion-prod
  pieceflow connections set notion-prod --backend file
  echo "secret_..." | pieceflow connections set notion-prod`,
		Args: cobra.ExactArgs(1),
		RunE: runSet,
	}

	cmd.Flags().StringVar(&connBackend, "backend", "", "Target backend (env, keychain, file)")
	return cmd
}

func newGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Retrieve a credential",
		Long: `Retrieve a credential from any available backend.

The value is masked by default. Use --unmask to print it in full.`,
		Args: cobra.ExactArgs(1),
		RunE: runGet,
	}

	cmd.Flags().BoolVar(&connUnmask, "unmask", false, "Show full value (not masked)")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connection names and their backends",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func newDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a credential",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}

	cmd.Flags().StringVar(&connBackend, "backend", "", "Target backend (env, keychain, file)")
	cmd.Flags().BoolVar(&connForce, "force", false, "Skip confirmation prompt")
	return cmd
}

func runSet(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := validateName(name); err != nil {
		return err
	}

	value, err := readValue()
	if err != nil {
		return fmt.Errorf("reading credential value: %w", err)
	}
	if value == "" {
		return errors.New("credential value cannot be empty")
	}

	resolver, err := shared.NewSecretsResolver()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := resolver.Set(ctx, name, value, connBackend); err != nil {
		if errors.Is(err, secrets.ErrBackendUnavailable) {
			return fmt.Errorf("backend unavailable: %w\n\nTry:\n  1. Use --backend to pick a different backend\n  2. Set the environment variable: export %s=<value>\n  3. Check keychain accessibility", err, secrets.EnvKey(name))
		}
		return fmt.Errorf("storing connection: %w", err)
	}

	fmt.Println(format.RenderOK(fmt.Sprintf("Connection %q stored", name)))
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	name := args[0]

	resolver, err := shared.NewSecretsResolver()
	if err != nil {
		return err
	}

	value, err := resolver.Get(context.Background(), name)
	if err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return fmt.Errorf("connection not found: %q\n\nSet it with: pieceflow connections set %s", name, name)
		}
		return fmt.Errorf("getting connection: %w", err)
	}

	if connUnmask {
		fmt.Println(value)
	} else {
		fmt.Printf("%s %s\n", mask(value), format.RenderLabel("(use --unmask to show full value)"))
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	resolver, err := shared.NewSecretsResolver()
	if err != nil {
		return err
	}

	metadata, err := resolver.List(context.Background())
	if err != nil {
		return fmt.Errorf("listing connections: %w", err)
	}

	if len(metadata) == 0 {
		fmt.Println("No connections found")
		return nil
	}

	if shared.JSONOutput() {
		rendered, err := format.JSON(metadata)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	}

	rows := make([][]string, 0, len(metadata))
	for _, meta := range metadata {
		readOnly := "no"
		if meta.ReadOnly {
			readOnly = "yes"
		}
		rows = append(rows, []string{meta.Name, meta.Backend, readOnly})
	}

	fmt.Print(format.Table([]string{"NAME", "BACKEND", "READ-ONLY"}, rows))
	fmt.Printf("\nTotal: %d connection(s)\n", len(metadata))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	if !connForce {
		fmt.Printf("Delete connection %q? [y/N]: ", name)
		var response string
		fmt.Scanln(&response)
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Println("Deletion canceled")
			return nil
		}
	}

	resolver, err := shared.NewSecretsResolver()
	if err != nil {
		return err
	}

	if err := resolver.Delete(context.Background(), name, connBackend); err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return fmt.Errorf("connection not found: %q", name)
		}
		if errors.Is(err, secrets.ErrReadOnlyBackend) {
			return errors.New("cannot delete from a read-only backend (environment variables)")
		}
		return fmt.Errorf("deleting connection: %w", err)
	}

	fmt.Println(format.RenderOK(fmt.Sprintf("Connection %q deleted", name)))
	return nil
}

// readValue reads the credential from stdin when piped, otherwise via a
// hidden interactive prompt.
func readValue() (string, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}

	if (stat.Mode() & os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}

	fmt.Print("Enter credential value (hidden): ")
	value, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(value), nil
}

func mask(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

func validateName(name string) error {
	if name == "" {
		return errors.New("connection name cannot be empty")
	}
	if strings.ContainsAny(name, " /\\") {
		return errors.New("connection name cannot contain spaces or slashes")
	}
	return nil
}
