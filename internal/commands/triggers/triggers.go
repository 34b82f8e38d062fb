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

// Package triggers implements the polling trigger commands.
package triggers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pieceflow/pieceflow/internal/cli/format"
	"github.com/pieceflow/pieceflow/internal/commands/shared"
	"github.com/pieceflow/pieceflow/internal/poller"
	"github.com/pieceflow/pieceflow/pkg/piece/polling"
)

var (
	triggerID         string
	triggerConnection string
	triggerProps      []string
)

// NewCommand creates the triggers command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triggers",
		Short: "Manage polling triggers",
		Long: `Manage polling triggers: enable, test and run them.

Enabled triggers poll their service on the configured interval and
deduplicate against a persisted cursor. Enabling a trigger seeds the
cursor from current data, so it never replays history.

Examples:
  pieceflow triggers enable notion new_database_item --id flow1/step1 \
    --connection notion-prod --prop database_id=abc123
  pieceflow triggers test notion new_database_item --connection notion-prod \
    --prop database_id=abc123
  pieceflow triggers serve`,
	}

	cmd.AddCommand(newEnableCommand())
	cmd.AddCommand(newDisableCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newTestCommand())
	cmd.AddCommand(newPollCommand())
	cmd.AddCommand(newServeCommand())

	return cmd
}

func newEnableCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enable <piece> <trigger>",
		Short: "Enable a polling trigger",
		Args:  cobra.ExactArgs(2),
		RunE:  runEnable,
	}

	cmd.Flags().StringVar(&triggerID, "id", "", "Unique trigger instance id (required)")
	cmd.Flags().StringVar(&triggerConnection, "connection", "", "Connection name (required)")
	cmd.Flags().StringArrayVar(&triggerProps, "prop", nil, "Trigger property as key=value (repeatable)")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("connection")

	return cmd
}

func newDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Disable a trigger and discard its cursor",
		Args:  cobra.ExactArgs(1),
		RunE:  runDisable,
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List enabled triggers and their poll state",
		Args:  cobra.NoArgs,
		RunE:  runListTriggers,
	}
}

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <piece> <trigger>",
		Short: "Fetch a sample batch without enabling the trigger",
		Long: `Fetch a small recent sample from the trigger's service.

Test polls never touch a persisted cursor, so they are safe to run
against enabled triggers.`,
		Args: cobra.ExactArgs(2),
		RunE: runTest,
	}

	cmd.Flags().StringVar(&triggerConnection, "connection", "", "Connection name (required)")
	cmd.Flags().StringArrayVar(&triggerProps, "prop", nil, "Trigger property as key=value (repeatable)")
	cmd.MarkFlagRequired("connection")

	return cmd
}

func newPollCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "poll <id>",
		Short: "Run one poll cycle for an enabled trigger now",
		Args:  cobra.ExactArgs(1),
		RunE:  runPollOnce,
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the polling service for all enabled triggers",
		Long: `Run the polling service until interrupted.

Every enabled trigger polls on the configured interval. New items are
printed to stdout as JSON lines. When poller.metrics_addr is set, a
Prometheus endpoint is served at /metrics.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runEnable(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := buildService(printItem)
	if err != nil {
		return err
	}
	defer cleanup()

	props, err := parseProps(triggerProps)
	if err != nil {
		return err
	}

	err = svc.EnableTrigger(context.Background(), poller.Registration{
		TriggerID:  triggerID,
		Piece:      args[0],
		Trigger:    args[1],
		Connection: triggerConnection,
		Props:      props,
	})
	if err != nil {
		return err
	}

	fmt.Println(format.RenderOK(fmt.Sprintf("Trigger %q enabled", triggerID)))
	return nil
}

func runDisable(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := buildService(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.DisableTrigger(context.Background(), args[0]); err != nil {
		return err
	}

	fmt.Println(format.RenderOK(fmt.Sprintf("Trigger %q disabled", args[0])))
	return nil
}

func runListTriggers(cmd *cobra.Command, args []string) error {
	_, store, cleanup, err := buildService(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	states, err := store.List(context.Background())
	if err != nil {
		return err
	}

	if len(states) == 0 {
		fmt.Println("No triggers enabled")
		return nil
	}

	if shared.JSONOutput() {
		rendered, err := format.JSON(states)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	}

	rows := make([][]string, 0, len(states))
	for _, st := range states {
		lastPoll := "never"
		if !st.LastPollTime.IsZero() {
			lastPoll = st.LastPollTime.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{
			st.TriggerID,
			st.Piece + "/" + st.Trigger,
			lastPoll,
			strconv.Itoa(st.ErrorCount),
		})
	}

	fmt.Print(format.Table([]string{"ID", "TRIGGER", "LAST POLL", "ERRORS"}, rows))
	return nil
}

func runTest(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := buildService(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	props, err := parseProps(triggerProps)
	if err != nil {
		return err
	}

	items, err := svc.TestTrigger(context.Background(), args[0], args[1], triggerConnection, props)
	if err != nil {
		return err
	}

	if len(items) == 0 {
		fmt.Println("No recent items")
		return nil
	}

	payloads := make([]map[string]interface{}, len(items))
	for i, item := range items {
		payloads[i] = item.Data
	}
	rendered, err := format.JSON(payloads)
	if err != nil {
		return err
	}
	fmt.Println(rendered)
	return nil
}

func runPollOnce(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := buildService(printItem)
	if err != nil {
		return err
	}
	defer cleanup()

	return svc.Poll(context.Background(), args[0])
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	logger := shared.NewLogger(cfg)

	svc, _, cleanup, err := buildService(printItem)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Poller.MetricsAddr != "" {
		go serveMetrics(cfg.Poller.MetricsAddr, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics endpoint failed", "error", err)
	}
}

// printItem writes each new item to stdout as one JSON line.
func printItem(ctx context.Context, state *poller.TriggerState, item polling.Item) error {
	line, err := json.Marshal(map[string]interface{}{
		"trigger_id": state.TriggerID,
		"piece":      state.Piece,
		"trigger":    state.Trigger,
		"item":       item.Data,
	})
	if err != nil {
		return err
	}
	fmt.Println(string(line))
	return nil
}

// buildService assembles the poller with the shared catalog, credential
// chain and state store.
func buildService(handler poller.EventHandler) (*poller.Service, *poller.Store, func(), error) {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := shared.NewLogger(cfg)

	registry, err := shared.BuildRegistry(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	creds, err := shared.NewSecretsResolver()
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := poller.NewStore(cfg.Poller.DatabasePath)
	if err != nil {
		return nil, nil, nil, err
	}

	svc := poller.NewService(cfg.Poller, registry, store, creds, handler, logger)
	cleanup := func() {
		svc.Stop()
		store.Close()
	}
	return svc, store, cleanup, nil
}

// parseProps parses repeated key=value flags. Values that parse as JSON
// keep their JSON type; everything else stays a string.
func parseProps(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	props := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("malformed --prop %q, want key=value", pair)
		}

		var parsed interface{}
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			props[key] = parsed
		} else {
			props[key] = value
		}
	}
	return props, nil
}
