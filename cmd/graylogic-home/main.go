// Gray Logic Home - home automation orchestrator
//
// graylogic-home runs the orchestrator core: it supervises the capability
// bridges, resolves named commands into device actions, drives the
// AWAY/ARMED/HOME state machine and mirrors everything it knows to MQTT,
// SQLite and InfluxDB.
//
// Usage:
//
//	graylogic-home run --config configs/config.yaml
//	graylogic-home validate configs/home.yaml
//	graylogic-home token --subject panel-hall --role operator
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is used when neither --config nor GRAYLOGIC_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

// configEnv overrides defaultConfigPath.
const configEnv = "GRAYLOGIC_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called explicitly above
	}
}

// newRootCmd builds the command tree. Invoked without a subcommand it
// behaves like "run".
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "graylogic-home",
		Short:         "Home automation orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(configPath))
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config.yaml (default $"+configEnv+" or "+defaultConfigPath+")")

	root.AddCommand(
		newRunCmd(&configPath),
		newValidateCmd(),
		newTokenCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the orchestrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(*configPath))
		},
	}
}

// getConfigPath resolves the configuration file: flag, then environment,
// then the default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads path. A missing file at the default location falls back
// to the built-in defaults; an explicitly named file must exist.
func loadConfig(path string) (cfg *config.Config, usedDefaults bool, err error) {
	cfg, err = config.Load(path)
	if err != nil && path == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
		return config.Default(), true, nil
	}
	return cfg, false, err
}
