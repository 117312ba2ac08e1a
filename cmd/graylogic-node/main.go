// Gray Logic Node - connectivity and lifecycle supervisor
//
// This is the entry point for a Gray Logic field node. It keeps the node's
// network link and broker session alive, persists its settings and applies
// remote firmware updates.
//
// Commands:
//   - run: start the supervisor
//   - settings dump / settings set: inspect or change stored settings offline
//   - factory-reset: invalidate stored settings
//   - version: print build information
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/gray-logic-node/migrations"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/platform"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/node.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for a graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)
	cancel()

	var exitErr *platform.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "graylogic-node",
		Short:         "Gray Logic field node supervisor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "configuration file (default $GRAYLOGIC_NODE_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(
		newRunCommand(),
		newSettingsCommand(),
		newFactoryResetCommand(),
		newVersionCommand(),
	)
	return root
}

// getConfigPath returns the configuration file path.
// The --config flag wins over GRAYLOGIC_NODE_CONFIG, which wins over the default.
func getConfigPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	if path := os.Getenv("GRAYLOGIC_NODE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := getConfigPath(cmd)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "graylogic-node %s (commit %s, built %s)\n", version, commit, date)
			return nil
		},
	}
}
