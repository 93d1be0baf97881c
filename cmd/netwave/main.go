package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nvandessel/netwave/internal/config"
	"github.com/nvandessel/netwave/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "netwave",
		Short: "Damped diffusion on networks, with a parallel scaling benchmark",
		Long: `netwave propagates amplitudes over a network of nodes with a damped
diffusion update and measures how the step scales across workers and
partition schedules.

Reports are written to the output directory and runs are recorded in a
SQLite results database.`,
		SilenceUsage: true,
	}

	addPersistentFlags(rootCmd)

	rootCmd.AddCommand(
		newVersionCmd(),
		newSimulateCmd(),
		newBenchmarkCmd(),
		newGraphCmd(),
		newConfigCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	cmd.PersistentFlags().String("config", "", "Config file (default ~/.netwave/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace")
	cmd.PersistentFlags().String("output", "", "Output directory for reports and the results database")
}

// loadSettings resolves the effective configuration: the --config file (or
// the default locations), then the --log-level and --output flags.
func loadSettings(cmd *cobra.Command) (*config.NetwaveConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.NetwaveConfig
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if dir, _ := cmd.Flags().GetString("output"); dir != "" {
		cfg.Output.Dir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// runtime bundles the loggers a command runs with.
type runtime struct {
	settings *config.NetwaveConfig
	logger   *slog.Logger
	events   *logging.EventLogger
}

func newRuntime(cmd *cobra.Command, settings *config.NetwaveConfig) *runtime {
	return &runtime{
		settings: settings,
		logger:   logging.NewLogger(settings.Logging.Level, cmd.ErrOrStderr()),
		events:   logging.NewEventLogger(settings.Output.Dir, settings.Logging.Level),
	}
}

func (rt *runtime) Close() error {
	return rt.events.Close()
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
