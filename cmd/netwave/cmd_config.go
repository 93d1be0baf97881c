package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nvandessel/netwave/internal/config"
	"github.com/nvandessel/netwave/internal/store"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show netwave configuration",
		Long: `Print the effective configuration as YAML.

Configuration is read from ~/.netwave/config.yaml (or --config) and
NETWAVE_* environment variables override it.

Examples:
  netwave config                 # Effective settings
  netwave config --json          # Same, as JSON
  netwave config --init          # Write the defaults to ~/.netwave/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if initFile, _ := cmd.Flags().GetBool("init"); initFile {
				force, _ := cmd.Flags().GetBool("force")
				return initConfigFile(cmd, force)
			}

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			data, err := cfg.Marshal()
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().Bool("init", false, "Write the default configuration to ~/.netwave/config.yaml")
	cmd.Flags().Bool("force", false, "Overwrite an existing config file with --init")

	return cmd
}

func initConfigFile(cmd *cobra.Command, force bool) error {
	path, err := store.GlobalConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := store.EnsureGlobalNetwaveDir(); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := config.Default().Marshal()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	return nil
}
