package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/nvandessel/netwave/internal/backup"
	"github.com/nvandessel/netwave/internal/config"
	"github.com/nvandessel/netwave/internal/constants"
	"github.com/nvandessel/netwave/internal/pathutil"
	"github.com/nvandessel/netwave/internal/store"
	"github.com/spf13/cobra"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the results database",
		Long: `Export every benchmark session and simulation run to a compressed archive.

Default location: ~/.netwave/backups/netwave-backup-YYYYMMDD-HHMMSS.backup
Archives may also be written under <output dir>/backups. Old archives in
the target directory are pruned by the backup.retention settings.

Examples:
  netwave backup                                   # Archive to the default location
  netwave backup --file output/backups/before.backup
  netwave backup list                              # List archives
  netwave backup verify <file>                     # Check an archive's checksum`,
		Args: cobra.NoArgs,
		RunE: runBackup,
	}
	cmd.Flags().StringP("file", "f", "", "Archive path (default: generated in the backup directory)")

	cmd.AddCommand(newBackupListCmd(), newBackupVerifyCmd())
	return cmd
}

func runBackup(cmd *cobra.Command, args []string) (retErr error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	rt := newRuntime(cmd, settings)
	defer rt.Close()

	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		dir, err := backupDir(settings)
		if err != nil {
			return err
		}
		path = backup.GeneratePath(dir, time.Now())
	} else if err := checkArchivePath(settings, path); err != nil {
		return fmt.Errorf("backup path rejected: %w", err)
	}

	st, err := store.Open(settings.Output.DatabasePath())
	if err != nil {
		return fmt.Errorf("open results store: %w", err)
	}
	defer func() { retErr = errors.Join(retErr, st.Close()) }()

	a, err := backup.Export(cmd.Context(), st, path)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	pruned, err := backup.ApplyRetention(filepath.Dir(path), retentionPolicy(settings.Backup.Retention))
	if err != nil {
		rt.logger.Warn("failed to apply backup retention", "error", err)
	}
	rt.logger.Debug("backup written", "path", path, "pruned", len(pruned))

	out := cmd.OutOrStdout()
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return json.NewEncoder(out).Encode(map[string]any{
			"path":        path,
			"benchmarks":  len(a.Benchmarks),
			"simulations": len(a.Simulations),
			"pruned":      len(pruned),
		})
	}
	fmt.Fprintf(out, "Backup created: %d benchmark sessions, %d simulation runs\n", len(a.Benchmarks), len(a.Simulations))
	fmt.Fprintf(out, "  Path: %s\n", path)
	if len(pruned) > 0 {
		fmt.Fprintf(out, "  Pruned %d old archive(s)\n", len(pruned))
	}
	return nil
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archives in the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			dir, err := backupDir(settings)
			if err != nil {
				return err
			}
			archives, err := backup.List(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				if archives == nil {
					archives = []backup.Info{}
				}
				return json.NewEncoder(out).Encode(archives)
			}
			if len(archives) == 0 {
				fmt.Fprintf(out, "No backups in %s\n", dir)
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tCREATED\tSIZE\tSESSIONS\tRUNS")
			for _, a := range archives {
				sessions, runs := "?", "?"
				if a.Header != nil {
					sessions = fmt.Sprint(a.Header.Benchmarks)
					runs = fmt.Sprint(a.Header.Simulations)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", filepath.Base(a.Path),
					a.CreatedAt.Local().Format("2006-01-02 15:04:05"), a.Size, sessions, runs)
			}
			return tw.Flush()
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Check an archive's checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			verr := backup.Verify(path)

			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				res := map[string]any{"path": path, "valid": verr == nil}
				if verr != nil {
					res["error"] = verr.Error()
				}
				if err := json.NewEncoder(out).Encode(res); err != nil {
					return err
				}
				return verr
			}
			if verr != nil {
				return fmt.Errorf("verification failed: %w", verr)
			}
			fmt.Fprintf(out, "Backup OK: %s\n", path)
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Load an archive into the results database",
		Long: `Import the sessions and runs of an archive into the results database.

Modes:
  merge   - keep existing results and skip archived ids already present (default)
  replace - empty the database first

Examples:
  netwave restore ~/.netwave/backups/netwave-backup-20261019-120000.backup
  netwave restore output/backups/before.backup --mode replace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (retErr error) {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			path := args[0]
			if err := checkArchivePath(settings, path); err != nil {
				return fmt.Errorf("restore path rejected: %w", err)
			}
			modeFlag, _ := cmd.Flags().GetString("mode")
			mode, err := backup.ParseRestoreMode(modeFlag)
			if err != nil {
				return err
			}

			st, err := store.Open(settings.Output.DatabasePath())
			if err != nil {
				return fmt.Errorf("open results store: %w", err)
			}
			defer func() { retErr = errors.Join(retErr, st.Close()) }()

			res, err := backup.Restore(cmd.Context(), st, path, mode)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(out).Encode(res)
			}
			fmt.Fprintf(out, "Restore complete (mode: %s)\n", mode)
			fmt.Fprintf(out, "  Benchmark sessions: %d restored, %d skipped\n", res.BenchmarksRestored, res.BenchmarksSkipped)
			fmt.Fprintf(out, "  Simulation runs: %d restored, %d skipped\n", res.SimulationsRestored, res.SimulationsSkipped)
			return nil
		},
	}
	cmd.Flags().String("mode", string(backup.RestoreMerge), "Restore mode: merge or replace")
	return cmd
}

// backupDir is the configured archive directory, or ~/.netwave/backups.
func backupDir(settings *config.NetwaveConfig) (string, error) {
	if settings.Backup.Dir != "" {
		return settings.Backup.Dir, nil
	}
	return pathutil.GlobalBackupDir()
}

// checkArchivePath confines user-supplied archive paths to the backup
// directories.
func checkArchivePath(settings *config.NetwaveConfig, path string) error {
	allowed, err := pathutil.AllowedBackupDirs(settings.Output.Dir)
	if err != nil {
		return err
	}
	if settings.Backup.Dir != "" {
		allowed = append(allowed, settings.Backup.Dir)
	}
	return pathutil.ValidatePath(path, allowed)
}

// retentionPolicy keeps an archive when any configured limit keeps it.
// Unparseable limits are ignored.
func retentionPolicy(cfg config.RetentionConfig) backup.RetentionPolicy {
	var policies backup.AnyPolicy
	if cfg.MaxCount > 0 {
		policies = append(policies, backup.CountPolicy{MaxCount: cfg.MaxCount})
	}
	if d, err := backup.ParseDuration(cfg.MaxAge); cfg.MaxAge != "" && err == nil {
		policies = append(policies, backup.AgePolicy{MaxAge: d})
	}
	if n, err := backup.ParseSize(cfg.MaxTotalSize); cfg.MaxTotalSize != "" && err == nil {
		policies = append(policies, backup.SizePolicy{MaxTotalBytes: n})
	}

	switch len(policies) {
	case 0:
		return backup.CountPolicy{MaxCount: constants.DefaultBackupRetention}
	case 1:
		return policies[0]
	}
	return policies
}
