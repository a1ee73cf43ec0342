package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"snapback/internal/app"
	"snapback/internal/config"
	"snapback/internal/snapback"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
func newApp() (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// categorized prefixes fatal errors with their category so the operator
// boundary always reports what kind of condition aborted the run.
func categorized(err error) error {
	if err == nil {
		return nil
	}
	if cat := snapback.CategoryOf(err); cat != "" {
		return fmt.Errorf("%s error: %w", cat, err)
	}
	return err
}

var rootCmd = &cobra.Command{
	Use:   "snapback",
	Short: "Scheduled incremental snapshot backups",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get application defaults
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		// Create config with defaults
		cfg := config.NewConfig(defaults["base_dir"])

		// Initialize config file
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Println("Add [[profiles]] entries before running a backup.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get application defaults
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		// Read config
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		// Display config
		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		for _, p := range cfg.Profiles {
			fmt.Printf("\nProfile %s:\n", p.Name)
			fmt.Printf("  Repository: %s (%s, %s timestamps)\n", p.Repository, p.Backend, p.TimestampFormat)
			if p.Endpoint != "" {
				fmt.Printf("  Endpoint:   %s\n", p.Endpoint)
			}
			for _, s := range p.Sources {
				fmt.Printf("  Source:     %s\n", s)
			}
			fmt.Printf("  Retention:  %d long, %d day(s)\n", p.MaxLongCount, p.MaxAgeDays)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup [PROFILE]",
	Short: "Run one backup cycle",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()

		if len(args) == 1 {
			result, err := a.Backup(ctx, args[0])
			printCycleResult(args[0], result)
			return categorized(err)
		}

		results, err := a.BackupAll(ctx)
		for name, result := range results {
			printCycleResult(name, result)
		}
		return categorized(err)
	},
}

func printCycleResult(profile string, result *snapback.CycleResult) {
	if result == nil {
		color.Red("%s: backup failed", profile)
		return
	}
	color.Green("%s: created %s (%d/%d source(s), %d pruned)",
		profile, result.Snapshot.Name(), result.Synced, result.Synced+result.Failed, len(result.Pruned))
}

// list command
var listCmd = &cobra.Command{
	Use:   "list PROFILE",
	Short: "List snapshots in a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		root, snaps, err := a.List(args[0])
		if err != nil {
			return categorized(err)
		}

		fmt.Println(root)
		for _, s := range snaps {
			if s.Tier == snapback.TierLong {
				fmt.Println(color.CyanString(s.Name()))
			} else {
				fmt.Println(s.Name())
			}
		}
		return nil
	},
}

// prune command
var pruneCmd = &cobra.Command{
	Use:   "prune PROFILE",
	Short: "Delete snapshots retired by the retention policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.Prune(cmd.Context(), args[0])
		for _, s := range deleted {
			fmt.Printf("deleted %s\n", s.Name())
		}
		if err != nil {
			return categorized(err)
		}
		if len(deleted) == 0 {
			fmt.Println("Nothing to prune.")
		}
		return nil
	},
}

// rm command
var rmCmd = &cobra.Command{
	Use:   "rm PROFILE SNAPSHOT",
	Short: "Delete a single snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Remove(cmd.Context(), args[0], args[1]); err != nil {
			return categorized(err)
		}
		fmt.Printf("deleted %s\n", args[1])
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View backup cycle history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.History(limit)
		if err != nil {
			return categorized(err)
		}

		if len(records) == 0 {
			fmt.Println("No backup cycles recorded.")
			return nil
		}

		for _, r := range records {
			finished := ""
			if r.FinishedAt.Valid {
				finished = r.FinishedAt.Time.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			status := r.Status
			if status == "error" {
				status = color.RedString(status)
			}
			fmt.Printf("#%d  %-12s  %s  %-8s  %-22s  %d pruned  %s\n",
				r.ID,
				r.Profile,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				status,
				r.Snapshot,
				r.Pruned,
				finished,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of cycles to show")
}
