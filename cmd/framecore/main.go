package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/Fullex26/framecore/internal/config"
	"github.com/Fullex26/framecore/internal/daemon"
	"github.com/Fullex26/framecore/internal/logging"
	"github.com/Fullex26/framecore/internal/setup"
	"github.com/Fullex26/framecore/internal/store"
	"github.com/Fullex26/framecore/internal/systems"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:           "framecore",
		Short:         "Fixed-timestep update scheduler with an event bus and task pool",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultConfigPath, "config file path")

	root.AddCommand(
		runCmd(),
		eventsCmd(),
		checkCmd(),
		setupCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig falls back to defaults when the default path does not exist
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if !cmd.Flags().Changed("config") && errors.Is(err, fs.ErrNotExist) {
		return config.DefaultConfig(), nil
	}
	return nil, fmt.Errorf("loading config: %w", err)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the frame loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}

			d, err := daemon.New(cfg, log)
			if err != nil {
				return fmt.Errorf("initializing daemon: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return d.Run(ctx)
		},
	}
}

func eventsCmd() *cobra.Command {
	var (
		hours int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recently journaled events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			db, err := store.Open(cfg.Subsystems.Journal.Path)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer db.Close()

			events, err := db.GetRecentEvents(hours, limit)
			if err != nil {
				return err
			}
			total, _ := db.GetEventCount(hours)
			counts, _ := db.CountByType(hours)
			started, _ := db.GetState(systems.StateStarted)
			stopped, _ := db.GetState(systems.StateStopped)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "framecore journal")
			fmt.Fprintln(out, "─────────────────────────")
			fmt.Fprintf(out, "  Last start:    %s\n", orNever(started))
			fmt.Fprintf(out, "  Last stop:     %s\n", orNever(stopped))
			fmt.Fprintf(out, "  Events (%dh):  %d\n", hours, total)
			printCounts(out, counts)
			fmt.Fprintln(out)

			if len(events) == 0 {
				fmt.Fprintf(out, "  No events in last %d hours\n", hours)
				return nil
			}
			fmt.Fprintln(out, "  Recent events:")
			for _, e := range events {
				fmt.Fprintf(out, "    %s %-18s %-10s %s\n",
					e.Timestamp.Format("15:04:05"),
					e.Type,
					e.Source,
					e.Message,
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "look-back window in hours")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events to list")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and print the resolved schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok (%s)\n", cfgPath)
			fmt.Fprintf(out, "  quantum:       %s (%.0f Hz)\n", cfg.Quantum(), cfg.Loop.TickRate)
			if cfg.Loop.MaxSubsteps > 0 {
				fmt.Fprintf(out, "  max substeps:  %d\n", cfg.Loop.MaxSubsteps)
			} else {
				fmt.Fprintln(out, "  max substeps:  unbounded")
			}
			fmt.Fprintf(out, "  pool:          workers=%d backoff=%s shutdown=%s\n",
				cfg.Pool.Workers, cfg.Backoff(), cfg.Pool.Shutdown)
			fmt.Fprintln(out, "  update order:")
			for _, e := range daemon.Schedule(cfg) {
				state := "enabled"
				if !e.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(out, "    %-8s %6.2f Hz  every %-12s %s\n", e.Name, e.Hz, e.Period, state)
			}
			return nil
		},
	}
}

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cfgPath)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "framecore v%s\n", daemon.Version)
		},
	}
}

// printCounts lists per-type counts in name order
func printCounts(out io.Writer, counts map[string]int) {
	for _, name := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(out, "    %-18s %d\n", name, counts[name])
	}
}

func orNever(s string) string {
	if s == "" {
		return "never"
	}
	return s
}
