package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldwork/tasksync/internal/gateway"
	"github.com/fieldwork/tasksync/internal/gateway/sqldb"
	"github.com/fieldwork/tasksync/internal/loadtest"
	"github.com/fieldwork/tasksync/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "sync",
	Short:   "Measure remote store latency under concurrent devices",
	Long: `Seed a remote store with tasks, then run simulated devices that each
replay an edit and fetch the full task list, and report latency.

By default the run uses a scratch SQLite store. With --remote it uses the
configured remote store and deletes the seeded tasks afterwards.

Examples:
  tsync bench
  tsync bench --tasks 1000 --devices 50 --rounds 10
  tsync bench --remote`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		useRemote, _ := cmd.Flags().GetBool("remote")
		count, _ := cmd.Flags().GetInt("tasks")
		cfg := loadtest.DefaultConfig()
		cfg.Devices, _ = cmd.Flags().GetInt("devices")
		cfg.Rounds, _ = cmd.Flags().GetInt("rounds")

		conf, err := loadConfig()
		if err != nil {
			return err
		}

		dbCfg := sqldb.Config{
			Driver:       conf.Remote.Driver,
			DSN:          conf.Remote.DSN,
			AutoMigrate:  conf.Remote.AutoMigrate,
			MaxOpenConns: conf.Remote.MaxOpenConns,
		}
		target := conf.Remote.Driver
		if !useRemote {
			dir, err := os.MkdirTemp("", "tsync-bench-")
			if err != nil {
				return fmt.Errorf("failed to create scratch directory: %w", err)
			}
			defer os.RemoveAll(dir)
			dbCfg = sqldb.Config{Driver: "sqlite", DSN: filepath.Join(dir, "bench.db"), AutoMigrate: true}
			target = "scratch sqlite"
		} else if !conf.Remote.Configured() {
			return fmt.Errorf("--remote needs remote.driver and remote.dsn")
		}

		ctx := cmd.Context()
		db, err := sqldb.Open(ctx, dbCfg)
		if err != nil {
			return err
		}
		logs := io.Discard
		if verbose {
			logs = os.Stderr
		}
		remote := gateway.NewWithBackend(db, &gateway.Config{
			Timeout: conf.Remote.Timeout,
			Logger:  log.New(logs, "[gateway] ", log.LstdFlags),
		})
		defer remote.Close()

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s Seeding %d tasks into %s\n", ui.RenderAccent("tsync"), count, target)
		tasks, err := loadtest.Seed(ctx, remote, count)
		if err != nil {
			return err
		}
		if useRemote {
			defer func() {
				if err := loadtest.Cleanup(ctx, remote, tasks); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", ui.RenderWarn("Warning:"), err)
				}
			}()
		}

		fmt.Fprintf(w, "Running %d devices x %d rounds\n\n", cfg.Devices, cfg.Rounds)
		report, err := loadtest.Run(ctx, remote, tasks, cfg)
		if err != nil {
			return err
		}

		report.Replay.Print(w, "Replay")
		fmt.Fprintln(w)
		report.Fetch.Print(w, "Fetch")
		fmt.Fprintln(w)

		if n := report.Errors(); n > 0 {
			fmt.Fprintf(w, "%s %d call(s) failed in %v\n", ui.RenderFail("✗"), n, report.Elapsed.Round(time.Millisecond))
			return fmt.Errorf("%d remote call(s) failed", n)
		}
		fmt.Fprintf(w, "%s Done in %v\n", ui.RenderPass("✓"), report.Elapsed.Round(time.Millisecond))
		return nil
	},
}

func init() {
	benchCmd.Flags().Bool("remote", false, "Use the configured remote store instead of a scratch database")
	benchCmd.Flags().Int("tasks", 200, "Tasks to seed")
	benchCmd.Flags().Int("devices", 10, "Concurrent simulated devices")
	benchCmd.Flags().Int("rounds", 5, "Replay+fetch rounds per device")

	rootCmd.AddCommand(benchCmd)
}
