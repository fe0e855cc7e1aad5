package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldwork/tasksync/internal/dashboard"
	"github.com/fieldwork/tasksync/internal/orchestrator"
	"github.com/fieldwork/tasksync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Replay queued changes and refresh from the remote store",
	Long: `Replay queued changes in order, then fetch the remote task list.

With nothing queued, sync only fetches. Sync fails when the device is
offline; queued changes stay queued.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		pending := len(a.bridge.RestoreQueue(ctx))

		start := time.Now()
		if err := a.start(ctx); err != nil {
			return err
		}
		out := a.engine.ForceSyncNow(ctx)
		if err := a.engine.Idle(ctx); err != nil {
			return err
		}

		snap := a.engine.Snapshot()
		if err := outcomeErr(out); err != nil {
			return fmt.Errorf("sync failed: %w (%d pending)", err, snap.QueueLength())
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Fprintf(w, "   Replayed: %d\n", pending-snap.QueueLength())
		fmt.Fprintf(w, "   Tasks: %d\n", snap.Len())
		if n := snap.QueueLength(); n > 0 {
			fmt.Fprintf(w, "   Pending: %d\n", n)
		}
		return nil
	},
}

// statusReport is the json/yaml form of tsync status.
type statusReport struct {
	Status          orchestrator.Status `json:"status" yaml:"status"`
	Error           string              `json:"error,omitempty" yaml:"error,omitempty"`
	Online          *bool               `json:"online" yaml:"online"`
	Tasks           int                 `json:"tasks" yaml:"tasks"`
	Pending         int                 `json:"pending" yaml:"pending"`
	ServedFromCache bool                `json:"servedFromCache" yaml:"servedFromCache"`
	LastSyncedAt    *time.Time          `json:"lastSyncedAt,omitempty" yaml:"lastSyncedAt,omitempty"`
	SignedInAs      string              `json:"signedInAs,omitempty" yaml:"signedInAs,omitempty"`
	Remote          string              `json:"remote" yaml:"remote"`
	Cache           string              `json:"cache" yaml:"cache"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync status",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")

		return withEngine(cmd.Context(), func(a *app) error {
			snap := a.engine.Snapshot()
			report := statusReport{
				Status:          snap.Status,
				Error:           snap.Error,
				Online:          snap.Connectivity.IsConnected,
				Tasks:           snap.Len(),
				Pending:         snap.QueueLength(),
				ServedFromCache: snap.ServedFromCache,
				Remote:          "not configured",
				Cache:           a.kv.Path(),
			}
			if !snap.LastSyncedAt.IsZero() {
				at := snap.LastSyncedAt
				report.LastSyncedAt = &at
			}
			if s, err := a.sessions.Current(cmd.Context()); err == nil {
				report.SignedInAs = s.Email
			}
			if a.cfg.Remote.Configured() {
				report.Remote = a.cfg.Remote.Driver
			}

			w := cmd.OutOrStdout()
			switch format {
			case "json", "yaml":
				return encode(w, format, report)
			case "text", "":
				printStatus(w, report, snap)
				return nil
			default:
				return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
			}
		})
	},
}

func printStatus(w io.Writer, r statusReport, snap *orchestrator.Snapshot) {
	online := "unknown"
	if r.Online != nil {
		online = map[bool]string{true: "yes", false: "no"}[*r.Online]
	}
	lastSync := "never"
	if r.LastSyncedAt != nil {
		lastSync = r.LastSyncedAt.Local().Format("2006-01-02 15:04:05")
	}

	fmt.Fprintf(w, "\n%s Sync Status\n\n", ui.RenderAccent("tsync"))
	fmt.Fprintf(w, "Status: %s\n", ui.RenderSyncStatus(r.Status))
	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", ui.RenderFail(r.Error))
	}
	fmt.Fprintf(w, "Online: %s\n", online)
	fmt.Fprintf(w, "Signed in as: %s\n", valueOr(r.SignedInAs, "-"))
	fmt.Fprintf(w, "Remote: %s\n", r.Remote)
	fmt.Fprintf(w, "Cache: %s\n", r.Cache)
	fmt.Fprintf(w, "Tasks: %d\n", r.Tasks)
	fmt.Fprintf(w, "Pending: %d\n", r.Pending)
	for _, m := range snap.Pending {
		fmt.Fprintf(w, "   %s %s %s\n", ui.RenderMuted(m.Timestamp.Local().Format("15:04:05")), m.Type, m.Task.ID)
	}
	fmt.Fprintf(w, "Last synced: %s\n", lastSync)
	if r.ServedFromCache {
		fmt.Fprintf(w, "%s\n", ui.RenderMuted("Tasks are served from the local cache"))
	}
	fmt.Fprintln(w)
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync engine with the dashboard (foreground)",
	Long: `Run the sync engine until interrupted.

The daemon watches connectivity (probe or marker mode), replays queued
changes as soon as the device is online, and serves the dashboard:

  GET  /api/tasks          visible tasks (?search=&status=&sortBy=&sortDirection=)
  POST /api/tasks          create
  PATCH/DELETE /api/tasks/:id
  GET  /api/status         sync status
  POST /api/sync           force a sync
  GET  /ws                 WebSocket event stream`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		host := cfg.Dashboard.Host
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
			if port < 0 || port > 65535 {
				return fmt.Errorf("invalid port %d", port)
			}
		}

		// The handler needs the engine's snapshots and the engine needs the
		// handler as its notifier.
		var engine *orchestrator.Engine
		snapshot := func() *orchestrator.Snapshot { return engine.Snapshot() }

		var handler *dashboard.Handler
		notifier := orchestrator.NotifierFunc(func(ev orchestrator.Event) {
			if handler != nil {
				handler.Notify(ev)
			}
		})

		a, err := openApp(appOptions{live: true, notifier: notifier})
		if err != nil {
			return err
		}
		defer a.Close()
		engine = a.engine

		server := dashboard.NewServer(&dashboard.Config{
			Host:      host,
			Port:      port,
			Logger:    a.logger("dashboard"),
			AccessLog: a.logs,
		})
		handler = dashboard.NewHandler(server, snapshot, a.logger("dashboard"))
		dashboard.NewAPI(engine).Register(server.Echo().Group("/api"))

		if err := a.watch(ctx); err != nil {
			return fmt.Errorf("failed to watch connectivity: %w", err)
		}
		if err := a.start(ctx); err != nil {
			return err
		}
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer server.Stop()

		addr := server.GetAddr()
		if h, p, err := net.SplitHostPort(addr); err == nil && (h == "" || h == "::" || h == "0.0.0.0") {
			addr = net.JoinHostPort("localhost", p)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s Sync daemon running\n", ui.RenderAccent("tsync"))
		fmt.Fprintf(w, "   Connectivity: %s\n", a.cfg.Connectivity.Mode)
		fmt.Fprintf(w, "   Dashboard: http://%s\n", addr)
		fmt.Fprintf(w, "   WebSocket: ws://%s/ws\n", addr)
		fmt.Fprintf(w, "   Pending: %d\n", engine.Snapshot().QueueLength())
		fmt.Fprintf(w, "\nPress Ctrl+C to stop\n\n")

		<-ctx.Done()

		fmt.Fprintln(w, "\nShutting down...")
		return nil
	},
}

func init() {
	statusCmd.Flags().StringP("output", "o", "text", "Output format: text, json or yaml")
	daemonCmd.Flags().IntP("port", "p", 8080, "Dashboard port (overrides dashboard.port)")

	rootCmd.AddCommand(syncCmd, statusCmd, daemonCmd)
}
