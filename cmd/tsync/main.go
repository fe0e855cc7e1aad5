// Command tsync manages tasks offline-first: changes apply locally at once
// and are replayed against the remote store when it is reachable.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	forceOffline bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "tsync",
	Short: "Offline-first task sync",
	Long: `tsync keeps a local copy of your tasks and syncs it with a remote store.

Writes made while offline, or while the remote store is unreachable, are
applied locally and queued. The queue is replayed in order the next time
tsync runs online; run 'tsync sync' to force it.

Configuration is read from tsync.toml in the state directory (~/.tsync by
default), a .env file, and TSYNC_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: tsync.toml in the state directory)")
	rootCmd.PersistentFlags().BoolVar(&forceOffline, "offline", false, "Treat the device as offline for this command")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Tasks:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
