package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldwork/tasksync/internal/migrate"
	"github.com/fieldwork/tasksync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <path>",
	GroupID: "tasks",
	Short:   "Write all local tasks to a file",
	Long: `Write all local tasks to a file. The format follows the extension:
.xlsx writes a spreadsheet, anything else JSON Lines.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(a *app) error {
			tasks := a.engine.Snapshot().Tasks()
			if err := migrate.WriteFile(args[0], tasks); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Exported %d task(s) to %s (%s)\n",
				ui.RenderPass("✓"), len(tasks), args[0], migrate.FormatFor(args[0]))
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:     "import <path>",
	GroupID: "tasks",
	Short:   "Load tasks from a JSON Lines file into the local cache",
	Long: `Load tasks from a JSON Lines file into the local cache.

Imported tasks replace local tasks with the same id; other local tasks are
kept. Imported tasks are not queued: the next sync that fetches from the
remote store replaces them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := migrate.ReadJSONLFile(args[0])
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return fmt.Errorf("no tasks in %s", args[0])
		}

		return withEngine(cmd.Context(), func(a *app) error {
			if err := outcomeErr(a.engine.HydrateFromCache(cmd.Context(), tasks)); err != nil {
				return fmt.Errorf("failed to import tasks: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Imported %d task(s) (%d total)\n",
				ui.RenderPass("✓"), len(tasks), a.engine.Snapshot().Len())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}
