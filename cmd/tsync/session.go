package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldwork/tasksync/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login <email>",
	GroupID: "setup",
	Short:   "Sign in on this device",
	Long: `Sign in on this device. New tasks are created by, and by default
assigned to, the signed-in user.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, kv, sessions, err := openSessions()
		if err != nil {
			return err
		}
		defer kv.Close()

		s, err := sessions.Login(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Signed in as %s (%s)\n", ui.RenderPass("✓"), s.Email, s.UserID)
		return nil
	},
}

var signoutCmd = &cobra.Command{
	Use:     "signout",
	Aliases: []string{"logout"},
	GroupID: "setup",
	Short:   "Sign out and clear local tasks",
	Long: `Sign out and clear the local task cache.

Changes still waiting to sync are discarded. Run 'tsync sync' first to
keep them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(a *app) error {
			pending := a.engine.Snapshot().QueueLength()
			if err := outcomeErr(a.engine.SignOut(cmd.Context())); err != nil {
				return fmt.Errorf("failed to sign out: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s Signed out\n", ui.RenderPass("✓"))
			if pending > 0 {
				fmt.Fprintf(w, "   %s\n", ui.RenderWarn(fmt.Sprintf("Discarded %d unsynced change(s)", pending)))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, signoutCmd)
}
