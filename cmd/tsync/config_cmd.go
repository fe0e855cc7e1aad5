package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fieldwork/tasksync/internal/config"
	"github.com/fieldwork/tasksync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write a default tsync.toml to the state directory, or to --config.

Examples:
  tsync config init
  tsync config init --force
  TSYNC_STATE_DIR=/srv/tsync tsync config init`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		path := configPath
		if path == "" {
			// With --force a broken existing file is replaced rather than
			// reported.
			cfg, err := config.Load("")
			if err != nil && !force {
				return err
			}
			stateDir := valueOr(os.Getenv(config.EnvPrefix+"_STATE_DIR"), config.DefaultStateDir())
			if cfg != nil {
				stateDir = cfg.StateDir
			}
			path = filepath.Join(stateDir, config.FileName+".toml")
		}

		if err := config.WriteDefault(path, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return encode(cmd.OutOrStdout(), "yaml", cfg)
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
