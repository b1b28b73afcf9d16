package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/David-Antunes/klonet/internal/config"
	"github.com/David-Antunes/klonet/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an in-memory backend for local development",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d := config.LoadDaemon(settings)
		opts := daemon.DefaultOptions()
		opts.ProgressStep = d.ProgressStep
		return daemon.NewServer(opts).Serve(cmd.Context(), d.Addr)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the settings file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file holding the defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefaults(configFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "wrote", configFile)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(serveCmd, configCmd)
}
