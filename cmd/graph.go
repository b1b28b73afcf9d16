package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Mirror the project into the graph database and query it",
}

var graphSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy the deployed topology into the graph database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newController(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer closer()
		return c.SyncGraph(cmd.Context())
	},
}

var graphPathCmd = &cobra.Command{
	Use:   "path src dst",
	Short: "Print the fewest hop path between two nodes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newController(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer closer()
		path, err := c.GraphPath(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if path == nil {
			return fmt.Errorf("%s and %s are not connected", args[0], args[1])
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(path, " -> "))
		return nil
	},
}

func init() {
	graphCmd.AddCommand(graphSyncCmd, graphPathCmd)
	rootCmd.AddCommand(graphCmd)
}
