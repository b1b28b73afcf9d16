package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/config"
	"github.com/David-Antunes/klonet/internal/image"
	"github.com/David-Antunes/klonet/internal/topology"
)

var (
	topologyFile string
	progressOf   string
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List the images the backend offers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := config.LoadSession(settings)
		client, err := newClient(s)
		if err != nil {
			return err
		}
		m := image.NewManager(client, s.User)
		m.Quiet = true
		images, err := m.ListImages(cmd.Context())
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), images)
	},
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List the projects of the user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newController(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closer()
		names, err := c.Projects.GetProjects(cmd.Context())
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a topology file and wait for it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topo, err := topology.ReadFromFile(topologyFile)
		if err != nil {
			return err
		}
		c, closer, err := newController(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer closer()
		c.SetTopology(topo)
		progress, err := c.Deploy(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s deployed %v %%\n", c.Project(), progress)
		if progress < 100 {
			return nil
		}
		var unset *api.ConfigurationError
		if err := c.SyncGraph(cmd.Context()); err != nil && !errors.As(err, &unset) {
			return err
		}
		return nil
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Destroy the project and wait for it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newController(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closer()
		progress, err := c.ResetProject(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s destroyed %v %%\n", c.Project(), progress)
		return nil
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show deploy or delete progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if progressOf != api.UsageDeploy && progressOf != api.UsageDelete {
			return &api.InvalidArgumentError{Field: "usage", Reason: "must be deploy or delete"}
		}
		c, closer, err := newController(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closer()
		progress, err := c.Progress(cmd.Context(), progressOf)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%v\n", progress)
		return nil
	},
}

var topoCmd = &cobra.Command{
	Use:   "topo [file]",
	Short: "Show the deployed topology, or save it to a YAML or JSON file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newController(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closer()
		if err := c.Sync(cmd.Context()); err != nil {
			return err
		}
		if len(args) == 1 {
			return c.Topology().WriteToFile(args[0])
		}
		return printYAML(cmd.OutOrStdout(), c.Topology().Networks())
	},
}

func init() {
	deployCmd.Flags().StringVarP(&topologyFile, "file", "f", "", "topology file (.yaml, .yml or .json)")
	_ = deployCmd.MarkFlagRequired("file")
	progressCmd.Flags().StringVar(&progressOf, "usage", api.UsageDeploy, "deploy or delete")

	rootCmd.AddCommand(imagesCmd, projectsCmd, deployCmd, destroyCmd, progressCmd, topoCmd)
}
