package cmd

import (
	"github.com/spf13/cobra"

	"github.com/David-Antunes/klonet/internal/network"
)

var (
	linkBw           int
	linkDelay        int
	linkJitter       int
	linkCorrelation  string
	linkDistribution string
	linkLoss         float64
	linkQueue        int
)

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "List the deployed links",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newController(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closer()
		links, err := c.Links.GetLinks(cmd.Context())
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), links)
	},
}

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Change the QoS of a deployed link",
}

var linkConfigCmd = &cobra.Command{
	Use:   "config link node",
	Short: "Shape the traffic a node sends on a link",
	Long: `Shape the traffic a node sends on a link. Only the flags given change;
the other side of the link keeps the backend defaults.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		props := network.LinkProps{Link: args[0], Ne: args[1]}
		flags := cmd.Flags()
		if flags.Changed("bw") {
			props.BwKbps = network.Int(linkBw)
		}
		if flags.Changed("delay") {
			props.DelayUs = network.Int(linkDelay)
		}
		if flags.Changed("jitter") {
			props.JitterUs = network.Int(linkJitter)
		}
		if flags.Changed("correlation") {
			props.Correlation = network.String(linkCorrelation)
		}
		if flags.Changed("distribution") {
			props.DelayDistribution = network.String(linkDistribution)
		}
		if flags.Changed("loss") {
			props.Loss = network.Float(linkLoss)
		}
		if flags.Changed("queue") {
			props.QueueSizeBytes = network.Int(linkQueue)
		}

		c, closer, err := newController(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closer()
		applied, err := c.ConfigureLink(cmd.Context(), props)
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), applied)
	},
}

var linkResetCmd = &cobra.Command{
	Use:   "reset link",
	Short: "Remove every QoS setting of a link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newController(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closer()
		return c.ResetLink(cmd.Context(), args[0], true)
	},
}

func init() {
	flags := linkConfigCmd.Flags()
	flags.IntVar(&linkBw, "bw", 0, "bandwidth in kbit/s")
	flags.IntVar(&linkDelay, "delay", 0, "delay in microseconds")
	flags.IntVar(&linkJitter, "jitter", 0, "jitter in microseconds")
	flags.StringVar(&linkCorrelation, "correlation", "", "jitter correlation, such as 25%")
	flags.StringVar(&linkDistribution, "distribution", "", "uniform, normal, pareto or paretonormal")
	flags.Float64Var(&linkLoss, "loss", 0, "loss percentage")
	flags.IntVar(&linkQueue, "queue", 0, "queue size in bytes")

	linkCmd.AddCommand(linkConfigCmd, linkResetCmd)
	rootCmd.AddCommand(linksCmd, linkCmd)
}
