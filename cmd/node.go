package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/command"
)

var (
	execBlock   bool
	execTimeout time.Duration
	sshDisable  bool
	sshPassword string
	showNics    bool
)

var nodesCmd = &cobra.Command{
	Use:   "nodes [name]",
	Short: "List the deployed nodes and their workers, or the interfaces of one node",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newController(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closer()
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		if showNics {
			if name == "" {
				return &api.InvalidArgumentError{Field: "name", Reason: "is needed to list interfaces"}
			}
			nics, err := c.Nodes.NicNicknameToRealName(cmd.Context(), name)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), nics)
		}
		workers, err := c.Nodes.GetNodeWorkerIP(cmd.Context(), name)
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), workers)
	},
}

var execCmd = &cobra.Command{
	Use:   "exec node command...",
	Short: "Run a shell command inside a node",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newController(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closer()
		node, line := args[0], strings.Join(args[1:], " ")
		results, err := c.Execute(cmd.Context(), map[string][]string{node: {line}}, execBlock, execTimeout)
		if err != nil {
			return err
		}
		res, ok := results[node][line]
		if !ok || !res.Completed() {
			fmt.Fprintln(cmd.OutOrStdout(), "command still running")
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), *res.Output)
		if *res.ExitCode != 0 {
			return fmt.Errorf("%s exited with %d", line, *res.ExitCode)
		}
		return nil
	},
}

var sshCmd = &cobra.Command{
	Use:   "ssh node",
	Short: "Start or stop sshd inside a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newController(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closer()
		if err := c.EnableSSH(cmd.Context(), args[0], !sshDisable, sshPassword); err != nil {
			return err
		}
		if sshDisable {
			return nil
		}
		mapping, err := c.GetPortMapping(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), mapping)
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports node [container host]...",
	Short: "Show or replace the port forwarding of a node",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ports := make([]int, 0, len(args)-1)
		for _, arg := range args[1:] {
			p, err := strconv.Atoi(arg)
			if err != nil {
				return &api.InvalidArgumentError{Field: "port", Reason: arg + " is not a number"}
			}
			ports = append(ports, p)
		}
		c, closer, err := newController(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closer()
		if len(ports) > 0 {
			if err := c.PortMapping(cmd.Context(), args[0], ports); err != nil {
				return err
			}
		}
		mapping, err := c.GetPortMapping(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), mapping)
	},
}

func init() {
	nodesCmd.Flags().BoolVar(&showNics, "nics", false, "map interface nicknames to container interface names")
	execCmd.Flags().BoolVar(&execBlock, "block", true, "wait for the command to finish")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", command.DefaultTimeout, "command timeout")
	sshCmd.Flags().BoolVar(&sshDisable, "disable", false, "stop sshd instead")
	sshCmd.Flags().StringVar(&sshPassword, "password", "", "root password (default 123456)")

	rootCmd.AddCommand(nodesCmd, execCmd, sshCmd, portsCmd)
}
