package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/David-Antunes/klonet/internal/backend"
	"github.com/David-Antunes/klonet/internal/config"
	"github.com/David-Antunes/klonet/internal/controller"
	"github.com/David-Antunes/klonet/internal/graphDB"
	"github.com/David-Antunes/klonet/internal/project"
)

var (
	configFile string
	settings   *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:           "klonet",
	Short:         "Drive emulated network projects on a Klonet backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.New(configFile)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		for key, flag := range map[string]string{
			config.BackendHost: "host",
			config.BackendPort: "port",
			config.User:        "user",
			config.Project:     "project",
			config.LogLevel:    "log-level",
		} {
			if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
				return err
			}
		}
		level, err := logrus.ParseLevel(v.GetString(config.LogLevel))
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		config.PrintVariables(v)
		settings = v
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", ".env", "settings file")
	flags.String("host", "", "backend host")
	flags.Int("port", 0, "backend port")
	flags.StringP("user", "u", "", "backend user")
	flags.StringP("project", "p", "", "project name")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
}

// Execute runs the command line until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Error(err)
		stop()
		os.Exit(1)
	}
}

func newClient(s config.Session) (*backend.Client, error) {
	var opts []backend.Option
	if s.RequestRate > 0 {
		opts = append(opts, backend.WithRateLimit(s.RequestRate, 1))
	}
	return backend.NewClient(s.BackendHost, s.BackendPort, opts...)
}

// newController opens a session from the loaded settings. The returned
// closer releases the graph database connection, if one was opened.
func newController(ctx context.Context, withGraph bool) (*controller.Controller, func(), error) {
	s := config.LoadSession(settings)
	client, err := newClient(s)
	if err != nil {
		return nil, nil, err
	}
	opts := []controller.Option{
		controller.WithWaitOptions(project.WaitOptions{
			Timeout:      s.DeployTimeout,
			PollInterval: s.PollInterval,
			Report:       project.LogProgress(s.Project),
		}),
	}
	closer := func() {}
	if withGraph && s.GraphDB != "" {
		mirror, err := graphDB.StartConnection(ctx, "neo4j://"+s.GraphDB, s.GraphDBUser, s.GraphDBPassword)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, controller.WithGraphMirror(mirror))
		closer = func() {
			if err := mirror.Close(context.Background()); err != nil {
				logrus.Error(err)
			}
		}
	}
	c, err := controller.New(client, s.User, s.Project, opts...)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return c, closer, nil
}
