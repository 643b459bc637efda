// Command nipartc is the nipart CLI: a thin cobra front end over
// pkg/client that talks to the daemon's API socket, plus a handful of
// offline document operations (merge, diff, gen) that never touch the
// daemon at all.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nispor/nipart/pkg/client"
)

var (
	verbosity int
	quiet     bool
	socketDir string
)

func main() {
	cmd := rootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: error: %v\n", cmd.CommandPath(), err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "nipartc",
		Short:         "Declarative host-networking client",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			switch {
			case quiet:
				logrus.SetLevel(logrus.ErrorLevel)
			case verbosity >= 3:
				logrus.SetLevel(logrus.TraceLevel)
			case verbosity == 2:
				logrus.SetLevel(logrus.DebugLevel)
			case verbosity == 1:
				logrus.SetLevel(logrus.InfoLevel)
			default:
				logrus.SetLevel(logrus.WarnLevel)
			}
		},
	}
	addGlobalFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		pingCommand(),
		showCommand(),
		applyCommand(),
		mergeCommand(),
		diffCommand(),
		genCommand(),
		wifiCommand(),
	)
	return cmd
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.CountVarP(&verbosity, "verbose", "v", "increase verbosity (repeatable)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "only print errors")
	flags.StringVar(&socketDir, "socket-dir", "", "daemon socket directory (default "+client.DefaultSocketDir+")")
}

// withClient dials the daemon, runs fn, and closes the connection.
func withClient(ctx context.Context, fn func(*client.Client) error) error {
	c, err := client.Connect(ctx, socketDir)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func pingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon is alive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), func(c *client.Client) error {
				if err := c.Ping(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "pong")
				return nil
			})
		},
	}
}
