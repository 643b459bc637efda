package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nispor/nipart/pkg/client"
	"github.com/nispor/nipart/pkg/clientapi"
	"github.com/nispor/nipart/pkg/nmstate"
)

// loadStateFile reads a YAML/JSON state document from path, or from
// stdin when path is "-" or empty.
func loadStateFile(path string) (*nmstate.NetworkState, error) {
	var doc []byte
	var err error
	if path == "" || path == "-" {
		doc, err = io.ReadAll(os.Stdin)
	} else {
		doc, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return nmstate.Deserialize(doc)
}

func printState(cmd *cobra.Command, ns *nmstate.NetworkState) error {
	out, err := ns.Serialize()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func showCommand() *cobra.Command {
	var (
		saved          bool
		post           bool
		diff           bool
		includeSecrets bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current network state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), func(c *client.Client) error {
				kind := clientapi.RunningNetworkState
				switch {
				case saved:
					kind = clientapi.SavedNetworkState
				case post:
					kind = clientapi.PostNetworkState
				}
				state, err := c.QueryNetworkState(cmd.Context(), clientapi.QueryNetworkStateRequest{
					Version:        nmstate.CurrentSchemaVersion,
					Kind:           kind,
					IncludeSecrets: includeSecrets,
				})
				if err != nil {
					return err
				}
				if diff {
					savedState, err := c.QueryNetworkState(cmd.Context(), clientapi.QueryNetworkStateRequest{
						Version: nmstate.CurrentSchemaVersion,
						Kind:    clientapi.SavedNetworkState,
					})
					if err != nil {
						return err
					}
					state, err = nmstate.GenDiff(state, savedState)
					if err != nil {
						return err
					}
				}
				return printState(cmd, state)
			})
		},
	}
	cmd.Flags().BoolVar(&saved, "saved", false, "show the last persisted state instead of the running one")
	cmd.Flags().BoolVar(&post, "post", false, "show the last post-apply state")
	cmd.Flags().BoolVar(&diff, "diff", false, "show the difference between running and saved state")
	cmd.Flags().BoolVar(&includeSecrets, "include-secrets", false, "do not mask secrets (root only)")
	return cmd
}

func applyCommand() *cobra.Command {
	var opt clientapi.ApplyNetworkStateRequest
	var noVerify, memoryOnly, showDiff bool
	cmd := &cobra.Command{
		Use:   "apply [FILE|-]",
		Short: "Apply a desired network state document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			desired, err := loadStateFile(path)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), func(c *client.Client) error {
				opt.State = desired
				opt.Option.NoVerify = noVerify
				opt.Option.MemoryOnly = memoryOnly
				opt.Option.Diff = showDiff
				result, err := c.ApplyNetworkState(cmd.Context(), opt)
				if err != nil {
					return err
				}
				if showDiff {
					return printState(cmd, result)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "applied")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip post-apply verification")
	cmd.Flags().BoolVar(&memoryOnly, "memory-only", false, "merge and validate without touching the kernel")
	cmd.Flags().BoolVar(&showDiff, "diff", false, "print the post-apply diff")
	return cmd
}

func mergeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "merge OLD NEW",
		Short: "Merge NEW onto OLD and print the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			old, err := loadStateFile(args[0])
			if err != nil {
				return err
			}
			desired, err := loadStateFile(args[1])
			if err != nil {
				return err
			}
			return printState(cmd, nmstate.MergeNetworkState(old, desired))
		},
	}
}

func diffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Print the minimal document turning OLD into NEW",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			old, err := loadStateFile(args[0])
			if err != nil {
				return err
			}
			desired, err := loadStateFile(args[1])
			if err != nil {
				return err
			}
			diff, err := nmstate.GenDiff(desired, old)
			if err != nil {
				return err
			}
			return printState(cmd, diff)
		},
	}
}

func genCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate derived state documents",
		Args:  onlySubcommands,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "diff OLD NEW",
			Short: "Generate the diff document between two states",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				old, err := loadStateFile(args[0])
				if err != nil {
					return err
				}
				desired, err := loadStateFile(args[1])
				if err != nil {
					return err
				}
				diff, err := nmstate.GenDiff(desired, old)
				if err != nil {
					return err
				}
				return printState(cmd, diff)
			},
		},
		&cobra.Command{
			Use:   "revert DESIRED PRE_APPLY",
			Short: "Generate the document that undoes DESIRED, restoring PRE_APPLY",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				desired, err := loadStateFile(args[0])
				if err != nil {
					return err
				}
				preApply, err := loadStateFile(args[1])
				if err != nil {
					return err
				}
				return printState(cmd, nmstate.GenerateRevert(desired, preApply))
			},
		},
	)
	return cmd
}

func onlySubcommands(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing subcommand, see %s --help", cmd.CommandPath())
	}
	return fmt.Errorf("unknown subcommand %q", args[0])
}
