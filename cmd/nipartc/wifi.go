package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nispor/nipart/pkg/client"
	"github.com/nispor/nipart/pkg/clientapi"
)

func wifiCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wifi",
		Short: "Wireless network operations",
		Args:  onlySubcommands,
	}
	cmd.AddCommand(wifiScanCommand(), wifiConnectCommand())
	return cmd
}

func wifiScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List visible wireless networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), func(c *client.Client) error {
				networks, err := c.WifiScan(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SSID\tBSSID\tSIGNAL\tFREQ\tSECURITY")
				for _, n := range networks {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", n.Ssid, n.Bssid, n.Signal, n.Frequency, n.Security)
				}
				return w.Flush()
			})
		},
	}
}

func wifiConnectCommand() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "connect SSID",
		Short: "Connect to a wireless network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(c *client.Client) error {
				err := c.WifiConnect(cmd.Context(), clientapi.WifiConnectRequest{
					Ssid:     args[0],
					Password: password,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "connected to %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "pre-shared key for the network")
	return cmd
}
