// Command topologyctl is the operator CLI for the network-topology
// resolver: it talks to a running resolver's admin API over plain HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	serverAddr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "topologyctl",
		Short:   "Operator CLI for the network-topology resolver",
		Long:    "topologyctl talks to a running network-topology resolver's admin API to inspect the published snapshot, manage blocklists, and trigger refreshes.",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080", "admin API base URL")

	rootCmd.AddCommand(
		newSnapshotCmd(),
		newBlocklistCmd(),
		newRefreshCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
