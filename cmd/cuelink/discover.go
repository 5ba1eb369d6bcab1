package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/cuelink/cuelink-go/pkg/discovery"
)

func newDiscoverCommand() *cobra.Command {
	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse the network for presentation hosts",
		Args:  cobra.NoArgs,
		RunE:  runDiscover,
	}
	discoverCmd.Flags().Duration("timeout", 3*time.Second, "How long to browse")
	discoverCmd.Flags().Bool("json", false, "Output instances as JSON")
	return discoverCmd
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	jsonMode, _ := cmd.Flags().GetBool("json")

	svc := newDiscovery(cfg, newLogger(cfg, cmd.ErrOrStderr()))
	defer svc.Close()

	instances, err := svc.Browse(cmd.Context(), timeout)
	if err != nil {
		return err
	}
	if jsonMode {
		return printJSON(cmd.OutOrStdout(), instances)
	}

	hosts := make([]discovery.DiscoveredHost, len(instances))
	for i, inst := range instances {
		hosts[i] = svc.Expose(inst)
	}
	printHosts(cmd.OutOrStdout(), hosts)
	return nil
}
