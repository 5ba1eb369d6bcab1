// Command cuelink keeps a remote-control connection to a presentation host
// alive and exposes it over a local HTTP API and an interactive shell.
//
// Usage:
//
//	cuelink <command> [flags]
//
// Commands:
//
//	run        Start the orchestrator and the HTTP API
//	discover   Browse the network for presentation hosts
//	send       Connect to a host, send one command, disconnect
//	history    List or edit the connection history
//	settings   Show or change the application settings
//	log        Inspect protocol capture files
//	version    Print the version
//
// Examples:
//
//	# Run with the shell attached and debug logging
//	cuelink run --interactive --log-level debug
//
//	# Advance the slide on a known host
//	cuelink send 192.168.1.5 next
//
//	# Capture protocol traffic and inspect it afterwards
//	cuelink run --protocol-log /tmp/session.clog
//	cuelink log view --layer wire /tmp/session.clog
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cuelink",
		Short:         "Resilient remote control for presentation hosts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("state-dir", "", "Directory for history and settings")
	flags.String("store", "", "Storage backend: file, sqlite, memory")
	flags.String("protocol-log", "", "Append protocol events to this capture file")

	rootCmd.AddCommand(
		newRunCommand(),
		newDiscoverCommand(),
		newSendCommand(),
		newHistoryCommand(),
		newSettingsCommand(),
		newLogCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "cuelink %s\n", version)
			return nil
		},
	}
}
