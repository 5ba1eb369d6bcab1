package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuelink/cuelink-go/cmd/cuelink/logview"
)

func newLogCommand() *cobra.Command {
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect protocol capture files",
	}

	viewCmd := &cobra.Command{
		Use:   "view <file>",
		Short: "Print events in human-readable form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return logview.RunView(args[0], logOptions(cmd), cmd.OutOrStdout())
		},
	}
	addFilterFlags(viewCmd)

	statsCmd := &cobra.Command{
		Use:   "stats <file>",
		Short: "Summarize a capture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return logview.RunStats(args[0], cmd.OutOrStdout())
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export events as JSONL or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return logview.RunExport(args[0], format, logOptions(cmd), w)
		},
	}
	exportCmd.Flags().String("format", logview.FormatJSONL, "Output format: jsonl, csv")
	exportCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
	addFilterFlags(exportCmd)

	filterCmd := &cobra.Command{
		Use:   "filter <file>",
		Short: "Copy matching events into a new capture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			n, err := logview.RunFilter(args[0], output, logOptions(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d events to %s\n", n, output)
			return nil
		},
	}
	filterCmd.Flags().StringP("output", "o", "", "Output capture file")
	_ = filterCmd.MarkFlagRequired("output")
	addFilterFlags(filterCmd)

	logCmd.AddCommand(viewCmd, statsCmd, exportCmd, filterCmd)
	return logCmd
}

func addFilterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("conn-id", "", "Only this connection")
	flags.String("remote", "", "Only this host:port")
	flags.String("layer", "", "Only this layer: transport, wire, connection")
	flags.String("direction", "", "Only this direction: in, out")
	flags.String("category", "", "Only this category: message, control, state, error")
	flags.String("since", "", "Only events at or after this RFC3339 time")
	flags.String("until", "", "Only events before this RFC3339 time")
}

func logOptions(cmd *cobra.Command) logview.Options {
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return logview.Options{
		ConnID:     get("conn-id"),
		RemoteAddr: get("remote"),
		Layer:      get("layer"),
		Direction:  get("direction"),
		Category:   get("category"),
		TimeStart:  get("since"),
		TimeEnd:    get("until"),
	}
}
