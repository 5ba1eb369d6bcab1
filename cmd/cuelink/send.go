package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuelink/cuelink-go/pkg/connection"
	"github.com/cuelink/cuelink-go/pkg/discovery"
	"github.com/cuelink/cuelink-go/pkg/wire"
)

func newSendCommand() *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send <host> <command>",
		Short: "Connect to a host, send one command, disconnect",
		Long: `Connect to a host, send one remote-control command and disconnect.

Commands: next, previous, clear_output, clear_all, clear_slide.`,
		Args: cobra.ExactArgs(2),
		RunE: runSend,
	}
	sendCmd.Flags().Int("port", discovery.DefaultControlPort, "Control port")
	sendCmd.Flags().Duration("timeout", 10*time.Second, "Overall timeout")
	return sendCmd
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	port, _ := cmd.Flags().GetInt("port")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	command := wire.Command(strings.ToUpper(args[1]))
	if !command.Valid() {
		return fmt.Errorf("unknown command: %s", args[1])
	}

	logger := newLogger(cfg, cmd.ErrOrStderr())
	protocol, capture, err := openProtocolLog(cfg, logger)
	if err != nil {
		return err
	}
	if capture != nil {
		defer capture.Close()
	}

	// A one-shot send has no use for liveness pings.
	cfg.Connection.KeepAlive.Disabled = true
	if cfg.Connection.ConnectTimeout <= 0 {
		cfg.Connection.ConnectTimeout = timeout
	}
	conn, err := newConnection(cfg, protocol, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	ep := connection.Endpoint{Host: args[0], Port: port}
	if err := conn.ConnectEndpoint(ctx, ep); err != nil {
		return err
	}
	defer conn.Disconnect()

	if err := conn.Send(ctx, command); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", command, ep.Address())
	return nil
}
