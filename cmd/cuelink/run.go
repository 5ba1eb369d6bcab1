package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuelink/cuelink-go/pkg/api"
	"github.com/cuelink/cuelink-go/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

func newRunCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the orchestrator and the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	runCmd.Flags().String("addr", "", "HTTP listen address (default 127.0.0.1:8455)")
	runCmd.Flags().BoolP("interactive", "i", false, "Attach an interactive shell")
	runCmd.Flags().Bool("no-discovery", false, "Do not browse for hosts on startup")
	return runCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if off, _ := cmd.Flags().GetBool("no-discovery"); off {
		cfg.Orchestrator.DisableDiscovery = true
	}
	interactive, _ := cmd.Flags().GetBool("interactive")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sh *shell
	logOut := io.Writer(os.Stderr)
	if interactive {
		sh, err = newShell()
		if err != nil {
			return err
		}
		logOut = sh.Stderr()
	}

	logger := newLogger(cfg, logOut)
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	httpCfg := cfg.HTTP
	httpCfg.Version = version
	httpCfg.Metrics = metrics.Handler(a.registry)
	httpCfg.Logger = logger.With("component", "http")
	srv := api.NewServer(a.orch, httpCfg)

	ln, err := net.Listen("tcp", srv.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("http api listening", "addr", ln.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	if sh != nil {
		sh.ctl = a.orch
		shellCtx, cancel := context.WithCancel(ctx)
		go func() {
			sh.Run(shellCtx)
			cancel()
		}()
		ctx = shellCtx
	}

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, context.DeadlineExceeded) {
		logger.Warn("http shutdown", "err", serr)
	}
	logger.Info("shutting down")
	return err
}
