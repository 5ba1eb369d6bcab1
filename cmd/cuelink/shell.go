package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/cuelink/cuelink-go/pkg/api"
	"github.com/cuelink/cuelink-go/pkg/connection"
	"github.com/cuelink/cuelink-go/pkg/discovery"
	"github.com/cuelink/cuelink-go/pkg/wire"
)

// shellTimeout bounds a single shell command.
const shellTimeout = 30 * time.Second

// shell is the interactive command loop attached by run --interactive.
type shell struct {
	ctl api.Controller
	rl  *readline.Instance
	out io.Writer
}

func newShell() (*shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "cuelink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &shell{rl: rl, out: rl.Stdout()}, nil
}

// Stderr returns a writer that does not corrupt the prompt.
func (s *shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run reads commands until quit, EOF or ctx is done.
func (s *shell) Run(ctx context.Context) {
	defer s.rl.Close()

	s.printHelp()
	for {
		if ctx.Err() != nil {
			return
		}

		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			fmt.Fprintln(s.out, "Exiting...")
			return
		}
		if !s.exec(ctx, line) {
			return
		}
	}
}

// exec runs one command line. It returns false when the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	ctx, cancel := context.WithTimeout(ctx, shellTimeout)
	defer cancel()

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "status", "s":
		printStatus(s.out, s.ctl.Status())
	case "connect", "c":
		s.cmdConnect(ctx, args)
	case "reconnect", "r":
		s.report(s.ctl.Reconnect(ctx), "Connected.")
	case "disconnect", "d":
		s.ctl.Disconnect()
		fmt.Fprintln(s.out, "Disconnected.")
	case "next", "n":
		s.cmdSend(ctx, wire.CommandNext)
	case "prev", "p":
		s.cmdSend(ctx, wire.CommandPrevious)
	case "send":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "Usage: send <command>")
			return true
		}
		s.cmdSend(ctx, wire.Command(strings.ToUpper(args[0])))
	case "ping":
		if s.ctl.HealthCheck(ctx) {
			fmt.Fprintln(s.out, "Host is responding.")
		} else {
			fmt.Fprintln(s.out, "No response.")
		}
	case "discover":
		s.cmdDiscover(ctx, args)
	case "hosts":
		printHosts(s.out, s.ctl.Status().DiscoveredInstances)
	case "history", "h":
		s.cmdHistory(ctx, args)
	case "set":
		s.cmdSet(ctx, args)
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help')\n", cmd)
	}
	return true
}

func (s *shell) report(err error, ok string) {
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, ok)
}

func (s *shell) cmdConnect(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: connect <host> [port] [name]")
		return
	}
	ep := connection.Endpoint{Host: args[0], Port: discovery.DefaultControlPort}
	if len(args) > 1 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(s.out, "Invalid port: %s\n", args[1])
			return
		}
		ep.Port = port
	}
	if len(args) > 2 {
		ep.Name = strings.Join(args[2:], " ")
	}
	s.report(s.ctl.Connect(ctx, ep), fmt.Sprintf("Connected to %s.", ep.Address()))
}

func (s *shell) cmdSend(ctx context.Context, cmd wire.Command) {
	if !cmd.Valid() {
		fmt.Fprintf(s.out, "Unknown command: %s\n", cmd)
		return
	}
	s.report(s.ctl.Send(ctx, cmd), "Sent "+cmd.String()+".")
}

func (s *shell) cmdDiscover(ctx context.Context, args []string) {
	if len(args) > 0 && args[0] == "stop" {
		s.ctl.StopDiscovery()
		fmt.Fprintln(s.out, "Discovery stopped.")
		return
	}
	s.report(s.ctl.StartDiscovery(ctx), "Discovery started.")
}

func (s *shell) cmdHistory(ctx context.Context, args []string) {
	if len(args) == 0 {
		printHistory(s.out, s.ctl.Status().History)
		return
	}
	switch args[0] {
	case "remove", "rm":
		if len(args) != 2 {
			fmt.Fprintln(s.out, "Usage: history remove <id>")
			return
		}
		removed, err := s.ctl.RemoveFromHistory(ctx, args[1])
		switch {
		case err != nil:
			fmt.Fprintf(s.out, "Error: %v\n", err)
		case !removed:
			fmt.Fprintf(s.out, "No history entry %s.\n", args[1])
		default:
			fmt.Fprintf(s.out, "Removed %s.\n", args[1])
		}
	case "clear":
		s.report(s.ctl.ClearHistory(ctx), "History cleared.")
	default:
		fmt.Fprintln(s.out, "Usage: history [remove <id> | clear]")
	}
}

func (s *shell) cmdSet(ctx context.Context, args []string) {
	if len(args) == 0 {
		printSettings(s.out, s.ctl.Status().Settings)
		return
	}
	if len(args) != 2 {
		fmt.Fprintln(s.out, "Usage: set <key> <value>")
		return
	}
	patch, err := parseSetting(args[0], args[1])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	settings, err := s.ctl.UpdateSettings(ctx, patch)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	printSettings(s.out, settings)
}

func (s *shell) printHelp() {
	fmt.Fprint(s.out, `Commands:
  status, s                     Show connection and discovery status
  connect, c <host> [port] [n]  Connect to a host
  reconnect, r                  Reconnect to the most recent host
  disconnect, d                 Close the connection
  next, n / prev, p             Advance or go back one slide
  send <command>                Send NEXT, PREVIOUS, CLEAR_OUTPUT, CLEAR_ALL or CLEAR_SLIDE
  ping                          Check that the host responds
  discover [stop]               Start or stop host discovery
  hosts                         List discovered hosts
  history, h [remove <id>|clear]
  set [<key> <value>]           Show or change settings
  quit, q                       Exit
`)
}
