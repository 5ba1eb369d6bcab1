package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuelink/cuelink-go/pkg/persistence"
)

// withStore opens the configured store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *persistence.Store) error) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, newLogger(cfg, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cmd.Context(), store)
}

func newHistoryCommand() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List or edit the connection history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonMode, _ := cmd.Flags().GetBool("json")
			return withStore(cmd, func(ctx context.Context, store *persistence.Store) error {
				history := store.History(ctx)
				if jsonMode {
					return printJSON(cmd.OutOrStdout(), history)
				}
				printHistory(cmd.OutOrStdout(), history)
				return nil
			})
		},
	}
	historyCmd.Flags().Bool("json", false, "Output as JSON")

	removeCmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove one entry (id is host:port)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *persistence.Store) error {
				removed, err := store.RemoveFromHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("no history entry %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *persistence.Store) error {
				if err := store.ClearHistory(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
				return nil
			})
		},
	}

	historyCmd.AddCommand(removeCmd, clearCmd)
	return historyCmd
}

func newSettingsCommand() *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the application settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *persistence.Store) error {
				printSettings(cmd.OutOrStdout(), store.Settings(ctx))
				return nil
			})
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key=value>...",
		Short: "Change settings (theme, notifications, auto-reconnect, timeout)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch persistence.SettingsPatch
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("expected key=value, got %q", arg)
				}
				p, err := parseSetting(key, value)
				if err != nil {
					return err
				}
				patch = patch.Merge(p)
			}
			return withStore(cmd, func(ctx context.Context, store *persistence.Store) error {
				settings, err := store.UpdateSettings(ctx, patch)
				if err != nil {
					return err
				}
				printSettings(cmd.OutOrStdout(), settings)
				return nil
			})
		},
	}

	settingsCmd.AddCommand(setCmd)
	return settingsCmd
}
