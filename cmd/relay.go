package main

import (
	"context"
	"fmt"

	"github.com/Shugur-Network/nostr-client/internal/application"
	"github.com/spf13/cobra"
)

func newRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Manage the configured relay set",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured relays and their connection state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, app *application.Client) error {
				statuses := app.Manager.CurrentStatuses()
				for _, url := range app.Manager.ConfiguredRelays() {
					state := "unknown"
					marker := " "
					if status, ok := statuses[url]; ok {
						state = status.State.String()
						if status.IsDefault {
							marker = "*"
						}
					}
					fmt.Printf("%s %-40s %s\n", marker, url, state)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <url>",
		Short: "Add a relay to the configured set and connect it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, app *application.Client) error {
				if app.Manager.AddRelay(ctx, args[0]) {
					fmt.Printf("added and connected %s\n", args[0])
				} else if app.Manager.IsRelayConfigured(args[0]) {
					fmt.Printf("added %s (connection pending)\n", args[0])
				} else {
					fmt.Printf("rejected %s\n", args[0])
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <url>",
		Short: "Remove a relay from the configured set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, app *application.Client) error {
				if app.Manager.RemoveRelay(ctx, args[0]) {
					fmt.Printf("removed %s\n", args[0])
				} else {
					fmt.Printf("cannot remove %s\n", args[0])
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show connection counts for the relay set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, app *application.Client) error {
				fmt.Printf("configured: %d\nconnected:  %d\n",
					app.Manager.ConfiguredRelayCount(),
					app.Manager.ConnectedRelayCount())
				return nil
			})
		},
	})

	return cmd
}
