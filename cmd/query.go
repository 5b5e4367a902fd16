package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Shugur-Network/nostr-client/internal/application"
	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/spf13/cobra"
)

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().IntSlice("kind", nil, "Event kinds to match")
	cmd.Flags().StringSlice("author", nil, "Author pubkeys to match")
	cmd.Flags().StringSlice("id", nil, "Event ids to match")
	cmd.Flags().String("search", "", "Full-text search query")
	cmd.Flags().Int64("since", 0, "Unix timestamp lower bound")
	cmd.Flags().Int64("until", 0, "Unix timestamp upper bound")
	cmd.Flags().Int("limit", 0, "Maximum number of events")
}

func filterFromFlags(cmd *cobra.Command) nostr.Filter {
	var filter nostr.Filter
	filter.Kinds, _ = cmd.Flags().GetIntSlice("kind")
	filter.Authors, _ = cmd.Flags().GetStringSlice("author")
	filter.IDs, _ = cmd.Flags().GetStringSlice("id")
	filter.Search, _ = cmd.Flags().GetString("search")
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	if since, _ := cmd.Flags().GetInt64("since"); since > 0 {
		ts := nostr.Timestamp(since)
		filter.Since = &ts
	}
	if until, _ := cmd.Flags().GetInt64("until"); until > 0 {
		ts := nostr.Timestamp(until)
		filter.Until = &ts
	}
	return filter
}

func printEvent(evt nostr.Event) {
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(evt); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode event: %v\n", err)
	}
}

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query events from cache, gateway or relays",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := filterFromFlags(cmd)
			return withClient(cmd, func(ctx context.Context, app *application.Client) error {
				events, err := app.Requests.QueryEvents(ctx, []nostr.Filter{filter}, nil)
				if err != nil {
					return err
				}
				for _, evt := range events {
					printEvent(evt)
				}
				return nil
			})
		},
	}
	addFilterFlags(cmd)
	return cmd
}

func newCountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count events matching a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := filterFromFlags(cmd)
			return withClient(cmd, func(ctx context.Context, app *application.Client) error {
				result, err := app.Requests.CountEvents(ctx, []nostr.Filter{filter}, nil)
				if err != nil {
					return err
				}
				approx := ""
				if result.Approximate {
					approx = " (approximate)"
				}
				fmt.Printf("%d%s via %s\n", result.Count, approx, result.Source)
				return nil
			})
		},
	}
	addFilterFlags(cmd)
	return cmd
}

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <content>",
		Short: "Publish a text note to the connected relays",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetInt("kind")
			return withClient(cmd, func(ctx context.Context, app *application.Client) error {
				if !app.Requests.HasKeys() {
					return fmt.Errorf("no signing keys configured, set client.PRIVATE_KEY_FILE")
				}
				evt := nostr.Event{
					Kind:      kind,
					Content:   args[0],
					CreatedAt: nostr.Now(),
				}
				result := app.Requests.Broadcast(ctx, evt, nil)
				if !result.IsSuccessful() {
					return fmt.Errorf("publish failed: %v", result.Errors)
				}
				fmt.Printf("published %s to %d relay(s)\n", result.Event.ID, result.SuccessCount)
				return nil
			})
		},
	}
	cmd.Flags().Int("kind", 1, "Event kind to publish")
	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live events matching a filter until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := filterFromFlags(cmd)
			return withClient(cmd, func(ctx context.Context, app *application.Client) error {
				serveMetrics(ctx)

				sub, err := app.Requests.Subscribe(ctx, []nostr.Filter{filter}, nil)
				if err != nil {
					return err
				}
				defer app.Requests.Unsubscribe(context.Background(), sub.ID)

				for {
					select {
					case <-ctx.Done():
						return nil
					case evt, ok := <-sub.C:
						if !ok {
							return nil
						}
						printEvent(evt)
					}
				}
			})
		},
	}
	addFilterFlags(cmd)
	return cmd
}
