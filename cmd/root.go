package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Shugur-Network/nostr-client/internal/application"
	"github.com/Shugur-Network/nostr-client/internal/config"
	"github.com/Shugur-Network/nostr-client/internal/logger"
	"github.com/Shugur-Network/nostr-client/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spf13/cobra"
)

var (
	cfgFile string         // Path to custom config file (optional)
	cfg     *config.Config // Global reference to loaded configuration
)

// rootCmd defines the main CLI command for the nostr client
var rootCmd = &cobra.Command{
	Use:   "nostr-client",
	Short: "nostr-client is a multi-relay Nostr client",
	Long:  `Multi-relay Nostr client with cached queries, gateway fast path and live subscriptions.`,
	Example: `
  nostr-client query --kind 1 --limit 10
  nostr-client relay add wss://relay.damus.io
  nostr-client publish "hello nostr"
  nostr-client watch --kind 1 --search nostr`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for version command
		if cmd.Name() == "version" {
			return nil
		}

		if cfgFile != "" {
			absPath, err := filepath.Abs(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to resolve config path: %w", err)
			}
			cfgFile = absPath
		}

		// Load configuration (use nil logger to avoid sync issues)
		var err error
		cfg, err = config.Load(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		// Override config with command line flags if specified
		flags := cmd.Flags()
		if flags.Changed("relay") {
			cfg.Client.DefaultRelay, _ = flags.GetString("relay")
		}
		if flags.Changed("db-host") {
			cfg.Database.Server, _ = flags.GetString("db-host")
		}
		if flags.Changed("db-port") {
			cfg.Database.Port, _ = flags.GetInt("db-port")
		}
		if flags.Changed("gateway-url") {
			cfg.Gateway.BaseURL, _ = flags.GetString("gateway-url")
			cfg.Gateway.Enabled = cfg.Gateway.BaseURL != ""
		}
		if flags.Changed("log-level") {
			lvl, _ := flags.GetString("log-level")
			cfg.Logging.Level = lvl
			if err := logger.UpdateLevel(lvl); err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
		}

		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		// Default behavior: show help when no subcommand is provided
		if err := cmd.Help(); err != nil {
			fmt.Fprintf(os.Stderr, "Error displaying help: %v\n", err)
		}
	},
}

// Execute runs the root command with the provided context
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withClient builds and starts the client, runs fn, and shuts down.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, app *application.Client) error) error {
	ctx := cmd.Context()

	metrics.RegisterMetrics()

	app, err := application.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize the client: %w", err)
	}
	defer app.Shutdown()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start the client: %w", err)
	}
	return fn(ctx, app)
}

// serveMetrics exposes Prometheus metrics for long-running commands.
func serveMetrics(ctx context.Context) {
	if !cfg.Metrics.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("Metrics server error", zap.Error(err))
		}
	}()
	logger.Info("Metrics server listening", zap.Int("port", cfg.Metrics.Port))
}

// init is automatically called before main(), sets up flags and subcommands
func init() {
	// Add persistent flags (inherited by all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to custom config file (optional)")

	rootCmd.PersistentFlags().String("relay", "", "Default relay URL override")
	rootCmd.PersistentFlags().String("db-host", "localhost", "Postgres cache host")
	rootCmd.PersistentFlags().IntP("db-port", "", 5432, "Postgres cache port")
	rootCmd.PersistentFlags().String("gateway-url", "", "HTTP gateway base URL")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level (debug, info, warn, error, fatal)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRelayCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newCountCmd())
	rootCmd.AddCommand(newPublishCmd())
	rootCmd.AddCommand(newWatchCmd())
}
