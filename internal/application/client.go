package application

import (
	"context"
	"fmt"
	"time"

	"github.com/Shugur-Network/nostr-client/internal/config"
	"github.com/Shugur-Network/nostr-client/internal/identity"
	"github.com/Shugur-Network/nostr-client/internal/logger"
	"github.com/Shugur-Network/nostr-client/internal/pool"
	"github.com/Shugur-Network/nostr-client/internal/relay"
	"github.com/Shugur-Network/nostr-client/internal/storage"
	"go.uber.org/zap"
)

// Client ties together the components of a running Nostr client: identity,
// optional database cache, optional gateway, the connection pool, the relay
// manager and the request client.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	config   *config.Config
	identity *identity.ClientIdentity
	db       *storage.DB

	Pool     *pool.Pool
	Manager  *relay.Manager
	Requests *relay.RequestClient

	startTime time.Time
}

// New creates and configures a Client using the ClientBuilder pattern.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	builder := NewClientBuilder(ctx, cfg)

	if err := builder.BuildIdentity(); err != nil {
		return nil, fmt.Errorf("failed building identity: %w", err)
	}
	if err := builder.BuildDB(); err != nil {
		return nil, fmt.Errorf("failed building db: %w", err)
	}
	builder.BuildCache()
	builder.BuildGateway()
	builder.BuildPool()
	builder.BuildManager()

	client, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build client: %w", err)
	}
	return client, nil
}

// Start connects the configured relay set. Connection failures degrade
// individual relays; Start itself only fails on gross misconfiguration.
func (c *Client) Start(ctx context.Context) error {
	if err := c.Manager.Initialize(ctx); err != nil {
		logger.Error("Failed to initialize relay manager", zap.Error(err))
		return err
	}

	logger.Info("Client started",
		zap.Int("configured_relays", c.Manager.ConfiguredRelayCount()),
		zap.Int("connected_relays", c.Manager.ConnectedRelayCount()),
		zap.Bool("has_keys", c.Requests.HasKeys()))
	return nil
}

// Shutdown tears the client down in reverse construction order with a
// bounded timeout.
func (c *Client) Shutdown() {
	logger.Info("Initiating graceful shutdown...")
	shutdownTimeout := 30 * time.Second

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if c.Requests != nil {
		logger.Debug("Closing subscriptions and relay protocol...")
		c.Requests.Dispose(shutdownCtx)
	}

	if c.Manager != nil {
		logger.Debug("Disposing relay manager...")
		c.Manager.Dispose()
	}

	if c.cancel != nil {
		c.cancel()
	}

	if c.db != nil {
		logger.Debug("Closing database connection...")
		c.db.Close()
	}

	logger.Info("Client shutdown completed", zap.Duration("shutdown_timeout", shutdownTimeout))
}

// Config returns the client's configuration.
func (c *Client) Config() *config.Config {
	return c.config
}

// DB returns the database-backed cache, nil when none is configured.
func (c *Client) DB() *storage.DB {
	return c.db
}

// PublicKey returns the hex public key the client signs with, empty in
// read-only mode.
func (c *Client) PublicKey() string {
	if c.identity == nil {
		return ""
	}
	return c.identity.PublicKey
}

// GetStartTime returns when the client was started.
func (c *Client) GetStartTime() time.Time {
	return c.startTime
}
