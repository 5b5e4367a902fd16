package application

import (
	"context"
	"fmt"
	"time"

	"github.com/Shugur-Network/nostr-client/internal/cache"
	"github.com/Shugur-Network/nostr-client/internal/config"
	"github.com/Shugur-Network/nostr-client/internal/constants"
	"github.com/Shugur-Network/nostr-client/internal/domain"
	"github.com/Shugur-Network/nostr-client/internal/gateway"
	"github.com/Shugur-Network/nostr-client/internal/identity"
	"github.com/Shugur-Network/nostr-client/internal/logger"
	"github.com/Shugur-Network/nostr-client/internal/pool"
	"github.com/Shugur-Network/nostr-client/internal/relay"
	"github.com/Shugur-Network/nostr-client/internal/storage"

	"go.uber.org/zap"
)

// ClientBuilder is used to incrementally construct a Client instance.
type ClientBuilder struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config

	identity     *identity.ClientIdentity
	database     *storage.DB
	dao          domain.EventDao
	gatewayCli   domain.GatewayClient
	pool         *pool.Pool
	relayStorage domain.RelayStorage
	manager      *relay.Manager
}

// NewClientBuilder creates a new ClientBuilder with its own cancelable context.
func NewClientBuilder(ctx context.Context, cfg *config.Config) *ClientBuilder {
	c, cancel := context.WithCancel(ctx)
	return &ClientBuilder{
		ctx:    c,
		cancel: cancel,
		config: cfg,
	}
}

// BuildIdentity loads or creates the signing key. An empty PRIVATE_KEY_FILE
// leaves the client in read-only mode.
func (b *ClientBuilder) BuildIdentity() error {
	if b.config.Client.PrivateKeyFile == "" {
		logger.Info("No private key file configured, running read-only")
		return nil
	}

	id, err := identity.LoadOrCreate(b.config.General.DataDir, b.config.Client.PrivateKeyFile)
	if err != nil {
		b.cancel()
		return fmt.Errorf("failed to load signing keys: %w", err)
	}
	b.identity = id
	logger.Info("Signing keys loaded", zap.String("pubkey", id.PublicKey))
	return nil
}

// BuildDB connects the optional Postgres-backed event cache. No configured
// database is not an error; the client falls back to the in-memory cache or
// no caching at all.
func (b *ClientBuilder) BuildDB() error {
	if !b.config.Database.Configured() {
		logger.Debug("No database configured, skipping Postgres cache")
		return nil
	}

	dbURI := b.config.Database.URL
	if dbURI == "" {
		name := b.config.Database.Name
		if name == "" {
			name = constants.DefaultDatabaseName
		}
		dbURI = fmt.Sprintf("postgres://postgres@%s:%d/%s?sslmode=disable",
			b.config.Database.Server, b.config.Database.Port, name)
	}

	logger.Info("Connecting to event cache database...")
	dbConn, err := storage.InitDB(b.ctx, dbURI, constants.DBPoolMediumMaxConns)
	if err != nil {
		b.cancel()
		return fmt.Errorf("failed to initialize database connection: %w", err)
	}
	b.database = dbConn
	return nil
}

// BuildCache picks the event DAO: Postgres when connected, the bounded
// in-memory cache when enabled, otherwise no caching.
func (b *ClientBuilder) BuildCache() {
	switch {
	case b.database != nil:
		b.dao = b.database
	case b.config.Cache.Enabled:
		b.dao = cache.NewMemoryEventDao(b.config.Cache.Size)
		logger.Debug("Using in-memory event cache", zap.Int("size", b.config.Cache.Size))
	default:
		logger.Debug("Event caching disabled")
	}
}

// BuildGateway wires the optional HTTP gateway fast path.
func (b *ClientBuilder) BuildGateway() {
	if !b.config.Gateway.Enabled || b.config.Gateway.BaseURL == "" {
		logger.Debug("Gateway fast path disabled")
		return
	}
	b.gatewayCli = gateway.New(
		b.config.Gateway.BaseURL,
		b.config.Gateway.Timeout,
		b.config.Gateway.MaxRequestsPerSecond,
	)
	logger.Info("Gateway fast path enabled", zap.String("base_url", b.config.Gateway.BaseURL))
}

// BuildPool creates the relay connection pool and protocol engine.
func (b *ClientBuilder) BuildPool() {
	b.pool = pool.New(pool.Config{
		Identity:       b.identity,
		ConnectTimeout: b.config.Client.ConnectTimeout,
		QueryTimeout:   b.config.Client.QueryTimeout,
		PublishTimeout: b.config.Client.PublishTimeout,
	})
}

// BuildManager creates the relay manager over the pool, with file-backed
// relay list persistence when a path is configured.
func (b *ClientBuilder) BuildManager() {
	if b.config.Client.RelayListFile != "" {
		b.relayStorage = cache.NewFileRelayStorage(b.config.Client.RelayListFile)
	}

	b.manager = relay.NewManager(relay.ManagerConfig{
		DefaultRelayURL:      b.config.Client.DefaultRelay,
		Storage:              b.relayStorage,
		AutoReconnect:        b.config.Client.AutoReconnect,
		MaxReconnectAttempts: b.config.Client.MaxReconnectAttempts,
		ReconnectDelay:       b.config.Client.ReconnectDelay,
	}, b.pool)
}

// Build finalizes the client construction.
func (b *ClientBuilder) Build() (*Client, error) {
	if b.pool == nil {
		return nil, fmt.Errorf("pool must be built before calling Build()")
	}
	if b.manager == nil {
		return nil, fmt.Errorf("manager must be built before calling Build()")
	}

	client := &Client{
		ctx:      b.ctx,
		cancel:   b.cancel,
		config:   b.config,
		identity: b.identity,
		db:       b.database,

		Pool:      b.pool,
		Manager:   b.manager,
		Requests:  relay.NewRequestClient(b.manager, b.pool, b.dao, b.gatewayCli),
		startTime: time.Now(),
	}

	logger.Debug("Client initialized successfully via builder")
	return client, nil
}
