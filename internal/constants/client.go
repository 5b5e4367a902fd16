package constants

import "time"

// Event kinds the client builds or filters on.
const (
	KindProfileMetadata = 0
	KindTextNote        = 1
	KindContactList     = 3
	KindDeletion        = 5
	KindRepost          = 6
	KindReaction        = 7
	KindGenericRepost   = 16
	KindShortVideo      = 22
)

// Relay transport defaults.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultQueryTimeout   = 15 * time.Second
	DefaultPublishTimeout = 10 * time.Second
	DefaultCountTimeout   = 10 * time.Second
	PingInterval          = 30 * time.Second
	PongWait              = 60 * time.Second
	WriteWait             = 10 * time.Second
	MaxMessageSize        = 1 << 20 // 1 MiB relay frames
)

// Default relay list behavior.
const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = 5 * time.Second
)

// DefaultQueryPrealloc sizes result slices for typical filter limits.
const DefaultQueryPrealloc = 128

// DefaultDatabaseName is the event cache database created when the
// configuration names a server but no database.
const DefaultDatabaseName = "nostr_client"

// Database pool sizing tiers, scaled from expected client concurrency.
const (
	DBPoolSmallMaxConns  = 5
	DBPoolSmallMinConns  = 1
	DBPoolMediumMaxConns = 15
	DBPoolMediumMinConns = 3
	DBConnMaxLifetime    = 30 * time.Minute
	DBConnMaxIdleTime    = 5 * time.Minute
	DBConnAcquireTimeout = 10 * time.Second
	DBBatchSize          = 50
)

// Auto-cache dedup bloom filter sizing.
const (
	BloomExpectedItems = 100_000
	BloomHashFunctions = 5
)
