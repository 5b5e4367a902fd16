package config

import "time"

// ClientConfig holds the relay manager and request client settings.
type ClientConfig struct {
	// DefaultRelay is always part of the configured set and cannot be
	// removed.
	DefaultRelay string `mapstructure:"DEFAULT_RELAY" json:"default_relay" validate:"required,relayurl"`

	// RelayListFile is where the configured relay list persists. Empty
	// means in-memory only.
	RelayListFile string `mapstructure:"RELAY_LIST_FILE" json:"relay_list_file" validate:"omitempty"`

	// PrivateKeyFile holds the hex secret key the client signs with. Empty
	// means read-only operation.
	PrivateKeyFile string `mapstructure:"PRIVATE_KEY_FILE" json:"private_key_file" validate:"omitempty"`

	AutoReconnect        bool          `mapstructure:"AUTO_RECONNECT"         json:"auto_reconnect"`
	MaxReconnectAttempts int           `mapstructure:"MAX_RECONNECT_ATTEMPTS" json:"max_reconnect_attempts" validate:"required,min=0,max=100"`
	ReconnectDelay       time.Duration `mapstructure:"RECONNECT_DELAY"        json:"reconnect_delay"        validate:"required,timeout_duration"`

	ConnectTimeout time.Duration `mapstructure:"CONNECT_TIMEOUT" json:"connect_timeout" validate:"required,timeout_duration"`
	QueryTimeout   time.Duration `mapstructure:"QUERY_TIMEOUT"   json:"query_timeout"   validate:"required,timeout_duration"`
	PublishTimeout time.Duration `mapstructure:"PUBLISH_TIMEOUT" json:"publish_timeout" validate:"required,timeout_duration"`
}

// CacheConfig holds in-memory event cache settings, used when no database is
// configured.
type CacheConfig struct {
	Enabled bool `mapstructure:"ENABLED" json:"enabled"`
	Size    int  `mapstructure:"SIZE"    json:"size" validate:"required,min=100,max=1000000"`
}
