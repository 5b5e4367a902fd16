package config

import "time"

// GatewayConfig holds the optional HTTP gateway fast-path settings.
type GatewayConfig struct {
	Enabled bool   `mapstructure:"ENABLED"  json:"enabled"`
	BaseURL string `mapstructure:"BASE_URL" json:"base_url" validate:"omitempty,url"`

	Timeout time.Duration `mapstructure:"TIMEOUT" json:"timeout" validate:"required,timeout_duration"`

	// MaxRequestsPerSecond throttles gateway calls; 0 disables throttling.
	MaxRequestsPerSecond int `mapstructure:"MAX_REQUESTS_PER_SECOND" json:"max_requests_per_second" validate:"min=0,max=1000"`
}
