package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/Shugur-Network/nostr-client/internal/logger"
	validator "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

//go:embed defaults.yaml
var defaultYAML []byte

// Version is set at runtime from build information.
var Version = "dev"

var validate = validator.New()

// Config holds every sub-config.
type Config struct {
	General  GeneralConfig  `mapstructure:"general"  validate:"required"`
	Logging  LoggingConfig  `mapstructure:"logging"  validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  validate:"required"`
	Client   ClientConfig   `mapstructure:"client"   validate:"required"`
	Gateway  GatewayConfig  `mapstructure:"gateway"  validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"    validate:"required"`
}

// GeneralConfig holds settings that do not belong to a single subsystem.
type GeneralConfig struct {
	// DataDir is where the client keeps its key file and relay list when
	// the per-file paths are left empty.
	DataDir string `mapstructure:"DATA_DIR" json:"data_dir" validate:"required"`
}

func init() {
	registerCustomValidators()
}

var hostRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`)

// registerCustomValidators registers the validation functions used by the
// struct tags above.
func registerCustomValidators() {
	// A relay URL: ws:// or wss:// plus host, or a bare host that the
	// manager will normalize to wss://.
	mustRegister("relayurl", func(fl validator.FieldLevel) bool {
		raw := strings.TrimSpace(fl.Field().String())
		if raw == "" {
			return false
		}
		if strings.Contains(raw, "://") {
			if !strings.HasPrefix(raw, "ws://") && !strings.HasPrefix(raw, "wss://") {
				return false
			}
			raw = raw[strings.Index(raw, "://")+3:]
		}
		raw = strings.TrimSuffix(raw, "/")
		host := raw
		if h, _, err := net.SplitHostPort(raw); err == nil {
			host = h
		}
		return host != "" && (net.ParseIP(host) != nil || hostRe.MatchString(host))
	})

	// A 64-character hex pubkey; empty allowed for optional fields.
	mustRegister("pubkey", func(fl validator.FieldLevel) bool {
		key := fl.Field().String()
		if key == "" {
			return true
		}
		matched, _ := regexp.MatchString(`^[a-fA-F0-9]{64}$`, key)
		return matched
	})

	mustRegister("log_level", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "debug", "info", "warn", "error", "fatal":
			return true
		}
		return false
	})

	mustRegister("log_format", func(fl validator.FieldLevel) bool {
		format := fl.Field().String()
		return format == "console" || format == "json"
	})

	// Timeouts and delays between 1 second and 1 hour.
	mustRegister("timeout_duration", func(fl validator.FieldLevel) bool {
		d := fl.Field().Interface().(time.Duration)
		return d >= time.Second && d <= time.Hour
	})

	mustRegister("host", func(fl validator.FieldLevel) bool {
		host := fl.Field().String()
		if host == "" {
			return false
		}
		return net.ParseIP(host) != nil || hostRe.MatchString(host)
	})
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		logger.Error("Failed to register validator", zap.String("tag", tag), zap.Error(err))
	}
}

/* ------------------------------------------------------------------ *
|  Public API                                                         |
* -------------------------------------------------------------------*/

// SetVersion sets the version from build information.
func SetVersion(v string) {
	Version = v
}

// Load merges defaults → file (optional) → env vars, validates, and
// initializes the logger from the result.
func Load(path string, log *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NOSTRCLIENT") // NOSTRCLIENT_CLIENT_DEFAULT_RELAY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 1. defaults.yaml (embedded)
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	// 2. optional user file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.MergeInConfig(); err == nil && log != nil {
			log.Info("Loaded config.yaml from current directory")
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, formatValidationError(err)
	}

	if err := initializeLogger(cfg.Logging); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	if log != nil {
		log.Info("configuration loaded", zap.String("version", Version))
	}
	return &cfg, nil
}

func initializeLogger(c LoggingConfig) error {
	return logger.Init(
		logger.WithLevel(c.Level),
		logger.WithFormat(c.Format),
		logger.WithFile(c.FilePath),
		logger.WithVersion(Version),
		logger.WithComponent("nostr-client"),
		logger.WithRotation(c.MaxSize, c.MaxBackups, c.MaxAge),
	)
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	var messages []string
	for _, fe := range validationErrors {
		messages = append(messages, fieldErrorMessage(fe))
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}

func fieldErrorMessage(fe validator.FieldError) string {
	field := fe.Field()
	value := fe.Value()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required but not provided", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", field, param, value)
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", field, param, value)
	case "url":
		return fmt.Sprintf("%s must be a valid URL (got: %v)", field, value)
	case "relayurl":
		return fmt.Sprintf("%s must be a relay URL or hostname (got: %v)", field, value)
	case "pubkey":
		return fmt.Sprintf("%s must be a 64-character hexadecimal string (got: %v)", field, value)
	case "log_level":
		return fmt.Sprintf("%s must be one of: debug, info, warn, error, fatal (got: %v)", field, value)
	case "log_format":
		return fmt.Sprintf("%s must be either 'console' or 'json' (got: %v)", field, value)
	case "timeout_duration":
		return fmt.Sprintf("%s must be between 1 second and 1 hour (got: %v)", field, value)
	case "host":
		return fmt.Sprintf("%s must be a valid hostname or IP address (got: %v)", field, value)
	default:
		return fmt.Sprintf("%s validation failed: %s (got: %v)", field, fe.Tag(), value)
	}
}
