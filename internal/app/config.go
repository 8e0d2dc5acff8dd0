package app

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Push source selectors accepted by PUSH_SOURCE.
const (
	PushWebSocket = "websocket"
	PushRedis     = "redis"
	PushNone      = "none"
)

// Config holds runtime configuration for the dashboard.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development" validate:"oneof=development test staging production"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080" validate:"required"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s" validate:"gt=0"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s" validate:"gt=0"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s" validate:"gt=0"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty" validate:"oneof=pretty json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	EnduroAPIURL      string        `envconfig:"ENDURO_API_URL" default:"http://127.0.0.1:9000" validate:"required,url"`
	EnduroMonitorURL  string        `envconfig:"ENDURO_MONITOR_URL" validate:"omitempty,url"`
	EnduroHTTPTimeout time.Duration `envconfig:"ENDURO_HTTP_TIMEOUT" default:"10s" validate:"gt=0"`

	PushSource   string `envconfig:"PUSH_SOURCE" default:"websocket" validate:"oneof=websocket redis none"`
	RedisAddr    string `envconfig:"REDIS_ADDR" validate:"required_if=PushSource redis"`
	RedisChannel string `envconfig:"REDIS_CHANNEL" default:"enduro:collection:events" validate:"required"`

	SearchDebounce time.Duration `envconfig:"SEARCH_DEBOUNCE" default:"1s" validate:"gt=0"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("app: invalid config: %w", err)
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// RelayEnabled reports whether monitor messages read over the websocket
// should also be published to Redis for other instances.
func (c *Config) RelayEnabled() bool {
	return c != nil && c.PushSource == PushWebSocket && c.RedisAddr != ""
}
