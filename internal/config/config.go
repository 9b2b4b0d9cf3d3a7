// Package config loads the runtime's JSON configuration file, overlaying
// sensitive fields from environment variables. Unknown top-level keys are
// retained verbatim and accessible by name so application-defined sections
// (e.g. per-strategy blocks) survive the typed decode.
package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// LogConfig controls the structured logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Path        string `mapstructure:"path"`
	Name        string `mapstructure:"name"`
	Clear       bool   `mapstructure:"clear"`
	BackupCount int    `mapstructure:"backup_count"`
	Console     bool   `mapstructure:"console"`
}

// RabbitMQConfig holds broker connection parameters. Its absence from the
// config file disables the bus entirely.
type RabbitMQConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// URL builds the amqp:// connection string for this broker config.
func (r RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", r.Username, r.Password, r.Host, r.Port)
}

// MarketConfig is one entry in the MARKETS mapping: platform -> settings.
type MarketConfig struct {
	WSS             string   `mapstructure:"wss"`
	Symbols         []string `mapstructure:"symbols"`
	Channels        []string `mapstructure:"channels"`
	OrderbookLength int      `mapstructure:"orderbook_length"`
}

// HeartbeatConfig controls the heartbeat log cadence. Interval of 0
// disables the heartbeat log line; the underlying 1s scheduler ticker
// itself is not configurable.
type HeartbeatConfig struct {
	Interval int `mapstructure:"interval"`
}

// Config is the top-level runtime configuration.
type Config struct {
	ServerID  string                  `mapstructure:"SERVER_ID"`
	Log       LogConfig               `mapstructure:"LOG"`
	RabbitMQ  *RabbitMQConfig         `mapstructure:"RABBITMQ"`
	Accounts  []map[string]any        `mapstructure:"ACCOUNTS"`
	Markets   map[string]MarketConfig `mapstructure:"MARKETS"`
	Heartbeat HeartbeatConfig         `mapstructure:"HEARTBEAT"`
	Proxy     string                  `mapstructure:"PROXY"`

	extra map[string]any
}

// Load reads config from a JSON file. SERVER_ID, if absent, is generated;
// a handful of process-wide secrets may be overlaid via CCB_* env vars.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("CCB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.extra = v.AllSettings()

	if cfg.ServerID == "" {
		cfg.ServerID = strings.ReplaceAll(uuid.New().String(), "-", "")
	}

	return &cfg, nil
}

// Extra returns an unknown top-level config key verbatim, for
// application-defined sections not part of the typed schema.
func (c *Config) Extra(key string) (any, bool) {
	if c.extra == nil {
		return nil, false
	}
	v, ok := c.extra[strings.ToLower(key)]
	return v, ok
}

// Validate checks required fields and fills in defaults.
func (c *Config) Validate() error {
	if c.ServerID == "" {
		return fmt.Errorf("SERVER_ID is required")
	}
	for platform, m := range c.Markets {
		if len(m.Symbols) == 0 {
			return fmt.Errorf("MARKETS.%s: symbols must not be empty", platform)
		}
		if m.OrderbookLength == 0 {
			m.OrderbookLength = 10
			c.Markets[platform] = m
		}
	}
	return nil
}
