package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings shared by the server and the CLI client.
type Config struct {
	Port                string        `mapstructure:"port"`
	LogLevel            string        `mapstructure:"log_level"`
	HistoryPageSize     int           `mapstructure:"history_page_size"`
	MaxPageSize         int           `mapstructure:"max_page_size"`
	TickInterval        time.Duration `mapstructure:"tick_interval"`
	SubscriberBuffer    int           `mapstructure:"subscriber_buffer"`
	DefaultDuration     time.Duration `mapstructure:"default_duration"`
	Reconnect           bool          `mapstructure:"reconnect"`
	ReconnectMaxElapsed time.Duration `mapstructure:"reconnect_max_elapsed"`
	NameCacheMB         int           `mapstructure:"name_cache_mb"`
	NameCacheTTL        time.Duration `mapstructure:"name_cache_ttl"`
	PendingWindow       time.Duration `mapstructure:"pending_window"`
	ServerURL           string        `mapstructure:"server_url"`
	UserID              string        `mapstructure:"user_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("history_page_size", 5)
	v.SetDefault("max_page_size", 100)
	v.SetDefault("tick_interval", time.Second)
	v.SetDefault("subscriber_buffer", 64)
	v.SetDefault("default_duration", 7*24*time.Hour)
	v.SetDefault("reconnect", true)
	v.SetDefault("reconnect_max_elapsed", time.Minute)
	v.SetDefault("name_cache_mb", 8)
	v.SetDefault("name_cache_ttl", 10*time.Minute)
	v.SetDefault("pending_window", time.Minute)
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("user_id", "")
}

// New returns a viper instance with defaults and AUCTION_* environment
// bindings. PORT is honoured for the port as well.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("AUCTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("port", "AUCTION_PORT", "PORT")
	return v
}

// Load reads the optional YAML file at path on top of defaults and environment.
func Load(path string) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v. The CLI calls it
// after binding its flags.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: failed to decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.HistoryPageSize <= 0:
		return fmt.Errorf("config: history_page_size must be positive, got %d", c.HistoryPageSize)
	case c.MaxPageSize < c.HistoryPageSize:
		return fmt.Errorf("config: max_page_size %d is below history_page_size %d", c.MaxPageSize, c.HistoryPageSize)
	case c.TickInterval <= 0:
		return fmt.Errorf("config: tick_interval must be positive, got %s", c.TickInterval)
	case c.SubscriberBuffer <= 0:
		return fmt.Errorf("config: subscriber_buffer must be positive, got %d", c.SubscriberBuffer)
	case c.NameCacheMB <= 0:
		return fmt.Errorf("config: name_cache_mb must be positive, got %d", c.NameCacheMB)
	}
	return nil
}

// Addr is the listen address for the HTTP server
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
