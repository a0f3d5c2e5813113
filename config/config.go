// Package config loads the engine configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the groupage engine.
type Config struct {
	Store struct {
		// BaseURL is the record store's API root, e.g. https://api.example.com
		BaseURL string `mapstructure:"base_url" validate:"required,url"`
		// APIKey is sent as a bearer token (GROUPAGE_STORE_API_KEY)
		APIKey string `mapstructure:"api_key"`
		BaseID string `mapstructure:"base_id" validate:"required"`
		Table  string `mapstructure:"table" validate:"required"`
		// TimeoutSeconds bounds each HTTP call to the store
		TimeoutSeconds    int     `mapstructure:"timeout_seconds" validate:"gte=1"`
		RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gt=0"`
		Burst             int     `mapstructure:"burst" validate:"gte=1"`
	} `mapstructure:"store"`

	Sweep struct {
		// PauseEvery inserts a delay after this many processed records
		PauseEvery int `mapstructure:"pause_every" validate:"gte=1"`
		PauseMS    int `mapstructure:"pause_ms" validate:"gte=0"`
	} `mapstructure:"sweep"`

	Redis struct {
		// Enabled switches the advisory sweep lock on; without it the
		// scheduler alone must prevent overlapping runs
		Enabled        bool   `mapstructure:"enabled"`
		Addr           string `mapstructure:"addr"`
		Password       string `mapstructure:"password"`
		DB             int    `mapstructure:"db"`
		LockKey        string `mapstructure:"lock_key"`
		LockTTLMinutes int    `mapstructure:"lock_ttl_minutes"`
	} `mapstructure:"redis"`

	API struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port" validate:"gte=1,lte=65535"`
	} `mapstructure:"api"`
}

// StoreTimeout returns the HTTP timeout as a duration.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Store.TimeoutSeconds) * time.Second
}

// SweepPause returns the pacing delay as a duration.
func (c *Config) SweepPause() time.Duration {
	return time.Duration(c.Sweep.PauseMS) * time.Millisecond
}

// LockTTL returns the advisory lock lease duration.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Redis.LockTTLMinutes) * time.Minute
}

func setDefaults() {
	// Empty defaults register the keys so environment overrides reach
	// viper.Unmarshal.
	viper.SetDefault("store.base_url", "")
	viper.SetDefault("store.api_key", "")
	viper.SetDefault("store.base_id", "")
	viper.SetDefault("store.table", "")
	viper.SetDefault("store.timeout_seconds", 15)
	viper.SetDefault("store.requests_per_second", 5)
	viper.SetDefault("store.burst", 1)
	viper.SetDefault("sweep.pause_every", 10)
	viper.SetDefault("sweep.pause_ms", 1000)
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.lock_key", "groupage:sweep:lock")
	viper.SetDefault("redis.lock_ttl_minutes", 30)
	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8080)
}

// LoadConfig reads groupage.yaml (optional) and GROUPAGE_* environment
// variables, then validates the result. Missing config file is not an
// error; missing store credentials are.
func LoadConfig(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("groupage")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/groupage")
	}

	viper.SetEnvPrefix("GROUPAGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
