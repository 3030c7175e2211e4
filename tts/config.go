package tts

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Provider names accepted in configuration.
const (
	ProviderLocal   = "local"
	ProviderNetwork = "network"
)

// Config contains all read-aloud configuration options. Defaults come from
// DefaultConfig, file values from viper and environment overrides last.
type Config struct {
	// Voice selection
	Provider      string  `yaml:"provider" env:"READALOUD_PROVIDER"`
	Language      string  `yaml:"language" env:"READALOUD_LANGUAGE"`
	AllowFallback bool    `yaml:"allow_fallback" env:"READALOUD_ALLOW_FALLBACK"`
	Voice         string  `yaml:"voice" env:"READALOUD_VOICE"`
	Rate          float64 `yaml:"rate" env:"READALOUD_RATE"`
	Pitch         float64 `yaml:"pitch" env:"READALOUD_PITCH"`
	Volume        float64 `yaml:"volume" env:"READALOUD_VOLUME"`

	// Visual settings
	HighlightEnabled bool   `yaml:"highlight_enabled" env:"READALOUD_HIGHLIGHT_ENABLED"`
	HighlightColor   string `yaml:"highlight_color" env:"READALOUD_HIGHLIGHT_COLOR"`

	// Provider-specific configurations
	Local   LocalConfig   `yaml:"local"`
	Network NetworkConfig `yaml:"network"`
	Cache   CacheConfig   `yaml:"cache"`
}

// LocalConfig contains settings for the host speech engine.
type LocalConfig struct {
	// Binary is the speech program; empty picks the first one found on PATH.
	Binary         string `yaml:"binary" env:"READALOUD_LOCAL_BINARY"`
	WordsPerMinute int    `yaml:"words_per_minute" env:"READALOUD_LOCAL_WORDS_PER_MINUTE"`
}

// NetworkConfig contains settings for the synthesis service.
type NetworkConfig struct {
	Endpoint          string        `yaml:"endpoint" env:"READALOUD_NETWORK_ENDPOINT"`
	APIKey            string        `yaml:"api_key" env:"READALOUD_NETWORK_API_KEY"`
	Timeout           time.Duration `yaml:"timeout" env:"READALOUD_NETWORK_TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"READALOUD_NETWORK_REQUESTS_PER_SECOND"`
	Burst             int           `yaml:"burst" env:"READALOUD_NETWORK_BURST"`
}

// CacheConfig contains synthesis cache settings.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" env:"READALOUD_CACHE_ENABLED"`
	Dir       string        `yaml:"dir" env:"READALOUD_CACHE_DIR"`
	TTL       time.Duration `yaml:"ttl" env:"READALOUD_CACHE_TTL"`
	MaxDiskMB int           `yaml:"max_disk_mb" env:"READALOUD_CACHE_MAX_DISK_MB"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:      ProviderLocal,
		Language:      "en-US",
		AllowFallback: true,
		Rate:          1.0,
		Pitch:         1.0,
		Volume:        1.0,

		HighlightEnabled: true,
		HighlightColor:   "yellow",

		Local:   DefaultLocalConfig(),
		Network: DefaultNetworkConfig(),
		Cache:   DefaultCacheConfig(),
	}
}

// DefaultLocalConfig returns default host engine configuration.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		WordsPerMinute: 175,
	}
}

// DefaultNetworkConfig returns default synthesis service configuration.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Timeout:           15 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

// DefaultCacheConfig returns default cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:   true,
		TTL:       24 * time.Hour,
		MaxDiskMB: 100,
	}
}

// ApplyEnv overrides c with any READALOUD_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validProviders := []string{ProviderLocal, ProviderNetwork}
	providerValid := false
	for _, p := range validProviders {
		if strings.EqualFold(c.Provider, p) {
			providerValid = true
			c.Provider = p
			break
		}
	}
	if !providerValid {
		return fmt.Errorf("%w: provider '%s' must be one of %v", ErrInvalidConfig, c.Provider, validProviders)
	}

	if c.Language == "" {
		return fmt.Errorf("%w: language cannot be empty", ErrInvalidConfig)
	}

	if c.Rate < 0.1 || c.Rate > 10.0 {
		return fmt.Errorf("%w: rate must be between 0.1 and 10.0, got %f", ErrInvalidConfig, c.Rate)
	}

	if c.Pitch < 0.0 || c.Pitch > 2.0 {
		return fmt.Errorf("%w: pitch must be between 0.0 and 2.0, got %f", ErrInvalidConfig, c.Pitch)
	}

	if c.Volume < 0.0 || c.Volume > 1.0 {
		return fmt.Errorf("%w: volume must be between 0.0 and 1.0, got %f", ErrInvalidConfig, c.Volume)
	}

	validColors := []string{"black", "red", "green", "yellow", "blue", "magenta", "cyan", "white", "none"}
	colorValid := false
	for _, color := range validColors {
		if strings.EqualFold(c.HighlightColor, color) {
			colorValid = true
			c.HighlightColor = color
			break
		}
	}
	if !colorValid {
		return fmt.Errorf("%w: highlight color '%s' must be one of %v", ErrInvalidConfig, c.HighlightColor, validColors)
	}

	if err := c.Local.Validate(); err != nil {
		return fmt.Errorf("local config: %w", err)
	}
	if c.Provider == ProviderNetwork {
		if err := c.Network.Validate(); err != nil {
			return fmt.Errorf("network config: %w", err)
		}
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	return nil
}

// Validate checks if the host engine configuration is valid.
func (c *LocalConfig) Validate() error {
	if c.WordsPerMinute < 50 || c.WordsPerMinute > 500 {
		return fmt.Errorf("%w: words_per_minute must be between 50 and 500, got %d", ErrInvalidConfig, c.WordsPerMinute)
	}
	return nil
}

// Validate checks if the synthesis service configuration is valid.
func (c *NetworkConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: endpoint must be an http(s) URL, got %q", ErrInvalidConfig, c.Endpoint)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("%w: timeout must be at least 1 second, got %v", ErrInvalidConfig, c.Timeout)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: requests_per_second must be positive, got %f", ErrInvalidConfig, c.RequestsPerSecond)
	}
	if c.Burst < 1 {
		return fmt.Errorf("%w: burst must be at least 1, got %d", ErrInvalidConfig, c.Burst)
	}
	return nil
}

// Validate checks if the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive, got %v", ErrInvalidConfig, c.TTL)
	}
	if c.MaxDiskMB < 1 || c.MaxDiskMB > 10000 {
		return fmt.Errorf("%w: max_disk_mb must be between 1 and 10000, got %d", ErrInvalidConfig, c.MaxDiskMB)
	}
	return nil
}

// ToProviderConfig converts the configuration into provider settings.
func (c *Config) ToProviderConfig() ProviderConfig {
	pc := ProviderConfig{
		Language: c.Language,
		Voice:    c.Voice,
		Rate:     c.Rate,
		Pitch:    c.Pitch,
		Volume:   c.Volume,
	}
	if c.Provider == ProviderNetwork {
		pc.Timeout = c.Network.Timeout
	}
	return pc
}
