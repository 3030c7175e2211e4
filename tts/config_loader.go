package tts

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadConfig builds the effective configuration: defaults, then the viper
// "tts" section, then READALOUD_* environment variables.
func LoadConfig() (Config, error) {
	cfg := LoadConfigFromViper()

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid read-aloud configuration: %w", err)
	}

	return cfg, nil
}

// LoadConfigFromViper loads configuration from viper on top of the defaults.
func LoadConfigFromViper() Config {
	cfg := DefaultConfig()

	if viper.IsSet("tts.provider") {
		cfg.Provider = viper.GetString("tts.provider")
	}
	if viper.IsSet("tts.language") {
		cfg.Language = viper.GetString("tts.language")
	}
	if viper.IsSet("tts.allow_fallback") {
		cfg.AllowFallback = viper.GetBool("tts.allow_fallback")
	}
	if viper.IsSet("tts.voice") {
		cfg.Voice = viper.GetString("tts.voice")
	}
	if viper.IsSet("tts.rate") {
		cfg.Rate = viper.GetFloat64("tts.rate")
	}
	if viper.IsSet("tts.pitch") {
		cfg.Pitch = viper.GetFloat64("tts.pitch")
	}
	if viper.IsSet("tts.volume") {
		cfg.Volume = viper.GetFloat64("tts.volume")
	}

	if viper.IsSet("tts.highlight_enabled") {
		cfg.HighlightEnabled = viper.GetBool("tts.highlight_enabled")
	}
	if viper.IsSet("tts.highlight_color") {
		cfg.HighlightColor = viper.GetString("tts.highlight_color")
	}

	cfg.Local = loadLocalConfig()
	cfg.Network = loadNetworkConfig()
	cfg.Cache = loadCacheConfig()

	return cfg
}

func loadLocalConfig() LocalConfig {
	cfg := DefaultLocalConfig()

	if viper.IsSet("tts.local.binary") {
		cfg.Binary = viper.GetString("tts.local.binary")
	}
	if viper.IsSet("tts.local.words_per_minute") {
		cfg.WordsPerMinute = viper.GetInt("tts.local.words_per_minute")
	}

	return cfg
}

func loadNetworkConfig() NetworkConfig {
	cfg := DefaultNetworkConfig()

	if viper.IsSet("tts.network.endpoint") {
		cfg.Endpoint = viper.GetString("tts.network.endpoint")
	}
	if viper.IsSet("tts.network.api_key") {
		cfg.APIKey = viper.GetString("tts.network.api_key")
	}
	if viper.IsSet("tts.network.timeout") {
		if d, err := time.ParseDuration(viper.GetString("tts.network.timeout")); err == nil {
			cfg.Timeout = d
		}
	}
	if viper.IsSet("tts.network.requests_per_second") {
		cfg.RequestsPerSecond = viper.GetFloat64("tts.network.requests_per_second")
	}
	if viper.IsSet("tts.network.burst") {
		cfg.Burst = viper.GetInt("tts.network.burst")
	}

	return cfg
}

func loadCacheConfig() CacheConfig {
	cfg := DefaultCacheConfig()

	if viper.IsSet("tts.cache.enabled") {
		cfg.Enabled = viper.GetBool("tts.cache.enabled")
	}
	if viper.IsSet("tts.cache.dir") {
		cfg.Dir = viper.GetString("tts.cache.dir")
	}
	if viper.IsSet("tts.cache.ttl") {
		if d, err := time.ParseDuration(viper.GetString("tts.cache.ttl")); err == nil {
			cfg.TTL = d
		}
	}
	if viper.IsSet("tts.cache.max_disk_mb") {
		cfg.MaxDiskMB = viper.GetInt("tts.cache.max_disk_mb")
	}

	return cfg
}

// SetDefaults sets default values in viper for read-aloud configuration.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("tts.provider", defaults.Provider)
	viper.SetDefault("tts.language", defaults.Language)
	viper.SetDefault("tts.allow_fallback", defaults.AllowFallback)
	viper.SetDefault("tts.rate", defaults.Rate)
	viper.SetDefault("tts.pitch", defaults.Pitch)
	viper.SetDefault("tts.volume", defaults.Volume)

	viper.SetDefault("tts.highlight_enabled", defaults.HighlightEnabled)
	viper.SetDefault("tts.highlight_color", defaults.HighlightColor)

	viper.SetDefault("tts.local.words_per_minute", defaults.Local.WordsPerMinute)

	viper.SetDefault("tts.network.timeout", defaults.Network.Timeout.String())
	viper.SetDefault("tts.network.requests_per_second", defaults.Network.RequestsPerSecond)
	viper.SetDefault("tts.network.burst", defaults.Network.Burst)

	viper.SetDefault("tts.cache.enabled", defaults.Cache.Enabled)
	viper.SetDefault("tts.cache.ttl", defaults.Cache.TTL.String())
	viper.SetDefault("tts.cache.max_disk_mb", defaults.Cache.MaxDiskMB)
}
