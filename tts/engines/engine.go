// Package engines builds the speech provider named in the configuration.
package engines

import (
	"context"
	"fmt"

	"github.com/dgnsrekt/readaloud/internal/cache"
	"github.com/dgnsrekt/readaloud/tts"
	"github.com/dgnsrekt/readaloud/tts/audio"
	"github.com/dgnsrekt/readaloud/tts/engines/local"
	"github.com/dgnsrekt/readaloud/tts/engines/network"
)

// Options overrides the parts of a provider that touch the host.
type Options struct {
	// Cache stores network synthesis responses. Nil disables caching.
	Cache *cache.CacheManager

	// Player replaces the system audio device for the network provider.
	Player audio.Player

	// Engine replaces the host speech program for the local provider.
	Engine local.Engine
}

// New creates and initializes the provider selected by cfg.Provider.
func New(ctx context.Context, cfg tts.Config, opts Options) (tts.Provider, error) {
	var (
		p      tts.Provider
		reason string
	)

	switch cfg.Provider {
	case tts.ProviderLocal, "":
		engine := opts.Engine
		if engine == nil {
			engine = local.NewExecEngine(cfg.Local.Binary, cfg.Local.WordsPerMinute)
		}
		p = local.New(engine)
		reason = "host engine " + engine.Name()

	case tts.ProviderNetwork:
		nopts := []network.Option{
			network.WithAPIKey(cfg.Network.APIKey),
			network.WithRateLimit(cfg.Network.RequestsPerSecond, cfg.Network.Burst),
		}
		if opts.Cache != nil {
			nopts = append(nopts, network.WithCache(opts.Cache))
		}
		if opts.Player != nil {
			nopts = append(nopts, network.WithPlayer(opts.Player))
		}
		client, err := network.New(cfg.Network.Endpoint, nopts...)
		if err != nil {
			return nil, err
		}
		p = client
		reason = "synthesis service"

	default:
		return nil, fmt.Errorf("%w: %q", tts.ErrUnknownProvider, cfg.Provider)
	}

	if err := p.Initialize(ctx, ProviderConfig(cfg)); err != nil {
		return nil, fmt.Errorf("initialize %s provider: %w", p.Name(), err)
	}
	tts.LogProviderSelection(p.Name(), reason)
	return p, nil
}

// ProviderConfig extracts the provider settings from cfg.
func ProviderConfig(cfg tts.Config) tts.ProviderConfig {
	return tts.ProviderConfig{
		Language: cfg.Language,
		Voice:    cfg.Voice,
		Rate:     cfg.Rate,
		Pitch:    cfg.Pitch,
		Volume:   cfg.Volume,
		Timeout:  cfg.Network.Timeout,
	}
}

// NewCache opens the synthesis cache described by cfg, storing entries under
// dir. It returns nil when caching is disabled.
func NewCache(cfg tts.CacheConfig, dir string) (*cache.CacheManager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cc := cache.DefaultCacheConfig()
	cc.TTL = cfg.TTL
	cc.DiskPath = dir
	cc.DiskCapacity = int64(cfg.MaxDiskMB) << 20
	return cache.NewCacheManager(cc)
}
