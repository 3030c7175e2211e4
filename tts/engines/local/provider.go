package local

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/tts"
	"github.com/dgnsrekt/readaloud/tts/align"
	"github.com/dgnsrekt/readaloud/tts/markup"
)

// Provider adapts an Engine to tts.Provider. Each Speak gets a run id;
// engine events from an older run are ignored.
type Provider struct {
	engine Engine

	mu          sync.Mutex
	cfg         tts.ProviderConfig
	initialized bool
	run         uint64
	active      *speakRun
	paused      bool
}

type speakRun struct {
	id   uint64
	done chan error
}

var _ tts.Provider = (*Provider)(nil)

// New creates a provider speaking through engine.
func New(engine Engine) *Provider {
	return &Provider{engine: engine}
}

// Name returns the provider name.
func (p *Provider) Name() string { return tts.ProviderLocal }

// Initialize checks that the engine can be used.
func (p *Provider) Initialize(ctx context.Context, cfg tts.ProviderConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.engine.Available() {
		return fmt.Errorf("%s: %w", p.engine.Name(), tts.ErrProviderUnavailable)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
	p.initialized = true
	log.Debug("local provider ready", "engine", p.engine.Name(), "ssml", p.engine.SupportsSSML())
	return nil
}

// Speak speaks text and blocks until the engine finishes, ctx is canceled
// or Stop is called.
func (p *Provider) Speak(ctx context.Context, text string, opts tts.SpeakOptions) error {
	if ctx.Err() != nil {
		return nil
	}

	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return tts.ErrProviderNotInitialized
	}
	if p.active != nil {
		p.engine.Cancel()
		p.endLocked(nil)
	}
	p.run++
	run := &speakRun{id: p.run, done: make(chan error, 1)}
	p.active = run
	p.paused = false
	u := p.utterance(run.id, p.prepare(text), opts)
	if err := p.engine.Speak(u); err != nil {
		p.endLocked(nil)
		p.mu.Unlock()
		if errors.Is(err, tts.ErrProviderUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", tts.ErrProviderFailed, err)
	}
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		p.mu.Lock()
		if p.active == run {
			p.engine.Cancel()
			p.endLocked(nil)
		}
		p.mu.Unlock()
		return nil
	case err := <-run.done:
		return err
	}
}

// prepare strips markup the engine cannot parse.
func (p *Provider) prepare(text string) string {
	if markup.IsSSML(text) && !p.engine.SupportsSSML() {
		return align.Normalize(markup.Strip(text))
	}
	return text
}

func (p *Provider) utterance(id uint64, text string, opts tts.SpeakOptions) *Utterance {
	u := &Utterance{
		Text:     text,
		Language: firstNonEmpty(opts.Language, p.cfg.Language),
		Voice:    firstNonEmpty(opts.Voice, p.cfg.Voice),
		Rate:     firstPositive(opts.Rate, p.cfg.Rate),
		Pitch:    firstPositive(opts.Pitch, p.cfg.Pitch),
		Volume:   p.cfg.Volume,
	}
	u.OnBoundary = func(charIndex, charLength int) {
		// Invoked without p.mu: the callback may block on a caller that is
		// itself inside Stop.
		if opts.OnBoundary == nil || !p.isCurrent(id) {
			return
		}
		opts.OnBoundary(charIndex, charLength)
	}
	u.OnEnd = func() { p.complete(id, nil) }
	u.OnError = func(err error) {
		p.complete(id, fmt.Errorf("%w: %v", tts.ErrProviderFailed, err))
	}
	return u
}

func (p *Provider) isCurrent(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil && p.active.id == id
}

func (p *Provider) complete(id uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil || p.active.id != id {
		return
	}
	p.endLocked(err)
}

func (p *Provider) endLocked(err error) {
	select {
	case p.active.done <- err:
	default:
	}
	p.active = nil
	p.paused = false
}

// Pause pauses the engine.
func (p *Provider) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil || p.paused {
		return nil
	}
	if err := p.engine.Pause(); err != nil {
		return fmt.Errorf("%w: %v", tts.ErrProviderFailed, err)
	}
	p.paused = true
	return nil
}

// Resume resumes the engine.
func (p *Provider) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil || !p.paused {
		return nil
	}
	if err := p.engine.Resume(); err != nil {
		return fmt.Errorf("%w: %v", tts.ErrProviderFailed, err)
	}
	p.paused = false
	return nil
}

// Stop cancels the current utterance. The pending Speak returns nil.
func (p *Provider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return
	}
	p.engine.Cancel()
	p.endLocked(nil)
}

// IsPlaying reports whether an utterance is being spoken.
func (p *Provider) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil && !p.paused
}

// IsPaused reports whether the utterance is paused.
func (p *Provider) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil && p.paused
}

// Capabilities reports what the engine supports.
func (p *Provider) Capabilities() tts.Capabilities {
	return tts.Capabilities{
		SupportsSSML:      p.engine.SupportsSSML(),
		BoundaryPrecision: p.engine.BoundaryPrecision(),
		SupportsRate:      true,
		SupportsPitch:     true,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
