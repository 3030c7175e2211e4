// Package network speaks through a remote neural synthesis service. The
// service returns an audio resource plus one timing mark per word; marks are
// replayed against the audio clock.
package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/readaloud/internal/cache"
	"github.com/dgnsrekt/readaloud/tts"
	"github.com/dgnsrekt/readaloud/tts/audio"
)

// PollInterval is how often playback position is checked against the marks.
const PollInterval = 50 * time.Millisecond

// maxAudioBytes bounds the audio resource download.
var maxAudioBytes int64 = 64 << 20

// SynthesisRequest is the body POSTed to the service.
type SynthesisRequest struct {
	Text     string         `json:"text"`
	Language string         `json:"language"`
	Voice    string         `json:"voice,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// SynthesisResponse is the service's reply.
type SynthesisResponse struct {
	AudioResourceURL string           `json:"audioResourceUrl"`
	TimingMarks      []tts.TimingMark `json:"timingMarks"`
}

// synthesis is a fetched response with its audio; it is what gets cached.
type synthesis struct {
	Audio       []byte           `json:"audio"`
	ContentType string           `json:"contentType"`
	Marks       []tts.TimingMark `json:"marks"`
}

// Client is a tts.Provider backed by the synthesis service.
type Client struct {
	endpoint *url.URL
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	cache    *cache.CacheManager
	player   audio.Player

	mu          sync.Mutex
	cfg         tts.ProviderConfig
	initialized bool
	run         uint64
	cancel      context.CancelFunc
	playback    audio.Playback
	paused      bool
}

var _ tts.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithRateLimit limits synthesis requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithCache reuses responses for identical requests.
func WithCache(cm *cache.CacheManager) Option {
	return func(c *Client) { c.cache = cm }
}

// WithPlayer sets the audio output. Without it Initialize opens the system
// audio device.
func WithPlayer(p audio.Player) Option {
	return func(c *Client) { c.player = p }
}

// New creates a client for the synthesis endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: synthesis endpoint %q", tts.ErrInvalidConfig, endpoint)
	}
	c := &Client{
		endpoint: u,
		http:     &http.Client{},
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return tts.ProviderNetwork }

// Initialize applies cfg and opens audio output if none was given.
func (c *Client) Initialize(ctx context.Context, cfg tts.ProviderConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.player == nil {
		p, err := audio.NewOtoPlayer(24000)
		if err != nil {
			return fmt.Errorf("%w: %v", tts.ErrProviderUnavailable, err)
		}
		c.player = p
	}
	if cfg.Timeout > 0 && c.http.Timeout == 0 {
		c.http.Timeout = cfg.Timeout
	}
	c.cfg = cfg
	c.initialized = true
	log.Debug("network provider ready", "endpoint", c.endpoint.Redacted(), "timeout", c.http.Timeout)
	return nil
}

// Speak synthesizes text, plays it and fires a boundary for each timing mark
// the playback passes. It blocks until playback ends, ctx is canceled or
// Stop is called.
func (c *Client) Speak(ctx context.Context, text string, opts tts.SpeakOptions) error {
	if ctx.Err() != nil {
		return nil
	}

	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return tts.ErrProviderNotInitialized
	}
	c.stopLocked()
	c.run++
	id := c.run
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	cfg := c.cfg
	c.mu.Unlock()
	defer cancel()

	req := SynthesisRequest{
		Text:     text,
		Language: firstNonEmpty(opts.Language, cfg.Language),
		Voice:    firstNonEmpty(opts.Voice, cfg.Voice),
		Options:  requestOptions(opts, cfg),
	}

	metrics := tts.StartSynthesis(c.Name(), text)
	syn, cached, err := c.synthesize(runCtx, req)
	if err != nil {
		if runCtx.Err() != nil && !errors.Is(err, tts.ErrNetworkTimeout) {
			return nil
		}
		metrics.EndSynthesis(0, false, err)
		return err
	}
	metrics.EndSynthesis(len(syn.Audio), cached, nil)

	pcm, err := audio.Decode(syn.Audio, syn.ContentType)
	if err != nil {
		return fmt.Errorf("%w: %v", tts.ErrProviderFailed, err)
	}

	c.mu.Lock()
	if c.run != id {
		// Stopped while the response was in flight.
		c.mu.Unlock()
		return nil
	}
	pb, err := c.player.Play(runCtx, pcm)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", tts.ErrProviderFailed, err)
	}
	c.playback = pb
	c.paused = false
	c.mu.Unlock()

	return c.follow(runCtx, id, pb, syn.Marks, opts.OnBoundary)
}

// follow polls the playback clock and fires boundaries until playback ends.
func (c *Client) follow(ctx context.Context, id uint64, pb audio.Playback, marks []tts.TimingMark, onBoundary tts.BoundaryFunc) error {
	cursor := NewMarkCursor(marks)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	// The run check and the callback are not atomic with Stop; see
	// tts.Provider.
	fire := func() {
		m, moved := cursor.Advance(pb.Position())
		if moved && onBoundary != nil && c.isCurrent(id) {
			onBoundary(m.CharOffset, m.CharLength)
		}
	}

	for {
		select {
		case <-ctx.Done():
			pb.Stop()
			c.clearPlayback(id)
			return nil
		case <-pb.Done():
			if !c.isCurrent(id) {
				return nil
			}
			if err := pb.Err(); err != nil {
				c.clearPlayback(id)
				return fmt.Errorf("%w: playback: %v", tts.ErrProviderFailed, err)
			}
			fire()
			c.clearPlayback(id)
			return nil
		case <-ticker.C:
			if c.IsPaused() {
				continue
			}
			fire()
		}
	}
}

func (c *Client) isCurrent(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run == id
}

func (c *Client) clearPlayback(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == id {
		c.playback = nil
		c.paused = false
	}
}

// synthesize returns the response for req, from cache when possible.
func (c *Client) synthesize(ctx context.Context, req SynthesisRequest) (synthesis, bool, error) {
	key := c.cacheKey(req)
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			var syn synthesis
			if err := json.Unmarshal(data, &syn); err == nil {
				tts.LogCacheHit(key, len(data))
				return syn, true, nil
			}
			_ = c.cache.Delete(key)
		}
		tts.LogCacheMiss(key)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return synthesis{}, false, classify(err)
	}

	resp, err := c.post(ctx, req)
	if err != nil {
		return synthesis{}, false, err
	}

	audioURL, err := c.endpoint.Parse(resp.AudioResourceURL)
	if err != nil || resp.AudioResourceURL == "" {
		return synthesis{}, false, fmt.Errorf("%w: bad audio resource url %q", tts.ErrNetwork, resp.AudioResourceURL)
	}
	data, contentType, err := c.fetchAudio(ctx, audioURL)
	if err != nil {
		return synthesis{}, false, err
	}

	marks := append([]tts.TimingMark(nil), resp.TimingMarks...)
	sort.SliceStable(marks, func(i, j int) bool { return marks[i].TimeMillis < marks[j].TimeMillis })

	syn := synthesis{Audio: data, ContentType: contentType, Marks: marks}
	if c.cache != nil {
		if encoded, err := json.Marshal(syn); err == nil {
			if err := c.cache.Put(key, encoded); err != nil {
				log.Debug("cache store failed", "err", err)
			}
		}
	}
	return syn, false, nil
}

func (c *Client) cacheKey(req SynthesisRequest) string {
	k := cache.Key{
		Text:     req.Text,
		Language: req.Language,
		Voice:    req.Voice,
		Endpoint: c.endpoint.String(),
	}
	if v, ok := req.Options["rate"].(float64); ok {
		k.Rate = v
	}
	if v, ok := req.Options["pitch"].(float64); ok {
		k.Pitch = v
	}
	if len(req.Options) > 0 {
		// Map keys are encoded in sorted order.
		if opts, err := json.Marshal(req.Options); err == nil {
			k.Options = string(opts)
		} else {
			k.Options = fmt.Sprintf("%v", req.Options)
		}
	}
	return k.Fingerprint()
}

func (c *Client) post(ctx context.Context, req SynthesisRequest) (SynthesisResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return SynthesisResponse{}, fmt.Errorf("%w: encode request: %v", tts.ErrProviderFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return SynthesisResponse{}, fmt.Errorf("%w: %v", tts.ErrNetwork, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return SynthesisResponse{}, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return SynthesisResponse{}, fmt.Errorf("%w: synthesis returned %s: %s", tts.ErrNetwork, resp.Status, bytes.TrimSpace(msg))
	}

	var out SynthesisResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SynthesisResponse{}, classifyRead(err)
	}
	return out, nil
}

func (c *Client) fetchAudio(ctx context.Context, u *url.URL) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", tts.ErrNetwork, err)
	}
	if c.apiKey != "" && u.Host == c.endpoint.Host {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: audio fetch returned %s", tts.ErrNetwork, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, "", classifyRead(err)
	}
	if int64(len(data)) > maxAudioBytes {
		return nil, "", fmt.Errorf("%w: audio resource exceeds %d bytes", tts.ErrNetwork, maxAudioBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// classify maps transport failures onto the provider error taxonomy.
func classify(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", tts.ErrNetworkTimeout, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %v", tts.ErrProviderUnavailable, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", tts.ErrNetwork, err)
	}
}

func classifyRead(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", tts.ErrNetworkTimeout, err)
	}
	return fmt.Errorf("%w: bad response: %v", tts.ErrNetwork, err)
}

// Pause pauses audio. The mark pointer holds its place.
func (c *Client) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playback == nil || c.paused {
		return nil
	}
	if err := c.playback.Pause(); err != nil {
		return fmt.Errorf("%w: %v", tts.ErrProviderFailed, err)
	}
	c.paused = true
	return nil
}

// Resume resumes audio.
func (c *Client) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playback == nil || !c.paused {
		return nil
	}
	if err := c.playback.Resume(); err != nil {
		return fmt.Errorf("%w: %v", tts.ErrProviderFailed, err)
	}
	c.paused = false
	return nil
}

// Stop halts audio, ends mark polling and discards any pending response.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Client) stopLocked() {
	c.run++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.playback != nil {
		c.playback.Stop()
		c.playback = nil
	}
	c.paused = false
}

// IsPlaying reports whether audio is audible.
func (c *Client) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playback != nil && !c.paused
}

// IsPaused reports whether audio is paused.
func (c *Client) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playback != nil && c.paused
}

// Capabilities reports service-timed boundaries.
func (c *Client) Capabilities() tts.Capabilities {
	return tts.Capabilities{
		SupportsSSML:      true,
		BoundaryPrecision: tts.BoundaryTimed,
		SupportsRate:      true,
		SupportsPitch:     true,
		RequiresNetwork:   true,
	}
}

func requestOptions(opts tts.SpeakOptions, cfg tts.ProviderConfig) map[string]any {
	out := make(map[string]any, len(opts.Extra)+3)
	for k, v := range opts.Extra {
		out[k] = v
	}
	if r := firstPositive(opts.Rate, cfg.Rate); r > 0 {
		out["rate"] = r
	}
	if p := firstPositive(opts.Pitch, cfg.Pitch); p > 0 {
		out["pitch"] = p
	}
	if cfg.Volume > 0 {
		out["volume"] = cfg.Volume
	}
	return out
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
