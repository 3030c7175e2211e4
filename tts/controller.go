// Package tts reads assessment content aloud and highlights each spoken word.
//
// The Controller owns one playback session at a time. It resolves the text to
// speak (catalog alternatives before literal text), aligns it with the
// rendered target, drives a Provider and turns the provider's word boundaries
// into highlight ranges.
package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/readaloud/tts/align"
	"github.com/dgnsrekt/readaloud/tts/catalog"
	"github.com/dgnsrekt/readaloud/tts/markup"
)

// Controller orchestrates resolution, alignment, playback and highlighting.
//
// All state is guarded by one mutex. Event handlers run while it is held and
// must not call back into the controller synchronously.
type Controller struct {
	provider    Provider
	resolver    *catalog.Resolver
	highlighter align.Highlighter
	config      Config

	mu         sync.Mutex
	machine    *StateMachine
	generation uint64
	session    *Session
	cancel     context.CancelFunc
	clamp      align.Clamp
	ssml       *markup.Spoken // set when the provider is given markup
	visible    func() bool
	wg         sync.WaitGroup

	onBoundary    func(offset, length int)
	onStateChange func(StateType)
	onError       func(ErrorKind, string)
}

// NewController creates a controller speaking through provider. resolver may
// be nil when no catalogs are used.
func NewController(provider Provider, resolver *catalog.Resolver, cfg Config) *Controller {
	c := &Controller{
		provider: provider,
		resolver: resolver,
		config:   cfg,
		machine:  NewStateMachine(),
	}
	c.setupStateMachine()
	return c
}

// SetHighlighter sets the consumer of highlight ranges.
func (c *Controller) SetHighlighter(h align.Highlighter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.highlighter = h
}

// SetVisibility registers the check consulted before every Speak. When it
// reports false the request is ignored. fn runs without the controller lock
// held and may call State or Session.
func (c *Controller) SetVisibility(fn func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = fn
}

// OnBoundary registers a callback for applied word boundaries.
func (c *Controller) OnBoundary(fn func(offset, length int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBoundary = fn
}

// OnStateChange registers a callback for state changes.
func (c *Controller) OnStateChange(fn func(StateType)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// OnError registers a callback for errors surfaced to the host.
func (c *Controller) OnError(fn func(ErrorKind, string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// State returns the current state.
func (c *Controller) State() StateType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// Session returns a copy of the active session.
func (c *Controller) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Speak starts a new session for req, stopping any session in progress.
// It returns once playback has started; resolution failures are returned
// and also reported through OnError.
func (c *Controller) Speak(ctx context.Context, req PlaybackRequest) error {
	c.mu.Lock()
	visible := c.visible
	c.mu.Unlock()

	// Evaluated outside the lock so the callback may query the controller.
	if visible != nil && !visible() {
		log.Debug("read-aloud control hidden, ignoring request", "catalogID", req.CatalogID)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine.Current().IsActive() {
		log.Debug("superseding active session", "generation", c.generation)
		c.stopLocked()
	}

	c.generation++
	gen := c.generation
	c.transitionLocked(StateResolving)

	resolved, err := c.resolve(req)
	if err != nil {
		c.failLocked(err, "resolve")
		return err
	}

	spoken := align.Normalize(resolved.Text)
	providerText := ""
	c.ssml = nil
	if markup.IsSSML(resolved.Text) {
		sp := markup.NewSpoken(resolved.Text)
		spoken = sp.Text()
		if c.provider.Capabilities().SupportsSSML {
			// Boundaries arrive in markup offsets and are mapped back.
			providerText = resolved.Text
			c.ssml = &sp
		}
	}
	if spoken == "" {
		c.failLocked(ErrEmptyText, "resolve")
		return ErrEmptyText
	}
	if providerText == "" {
		providerText = spoken
	}

	session := &Session{
		ID:         uuid.NewString(),
		Generation: gen,
		Resolved:   resolved,
		Text:       spoken,
	}
	if req.Target != nil && c.config.HighlightEnabled {
		pm, err := align.Align(req.Target, spoken)
		if err != nil {
			log.Debug("highlighting disabled", "session", session.ID, "err", err)
			c.emitErrorLocked(KindAlignmentMismatch, err.Error())
		} else {
			session.Map = pm
		}
	}
	c.session = session
	c.clamp.Reset()

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	opts := SpeakOptions{
		Language: resolved.Language,
		Voice:    c.config.Voice,
		Rate:     c.config.Rate,
		Pitch:    c.config.Pitch,
		Extra:    req.ProviderOptions,
		OnBoundary: func(offset, length int) {
			c.handleBoundary(gen, offset, length)
		},
	}

	log.Debug("session started",
		"session", session.ID,
		"generation", gen,
		"source", resolved.Source,
		"provider", c.provider.Name(),
		"highlighting", session.Highlighting())

	c.transitionLocked(StatePlaying)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.provider.Speak(runCtx, providerText, opts)
		c.finish(runCtx, gen, err)
	}()

	return nil
}

// Pause pauses the active session. It is a no-op unless playing.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine.Current() != StatePlaying {
		return nil
	}
	if err := c.provider.Pause(); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	c.transitionLocked(StatePaused)
	return nil
}

// Resume resumes a paused session. It is a no-op unless paused.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine.Current() != StatePaused {
		return nil
	}
	if err := c.provider.Resume(); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	c.transitionLocked(StatePlaying)
	return nil
}

// Stop ends the active session. Calling it when idle does nothing. No
// boundary or highlight is applied after Stop returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.machine.Current().IsActive() {
		return
	}
	c.stopLocked()
}

// NavigateItem stops playback and swaps the item-scope catalogs for the
// entries of the next item.
func (c *Controller) NavigateItem(entries []catalog.Entry) {
	c.Stop()
	if c.resolver == nil {
		return
	}
	c.resolver.ClearItemCatalogs()
	c.resolver.AddItemCatalogs(entries)
}

// RegisterContent extracts inline <speak> markup from item content and
// registers the blocks as extracted catalogs. Fields with malformed markup
// are reported through OnError and left untouched.
func (c *Controller) RegisterContent(content any, contextID string) markup.Result {
	res := markup.Extract(content, contextID)
	if c.resolver != nil {
		c.resolver.AddExtractedCatalogs(res.Entries)
	}
	if err := res.Err(); err != nil {
		c.mu.Lock()
		c.emitErrorLocked(KindMalformedMarkup, err.Error())
		c.mu.Unlock()
	}
	return res
}

// Wait blocks until every provider call started by Speak has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Shutdown stops playback and waits for the provider to return.
func (c *Controller) Shutdown() {
	c.Stop()
	c.Wait()
}

func (c *Controller) resolve(req PlaybackRequest) (ResolvedContent, error) {
	lang := req.Language
	if lang == "" {
		lang = c.config.Language
	}

	if req.CatalogID != "" && c.resolver != nil {
		alt, ok := c.resolver.GetAlternative(req.CatalogID, catalog.LookupOptions{
			Language:      lang,
			AllowFallback: c.config.AllowFallback,
		})
		if ok {
			return ResolvedContent{
				Text:     alt.Content,
				Source:   Source(alt.Scope.String()),
				Language: alt.Language,
			}, nil
		}
		log.Debug("catalog miss, using literal text", "id", req.CatalogID, "language", lang)
		if req.Text == "" {
			return ResolvedContent{}, fmt.Errorf("%w: %s (%s)", ErrResolutionMiss, req.CatalogID, lang)
		}
	}

	if req.Text == "" {
		return ResolvedContent{}, ErrEmptyText
	}
	return ResolvedContent{Text: req.Text, Source: SourceFallback, Language: lang}, nil
}

func (c *Controller) handleBoundary(gen uint64, offset, length int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.session == nil {
		return
	}
	if st := c.machine.Current(); st != StatePlaying && st != StatePaused {
		return
	}

	if c.ssml != nil {
		var ok bool
		if offset, length, ok = c.ssml.FromSource(offset, length); !ok {
			return
		}
	}

	b, ok := c.clamp.Apply(align.Boundary{Offset: offset, Length: length})
	if !ok {
		return
	}

	if c.session.Map != nil {
		if r, ok := c.session.Map.Range(b.Offset, b.Length); ok {
			c.session.Highlight = r
			if c.highlighter != nil {
				c.highlighter.Highlight(r)
			}
		}
	}
	if c.onBoundary != nil {
		c.onBoundary(b.Offset, b.Length)
	}
}

func (c *Controller) finish(ctx context.Context, gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || !c.machine.Current().IsActive() {
		return
	}

	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		c.failLocked(err, "speak")
	case ctx.Err() != nil:
		c.endLocked(StateStopped)
	default:
		c.endLocked(StateCompleted)
	}
}

// stopLocked invalidates the running session and halts the provider once.
func (c *Controller) stopLocked() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.provider.Stop()
	c.endLocked(StateStopped)
}

// failLocked reports err and returns the controller to idle.
func (c *Controller) failLocked(err error, action string) {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	terr := NewTTSError(err, c.provider.Name(), action)
	if c.session != nil {
		terr.WithContext("session", c.session.ID)
	}
	log.Error("read-aloud session failed", "component", terr.Component, "action", action, "err", err)
	c.emitErrorLocked(terr.Kind(), terr.Error())
	c.endLocked(StateErrored)
}

// endLocked moves through a terminal state back to idle.
func (c *Controller) endLocked(terminal StateType) {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.transitionLocked(terminal)
	if c.highlighter != nil {
		c.highlighter.Clear()
	}
	c.session = nil
	c.transitionLocked(StateIdle)
}

func (c *Controller) transitionLocked(to StateType) {
	from := c.machine.Current()
	if !c.machine.Transition(to) {
		log.Warn("invalid state transition", "from", from, "to", to)
		return
	}
	if c.onStateChange != nil {
		c.onStateChange(to)
	}
}

func (c *Controller) emitErrorLocked(kind ErrorKind, msg string) {
	if c.onError != nil {
		c.onError(kind, msg)
	}
}

func (c *Controller) setupStateMachine() {
	for _, st := range []StateType{StateResolving, StatePlaying, StatePaused} {
		c.machine.OnEnter(st, func() {
			if c.session != nil {
				c.session.State = st
			}
		})
	}
}
