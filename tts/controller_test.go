package tts_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/readaloud/tts"
	"github.com/dgnsrekt/readaloud/tts/align"
	"github.com/dgnsrekt/readaloud/tts/catalog"
)

func newTestController(t *testing.T, resolver *catalog.Resolver) (*tts.Controller, *fakeProvider, *recorder) {
	t.Helper()
	p := newFakeProvider()
	c := tts.NewController(p, resolver, tts.DefaultConfig())
	r := &recorder{}
	r.attach(c)
	t.Cleanup(c.Shutdown)
	return c, p, r
}

func spokenCard(lang, content string) catalog.Card {
	return catalog.Card{CatalogType: catalog.CatalogTypeSpoken, Language: lang, Content: content}
}

// TestController_Completes tests a session that plays to the end.
func TestController_Completes(t *testing.T) {
	c, p, r := newTestController(t, nil)

	if err := c.Speak(context.Background(), tts.PlaybackRequest{Text: "Hello world"}); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	call := waitStarted(t, p)
	if call.text != "Hello world" {
		t.Errorf("provider text = %q", call.text)
	}
	if c.State() != tts.StatePlaying {
		t.Errorf("state = %v, want playing", c.State())
	}

	call.opts.OnBoundary(0, 5)
	call.finish <- nil
	c.Wait()

	ev := r.snapshot()
	want := []tts.StateType{tts.StateResolving, tts.StatePlaying, tts.StateCompleted, tts.StateIdle}
	if !statesEqual(ev.states, want) {
		t.Errorf("states = %v, want %v", ev.states, want)
	}
	if len(ev.boundaries) != 1 || ev.boundaries[0] != (align.Boundary{Offset: 0, Length: 5}) {
		t.Errorf("boundaries = %v", ev.boundaries)
	}
	if _, ok := c.Session(); ok {
		t.Error("session should be cleared after completion")
	}
}

// TestController_SupersedeStopsPriorOnce tests that a new request stops the
// previous one exactly once and drops its late events.
func TestController_SupersedeStopsPriorOnce(t *testing.T) {
	c, p, r := newTestController(t, nil)
	ctx := context.Background()

	if err := c.Speak(ctx, tts.PlaybackRequest{Text: "first request"}); err != nil {
		t.Fatal(err)
	}
	first := waitStarted(t, p)

	if err := c.Speak(ctx, tts.PlaybackRequest{Text: "second request"}); err != nil {
		t.Fatal(err)
	}
	second := waitStarted(t, p)

	if got := p.stops(); got != 1 {
		t.Errorf("provider Stop called %d times, want 1", got)
	}

	first.opts.OnBoundary(0, 5)
	second.opts.OnBoundary(7, 7)
	second.finish <- nil
	c.Wait()

	ev := r.snapshot()
	if len(ev.boundaries) != 1 || ev.boundaries[0] != (align.Boundary{Offset: 7, Length: 7}) {
		t.Errorf("boundaries = %v, want only the second session's", ev.boundaries)
	}
	if got := p.stops(); got != 1 {
		t.Errorf("provider Stop called %d times after completion, want 1", got)
	}
	want := []tts.StateType{
		tts.StateResolving, tts.StatePlaying, tts.StateStopped, tts.StateIdle,
		tts.StateResolving, tts.StatePlaying, tts.StateCompleted, tts.StateIdle,
	}
	if !statesEqual(ev.states, want) {
		t.Errorf("states = %v, want %v", ev.states, want)
	}
}

// TestController_DoubleStop tests that Stop is idempotent.
func TestController_DoubleStop(t *testing.T) {
	c, p, r := newTestController(t, nil)

	if err := c.Speak(context.Background(), tts.PlaybackRequest{Text: "stop me"}); err != nil {
		t.Fatal(err)
	}
	call := waitStarted(t, p)

	c.Stop()
	c.Stop()
	call.opts.OnBoundary(0, 4)
	c.Wait()

	if c.State() != tts.StateIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
	if got := p.stops(); got != 1 {
		t.Errorf("provider Stop called %d times, want 1", got)
	}
	ev := r.snapshot()
	want := []tts.StateType{tts.StateResolving, tts.StatePlaying, tts.StateStopped, tts.StateIdle}
	if !statesEqual(ev.states, want) {
		t.Errorf("states = %v, want %v", ev.states, want)
	}
	if len(ev.boundaries) != 0 {
		t.Errorf("boundary applied after stop: %v", ev.boundaries)
	}
}

// TestController_BoundaryRacingStop tests that boundaries delivered
// concurrently with Stop are never applied once Stop has returned.
func TestController_BoundaryRacingStop(t *testing.T) {
	c, p, r := newTestController(t, nil)

	text := strings.Repeat("a", 1<<20)
	if err := c.Speak(context.Background(), tts.PlaybackRequest{Text: text}); err != nil {
		t.Fatal(err)
	}
	call := waitStarted(t, p)

	quit := make(chan struct{})
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for i := 0; i < len(text); i++ {
			select {
			case <-quit:
				return
			default:
				call.opts.OnBoundary(i, 1)
			}
		}
	}()

	time.Sleep(5 * time.Millisecond)
	c.Stop()
	applied := len(r.snapshot().boundaries)
	time.Sleep(5 * time.Millisecond)
	close(quit)
	<-sent
	c.Wait()

	if got := len(r.snapshot().boundaries); got != applied {
		t.Errorf("boundaries applied after Stop returned: %d, want %d", got, applied)
	}
	if c.State() != tts.StateIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
}

// TestController_StopWhenIdle tests that Stop does nothing without a session.
func TestController_StopWhenIdle(t *testing.T) {
	c, p, r := newTestController(t, nil)
	c.Stop()

	if p.stops() != 0 {
		t.Error("provider should not be stopped when idle")
	}
	if len(r.snapshot().states) != 0 {
		t.Error("no state change expected")
	}
}

// TestController_PauseResume tests pause and resume transitions.
func TestController_PauseResume(t *testing.T) {
	c, p, r := newTestController(t, nil)

	// No-ops while idle.
	if err := c.Pause(); err != nil {
		t.Errorf("Pause while idle: %v", err)
	}
	if err := c.Resume(); err != nil {
		t.Errorf("Resume while idle: %v", err)
	}

	if err := c.Speak(context.Background(), tts.PlaybackRequest{Text: "pause me"}); err != nil {
		t.Fatal(err)
	}
	call := waitStarted(t, p)

	if err := c.Resume(); err != nil {
		t.Errorf("Resume while playing: %v", err)
	}
	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}
	if c.State() != tts.StatePaused {
		t.Errorf("state = %v, want paused", c.State())
	}
	if err := c.Resume(); err != nil {
		t.Fatal(err)
	}
	if c.State() != tts.StatePlaying {
		t.Errorf("state = %v, want playing", c.State())
	}

	call.finish <- nil
	c.Wait()

	p.mu.Lock()
	pauses, resumes := p.pauseCount, p.resumeCount
	p.mu.Unlock()
	if pauses != 1 || resumes != 1 {
		t.Errorf("pause/resume calls = %d/%d, want 1/1", pauses, resumes)
	}

	want := []tts.StateType{
		tts.StateResolving, tts.StatePlaying, tts.StatePaused, tts.StatePlaying,
		tts.StateCompleted, tts.StateIdle,
	}
	if ev := r.snapshot(); !statesEqual(ev.states, want) {
		t.Errorf("states = %v, want %v", ev.states, want)
	}
}

// TestController_StopWhilePaused tests stopping from the paused state.
func TestController_StopWhilePaused(t *testing.T) {
	c, p, _ := newTestController(t, nil)

	if err := c.Speak(context.Background(), tts.PlaybackRequest{Text: "paused"}); err != nil {
		t.Fatal(err)
	}
	waitStarted(t, p)
	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}
	c.Stop()
	c.Wait()

	if c.State() != tts.StateIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
}

// TestController_CatalogResolution tests catalog precedence through Speak.
func TestController_CatalogResolution(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*catalog.Resolver)
		req        tts.PlaybackRequest
		wantText   string
		wantSource tts.Source
	}{
		{
			name: "default language fallback",
			setup: func(r *catalog.Resolver) {
				r.AddAssessmentCatalogs([]catalog.Entry{{
					Identifier: "q1-prompt",
					Cards:      []catalog.Card{spokenCard("en-US", "Question one")},
				}})
			},
			req:        tts.PlaybackRequest{CatalogID: "q1-prompt", Language: "es-ES"},
			wantText:   "Question one",
			wantSource: tts.SourceAssessment,
		},
		{
			name: "item beats assessment",
			setup: func(r *catalog.Resolver) {
				r.AddAssessmentCatalogs([]catalog.Entry{{Identifier: "x", Cards: []catalog.Card{spokenCard("en-US", "A")}}})
				r.AddItemCatalogs([]catalog.Entry{{Identifier: "x", Cards: []catalog.Card{spokenCard("en-US", "B")}}})
			},
			req:        tts.PlaybackRequest{CatalogID: "x"},
			wantText:   "B",
			wantSource: tts.SourceItem,
		},
		{
			name:       "literal text when catalog misses",
			setup:      func(*catalog.Resolver) {},
			req:        tts.PlaybackRequest{CatalogID: "missing", Text: "As written"},
			wantText:   "As written",
			wantSource: tts.SourceFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := catalog.NewResolver("en-US")
			tt.setup(resolver)
			c, p, _ := newTestController(t, resolver)

			if err := c.Speak(context.Background(), tt.req); err != nil {
				t.Fatal(err)
			}
			call := waitStarted(t, p)
			if call.text != tt.wantText {
				t.Errorf("provider text = %q, want %q", call.text, tt.wantText)
			}
			session, ok := c.Session()
			if !ok {
				t.Fatal("no active session")
			}
			if session.Resolved.Source != tt.wantSource {
				t.Errorf("source = %q, want %q", session.Resolved.Source, tt.wantSource)
			}
			if session.ID == "" {
				t.Error("session id not assigned")
			}
			call.finish <- nil
			c.Wait()
		})
	}
}

// TestController_ResolutionMiss tests a catalog miss with no literal text.
func TestController_ResolutionMiss(t *testing.T) {
	c, p, r := newTestController(t, catalog.NewResolver("en-US"))

	err := c.Speak(context.Background(), tts.PlaybackRequest{CatalogID: "nope"})
	if !errors.Is(err, tts.ErrResolutionMiss) {
		t.Fatalf("err = %v, want ErrResolutionMiss", err)
	}
	if p.callCount() != 0 {
		t.Error("provider should not be called")
	}
	ev := r.snapshot()
	if len(ev.errors) != 1 || ev.errors[0] != tts.KindResolutionMiss {
		t.Errorf("errors = %v", ev.errors)
	}
	want := []tts.StateType{tts.StateResolving, tts.StateErrored, tts.StateIdle}
	if !statesEqual(ev.states, want) {
		t.Errorf("states = %v, want %v", ev.states, want)
	}
}

// TestController_Highlighting tests the whitespace scenario and clamping.
func TestController_Highlighting(t *testing.T) {
	c, p, r := newTestController(t, nil)
	target, err := align.ParseFragment("<p>Hello, world</p>")
	if err != nil {
		t.Fatal(err)
	}

	req := tts.PlaybackRequest{Text: "Hello,   world\n", Target: target}
	if err := c.Speak(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	call := waitStarted(t, p)
	if call.text != "Hello, world" {
		t.Errorf("provider text = %q", call.text)
	}
	session, _ := c.Session()
	if !session.Highlighting() {
		t.Fatal("highlighting should be enabled")
	}

	call.opts.OnBoundary(7, 5)
	call.opts.OnBoundary(6, 1) // behind the last end, dropped
	call.finish <- nil
	c.Wait()

	ev := r.snapshot()
	if len(ev.boundaries) != 1 {
		t.Fatalf("boundaries = %v", ev.boundaries)
	}
	if len(ev.highlights) != 1 {
		t.Fatalf("highlights = %d, want 1", len(ev.highlights))
	}
	h := ev.highlights[0]
	if got := h.Start.Node.Data[h.Start.Offset:h.End.Offset]; got != "world" {
		t.Errorf("highlighted %q, want world", got)
	}
	if ev.clears == 0 {
		t.Error("highlight should be cleared at the end of the session")
	}
}

// TestController_ClampSequence tests overlapping boundary events.
func TestController_ClampSequence(t *testing.T) {
	c, p, r := newTestController(t, nil)

	if err := c.Speak(context.Background(), tts.PlaybackRequest{Text: "abcdefghijklmnop"}); err != nil {
		t.Fatal(err)
	}
	call := waitStarted(t, p)
	call.opts.OnBoundary(5, 3)
	call.opts.OnBoundary(4, 2)
	call.finish <- nil
	c.Wait()

	ev := r.snapshot()
	if len(ev.boundaries) != 1 || ev.boundaries[0] != (align.Boundary{Offset: 5, Length: 3}) {
		t.Errorf("boundaries = %v, want [{5 3}]", ev.boundaries)
	}
}

// TestController_AlignmentMismatchKeepsAudio tests that a mismatch only
// disables highlighting.
func TestController_AlignmentMismatchKeepsAudio(t *testing.T) {
	c, p, r := newTestController(t, nil)
	target, _ := align.ParseFragment("<p>Something else entirely</p>")

	if err := c.Speak(context.Background(), tts.PlaybackRequest{Text: "Hello world", Target: target}); err != nil {
		t.Fatal(err)
	}
	call := waitStarted(t, p)
	call.opts.OnBoundary(0, 5)
	call.finish <- nil
	c.Wait()

	ev := r.snapshot()
	if len(ev.errors) != 1 || ev.errors[0] != tts.KindAlignmentMismatch {
		t.Errorf("errors = %v, want alignment mismatch", ev.errors)
	}
	if len(ev.highlights) != 0 {
		t.Errorf("highlights = %v, want none", ev.highlights)
	}
	if len(ev.boundaries) != 1 {
		t.Errorf("boundaries should still reach the host: %v", ev.boundaries)
	}
	if ev.states[len(ev.states)-2] != tts.StateCompleted {
		t.Errorf("states = %v, want completion", ev.states)
	}
}

// TestController_ProviderErrors tests that provider failures end in idle.
func TestController_ProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind tts.ErrorKind
	}{
		{"generic", errors.New("boom"), tts.KindProviderError},
		{"unavailable", fmt.Errorf("%w: no speech program", tts.ErrProviderUnavailable), tts.KindProviderUnavailable},
		{"timeout", fmt.Errorf("%w: 15s", tts.ErrNetworkTimeout), tts.KindNetworkTimeout},
		{"network", fmt.Errorf("%w: 502", tts.ErrNetwork), tts.KindNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, p, r := newTestController(t, nil)
			p.speakErr = tt.err

			if err := c.Speak(context.Background(), tts.PlaybackRequest{Text: "fail"}); err != nil {
				t.Fatal(err)
			}
			waitStarted(t, p)
			c.Wait()

			ev := r.snapshot()
			if len(ev.errors) != 1 || ev.errors[0] != tt.kind {
				t.Errorf("errors = %v, want %v", ev.errors, tt.kind)
			}
			want := []tts.StateType{tts.StateResolving, tts.StatePlaying, tts.StateErrored, tts.StateIdle}
			if !statesEqual(ev.states, want) {
				t.Errorf("states = %v, want %v", ev.states, want)
			}
		})
	}
}

// TestController_Visibility tests that a hidden control ignores requests.
func TestController_Visibility(t *testing.T) {
	c, p, r := newTestController(t, nil)
	visible := false
	c.SetVisibility(func() bool { return visible })

	if err := c.Speak(context.Background(), tts.PlaybackRequest{Text: "hidden"}); err != nil {
		t.Fatal(err)
	}
	if p.callCount() != 0 || c.State() != tts.StateIdle || len(r.snapshot().states) != 0 {
		t.Error("hidden control should ignore the request")
	}

	visible = true
	if err := c.Speak(context.Background(), tts.PlaybackRequest{Text: "shown"}); err != nil {
		t.Fatal(err)
	}
	call := waitStarted(t, p)
	call.finish <- nil
	c.Wait()
}

// TestController_VisibilityQueriesController tests that the visibility
// callback may call back into the controller.
func TestController_VisibilityQueriesController(t *testing.T) {
	c, p, _ := newTestController(t, nil)
	c.SetVisibility(func() bool {
		_, active := c.Session()
		return c.State() == tts.StateIdle || active
	})

	done := make(chan error, 1)
	go func() { done <- c.Speak(context.Background(), tts.PlaybackRequest{Text: "shown"}) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Speak deadlocked in the visibility callback")
	}

	call := waitStarted(t, p)
	call.finish <- nil
	c.Wait()
}

// TestController_SSML tests SSML handling for providers with and without
// SSML support.
func TestController_SSML(t *testing.T) {
	const ssml = `<speak>Read <sub alias="World Wide Web">WWW</sub> aloud</speak>`

	tests := []struct {
		name     string
		ssml     bool
		wantText string
	}{
		{"stripped", false, "Read World Wide Web aloud"},
		{"passed through", true, ssml},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, p, _ := newTestController(t, nil)
			p.caps.SupportsSSML = tt.ssml

			if err := c.Speak(context.Background(), tts.PlaybackRequest{Text: ssml}); err != nil {
				t.Fatal(err)
			}
			call := waitStarted(t, p)
			if call.text != tt.wantText {
				t.Errorf("provider text = %q, want %q", call.text, tt.wantText)
			}
			session, _ := c.Session()
			if session.Text != "Read World Wide Web aloud" {
				t.Errorf("session text = %q", session.Text)
			}
			call.finish <- nil
			c.Wait()
		})
	}
}

// TestController_SSMLBoundaries tests that offsets reported against markup
// highlight the spoken word.
func TestController_SSMLBoundaries(t *testing.T) {
	const ssml = `<speak>H <sub alias="two">2</sub> O</speak>`

	c, p, r := newTestController(t, nil)
	p.caps.SupportsSSML = true
	target, err := align.ParseFragment("<p>H two O</p>")
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Speak(context.Background(), tts.PlaybackRequest{Text: ssml, Target: target}); err != nil {
		t.Fatal(err)
	}
	call := waitStarted(t, p)
	if call.text != ssml {
		t.Fatalf("provider text = %q, want the markup", call.text)
	}
	session, _ := c.Session()
	if !session.Highlighting() {
		t.Fatal("highlighting should be enabled")
	}

	call.opts.OnBoundary(21, 3) // "two" in the alias attribute
	call.opts.OnBoundary(0, 7)  // <speak>, nothing spoken
	call.finish <- nil
	c.Wait()

	ev := r.snapshot()
	if len(ev.boundaries) != 1 || ev.boundaries[0] != (align.Boundary{Offset: 2, Length: 3}) {
		t.Fatalf("boundaries = %v, want [{2 3}]", ev.boundaries)
	}
	if len(ev.highlights) != 1 {
		t.Fatalf("highlights = %d, want 1", len(ev.highlights))
	}
	h := ev.highlights[0]
	if got := h.Start.Node.Data[h.Start.Offset:h.End.Offset]; got != "two" {
		t.Errorf("highlighted %q, want two", got)
	}
}

// TestController_RegisterContent tests speaking an extracted block.
func TestController_RegisterContent(t *testing.T) {
	resolver := catalog.NewResolver("en-US")
	c, p, r := newTestController(t, resolver)

	res := c.RegisterContent(map[string]any{
		"prompt": `<p><speak xml:lang="en-US">H<sub alias="two">2</sub>O</speak>Water</p>`,
		"broken": `<p><speak>never closed</p>`,
	}, "item1")

	if len(res.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(res.Entries))
	}
	if ev := r.snapshot(); len(ev.errors) != 1 || ev.errors[0] != tts.KindMalformedMarkup {
		t.Errorf("errors = %v, want malformed markup", ev.errors)
	}

	id := res.Entries[0].Identifier
	if err := c.Speak(context.Background(), tts.PlaybackRequest{CatalogID: id, Text: "Water"}); err != nil {
		t.Fatal(err)
	}
	call := waitStarted(t, p)
	if call.text != "HtwoO" {
		t.Errorf("provider text = %q, want HtwoO", call.text)
	}
	call.finish <- nil
	c.Wait()
}

// TestController_NavigateItem tests that navigation swaps item catalogs.
func TestController_NavigateItem(t *testing.T) {
	resolver := catalog.NewResolver("en-US")
	resolver.AddItemCatalogs([]catalog.Entry{{Identifier: "old", Cards: []catalog.Card{spokenCard("en-US", "old")}}})
	c, p, _ := newTestController(t, resolver)

	if err := c.Speak(context.Background(), tts.PlaybackRequest{CatalogID: "old"}); err != nil {
		t.Fatal(err)
	}
	waitStarted(t, p)

	c.NavigateItem([]catalog.Entry{{Identifier: "new", Cards: []catalog.Card{spokenCard("en-US", "new")}}})
	c.Wait()

	if c.State() != tts.StateIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
	if resolver.HasCatalog("old") {
		t.Error("old item catalog should be cleared")
	}
	if !resolver.HasCatalog("new") {
		t.Error("new item catalog should be registered")
	}
}

// TestController_ContextCancel tests that canceling the request context
// stops the session.
func TestController_ContextCancel(t *testing.T) {
	c, p, r := newTestController(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	if err := c.Speak(ctx, tts.PlaybackRequest{Text: "cancel me"}); err != nil {
		t.Fatal(err)
	}
	waitStarted(t, p)
	cancel()
	c.Wait()

	want := []tts.StateType{tts.StateResolving, tts.StatePlaying, tts.StateStopped, tts.StateIdle}
	if ev := r.snapshot(); !statesEqual(ev.states, want) {
		t.Errorf("states = %v, want %v", ev.states, want)
	}
}
