package tts_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/readaloud/tts"
	"github.com/dgnsrekt/readaloud/tts/align"
)

// fakeProvider records calls and lets the test drive each Speak.
type fakeProvider struct {
	mu          sync.Mutex
	caps        tts.Capabilities
	speakErr    error
	calls       []*fakeCall
	stopCount   int
	pauseCount  int
	resumeCount int
	started     chan *fakeCall
}

type fakeCall struct {
	text     string
	opts     tts.SpeakOptions
	stop     chan struct{}
	finish   chan error
	stopOnce sync.Once
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		caps:    tts.Capabilities{BoundaryPrecision: tts.BoundaryEvent},
		started: make(chan *fakeCall, 16),
	}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Initialize(context.Context, tts.ProviderConfig) error { return nil }

func (p *fakeProvider) Speak(ctx context.Context, text string, opts tts.SpeakOptions) error {
	call := &fakeCall{
		text:   text,
		opts:   opts,
		stop:   make(chan struct{}),
		finish: make(chan error, 1),
	}
	p.mu.Lock()
	p.calls = append(p.calls, call)
	err := p.speakErr
	p.mu.Unlock()

	p.started <- call
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return nil
	case <-call.stop:
		return nil
	case err := <-call.finish:
		return err
	}
}

func (p *fakeProvider) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseCount++
	return nil
}

func (p *fakeProvider) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumeCount++
	return nil
}

func (p *fakeProvider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopCount++
	for _, call := range p.calls {
		call.stopOnce.Do(func() { close(call.stop) })
	}
}

func (p *fakeProvider) IsPlaying() bool { return false }
func (p *fakeProvider) IsPaused() bool  { return false }

func (p *fakeProvider) Capabilities() tts.Capabilities { return p.caps }

func (p *fakeProvider) stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCount
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func waitStarted(t *testing.T, p *fakeProvider) *fakeCall {
	t.Helper()
	select {
	case call := <-p.started:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("provider Speak was not called")
		return nil
	}
}

// events is a snapshot of everything a recorder saw.
type events struct {
	states     []tts.StateType
	boundaries []align.Boundary
	errors     []tts.ErrorKind
	messages   []string
	highlights []align.Range
	clears     int
}

// recorder captures controller events.
type recorder struct {
	mu sync.Mutex
	ev events
}

func (r *recorder) attach(c *tts.Controller) {
	c.OnStateChange(func(s tts.StateType) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.ev.states = append(r.ev.states, s)
	})
	c.OnBoundary(func(offset, length int) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.ev.boundaries = append(r.ev.boundaries, align.Boundary{Offset: offset, Length: length})
	})
	c.OnError(func(kind tts.ErrorKind, msg string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.ev.errors = append(r.ev.errors, kind)
		r.ev.messages = append(r.ev.messages, msg)
	})
	c.SetHighlighter(r)
}

func (r *recorder) Highlight(rng align.Range) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.highlights = append(r.ev.highlights, rng)
}

func (r *recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.clears++
}

func (r *recorder) snapshot() events {
	r.mu.Lock()
	defer r.mu.Unlock()
	return events{
		states:     append([]tts.StateType(nil), r.ev.states...),
		boundaries: append([]align.Boundary(nil), r.ev.boundaries...),
		errors:     append([]tts.ErrorKind(nil), r.ev.errors...),
		messages:   append([]string(nil), r.ev.messages...),
		highlights: append([]align.Range(nil), r.ev.highlights...),
		clears:     r.ev.clears,
	}
}

func statesEqual(a, b []tts.StateType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
