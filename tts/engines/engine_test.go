package engines_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/readaloud/tts"
	"github.com/dgnsrekt/readaloud/tts/align"
	"github.com/dgnsrekt/readaloud/tts/audio"
	"github.com/dgnsrekt/readaloud/tts/catalog"
	"github.com/dgnsrekt/readaloud/tts/engines"
	"github.com/dgnsrekt/readaloud/tts/engines/local"
)

// scriptedEngine records utterances; the test plays their events.
type scriptedEngine struct {
	available bool
	spoken    chan *local.Utterance

	mu      sync.Mutex
	cancels int
}

func newScriptedEngine() *scriptedEngine {
	return &scriptedEngine{available: true, spoken: make(chan *local.Utterance, 4)}
}

func (e *scriptedEngine) Name() string                             { return "scripted" }
func (e *scriptedEngine) Available() bool                          { return e.available }
func (e *scriptedEngine) SupportsSSML() bool                       { return false }
func (e *scriptedEngine) BoundaryPrecision() tts.BoundaryPrecision { return tts.BoundaryEvent }
func (e *scriptedEngine) Pause() error                             { return nil }
func (e *scriptedEngine) Resume() error                            { return nil }

func (e *scriptedEngine) Speak(u *local.Utterance) error {
	e.spoken <- u
	return nil
}

func (e *scriptedEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels++
}

func (e *scriptedEngine) next(t *testing.T) *local.Utterance {
	t.Helper()
	select {
	case u := <-e.spoken:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("engine was not asked to speak")
		return nil
	}
}

type highlightLog struct {
	mu     sync.Mutex
	ranges []align.Range
}

func (h *highlightLog) Highlight(r align.Range) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ranges = append(h.ranges, r)
}

func (h *highlightLog) Clear() {}

func (h *highlightLog) snapshot() []align.Range {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]align.Range(nil), h.ranges...)
}

func TestNew_Local(t *testing.T) {
	e := newScriptedEngine()
	p, err := engines.New(context.Background(), tts.DefaultConfig(), engines.Options{Engine: e})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.Name() != tts.ProviderLocal {
		t.Errorf("provider = %q, want local", p.Name())
	}
}

func TestNew_LocalUnavailable(t *testing.T) {
	e := newScriptedEngine()
	e.available = false
	_, err := engines.New(context.Background(), tts.DefaultConfig(), engines.Options{Engine: e})
	if !errors.Is(err, tts.ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestNew_Network(t *testing.T) {
	cfg := tts.DefaultConfig()
	cfg.Provider = tts.ProviderNetwork
	cfg.Network.Endpoint = "https://tts.example.com/v1/synthesize"

	p, err := engines.New(context.Background(), cfg, engines.Options{Player: audio.NewMockPlayer()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !p.Capabilities().RequiresNetwork {
		t.Error("network provider should require network")
	}

	cfg.Network.Endpoint = "tts.example.com"
	if _, err := engines.New(context.Background(), cfg, engines.Options{Player: audio.NewMockPlayer()}); !errors.Is(err, tts.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := tts.DefaultConfig()
	cfg.Provider = "carrier-pigeon"
	if _, err := engines.New(context.Background(), cfg, engines.Options{}); !errors.Is(err, tts.ErrUnknownProvider) {
		t.Errorf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestNewCache(t *testing.T) {
	cfg := tts.DefaultCacheConfig()
	cfg.Enabled = false
	cm, err := engines.NewCache(cfg, t.TempDir())
	if err != nil || cm != nil {
		t.Fatalf("disabled cache = %v, %v; want nil, nil", cm, err)
	}

	cm, err = engines.NewCache(tts.DefaultCacheConfig(), t.TempDir())
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer cm.Close()
	if err := cm.Put("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if !cm.Contains("k") {
		t.Error("cache should hold the stored key")
	}
}

// TestReadAloud_EndToEnd drives catalog resolution, alignment, the controller
// and the local provider together.
func TestReadAloud_EndToEnd(t *testing.T) {
	e := newScriptedEngine()
	p, err := engines.New(context.Background(), tts.DefaultConfig(), engines.Options{Engine: e})
	if err != nil {
		t.Fatal(err)
	}

	resolver := catalog.NewResolver("en-US")
	resolver.AddAssessmentCatalogs([]catalog.Entry{{
		Identifier: "q1-stem",
		Cards: []catalog.Card{
			{CatalogType: catalog.CatalogTypeSpoken, Language: "en-US", Content: "The cat sat."},
		},
	}})

	c := tts.NewController(p, resolver, tts.DefaultConfig())
	t.Cleanup(c.Shutdown)
	hl := &highlightLog{}
	c.SetHighlighter(hl)

	var mu sync.Mutex
	var states []tts.StateType
	c.OnStateChange(func(s tts.StateType) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})

	target, err := align.ParseFragment("<p>The <b>cat</b>\n   sat.</p>")
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Speak(context.Background(), tts.PlaybackRequest{CatalogID: "q1-stem", Target: target}); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	u := e.next(t)
	if u.Text != "The cat sat." {
		t.Errorf("engine text = %q", u.Text)
	}
	sess, ok := c.Session()
	if !ok || sess.Resolved.Source != tts.SourceAssessment || !sess.Highlighting() {
		t.Fatalf("session = %+v, ok=%v", sess, ok)
	}

	u.OnBoundary(0, 3)
	u.OnBoundary(4, 3)
	u.OnEnd()
	c.Wait()

	got := hl.snapshot()
	if len(got) != 2 {
		t.Fatalf("highlights = %d, want 2", len(got))
	}
	cat := got[1]
	if cat.Start.Node != cat.End.Node || cat.Start.Node.Data != "cat" || cat.Start.Offset != 0 || cat.End.Offset != 3 {
		t.Errorf("second highlight = %+v, want the whole <b> text", cat)
	}

	mu.Lock()
	last := states[len(states)-1]
	mu.Unlock()
	if last != tts.StateIdle {
		t.Errorf("final state = %v, want idle", last)
	}
}

// TestReadAloud_ExtractedMarkup speaks an inline pronunciation block found by
// the markup scanner.
func TestReadAloud_ExtractedMarkup(t *testing.T) {
	e := newScriptedEngine()
	p, err := engines.New(context.Background(), tts.DefaultConfig(), engines.Options{Engine: e})
	if err != nil {
		t.Fatal(err)
	}
	resolver := catalog.NewResolver("en-US")
	c := tts.NewController(p, resolver, tts.DefaultConfig())
	t.Cleanup(c.Shutdown)

	item := map[string]any{
		"prompt": `<p>Name this: <speak xml:lang="en-US">H <sub alias="two">2</sub> O</speak></p>`,
	}
	res := c.RegisterContent(item, "q1")
	if len(res.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(res.Entries))
	}
	id := res.Entries[0].Identifier
	if id != "auto-q1-prompt-0" {
		t.Errorf("identifier = %q", id)
	}

	if err := c.Speak(context.Background(), tts.PlaybackRequest{CatalogID: id, Text: "fallback"}); err != nil {
		t.Fatal(err)
	}
	u := e.next(t)
	if u.Text != "H two O" {
		t.Errorf("engine text = %q, want the alias reading", u.Text)
	}
	sess, _ := c.Session()
	if sess.Resolved.Source != tts.SourceExtracted {
		t.Errorf("source = %q, want extracted", sess.Resolved.Source)
	}

	// Moving to the next item drops extracted entries.
	c.NavigateItem(nil)
	c.Wait()
	if resolver.HasCatalog(id) {
		t.Error("extracted entry should be cleared on navigation")
	}
	if err := c.Speak(context.Background(), tts.PlaybackRequest{CatalogID: id, Text: "fallback"}); err != nil {
		t.Fatal(err)
	}
	if u := e.next(t); u.Text != "fallback" {
		t.Errorf("engine text = %q, want literal fallback", u.Text)
	}
}

func TestReadAloud_ExtractedMarkupWithoutLanguage(t *testing.T) {
	e := newScriptedEngine()
	p, err := engines.New(context.Background(), tts.DefaultConfig(), engines.Options{Engine: e})
	if err != nil {
		t.Fatal(err)
	}
	c := tts.NewController(p, catalog.NewResolver("en-US"), tts.DefaultConfig())
	t.Cleanup(c.Shutdown)

	res := c.RegisterContent(map[string]any{"prompt": `<p>H2O <speak>H two O</speak></p>`}, "q2")
	if len(res.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(res.Entries))
	}

	if err := c.Speak(context.Background(), tts.PlaybackRequest{CatalogID: res.Entries[0].Identifier, Text: "fallback"}); err != nil {
		t.Fatal(err)
	}
	if u := e.next(t); u.Text != "H two O" {
		t.Errorf("engine text = %q, want the extracted reading", u.Text)
	}
	if sess, _ := c.Session(); sess.Resolved.Source != tts.SourceExtracted {
		t.Errorf("source = %q, want extracted", sess.Resolved.Source)
	}
}
