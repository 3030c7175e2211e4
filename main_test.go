package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/readaloud/internal/cache"
	"github.com/dgnsrekt/readaloud/tts"
	"github.com/dgnsrekt/readaloud/tts/catalog"
)

func TestFieldAt(t *testing.T) {
	content := map[string]any{
		"prompt": "<p>Hello</p>",
		"choices": []any{
			map[string]any{"label": "A"},
			map[string]any{"label": "B"},
		},
		"points": 2.0,
	}

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"prompt", "<p>Hello</p>", true},
		{"choices.1.label", "B", true},
		{"choices.2.label", "", false},
		{"choices.x.label", "", false},
		{"points", "", false},
		{"missing", "", false},
		{"prompt.deeper", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got, ok := fieldAt(content, tc.path)
			if ok != tc.ok || got != tc.want {
				t.Errorf("fieldAt(%q) = %q, %v; want %q, %v", tc.path, got, ok, tc.want, tc.ok)
			}
		})
	}

	if got, ok := fieldAt("plain", ""); !ok || got != "plain" {
		t.Errorf("empty path on a string = %q, %v", got, ok)
	}
}

func TestIsJSON(t *testing.T) {
	tests := []struct {
		path string
		data string
		want bool
	}{
		{"item.json", "", true},
		{"item.txt", `  {"prompt": "x"}`, true},
		{"item.txt", `{not json`, false},
		{"item.html", `<p>{"a":1}</p>`, false},
		{"-", `["a"]`, false},
	}
	for _, tc := range tests {
		if got := isJSON(tc.path, []byte(tc.data)); got != tc.want {
			t.Errorf("isJSON(%q, %q) = %v, want %v", tc.path, tc.data, got, tc.want)
		}
	}
}

func TestContextIDFromPath(t *testing.T) {
	for in, want := range map[string]string{
		"-":                    "stdin",
		"items/q1.json":        "q1",
		"/tmp/prompt.md":       "prompt",
		"no-extension":         "no-extension",
		"dir/archive.tar.json": "archive.tar",
	} {
		if got := contextIDFromPath(in); got != want {
			t.Errorf("contextIDFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadItem(t *testing.T) {
	t.Run("envelope", func(t *testing.T) {
		path := writeFile(t, "q7.json", `{
			"id": "item-7",
			"content": {"prompt": "<p>2 + 2</p>"},
			"catalogs": [{"identifier": "sum", "cards": [{"language": "en-US", "content": "two plus two"}]}]
		}`)
		it, err := loadItem(path)
		if err != nil {
			t.Fatal(err)
		}
		if it.ID != "item-7" {
			t.Errorf("ID = %q", it.ID)
		}
		if got, _ := fieldAt(it.Content, "prompt"); got != "<p>2 + 2</p>" {
			t.Errorf("prompt = %q", got)
		}
		if len(it.Catalogs) != 1 || it.Catalogs[0].Identifier != "sum" {
			t.Errorf("catalogs = %+v", it.Catalogs)
		}
	})

	t.Run("bare fields", func(t *testing.T) {
		path := writeFile(t, "q8.json", `{"prompt": "<p>Hi</p>", "catalogs": "not an envelope"}`)
		it, err := loadItem(path)
		if err == nil {
			// A catalogs field of the wrong type fails the envelope decode.
			t.Fatalf("expected an error, got item %+v", it)
		}

		path = writeFile(t, "q9.json", `{"prompt": "<p>Hi</p>"}`)
		it, err = loadItem(path)
		if err != nil {
			t.Fatal(err)
		}
		if it.ID != "q9" {
			t.Errorf("ID = %q, want file name", it.ID)
		}
		if got, _ := fieldAt(it.Content, "prompt"); got != "<p>Hi</p>" {
			t.Errorf("prompt = %q", got)
		}
	})

	t.Run("markdown keeps inline markup", func(t *testing.T) {
		path := writeFile(t, "intro.md", "# Water\n\nThe formula is <speak xml:lang=\"en-US\">H two O</speak>H<sub>2</sub>O.\n")
		it, err := loadItem(path)
		if err != nil {
			t.Fatal(err)
		}
		html, ok := it.Content.(string)
		if !ok {
			t.Fatalf("content is %T, want string", it.Content)
		}
		for _, want := range []string{"<h1>Water</h1>", `<speak xml:lang="en-US">H two O</speak>`, "<sub>2</sub>"} {
			if !strings.Contains(html, want) {
				t.Errorf("rendered markdown missing %q:\n%s", want, html)
			}
		}
	})

	t.Run("html fragment", func(t *testing.T) {
		path := writeFile(t, "stem.html", "<p>Plain</p>")
		it, err := loadItem(path)
		if err != nil {
			t.Fatal(err)
		}
		if it.Content != "<p>Plain</p>" || it.ID != "stem" {
			t.Errorf("item = %+v", it)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := loadItem(filepath.Join(t.TempDir(), "nope.json")); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestScanCommand(t *testing.T) {
	path := writeFile(t, "q1.json", `{"prompt": "<p>Water is <speak xml:lang=\"en-US\">H two O</speak>H<sub>2</sub>O.</p>", "hint": "<p>Broken <speak>markup</p>"}`)

	var stdout, stderr bytes.Buffer
	scanCmd.SetOut(&stdout)
	scanCmd.SetErr(&stderr)
	t.Cleanup(func() {
		scanCmd.SetOut(nil)
		scanCmd.SetErr(nil)
	})

	if err := scanCmd.RunE(scanCmd, []string{path}); err != nil {
		t.Fatal(err)
	}

	var report struct {
		Content  map[string]string `yaml:"content"`
		Catalogs []struct {
			Identifier string `yaml:"identifier"`
		} `yaml:"catalogs"`
		Skipped []string `yaml:"skipped"`
	}
	if err := yaml.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("report is not YAML: %v\n%s", err, stdout.String())
	}

	if len(report.Catalogs) != 1 || report.Catalogs[0].Identifier != "auto-q1-prompt-0" {
		t.Errorf("catalogs = %+v", report.Catalogs)
	}
	if strings.Contains(report.Content["prompt"], "<speak") {
		t.Errorf("prompt still holds markup: %s", report.Content["prompt"])
	}
	if report.Content["hint"] != "<p>Broken <speak>markup</p>" {
		t.Errorf("malformed field changed: %q", report.Content["hint"])
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != "hint" {
		t.Errorf("skipped = %v", report.Skipped)
	}
	if !strings.Contains(stderr.String(), "hint") {
		t.Errorf("expected a warning naming the skipped field, got %q", stderr.String())
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	var doc struct {
		Width        uint       `yaml:"width"`
		QuitWhenDone bool       `yaml:"quit_when_done"`
		TTS          tts.Config `yaml:"tts"`
	}
	if err := yaml.Unmarshal([]byte(defaultConfig), &doc); err != nil {
		t.Fatalf("default config does not parse: %v", err)
	}

	cfg := doc.TTS
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
	if cfg.Provider != tts.ProviderLocal {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.Network.Timeout != 15*time.Second {
		t.Errorf("Network.Timeout = %v", cfg.Network.Timeout)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("Cache.TTL = %v", cfg.Cache.TTL)
	}
}

// wordProvider reports one boundary per word after a short delay, then
// finishes with err.
type wordProvider struct {
	words [][2]int
	err   error
}

func (p *wordProvider) Name() string                                         { return "words" }
func (p *wordProvider) Initialize(context.Context, tts.ProviderConfig) error { return nil }
func (p *wordProvider) Pause() error                                         { return nil }
func (p *wordProvider) Resume() error                                        { return nil }
func (p *wordProvider) Stop()                                                {}
func (p *wordProvider) IsPlaying() bool                                      { return false }
func (p *wordProvider) IsPaused() bool                                       { return false }
func (p *wordProvider) Capabilities() tts.Capabilities {
	return tts.Capabilities{BoundaryPrecision: tts.BoundaryEvent}
}

func (p *wordProvider) Speak(ctx context.Context, _ string, opts tts.SpeakOptions) error {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return nil
	}
	for _, w := range p.words {
		opts.OnBoundary(w[0], w[1])
	}
	return p.err
}

func TestSpeakHeadless(t *testing.T) {
	t.Run("prints words", func(t *testing.T) {
		provider := &wordProvider{words: [][2]int{{0, 5}, {6, 5}, {12, 5}}}
		ctrl := tts.NewController(provider, catalog.NewResolver("en-US"), tts.DefaultConfig())

		var out, errOut bytes.Buffer
		err := speakHeadless(context.Background(), &out, &errOut, ctrl, tts.PlaybackRequest{Text: "Hello brave world"})
		if err != nil {
			t.Fatal(err)
		}

		got := out.String()
		last := -1
		for _, w := range []string{"Hello", "brave", "world"} {
			i := strings.Index(got, w)
			if i <= last {
				t.Fatalf("word %q missing or out of order in %q", w, got)
			}
			last = i
		}
		if errOut.Len() != 0 {
			t.Errorf("unexpected stderr: %q", errOut.String())
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		provider := &wordProvider{err: errors.New("device busy")}
		ctrl := tts.NewController(provider, catalog.NewResolver("en-US"), tts.DefaultConfig())

		var out, errOut bytes.Buffer
		err := speakHeadless(context.Background(), &out, &errOut, ctrl, tts.PlaybackRequest{Text: "Hello"})
		if err == nil {
			t.Fatal("expected the provider error to be returned")
		}
		if !strings.Contains(errOut.String(), "device busy") {
			t.Errorf("stderr = %q", errOut.String())
		}
	})

	t.Run("canceled", func(t *testing.T) {
		provider := &wordProvider{}
		ctrl := tts.NewController(provider, catalog.NewResolver("en-US"), tts.DefaultConfig())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var out, errOut bytes.Buffer
		done := make(chan error, 1)
		go func() {
			done <- speakHeadless(ctx, &out, &errOut, ctrl, tts.PlaybackRequest{Text: "Hello"})
		}()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("canceled session returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("speakHeadless did not return after cancel")
		}
	})
}

func TestPrintCacheStats(t *testing.T) {
	var out bytes.Buffer
	printCacheStats(&out, "/tmp/readaloud", cache.ManagerStats{
		L2: cache.CacheStats{ItemCount: 3, Size: 2048, Capacity: 1 << 20},
	})

	for _, want := range []string{"Directory: /tmp/readaloud", "Entries:   3", "2.0 kB / 1.0 MB"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("stats output missing %q:\n%s", want, out.String())
		}
	}
}
