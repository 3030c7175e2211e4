package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/readaloud/internal/cache"
	"github.com/dgnsrekt/readaloud/tts"
	"github.com/dgnsrekt/readaloud/tts/align"
	"github.com/dgnsrekt/readaloud/tts/catalog"
	"github.com/dgnsrekt/readaloud/tts/engines"
	"github.com/dgnsrekt/readaloud/ui"
)

var (
	speakCatalogs     []string
	speakItemCatalogs []string
	speakID           string
	speakText         string
	speakField        string
	speakLang         string
	speakProvider     string
	speakVoice        string
	speakNoTUI        bool
	speakWatch        bool
)

var speakCmd = &cobra.Command{
	Use:   "speak [FILE|-]",
	Short: "Read an item aloud, highlighting each word",
	Long: paragraph(fmt.Sprintf("\n%s an item aloud. FILE is a JSON item, a Markdown document or an HTML "+
		"fragment. Catalog alternatives are preferred over the visible text when --id names one.",
		keyword("Read"))),
	Example: paragraph("readaloud speak item.json --field prompt\n" +
		"readaloud speak --catalog assessment.yaml --id q1-prompt --lang es-ES\n" +
		"readaloud speak --text \"Hello world\" --no-tui"),
	Args: cobra.MaximumNArgs(1),
	RunE: runSpeak,
}

func runSpeak(cmd *cobra.Command, args []string) error {
	cfg, err := speakConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	resolver, err := loadCatalogs(ctx, cfg)
	if err != nil {
		return err
	}

	var it *item
	if len(args) == 1 {
		if it, err = loadItem(args[0]); err != nil {
			return err
		}
		resolver.AddItemCatalogs(it.Catalogs)
	}

	var cm *cache.CacheManager
	if cfg.Provider == tts.ProviderNetwork && cfg.Cache.Enabled {
		dir, err := cacheDir(cfg.Cache)
		if err != nil {
			return err
		}
		if cm, err = engines.NewCache(cfg.Cache, dir); err != nil {
			log.Warn("Synthesis cache unavailable", "dir", dir, "err", err)
		} else {
			defer cm.Close() //nolint:errcheck
		}
	}

	provider, err := engines.New(ctx, cfg, engines.Options{Cache: cm})
	if err != nil {
		return err
	}
	ctrl := tts.NewController(provider, resolver, cfg)

	req := tts.PlaybackRequest{CatalogID: speakID, Text: speakText, Language: speakLang}
	title := "readaloud"
	if it != nil {
		title = filepath.Base(args[0])
		if err := attachTarget(ctrl, it, &req); err != nil {
			return err
		}
	}
	if req.Text == "" && req.CatalogID == "" {
		return errors.New("nothing to speak: pass a FILE, --text or --id")
	}

	if !speakNoTUI && term.IsTerminal(int(os.Stdout.Fd())) {
		return ui.Run(ctx, ui.Config{
			Title:          title,
			HighlightColor: cfg.HighlightColor,
			Width:          viper.GetInt("width"),
			QuitWhenDone:   viper.GetBool("quit_when_done"),
			EnableMouse:    viper.GetBool("mouse"),
		}, ctrl, provider.Name(), req)
	}
	return speakHeadless(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), ctrl, req)
}

// speakConfig loads the configuration and applies the command's flags.
func speakConfig(cmd *cobra.Command) (tts.Config, error) {
	cfg, err := tts.LoadConfig()
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("provider") {
		cfg.Provider = speakProvider
	}
	if cmd.Flags().Changed("voice") {
		cfg.Voice = speakVoice
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadCatalogs(ctx context.Context, cfg tts.Config) (*catalog.Resolver, error) {
	resolver := catalog.NewResolver(cfg.Language)

	if speakWatch && len(speakCatalogs) != 1 {
		return nil, errors.New("--watch needs exactly one --catalog")
	}
	for _, p := range speakCatalogs {
		entries, err := catalog.LoadFile(expandPath(p))
		if err != nil {
			return nil, err
		}
		resolver.AddAssessmentCatalogs(entries)
		if speakWatch {
			if err := catalog.Watch(ctx, expandPath(p), resolver); err != nil {
				return nil, err
			}
		}
	}
	for _, p := range speakItemCatalogs {
		entries, err := catalog.LoadFile(expandPath(p))
		if err != nil {
			return nil, err
		}
		resolver.AddItemCatalogs(entries)
	}
	return resolver, nil
}

// attachTarget registers the item's inline markup and points req at the
// rendered field. The visible text is the literal fallback.
func attachTarget(ctrl *tts.Controller, it *item, req *tts.PlaybackRequest) error {
	res := ctrl.RegisterContent(it.Content, it.ID)
	if err := res.Err(); err != nil {
		log.Warn("Inline markup skipped", "item", it.ID, "err", err)
	}

	field := speakField
	if _, ok := res.Content.(string); ok {
		field = ""
	}
	src, ok := fieldAt(res.Content, field)
	if !ok {
		return fmt.Errorf("item %s has no text field %q", it.ID, field)
	}

	target, err := align.ParseFragment(src)
	if err != nil {
		return fmt.Errorf("unable to parse item markup: %w", err)
	}
	req.Target = target
	if req.Text == "" {
		req.Text = align.BuildPositionMap(target).Text()
	}
	return nil
}

// speakHeadless prints each spoken word as it is reached and returns when the
// session ends.
func speakHeadless(ctx context.Context, out, errOut io.Writer, ctrl *tts.Controller, req tts.PlaybackRequest) error {
	defer ctrl.Shutdown()

	var (
		text     []rune
		started  bool
		finished bool
		failure  error
	)
	done := make(chan struct{})

	stop := tts.Bridge(ctrl, func(msg tea.Msg) {
		switch m := msg.(type) {
		case tts.StateChangedMsg:
			switch m.State {
			case tts.StateIdle:
				if started && !finished {
					finished = true
					fmt.Fprintln(out)
					close(done)
				}
			case tts.StatePlaying:
				if text == nil {
					if sess, ok := ctrl.Session(); ok {
						text = []rune(sess.Text)
						log.Debug("Speaking", "source", sess.Resolved.Source, "session", sess.ID)
					}
				}
				started = true
			default:
				started = true
			}
		case tts.BoundaryMsg:
			if m.Offset >= 0 && m.Offset+m.Length <= len(text) {
				fmt.Fprint(out, wordStyle.Render(string(text[m.Offset:m.Offset+m.Length]))+" ")
			}
		case tts.ErrorMsg:
			fmt.Fprintln(errOut, faintStyle.Render(fmt.Sprintf("%s: %s", m.Kind, m.Message)))
			if m.Kind != tts.KindAlignmentMismatch && m.Kind != tts.KindMalformedMarkup {
				failure = errors.New(m.Message)
			}
		}
	})
	defer stop()

	if err := ctrl.Speak(ctx, req); err != nil {
		return err
	}

	select {
	case <-done:
		return failure
	case <-ctx.Done():
		ctrl.Stop()
		return nil
	}
}

func init() {
	f := speakCmd.Flags()
	f.StringArrayVar(&speakCatalogs, "catalog", nil, "assessment catalog file (YAML or JSON, repeatable)")
	f.StringArrayVar(&speakItemCatalogs, "item-catalog", nil, "item catalog file (YAML or JSON, repeatable)")
	f.StringVar(&speakID, "id", "", "catalog identifier to speak")
	f.StringVar(&speakText, "text", "", "literal text to speak (fallback when --id misses)")
	f.StringVar(&speakField, "field", "prompt", "dotted path of the JSON item field to read")
	f.StringVarP(&speakLang, "lang", "L", "", "language of the request (default from config)")
	f.StringVar(&speakProvider, "provider", "", "speech provider: local or network")
	f.StringVar(&speakVoice, "voice", "", "voice name passed to the provider")
	f.BoolVar(&speakNoTUI, "no-tui", false, "print spoken words instead of showing the read-along view")
	f.BoolVar(&speakWatch, "watch", false, "reload the assessment catalog when it changes")
}
