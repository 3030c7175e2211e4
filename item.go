package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/dgnsrekt/readaloud/tts/catalog"
)

var markdownExtensions = []string{".md", ".mdown", ".mkdn", ".mkd", ".markdown"}

// item is one piece of assessment content to read aloud.
type item struct {
	ID string `json:"id"`

	// Content is the item's field tree. Non-JSON sources are a single
	// string field.
	Content any `json:"content"`

	// Catalogs are the item-scope alternatives shipped with the item.
	Catalogs []catalog.Entry `json:"catalogs"`
}

// loadItem reads an item from path: a JSON item, a Markdown document or an
// HTML fragment.
func loadItem(path string) (*item, error) {
	data, err := readSource(path)
	if err != nil {
		return nil, err
	}

	it := &item{ID: contextIDFromPath(path)}
	switch {
	case isJSON(path, data):
		if err := json.Unmarshal(data, it); err != nil {
			return nil, fmt.Errorf("unable to parse item: %w", err)
		}
		if it.Content == nil {
			// A bare field map without the id/content/catalogs envelope.
			var fields map[string]any
			if err := json.Unmarshal(data, &fields); err != nil {
				return nil, fmt.Errorf("unable to parse item: %w", err)
			}
			it.Content = fields
			it.Catalogs = nil
		}
		if it.ID == "" {
			it.ID = contextIDFromPath(path)
		}

	case isMarkdownFile(path):
		rendered, err := renderMarkdown(data)
		if err != nil {
			return nil, err
		}
		it.Content = rendered

	default:
		it.Content = string(data)
	}
	return it, nil
}

func isMarkdownFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range markdownExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

// renderMarkdown converts Markdown to HTML. Raw HTML is kept so inline
// <speak> blocks survive rendering.
func renderMarkdown(src []byte) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("unable to render markdown: %w", err)
	}
	return buf.String(), nil
}

// fieldAt returns the string at a dotted path such as "choices.0.label".
// An empty path selects content itself.
func fieldAt(content any, path string) (string, bool) {
	cur := content
	if path != "" {
		for _, part := range strings.Split(path, ".") {
			switch v := cur.(type) {
			case map[string]any:
				next, ok := v[part]
				if !ok {
					return "", false
				}
				cur = next
			case []any:
				i, err := strconv.Atoi(part)
				if err != nil || i < 0 || i >= len(v) {
					return "", false
				}
				cur = v[i]
			default:
				return "", false
			}
		}
	}
	s, ok := cur.(string)
	return s, ok
}
