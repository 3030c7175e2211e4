// Package markup extracts inline pronunciation markup from item content.
//
// Authors embed SSML <speak> blocks next to the text they describe. The
// scanner lifts each block out of the visible content, tags the surrounding
// element with a catalog reference, and returns the blocks as catalog
// entries so the resolver can serve them in place of the rendered text.
package markup

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dgnsrekt/readaloud/tts/catalog"
	"golang.org/x/net/html"
)

// MarkerAttr is the attribute added to the element that owned a block.
const MarkerAttr = "data-catalog-idref"

// ErrMalformedMarkup reports fields whose <speak> blocks could not be parsed.
var ErrMalformedMarkup = errors.New("malformed speak markup")

// rootField names a bare string passed to Extract.
const rootField = "content"

// Result holds the output of an extraction pass.
type Result struct {
	// Content mirrors the input with blocks removed and markers attached.
	Content any
	// Entries holds one catalog entry per extracted block, in document order.
	Entries []catalog.Entry
	// Skipped lists fields left untouched because their markup was malformed.
	Skipped []string
}

// Err returns an error wrapping ErrMalformedMarkup when any field was
// skipped. Extraction itself never fails; callers use this to report.
func (r Result) Err() error {
	if len(r.Skipped) == 0 {
		return nil
	}
	return fmt.Errorf("%w in %s", ErrMalformedMarkup, strings.Join(r.Skipped, ", "))
}

// Extract scans every string field of content for <speak> blocks.
//
// content is a JSON-shaped tree (map[string]any, []any, string). Map keys are
// visited in sorted order so identifiers are stable. The input is never
// modified. Fields holding malformed markup are returned byte-identical and
// produce no entries.
func Extract(content any, contextID string) Result {
	s := &scanner{contextID: contextID}
	out := s.walk(content, "")
	return Result{Content: out, Entries: s.entries, Skipped: s.skipped}
}

// ExtractString scans a single field.
func ExtractString(text, contextID, field string) (string, []catalog.Entry) {
	s := &scanner{contextID: contextID}
	out := s.field(text, field)
	return out, s.entries
}

type scanner struct {
	contextID string
	counter   int
	entries   []catalog.Entry
	skipped   []string
}

func (s *scanner) walk(v any, path string) any {
	switch t := v.(type) {
	case string:
		if path == "" {
			path = rootField
		}
		return s.field(t, path)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(t))
		for _, k := range keys {
			out[k] = s.walk(t[k], joinPath(path, k))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = s.walk(item, joinPath(path, strconv.Itoa(i)))
		}
		return out
	default:
		return v
	}
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

// block is one <speak> element found in a field.
type block struct {
	start, end int
	lang       string

	// parentStart/parentEnd locate the innermost enclosing start tag;
	// parentStart is -1 when the block sits at the top level.
	parentStart, parentEnd int
	parentMarked           bool
}

type openTag struct {
	name       string
	start, end int
	marked     bool
}

type edit struct {
	pos    int
	delete int
	insert string
}

func (s *scanner) field(text, field string) string {
	if !containsSpeak(text) {
		return text
	}

	blocks, ok := findBlocks(text)
	if !ok {
		s.skipped = append(s.skipped, field)
		return text
	}

	marked := make(map[int]bool)
	edits := make([]edit, 0, len(blocks)*2)
	for _, b := range blocks {
		id := fmt.Sprintf("auto-%s-%s-%d", s.contextID, field, s.counter)
		s.counter++

		s.entries = append(s.entries, catalog.Entry{
			Identifier: id,
			Cards: []catalog.Card{{
				CatalogType: catalog.CatalogTypeSpoken,
				Language:    b.lang,
				Content:     text[b.start:b.end],
			}},
		})

		marker := fmt.Sprintf(` %s="%s"`, MarkerAttr, html.EscapeString(id))
		if b.parentStart >= 0 && !b.parentMarked && !marked[b.parentStart] {
			marked[b.parentStart] = true
			edits = append(edits,
				edit{pos: insertionPoint(text, b.parentEnd), insert: marker},
				edit{pos: b.start, delete: b.end - b.start},
			)
			continue
		}
		edits = append(edits, edit{
			pos:    b.start,
			delete: b.end - b.start,
			insert: "<span" + marker + "></span>",
		})
	}

	return applyEdits(text, edits)
}

// findBlocks tokenizes text and returns its <speak> blocks. It reports false
// when any block is unterminated, a closing tag has no opener, or a <speak
// occurrence could not be parsed as a tag.
func findBlocks(text string) ([]block, bool) {
	z := html.NewTokenizer(strings.NewReader(text))
	pos := 0
	var stack []openTag
	var blocks []block

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return nil, false
			}
			break
		}
		start := pos
		pos += len(z.Raw())

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			attrs := readAttrs(z, hasAttr)

			if tag == "speak" {
				b := block{start: start, lang: speakLanguage(attrs), parentStart: -1}
				if n := len(stack); n > 0 {
					p := stack[n-1]
					b.parentStart, b.parentEnd, b.parentMarked = p.start, p.end, p.marked
				}
				if tt == html.StartTagToken {
					end, ok := skipBlock(z, pos)
					if !ok {
						return nil, false
					}
					pos = end
				}
				b.end = pos
				blocks = append(blocks, b)
				continue
			}

			if tt == html.StartTagToken && !voidElements[tag] {
				_, marked := attrs[MarkerAttr]
				stack = append(stack, openTag{name: tag, start: start, end: pos, marked: marked})
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "speak" {
				return nil, false
			}
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].name == tag {
					stack = stack[:i]
					break
				}
			}
		}
	}

	if !allCovered(text, blocks) {
		return nil, false
	}
	return blocks, true
}

// skipBlock consumes tokens up to the matching </speak> and returns the byte
// offset just past it.
func skipBlock(z *html.Tokenizer, pos int) (int, bool) {
	depth := 1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return 0, false
		}
		pos += len(z.Raw())
		switch tt {
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) == "speak" {
				depth++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "speak" {
				depth--
				if depth == 0 {
					return pos, true
				}
			}
		}
	}
}

func readAttrs(z *html.Tokenizer, more bool) map[string]string {
	attrs := make(map[string]string)
	for more {
		var key, val []byte
		key, val, more = z.TagAttr()
		attrs[string(key)] = string(val)
	}
	return attrs
}

func speakLanguage(attrs map[string]string) string {
	if lang, ok := attrs["xml:lang"]; ok {
		return lang
	}
	return attrs["lang"]
}

// insertionPoint returns where a new attribute goes inside the start tag that
// ends at tagEnd.
func insertionPoint(text string, tagEnd int) int {
	p := tagEnd - 1
	for p > 0 && text[p-1] == '/' {
		p--
	}
	return p
}

func applyEdits(text string, edits []edit) string {
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].pos < edits[j].pos })

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, e := range edits {
		b.WriteString(text[cursor:e.pos])
		b.WriteString(e.insert)
		cursor = e.pos + e.delete
	}
	b.WriteString(text[cursor:])
	return b.String()
}

// containsSpeak reports whether text holds anything that looks like a <speak
// start tag.
func containsSpeak(text string) bool {
	return len(speakOpenings(text)) > 0
}

// speakOpenings returns the byte offsets of every "<speak" tag opener.
func speakOpenings(text string) []int {
	lower := strings.ToLower(text)
	const needle = "<speak"
	var out []int
	for i := 0; ; {
		j := strings.Index(lower[i:], needle)
		if j < 0 {
			return out
		}
		at := i + j
		next := at + len(needle)
		if next >= len(lower) || isTagNameEnd(lower[next]) {
			out = append(out, at)
		}
		i = next
	}
}

func isTagNameEnd(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '>', '/':
		return true
	}
	return false
}

// allCovered checks that every <speak opener belongs to a parsed block.
func allCovered(text string, blocks []block) bool {
	for _, at := range speakOpenings(text) {
		covered := false
		for _, b := range blocks {
			if at >= b.start && at < b.end {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}
