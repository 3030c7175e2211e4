package markup

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// span is a half-open range of rune offsets into the source markup.
type span struct{ start, end int }

// Spoken is SSML reduced to normalized speakable text, with the source span
// each rune was read from. It converts boundary offsets between the markup a
// provider receives and the text that is highlighted.
type Spoken struct {
	text  string
	spans []span
}

// NewSpoken strips ssml like Strip and normalizes the result (trim, collapse
// whitespace runs to one space). Text is equal to Normalize(Strip(ssml)).
func NewSpoken(ssml string) Spoken {
	var raw []rune
	var spans []span
	emit := func(r rune, s span) {
		raw = append(raw, r)
		spans = append(spans, s)
	}

	z := html.NewTokenizer(strings.NewReader(ssml))
	pos := 0
	skipDepth := 0
	aliasFrom, aliasStart := -1, 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		rawTok := z.Raw()
		start := pos
		pos += utf8.RuneCount(rawTok)
		tag := span{start, pos}

		switch tt {
		case html.TextToken:
			if skipDepth == 0 {
				textSpans(rawTok, z.Text(), start, emit)
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if skipDepth > 0 {
				if string(name) == "sub" && tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			switch string(name) {
			case "sub":
				attrs := readAttrs(z, hasAttr)
				if alias, ok := attrs["alias"]; ok {
					from := len(raw)
					for _, r := range alias {
						emit(r, tag)
					}
					if tt == html.StartTagToken {
						skipDepth = 1
						aliasFrom, aliasStart = from, start
					}
				}
			case "break", "p", "s":
				emit(' ', tag)
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if skipDepth > 0 {
				if string(name) == "sub" {
					skipDepth--
					if skipDepth == 0 && aliasFrom >= 0 {
						// The alias is read for the whole element.
						for i := aliasFrom; i < len(spans); i++ {
							spans[i] = span{aliasStart, pos}
						}
						aliasFrom = -1
					}
				}
				continue
			}
			if n := string(name); n == "p" || n == "s" {
				emit(' ', tag)
			}
		}
	}

	return normalizeSpans(raw, spans)
}

// textSpans emits the decoded runes of a text token. Character references
// map to the span of the whole reference.
func textSpans(rawTok, decoded []byte, start int, emit func(rune, span)) {
	if bytes.Equal(rawTok, decoded) {
		pos := start
		for _, r := range string(decoded) {
			emit(r, span{pos, pos + 1})
			pos++
		}
		return
	}

	var runes []rune
	var spans []span
	pos := start
	for i := 0; i < len(rawTok); {
		if rawTok[i] == '&' {
			if j := bytes.IndexByte(rawTok[i:], ';'); j > 0 && j < 32 {
				ref := string(rawTok[i : i+j+1])
				if dec := html.UnescapeString(ref); dec != ref {
					n := utf8.RuneCountInString(ref)
					for _, r := range dec {
						runes = append(runes, r)
						spans = append(spans, span{pos, pos + n})
					}
					pos += n
					i += j + 1
					continue
				}
			}
		}
		r, size := utf8.DecodeRune(rawTok[i:])
		runes = append(runes, r)
		spans = append(spans, span{pos, pos + 1})
		pos++
		i += size
	}

	if string(runes) != string(decoded) {
		// The tokenizer decoded something the scan did not; every rune
		// gets the whole token.
		whole := span{start, start + utf8.RuneCount(rawTok)}
		for _, r := range string(decoded) {
			emit(r, whole)
		}
		return
	}
	for i, r := range runes {
		emit(r, spans[i])
	}
}

func normalizeSpans(raw []rune, spans []span) Spoken {
	var b strings.Builder
	out := make([]span, 0, len(raw))
	pending := false
	var pendingSpan span
	for i, r := range raw {
		if unicode.IsSpace(r) {
			if !pending && b.Len() > 0 {
				pending = true
				pendingSpan = spans[i]
			}
			continue
		}
		if pending {
			b.WriteByte(' ')
			out = append(out, pendingSpan)
			pending = false
		}
		b.WriteRune(r)
		out = append(out, spans[i])
	}
	return Spoken{text: b.String(), spans: out}
}

// Text returns the normalized speakable text.
func (s Spoken) Text() string { return s.text }

// FromSource maps a range of rune offsets in the source markup onto Text.
// Every spoken rune read from inside the range is covered. It reports false
// when the range covers no spoken rune.
func (s Spoken) FromSource(offset, length int) (int, int, bool) {
	if length < 1 {
		length = 1
	}
	end := offset + length
	first, last := -1, -1
	for i, sp := range s.spans {
		if sp.start >= end {
			break
		}
		if sp.end > offset {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return 0, 0, false
	}
	return first, last - first + 1, true
}

// ToSource maps a range of Text onto rune offsets in the source markup.
func (s Spoken) ToSource(offset, length int) (int, int, bool) {
	if offset < 0 || length < 1 || offset+length > len(s.spans) {
		return 0, 0, false
	}
	start := s.spans[offset].start
	end := s.spans[offset+length-1].end
	return start, end - start, true
}
