package align

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrAlignmentMismatch is returned when the rendered text and the spoken text
// do not have the same normalized length. Highlighting is disabled for the
// session; playback is unaffected.
var ErrAlignmentMismatch = errors.New("spoken text does not align with rendered text")

// Position locates one character inside a text node. Offset is a byte offset
// into Node.Data.
type Position struct {
	Node   *html.Node
	Offset int
}

// Range spans rendered text from Start (inclusive) to End (exclusive).
// Start and End may sit in different text nodes.
type Range struct {
	Start Position
	End   Position
}

// IsZero reports whether r is the empty range.
func (r Range) IsZero() bool {
	return r.Start.Node == nil && r.End.Node == nil
}

// PositionMap maps normalized rune offsets to text node positions.
type PositionMap struct {
	text      string
	positions []Position
}

// skipped elements never contribute rendered text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Template: true,
	atom.Noscript: true,
}

// BuildPositionMap walks root's text nodes in document order and records the
// origin of every rune of the normalized concatenation. A collapsed
// whitespace run maps to its first whitespace character.
func BuildPositionMap(root *html.Node) *PositionMap {
	pm := &PositionMap{}
	if root == nil {
		return pm
	}

	var b strings.Builder
	var pending *Position

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			for i, r := range n.Data {
				if unicode.IsSpace(r) {
					if pending == nil && len(pm.positions) > 0 {
						pending = &Position{Node: n, Offset: i}
					}
					continue
				}
				if pending != nil {
					b.WriteByte(' ')
					pm.positions = append(pm.positions, *pending)
					pending = nil
				}
				b.WriteRune(r)
				pm.positions = append(pm.positions, Position{Node: n, Offset: i})
			}
			return
		case html.ElementNode:
			if skipped[n.DataAtom] {
				return
			}
		case html.CommentNode, html.DoctypeNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	pm.text = b.String()
	return pm
}

// Align builds the position map for root and checks it against the spoken
// text. spoken must already be normalized.
func Align(root *html.Node, spoken string) (*PositionMap, error) {
	pm := BuildPositionMap(root)
	if want := RuneLen(spoken); pm.Len() != want {
		return pm, fmt.Errorf("%w: rendered %d characters, spoken %d", ErrAlignmentMismatch, pm.Len(), want)
	}
	return pm, nil
}

// Text returns the normalized rendered text.
func (pm *PositionMap) Text() string {
	return pm.text
}

// Len returns the number of mapped runes.
func (pm *PositionMap) Len() int {
	return len(pm.positions)
}

// At returns the position of the rune at offset.
func (pm *PositionMap) At(offset int) (Position, bool) {
	if offset < 0 || offset >= len(pm.positions) {
		return Position{}, false
	}
	return pm.positions[offset], true
}

// Range converts a boundary (offset, length) into a rendered range. The
// range is clipped to the map; it reports false when nothing remains.
func (pm *PositionMap) Range(offset, length int) (Range, bool) {
	if length <= 0 || offset >= len(pm.positions) || offset+length <= 0 {
		return Range{}, false
	}
	if offset < 0 {
		length += offset
		offset = 0
	}
	last := offset + length - 1
	if last >= len(pm.positions) {
		last = len(pm.positions) - 1
	}

	start := pm.positions[offset]
	end := pm.positions[last]
	_, size := utf8.DecodeRuneInString(end.Node.Data[end.Offset:])
	end.Offset += size
	return Range{Start: start, End: end}, true
}
