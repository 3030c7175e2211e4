package align

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Highlighter receives the live highlight of the active session.
type Highlighter interface {
	Highlight(r Range)
	Clear()
}

// HighlighterFunc adapts a function to Highlighter. A zero Range means clear.
type HighlighterFunc func(r Range)

// Highlight calls f(r).
func (f HighlighterFunc) Highlight(r Range) { f(r) }

// Clear calls f with the zero Range.
func (f HighlighterFunc) Clear() { f(Range{}) }

// RenderHighlighted returns the normalized text of root with the characters
// inside r passed through style. A zero range renders plain text.
func RenderHighlighted(root *html.Node, r Range, style func(string) string) string {
	if root == nil {
		return ""
	}

	var out, hl strings.Builder
	inside := false
	pendingSpace := false
	started := false

	flush := func() {
		if hl.Len() > 0 {
			out.WriteString(style(hl.String()))
			hl.Reset()
		}
	}
	emit := func(s string) {
		if inside {
			hl.WriteString(s)
		} else {
			out.WriteString(s)
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			for i, c := range n.Data {
				if inside && n == r.End.Node && i == r.End.Offset {
					flush()
					inside = false
				}
				space := unicode.IsSpace(c)
				if !space && pendingSpace {
					emit(" ")
					pendingSpace = false
				}
				if !inside && n == r.Start.Node && i == r.Start.Offset {
					inside = true
				}
				if space {
					pendingSpace = pendingSpace || started
					continue
				}
				emit(string(c))
				started = true
			}
			if inside && n == r.End.Node && r.End.Offset >= len(n.Data) {
				flush()
				inside = false
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
	flush()

	return out.String()
}

// ParseFragment parses an HTML fragment into a detached <div> suitable as a
// highlighting target.
func ParseFragment(src string) (*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return nil, err
	}
	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	return container, nil
}
