package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/net/html"

	"github.com/dgnsrekt/readaloud/tts/align"
)

var highlightColors = map[string]lipgloss.Color{
	"black":   lipgloss.Color("0"),
	"red":     lipgloss.Color("1"),
	"green":   lipgloss.Color("2"),
	"yellow":  lipgloss.Color("226"),
	"blue":    lipgloss.Color("4"),
	"magenta": lipgloss.Color("5"),
	"cyan":    lipgloss.Color("6"),
	"white":   lipgloss.Color("15"),
}

// HighlightStyle returns the style applied to the spoken word.
func HighlightStyle(color string) lipgloss.Style {
	c, ok := highlightColors[strings.ToLower(color)]
	if !ok {
		return lipgloss.NewStyle().Reverse(true)
	}
	return lipgloss.NewStyle().
		Background(c).
		Foreground(lipgloss.Color("0")).
		Bold(true)
}

// RenderContent renders the target's text with r highlighted and wraps it to
// width columns. Wrapping measures printable width, so styled words do not
// count their escape sequences.
func RenderContent(target *html.Node, r align.Range, style func(string) string, width int) string {
	text := align.RenderHighlighted(target, r, style)
	if width <= 0 {
		return text
	}
	return wordwrap.String(text, width)
}
