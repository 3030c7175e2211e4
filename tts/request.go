package tts

import (
	"golang.org/x/net/html"

	"github.com/dgnsrekt/readaloud/tts/align"
)

// PlaybackRequest asks the controller to speak something.
//
// When CatalogID is set the resolver is consulted first and Text is the
// literal fallback. Target, when set, is the rendered element that receives
// word highlighting.
type PlaybackRequest struct {
	Text            string
	CatalogID       string
	Target          *html.Node
	Language        string
	ProviderOptions map[string]any
}

// Source records where the spoken text came from.
type Source string

const (
	SourceExtracted  Source = "extracted"
	SourceItem       Source = "item"
	SourceAssessment Source = "assessment"
	SourceFallback   Source = "fallback"
)

// ResolvedContent is the text chosen for a request.
type ResolvedContent struct {
	Text     string
	Source   Source
	Language string
}

// Session is one playback of one request. Offsets reported by the provider
// are rune offsets into Text.
type Session struct {
	ID         string
	Generation uint64
	Resolved   ResolvedContent
	Text       string
	Map        *align.PositionMap // nil when highlighting is disabled
	Highlight  align.Range
	State      StateType
}

// Highlighting reports whether boundary events reach the target element.
func (s *Session) Highlighting() bool {
	return s.Map != nil
}
