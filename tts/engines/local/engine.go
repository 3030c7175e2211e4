// Package local speaks through a speech engine installed on the host. The
// engine reports word boundaries as events while it speaks.
package local

import "github.com/dgnsrekt/readaloud/tts"

// Engine is a host speech engine. Speak starts an utterance and returns;
// progress is reported through the utterance's callbacks, which never run
// before Speak returns and never while the engine holds a lock that Cancel
// needs.
type Engine interface {
	Name() string
	Available() bool
	SupportsSSML() bool
	BoundaryPrecision() tts.BoundaryPrecision

	Speak(u *Utterance) error
	Pause() error
	Resume() error
	// Cancel stops the current utterance without firing OnEnd or OnError.
	Cancel()
}

// Utterance is one request to speak text.
type Utterance struct {
	Text     string
	Language string
	Voice    string
	Rate     float64
	Pitch    float64
	Volume   float64

	OnBoundary func(charIndex, charLength int)
	OnEnd      func()
	OnError    func(err error)
}
