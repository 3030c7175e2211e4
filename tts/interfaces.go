package tts

import (
	"context"
	"time"
)

// Provider is a voice backend. The controller drives every provider through
// this contract regardless of how the backend reports timing.
type Provider interface {
	// Name identifies the provider in logs and configuration.
	Name() string

	// Initialize prepares the provider. It returns ErrProviderUnavailable
	// when the backend cannot be used on this host.
	Initialize(ctx context.Context, cfg ProviderConfig) error

	// Speak plays text and blocks until playback finishes, the context is
	// canceled or Stop is called. A stopped utterance returns nil.
	Speak(ctx context.Context, text string, opts SpeakOptions) error

	// Pause temporarily halts playback.
	Pause() error

	// Resume continues paused playback.
	Resume() error

	// Stop halts playback. It is safe to call in any state, any number of
	// times. No boundary callback starts its run check after Stop returns,
	// but one that passed the check concurrently with Stop may still be
	// delivered. Callbacks must not take locks the caller holds across Stop,
	// so callers discard such late boundaries by their own session identity.
	Stop()

	// IsPlaying returns true while audio is audible.
	IsPlaying() bool

	// IsPaused returns true while playback is paused.
	IsPaused() bool

	// Capabilities describes what the provider supports.
	Capabilities() Capabilities
}

// BoundaryFunc receives a spoken word as a rune offset and length into the
// text passed to Speak.
type BoundaryFunc func(charOffset, charLength int)

// SpeakOptions tunes a single Speak call.
type SpeakOptions struct {
	Language string
	Voice    string
	Rate     float64 // 1.0 = normal
	Pitch    float64 // 1.0 = normal

	// OnBoundary is called from the provider's goroutine for each word.
	OnBoundary BoundaryFunc

	// Extra carries provider-specific options from the playback request.
	Extra map[string]any
}

// ProviderConfig holds the settings a provider is initialized with.
type ProviderConfig struct {
	Language string
	Voice    string
	Rate     float64
	Pitch    float64
	Volume   float64
	Timeout  time.Duration
}

// BoundaryPrecision describes how word timing is obtained.
type BoundaryPrecision int

const (
	// BoundaryNone means the provider reports no word timing.
	BoundaryNone BoundaryPrecision = iota
	// BoundaryEstimated means timing is derived from a speaking-rate model.
	BoundaryEstimated
	// BoundaryEvent means the speech engine reports each word as it is spoken.
	BoundaryEvent
	// BoundaryTimed means the backend returns a timing mark per word.
	BoundaryTimed
)

// String returns the string representation of the precision.
func (p BoundaryPrecision) String() string {
	switch p {
	case BoundaryNone:
		return "none"
	case BoundaryEstimated:
		return "estimated"
	case BoundaryEvent:
		return "event"
	case BoundaryTimed:
		return "timed"
	default:
		return "unknown"
	}
}

// Capabilities describes what a provider can do.
type Capabilities struct {
	SupportsSSML      bool              // Accepts <speak> markup directly
	BoundaryPrecision BoundaryPrecision // How word boundaries are produced
	SupportsRate      bool              // Honours SpeakOptions.Rate
	SupportsPitch     bool              // Honours SpeakOptions.Pitch
	RequiresNetwork   bool              // Needs a reachable synthesis service
}

// TimingMark is one word of a network synthesis response. Offsets are rune
// offsets into the requested text; marks are monotonic in TimeMillis.
type TimingMark struct {
	CharOffset int   `json:"charOffset"`
	CharLength int   `json:"charLength"`
	TimeMillis int64 `json:"timeMillis"`
}

// Time returns the mark's position in the audio.
func (m TimingMark) Time() time.Duration {
	return time.Duration(m.TimeMillis) * time.Millisecond
}
