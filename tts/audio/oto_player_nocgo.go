//go:build nocgo

package audio

import "context"

// OtoPlayer is unavailable in builds without cgo.
type OtoPlayer struct{}

// NewOtoPlayer always fails in builds without cgo.
func NewOtoPlayer(sampleRate int) (*OtoPlayer, error) {
	return nil, ErrAudioUnavailable
}

// Play always fails in builds without cgo.
func (p *OtoPlayer) Play(ctx context.Context, clip PCM) (Playback, error) {
	return nil, ErrAudioUnavailable
}
