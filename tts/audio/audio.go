// Package audio decodes synthesized speech and plays it with position
// tracking, so callers can follow playback against timing marks.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

var (
	// ErrAudioUnavailable is returned when no audio output can be opened.
	ErrAudioUnavailable = errors.New("audio output unavailable")

	// ErrUnsupportedFormat is returned for audio that cannot be decoded.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrEmptyAudio is returned for clips without samples.
	ErrEmptyAudio = errors.New("empty audio data")
)

// BytesPerSample is the size of one signed 16-bit little-endian sample.
const BytesPerSample = 2

// PCM is decoded signed 16-bit little-endian interleaved audio.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// FrameSize returns the size in bytes of one sample per channel.
func (p PCM) FrameSize() int {
	return p.Channels * BytesPerSample
}

// Duration returns the playing time of the clip.
func (p PCM) Duration() time.Duration {
	return BytesToDuration(int64(len(p.Data)), p.SampleRate, p.Channels)
}

// BytesToDuration converts a byte count of 16-bit PCM to time.
func BytesToDuration(n int64, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	frames := n / int64(channels*BytesPerSample)
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

// Decode turns a synthesized clip into PCM. contentType is the response's
// media type; MP3 is also recognized by its header. Raw PCM is accepted as
// audio/L16 or audio/pcm with optional rate and channels parameters.
func Decode(data []byte, contentType string) (PCM, error) {
	if len(data) == 0 {
		return PCM{}, ErrEmptyAudio
	}

	mediaType, params := parseContentType(contentType)
	switch {
	case mediaType == "audio/mpeg" || mediaType == "audio/mp3" || looksLikeMP3(data):
		return decodeMP3(data)
	case mediaType == "audio/l16" || mediaType == "audio/pcm":
		rate := atoiDefault(params["rate"], 24000)
		channels := atoiDefault(params["channels"], 1)
		usable := len(data) / (channels * BytesPerSample) * (channels * BytesPerSample)
		if usable == 0 {
			return PCM{}, ErrEmptyAudio
		}
		return PCM{Data: data[:usable], SampleRate: rate, Channels: channels}, nil
	default:
		return PCM{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
	}
}

func decodeMP3(data []byte) (PCM, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("mp3 decode failed: %w", err)
	}
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return PCM{}, fmt.Errorf("mp3 read failed: %w", err)
	}
	// go-mp3 always produces 16-bit stereo.
	const frame = 2 * BytesPerSample
	pcm = pcm[:len(pcm)/frame*frame]
	if len(pcm) == 0 {
		return PCM{}, ErrEmptyAudio
	}
	return PCM{Data: pcm, SampleRate: decoder.SampleRate(), Channels: 2}, nil
}

func looksLikeMP3(data []byte) bool {
	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}
	return len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func parseContentType(ct string) (string, map[string]string) {
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType, _, _ = strings.Cut(ct, ";")
		return strings.ToLower(strings.TrimSpace(mediaType)), map[string]string{}
	}
	return mediaType, params
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return def
}

// Playback is a clip being played.
type Playback interface {
	// Position returns how much of the clip has been heard.
	Position() time.Duration
	Pause() error
	Resume() error
	// Stop halts playback. It is safe to call more than once.
	Stop()
	// Done is closed when playback ends for any reason.
	Done() <-chan struct{}
	// Err reports why playback ended early, if it failed.
	Err() error
}

// Player starts playbacks.
type Player interface {
	Play(ctx context.Context, clip PCM) (Playback, error)
}
