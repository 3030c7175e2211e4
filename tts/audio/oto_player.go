//go:build !nocgo

package audio

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// outputChannels is the channel count of the shared output context.
const outputChannels = 2

// oto allows one context per process.
var (
	globalContext     *oto.Context
	globalContextRate int
	globalContextErr  error
	contextOnce       sync.Once
)

func audioContext(sampleRate int) (*oto.Context, int, error) {
	contextOnce.Do(func() {
		options := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: outputChannels,
			Format:       oto.FormatSignedInt16LE,
		}
		// macOS benefits from larger buffers
		if runtime.GOOS == "darwin" {
			options.BufferSize = 100 * time.Millisecond
		} else {
			options.BufferSize = 50 * time.Millisecond
		}

		ctx, ready, err := oto.NewContext(options)
		if err != nil {
			globalContextErr = fmt.Errorf("%w: %v", ErrAudioUnavailable, err)
			return
		}
		<-ready
		globalContext = ctx
		globalContextRate = sampleRate
		log.Debug("audio context ready", "sampleRate", sampleRate, "channels", outputChannels)
	})
	return globalContext, globalContextRate, globalContextErr
}

// OtoPlayer plays clips through the system audio device.
type OtoPlayer struct {
	sampleRate int
}

// NewOtoPlayer opens the audio device. sampleRate is used when the device is
// opened for the first time; later clips are converted to the device rate.
func NewOtoPlayer(sampleRate int) (*OtoPlayer, error) {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if _, _, err := audioContext(sampleRate); err != nil {
		return nil, err
	}
	return &OtoPlayer{sampleRate: sampleRate}, nil
}

// Play starts clip and returns immediately.
func (p *OtoPlayer) Play(ctx context.Context, clip PCM) (Playback, error) {
	if len(clip.Data) == 0 {
		return nil, ErrEmptyAudio
	}
	octx, rate, err := audioContext(p.sampleRate)
	if err != nil {
		return nil, err
	}

	pcm := Convert(clip, rate, outputChannels)
	reader := &trackingReader{r: bytes.NewReader(pcm.Data)}
	pb := &otoPlayback{
		player: octx.NewPlayer(reader),
		reader: reader,
		total:  int64(len(pcm.Data)),
		rate:   rate,
		done:   make(chan struct{}),
	}
	pb.player.Play()
	go pb.monitor(ctx)
	return pb, nil
}

// trackingReader counts bytes handed to the device.
type trackingReader struct {
	r    *bytes.Reader
	read atomic.Int64
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	t.read.Add(int64(n))
	return n, err
}

type otoPlayback struct {
	player *oto.Player
	reader *trackingReader
	total  int64
	rate   int

	mu     sync.Mutex
	paused bool
	ended  bool
	err    error
	done   chan struct{}
}

// Position is the audio handed to the device minus what it still buffers.
func (pb *otoPlayback) Position() time.Duration {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.ended {
		return BytesToDuration(pb.total, pb.rate, outputChannels)
	}
	played := pb.reader.read.Load() - int64(pb.player.BufferedSize())
	if played < 0 {
		played = 0
	}
	return BytesToDuration(played, pb.rate, outputChannels)
}

func (pb *otoPlayback) Pause() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.ended || pb.paused {
		return nil
	}
	pb.player.Pause()
	pb.paused = true
	return nil
}

func (pb *otoPlayback) Resume() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.ended || !pb.paused {
		return nil
	}
	pb.player.Play()
	pb.paused = false
	return nil
}

func (pb *otoPlayback) Stop() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.endLocked(nil)
}

func (pb *otoPlayback) Done() <-chan struct{} { return pb.done }

func (pb *otoPlayback) Err() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.err
}

func (pb *otoPlayback) endLocked(err error) {
	if pb.ended {
		return
	}
	pb.ended = true
	pb.err = err
	pb.player.Pause()
	if cerr := pb.player.Close(); cerr != nil && pb.err == nil {
		pb.err = cerr
	}
	close(pb.done)
}

func (pb *otoPlayback) monitor(ctx context.Context) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-pb.done:
			return
		case <-ctx.Done():
			pb.Stop()
			return
		case <-ticker.C:
			pb.mu.Lock()
			if pb.ended {
				pb.mu.Unlock()
				return
			}
			if err := pb.player.Err(); err != nil {
				pb.endLocked(err)
				pb.mu.Unlock()
				return
			}
			drained := pb.reader.read.Load() >= pb.total && pb.player.BufferedSize() == 0
			if !pb.paused && drained && !pb.player.IsPlaying() {
				pb.endLocked(nil)
			}
			pb.mu.Unlock()
		}
	}
}
