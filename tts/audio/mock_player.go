package audio

import (
	"context"
	"sync"
	"time"
)

// MockPlayer implements Player for tests. Playbacks do not advance on their
// own: tests move them with SetPosition and end them with Finish.
type MockPlayer struct {
	mu      sync.Mutex
	plays   []*MockPlayback
	playErr error
	started chan *MockPlayback
}

// NewMockPlayer creates a mock player.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{started: make(chan *MockPlayback, 16)}
}

// SetPlayError makes subsequent Play calls fail with err.
func (m *MockPlayer) SetPlayError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErr = err
}

// Started delivers each playback as it starts.
func (m *MockPlayer) Started() <-chan *MockPlayback {
	return m.started
}

// Plays returns every playback started so far.
func (m *MockPlayer) Plays() []*MockPlayback {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockPlayback(nil), m.plays...)
}

// Play records clip and returns a manually driven playback.
func (m *MockPlayer) Play(ctx context.Context, clip PCM) (Playback, error) {
	m.mu.Lock()
	if m.playErr != nil {
		err := m.playErr
		m.mu.Unlock()
		return nil, err
	}
	pb := &MockPlayback{clip: clip, done: make(chan struct{})}
	m.plays = append(m.plays, pb)
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			pb.Stop()
		case <-pb.done:
		}
	}()

	m.started <- pb
	return pb, nil
}

// MockPlayback is a playback driven by the test.
type MockPlayback struct {
	clip PCM

	mu       sync.Mutex
	position time.Duration
	paused   bool
	pauses   int
	resumes  int
	stops    int
	ended    bool
	err      error
	done     chan struct{}
}

// Clip returns the audio passed to Play.
func (pb *MockPlayback) Clip() PCM { return pb.clip }

// SetPosition moves the playback clock.
func (pb *MockPlayback) SetPosition(d time.Duration) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.position = d
}

// Finish ends playback as if the clip ran out, or failed with err.
func (pb *MockPlayback) Finish(err error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.endLocked(err)
}

// Paused reports whether the playback is paused.
func (pb *MockPlayback) Paused() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.paused
}

// Counts returns how often Pause, Resume and Stop were called.
func (pb *MockPlayback) Counts() (pauses, resumes, stops int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.pauses, pb.resumes, pb.stops
}

func (pb *MockPlayback) Position() time.Duration {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.position
}

func (pb *MockPlayback) Pause() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.pauses++
	pb.paused = true
	return nil
}

func (pb *MockPlayback) Resume() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.resumes++
	pb.paused = false
	return nil
}

func (pb *MockPlayback) Stop() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.stops++
	pb.endLocked(nil)
}

func (pb *MockPlayback) Done() <-chan struct{} { return pb.done }

func (pb *MockPlayback) Err() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.err
}

func (pb *MockPlayback) endLocked(err error) {
	if pb.ended {
		return
	}
	pb.ended = true
	pb.err = err
	close(pb.done)
}
