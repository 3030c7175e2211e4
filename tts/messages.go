package tts

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/internal/queue"
	"github.com/dgnsrekt/readaloud/tts/align"
)

// Messages for Bubble Tea communication between the controller and the UI.

// BoundaryMsg reports an applied word boundary in the spoken text.
type BoundaryMsg struct {
	Offset int
	Length int
}

// HighlightMsg reports the highlighted range. Cleared is set when the
// highlight was removed.
type HighlightMsg struct {
	Range   align.Range
	Cleared bool
}

// StateChangedMsg indicates the playback state has changed.
type StateChangedMsg struct {
	State     StateType
	Timestamp time.Time
}

// ErrorMsg indicates an error surfaced by the controller.
type ErrorMsg struct {
	Kind    ErrorKind
	Message string
}

// SpeakErrorMsg is returned by SpeakCmd when a session could not start.
type SpeakErrorMsg struct {
	Err error
}

// Bridge forwards controller events to send in the order they happened.
// Controller handlers run under the controller lock, so events are queued and
// delivered from a separate goroutine. Calling the returned function detaches
// the handlers and stops delivery.
func Bridge(c *Controller, send func(tea.Msg)) (stop func()) {
	events := queue.New[tea.Msg](0)
	push := func(msg tea.Msg) {
		if err := events.Enqueue(msg); err != nil {
			log.Debug("dropping read-aloud event", "err", err)
		}
	}

	c.OnBoundary(func(offset, length int) {
		push(BoundaryMsg{Offset: offset, Length: length})
	})
	c.OnStateChange(func(st StateType) {
		push(StateChangedMsg{State: st, Timestamp: time.Now()})
	})
	c.OnError(func(kind ErrorKind, msg string) {
		push(ErrorMsg{Kind: kind, Message: msg})
	})
	c.SetHighlighter(align.HighlighterFunc(func(r align.Range) {
		push(HighlightMsg{Range: r, Cleared: r.IsZero()})
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, err := events.Dequeue()
			if err != nil {
				return
			}
			send(msg)
		}
	}()

	return func() {
		c.OnBoundary(nil)
		c.OnStateChange(nil)
		c.OnError(nil)
		c.SetHighlighter(nil)
		_ = events.Close()
		<-done
	}
}

// Commands for async controller operations.

// SpeakCmd starts a session for req.
func SpeakCmd(ctx context.Context, c *Controller, req PlaybackRequest) tea.Cmd {
	return func() tea.Msg {
		if err := c.Speak(ctx, req); err != nil {
			return SpeakErrorMsg{Err: err}
		}
		return nil
	}
}

// TogglePauseCmd pauses a playing session or resumes a paused one.
func TogglePauseCmd(c *Controller) tea.Cmd {
	return func() tea.Msg {
		var err error
		switch c.State() {
		case StatePlaying:
			err = c.Pause()
		case StatePaused:
			err = c.Resume()
		}
		if err != nil {
			return ErrorMsg{Kind: KindOf(err), Message: err.Error()}
		}
		return nil
	}
}

// StopCmd stops the active session.
func StopCmd(c *Controller) tea.Cmd {
	return func() tea.Msg {
		c.Stop()
		return nil
	}
}
