package network

import (
	"time"

	"github.com/dgnsrekt/readaloud/tts"
)

// MarkCursor walks timing marks forward only. A playback position that moves
// backwards never rewinds it.
type MarkCursor struct {
	marks []tts.TimingMark
	idx   int
}

// NewMarkCursor creates a cursor positioned before the first mark.
func NewMarkCursor(marks []tts.TimingMark) *MarkCursor {
	return &MarkCursor{marks: marks, idx: -1}
}

// Advance moves to the last mark at or before pos. It returns that mark and
// true only when the cursor moved.
func (c *MarkCursor) Advance(pos time.Duration) (tts.TimingMark, bool) {
	next := c.idx
	for next+1 < len(c.marks) && c.marks[next+1].Time() <= pos {
		next++
	}
	if next == c.idx {
		return tts.TimingMark{}, false
	}
	c.idx = next
	return c.marks[next], true
}

// Index returns the current mark index, or -1 before the first mark.
func (c *MarkCursor) Index() int { return c.idx }

// Done reports whether the last mark has been reached.
func (c *MarkCursor) Done() bool { return c.idx == len(c.marks)-1 }
