package local

import (
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/tts"
	"github.com/dgnsrekt/readaloud/tts/markup"
)

// DefaultBinaries are tried in order when no engine binary is configured.
var DefaultBinaries = []string{"espeak-ng", "espeak", "say"}

// ExecEngine speaks by running a command-line synthesizer. Text is written
// to the process's stdin. Word boundaries are estimated from the speaking
// rate because these programs do not report them.
type ExecEngine struct {
	binary         string
	path           string
	wordsPerMinute int

	mu  sync.Mutex
	cur *execRun
}

type execRun struct {
	cmd      *exec.Cmd
	u        *Utterance
	clock    *pauseClock
	canceled bool
	done     chan struct{}
	stderr   bytes.Buffer
}

// NewExecEngine finds binary on PATH (or the first available default when
// binary is empty). The engine is unavailable if nothing is found.
func NewExecEngine(binary string, wordsPerMinute int) *ExecEngine {
	e := &ExecEngine{binary: binary, wordsPerMinute: wordsPerMinute}

	candidates := DefaultBinaries
	if binary != "" {
		candidates = []string{binary}
	}
	for _, c := range candidates {
		if p, err := exec.LookPath(c); err == nil {
			e.binary = c
			e.path = p
			break
		}
	}
	if e.path == "" {
		log.Debug("no speech engine found", "candidates", candidates)
	}
	return e
}

// Name returns the engine binary name.
func (e *ExecEngine) Name() string {
	if e.binary == "" {
		return "exec"
	}
	return filepath.Base(e.binary)
}

// Available reports whether the binary was found.
func (e *ExecEngine) Available() bool { return e.path != "" }

// SupportsSSML reports whether the binary is told to parse markup.
func (e *ExecEngine) SupportsSSML() bool { return e.isEspeak() }

// BoundaryPrecision is always estimated for subprocess engines.
func (e *ExecEngine) BoundaryPrecision() tts.BoundaryPrecision { return tts.BoundaryEstimated }

func (e *ExecEngine) isEspeak() bool {
	return strings.HasPrefix(e.Name(), "espeak")
}

// args builds the command line for the utterance.
func (e *ExecEngine) args(u *Utterance) []string {
	wpm := e.wordsPerMinute
	if wpm <= 0 {
		wpm = 175
	}
	if u.Rate > 0 {
		wpm = int(float64(wpm) * u.Rate)
	}

	switch {
	case e.isEspeak():
		args := []string{"-s", strconv.Itoa(wpm), "--stdin"}
		if markup.IsSSML(u.Text) {
			args = append(args, "-m")
		}
		if v := u.Voice; v != "" {
			args = append(args, "-v", v)
		} else if u.Language != "" {
			args = append(args, "-v", strings.ToLower(u.Language))
		}
		if u.Pitch > 0 {
			args = append(args, "-p", strconv.Itoa(clampInt(int(u.Pitch*50), 0, 99)))
		}
		if u.Volume > 0 {
			args = append(args, "-a", strconv.Itoa(clampInt(int(u.Volume*100), 0, 200)))
		}
		return args
	case e.Name() == "say":
		args := []string{"-r", strconv.Itoa(wpm), "-f", "-"}
		if u.Voice != "" {
			args = append(args, "-v", u.Voice)
		}
		return args
	default:
		return nil
	}
}

// Speak starts the synthesizer. Any utterance in progress is canceled.
func (e *ExecEngine) Speak(u *Utterance) error {
	if !e.Available() {
		return fmt.Errorf("%s: %w", e.Name(), tts.ErrProviderUnavailable)
	}

	e.mu.Lock()
	if e.cur != nil {
		e.cancelLocked()
	}

	cmd := exec.Command(e.path, e.args(u)...)
	cmd.Stdin = strings.NewReader(u.Text)
	run := &execRun{cmd: cmd, u: u, done: make(chan struct{})}
	cmd.Stderr = &run.stderr

	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("%s: failed to start: %w", e.Name(), err)
	}
	run.clock = newPauseClock()
	e.cur = run
	e.mu.Unlock()

	log.Debug("speech engine started", "engine", e.Name(), "pid", cmd.Process.Pid, "chars", len(u.Text))

	go e.announce(run, utteranceMarks(u.Text, e.wordsPerMinute, u.Rate))
	go e.wait(run)
	return nil
}

// utteranceMarks estimates word boundaries over the spoken words of text.
// Offsets index text itself, so words read from markup are reported at
// their position in the markup.
func utteranceMarks(text string, wordsPerMinute int, rate float64) []WordMark {
	if !markup.IsSSML(text) {
		return EstimateBoundaries(text, wordsPerMinute, rate)
	}
	sp := markup.NewSpoken(text)
	marks := EstimateBoundaries(sp.Text(), wordsPerMinute, rate)
	out := marks[:0]
	for _, m := range marks {
		if off, n, ok := sp.ToSource(m.Offset, m.Length); ok {
			m.Offset, m.Length = off, n
			out = append(out, m)
		}
	}
	return out
}

func (e *ExecEngine) wait(run *execRun) {
	err := run.cmd.Wait()
	close(run.done)

	e.mu.Lock()
	if e.cur == run {
		e.cur = nil
	}
	canceled := run.canceled
	e.mu.Unlock()

	if canceled {
		return
	}
	if err != nil {
		msg := strings.TrimSpace(run.stderr.String())
		if run.u.OnError != nil {
			run.u.OnError(fmt.Errorf("%s exited: %w: %s", e.Name(), err, msg))
		}
		return
	}
	if run.u.OnEnd != nil {
		run.u.OnEnd()
	}
}

func (e *ExecEngine) announce(run *execRun, marks []WordMark) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for _, m := range marks {
		for run.clock.Elapsed() < m.At {
			select {
			case <-run.done:
				return
			case <-ticker.C:
			}
		}

		e.mu.Lock()
		canceled := run.canceled
		e.mu.Unlock()
		if canceled {
			return
		}
		if run.u.OnBoundary != nil {
			run.u.OnBoundary(m.Offset, m.Length)
		}
	}
}

// Pause suspends the synthesizer process.
func (e *ExecEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return nil
	}
	if err := suspendProcess(e.cur.cmd.Process); err != nil {
		return fmt.Errorf("%s: pause: %w", e.Name(), err)
	}
	e.cur.clock.Pause()
	return nil
}

// Resume continues a suspended synthesizer process.
func (e *ExecEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return nil
	}
	if err := resumeProcess(e.cur.cmd.Process); err != nil {
		return fmt.Errorf("%s: resume: %w", e.Name(), err)
	}
	e.cur.clock.Resume()
	return nil
}

// Cancel kills the synthesizer process.
func (e *ExecEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
}

func (e *ExecEngine) cancelLocked() {
	if e.cur == nil {
		return
	}
	e.cur.canceled = true
	if err := e.cur.cmd.Process.Kill(); err != nil {
		log.Debug("kill speech engine", "err", err)
	}
	e.cur = nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// pauseClock measures elapsed time excluding paused intervals.
type pauseClock struct {
	mu       sync.Mutex
	start    time.Time
	pausedAt time.Time
	paused   time.Duration
}

func newPauseClock() *pauseClock {
	return &pauseClock{start: time.Now()}
}

func (c *pauseClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if !c.pausedAt.IsZero() {
		now = c.pausedAt
	}
	return now.Sub(c.start) - c.paused
}

func (c *pauseClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pausedAt.IsZero() {
		c.pausedAt = time.Now()
	}
}

func (c *pauseClock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pausedAt.IsZero() {
		c.paused += time.Since(c.pausedAt)
		c.pausedAt = time.Time{}
	}
}
