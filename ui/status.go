package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/readaloud/tts"
)

// StatusDisplay tracks what the status bar shows about the session.
type StatusDisplay struct {
	state    tts.StateType
	source   tts.Source
	provider string

	spokenEnd int // rune offset just past the last spoken word
	textLen   int // rune length of the session text

	errorKind    tts.ErrorKind
	errorMessage string
}

// NewStatusDisplay creates an idle status display.
func NewStatusDisplay(provider string) *StatusDisplay {
	return &StatusDisplay{state: tts.StateIdle, provider: provider}
}

// StartSession resets progress for a session of textLen runes.
func (s *StatusDisplay) StartSession(source tts.Source, textLen int) {
	s.source = source
	s.textLen = textLen
	s.spokenEnd = 0
	s.errorMessage = ""
}

// UpdateFromMessage updates the display from a controller message.
func (s *StatusDisplay) UpdateFromMessage(msg any) {
	switch m := msg.(type) {
	case tts.StateChangedMsg:
		s.state = m.State
		if m.State == tts.StateCompleted {
			s.spokenEnd = s.textLen
		}

	case tts.BoundaryMsg:
		if end := m.Offset + m.Length; end > s.spokenEnd {
			s.spokenEnd = end
		}

	case tts.ErrorMsg:
		s.errorKind = m.Kind
		s.errorMessage = m.Message

	case tts.SpeakErrorMsg:
		s.errorKind = tts.KindOf(m.Err)
		s.errorMessage = m.Err.Error()
	}
}

// State returns the last reported state.
func (s *StatusDisplay) State() tts.StateType { return s.state }

// Progress returns the spoken fraction of the session text.
func (s *StatusDisplay) Progress() float64 {
	if s.textLen <= 0 {
		return 0
	}
	p := float64(s.spokenEnd) / float64(s.textLen)
	if p > 1 {
		return 1
	}
	return p
}

// CompactStatus returns a compact status string for the status bar.
func (s *StatusDisplay) CompactStatus() string {
	icon, color := s.stateIcon(), s.stateColor()
	status := lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("%s %s", icon, s.state))

	var details []string
	if s.provider != "" {
		details = append(details, s.provider)
	}
	if s.source != "" {
		details = append(details, string(s.source))
	}
	if len(details) > 0 {
		status += lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).
			Render(" · " + strings.Join(details, " · "))
	}
	return status
}

// ErrorLine returns the last error truncated to width, or "".
func (s *StatusDisplay) ErrorLine(width int) string {
	if s.errorMessage == "" {
		return ""
	}
	line := fmt.Sprintf("%s: %s", s.errorKind, s.errorMessage)
	if width > 4 {
		line = truncate.StringWithTail(line, uint(width), "…") //nolint:gosec
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Render(line)
}

// ProgressBar returns a visual progress bar.
func (s *StatusDisplay) ProgressBar(width int) string {
	if s.textLen <= 0 || width < 10 {
		return ""
	}

	filledWidth := int(s.Progress() * float64(width))
	if filledWidth > width {
		filledWidth = width
	}

	filled := strings.Repeat("█", filledWidth)
	empty := strings.Repeat("░", width-filledWidth)

	filledStyle := lipgloss.NewStyle().Foreground(s.stateColor())
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#333333"))
	return filledStyle.Render(filled) + emptyStyle.Render(empty)
}

func (s *StatusDisplay) stateColor() lipgloss.Color {
	switch s.state {
	case tts.StatePlaying:
		return lipgloss.Color("#00FF00") // Green
	case tts.StatePaused:
		return lipgloss.Color("#FFFF00") // Yellow
	case tts.StateResolving:
		return lipgloss.Color("#00AAFF") // Blue
	case tts.StateErrored:
		return lipgloss.Color("#FF0000") // Red
	case tts.StateStopped:
		return lipgloss.Color("#FF8800") // Orange
	default:
		return lipgloss.Color("#888888") // Gray
	}
}

func (s *StatusDisplay) stateIcon() string {
	switch s.state {
	case tts.StatePlaying:
		return "▶"
	case tts.StatePaused:
		return "⏸"
	case tts.StateResolving:
		return "⟳"
	case tts.StateErrored:
		return "✗"
	case tts.StateStopped:
		return "◼"
	case tts.StateCompleted:
		return "✓"
	default:
		return "○"
	}
}
