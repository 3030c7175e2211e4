// Package ui provides the read-along terminal view: the item text with the
// spoken word highlighted, and playback controls.
package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"golang.org/x/net/html"

	"github.com/dgnsrekt/readaloud/tts"
	"github.com/dgnsrekt/readaloud/tts/align"
)

const (
	statusBarHeight = 2
	keyEsc          = "esc"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Run shows the read-along view and speaks req until the user quits. The
// controller is shut down before Run returns.
func Run(ctx context.Context, cfg Config, ctrl *tts.Controller, provider string, req tts.PlaybackRequest) error {
	log.Debug("starting read-along view", "title", cfg.Title, "provider", provider)

	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}

	p := tea.NewProgram(newModel(ctx, cfg, ctrl, provider, req), opts...)
	stop := tts.Bridge(ctrl, p.Send)
	_, err := p.Run()
	stop()
	ctrl.Shutdown()
	return err
}

type model struct {
	cfg  Config
	ctx  context.Context
	ctrl *tts.Controller
	req  tts.PlaybackRequest

	status   *StatusDisplay
	spinner  spinner.Model
	viewport viewport.Model
	style    lipgloss.Style

	ready      bool
	width      int
	highlight  align.Range
	generation uint64
	showHelp   bool
}

func newModel(ctx context.Context, cfg Config, ctrl *tts.Controller, provider string, req tts.PlaybackRequest) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return model{
		cfg:     cfg,
		ctx:     ctx,
		ctrl:    ctrl,
		req:     req,
		status:  NewStatusDisplay(provider),
		spinner: sp,
		style:   HighlightStyle(cfg.HighlightColor),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tts.SpeakCmd(m.ctx, m.ctrl, m.req))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := msg.Height - statusBarHeight - 1
		if m.cfg.Title != "" {
			height--
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refreshContent()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", keyEsc:
			m.ctrl.Stop()
			return m, tea.Quit
		case " ":
			return m, tts.TogglePauseCmd(m.ctrl)
		case "s":
			return m, tts.StopCmd(m.ctrl)
		case "r":
			m.highlight = align.Range{}
			m.refreshContent()
			return m, tts.SpeakCmd(m.ctx, m.ctrl, m.req)
		case "?":
			m.showHelp = !m.showHelp
			return m, nil
		}

	case tts.StateChangedMsg:
		m.status.UpdateFromMessage(msg)
		if msg.State == tts.StatePlaying {
			m.startSession()
		}
		if msg.State == tts.StateIdle && m.cfg.QuitWhenDone && m.generation > 0 {
			return m, tea.Quit
		}
		if msg.State == tts.StateResolving {
			cmds = append(cmds, m.spinner.Tick)
		}

	case tts.BoundaryMsg, tts.ErrorMsg, tts.SpeakErrorMsg:
		m.status.UpdateFromMessage(msg)

	case tts.HighlightMsg:
		if msg.Cleared {
			m.highlight = align.Range{}
		} else {
			m.highlight = msg.Range
		}
		m.refreshContent()

	case spinner.TickMsg:
		if m.status.State() == tts.StateResolving || m.generation == 0 {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// startSession picks up the session the controller just started.
func (m *model) startSession() {
	sess, ok := m.ctrl.Session()
	if !ok || sess.Generation == m.generation {
		return
	}
	m.generation = sess.Generation
	m.status.StartSession(sess.Resolved.Source, align.RuneLen(sess.Text))
	log.Debug("read-along session", "session", sess.ID, "highlighting", sess.Highlighting())
}

func (m *model) refreshContent() {
	if !m.ready {
		return
	}
	width := m.cfg.Width
	if width <= 0 || width > m.viewport.Width {
		width = m.viewport.Width
	}
	m.viewport.SetContent(m.render(width))
}

func (m model) render(width int) string {
	if m.req.Target != nil {
		return RenderContent(m.req.Target, m.highlight, m.renderStyle, width)
	}
	// Without a target there is nothing to highlight; show the request text.
	return RenderContent(textNode(m.req.Text), align.Range{}, m.renderStyle, width)
}

func (m model) View() string {
	if !m.ready {
		return m.spinner.View() + " loading…"
	}

	var b strings.Builder
	if m.cfg.Title != "" {
		b.WriteString(titleStyle.Render(m.cfg.Title))
		b.WriteByte('\n')
	}
	b.WriteString(m.viewport.View())
	b.WriteByte('\n')
	b.WriteString(m.statusBarView())
	return b.String()
}

func (m model) statusBarView() string {
	var line strings.Builder
	if m.status.State() == tts.StateResolving {
		line.WriteString(m.spinner.View())
		line.WriteByte(' ')
	}
	line.WriteString(m.status.CompactStatus())
	if bar := m.status.ProgressBar(min(30, m.width/3)); bar != "" {
		line.WriteString("  ")
		line.WriteString(bar)
	}

	second := m.status.ErrorLine(m.width)
	if m.showHelp {
		second = helpStyle.Render("space pause/resume • s stop • r replay • ↑/↓ scroll • q quit")
	} else if second == "" {
		second = helpStyle.Render("? help")
	}
	return line.String() + "\n" + second
}

func textNode(s string) *html.Node {
	root := &html.Node{Type: html.ElementNode, Data: "div"}
	root.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	return root
}

// renderStyle adapts the variadic lipgloss Render to a single-string renderer.
func (m model) renderStyle(s string) string { return m.style.Render(s) }
