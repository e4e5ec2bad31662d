// internal/tui/monitor.go
// Package tui implements the interactive run monitor.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mwiater/detrun/internal/launcher"
	"github.com/mwiater/detrun/internal/runconfig"
	"github.com/mwiater/detrun/internal/util"
)

// maxLines bounds the output kept for the viewport.
const maxLines = 500

type lineMsg string

type outputClosedMsg struct{}

type doneMsg struct {
	result launcher.Result
	err    error
}

type tickMsg time.Time

// model is the Bubble Tea model of the run monitor.
type model struct {
	name       string
	command    string
	lines      <-chan string
	cancel     context.CancelFunc
	spinner    spinner.Model
	viewport   viewport.Model
	output     []string
	started    time.Time
	now        time.Time
	width      int
	height     int
	cancelling bool
	done       bool
	result     launcher.Result
	err        error
}

func newModel(name string, argv []string, lines <-chan string, cancel context.CancelFunc) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	now := time.Now()
	return &model{
		name:     name,
		command:  runconfig.QuoteArgs(argv),
		lines:    lines,
		cancel:   cancel,
		spinner:  s,
		viewport: viewport.New(100, 10),
		started:  now,
		now:      now,
	}
}

func waitForLine(lines <-chan string) tea.Cmd {
	return func() tea.Msg {
		line, ok := <-lines
		if !ok {
			return outputClosedMsg{}
		}
		return lineMsg(line)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the spinner, the clock and the output reader.
func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd(), waitForLine(m.lines))
}

// Update handles key presses, output lines and the end of the run.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.done {
				return m, tea.Quit
			}
			if !m.cancelling {
				m.cancelling = true
				if m.cancel != nil {
					m.cancel()
				}
			}
			return m, nil
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		headerHeight := 3
		footerHeight := 2
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 1)
		m.refresh()
		return m, nil

	case lineMsg:
		m.output = append(m.output, string(msg))
		if len(m.output) > maxLines {
			m.output = m.output[len(m.output)-maxLines:]
		}
		m.refresh()
		return m, waitForLine(m.lines)

	case outputClosedMsg:
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case doneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		m.now = time.Now()
		return m, tea.Quit

	default:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
}

func (m *model) refresh() {
	content := strings.Join(m.output, "\n")
	if m.viewport.Width > 1 {
		// leave room for the ellipsis
		content = util.TruncateToWidth(content, m.viewport.Width-1)
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

var (
	titleStyle  = lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	cancelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// View renders the header, the output tail and the status line.
func (m *model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("detrun: " + m.name))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(util.TruncateRunes(m.command, max(m.width-1, 1))))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.status())
	return b.String()
}

func (m *model) elapsed() time.Duration {
	return m.now.Sub(m.started).Truncate(time.Second)
}

func (m *model) status() string {
	switch {
	case m.done && m.err == nil:
		return okStyle.Render(fmt.Sprintf("finished in %s", m.elapsed()))
	case m.done:
		return failStyle.Render(fmt.Sprintf("failed after %s: %v", m.elapsed(), m.err))
	case m.cancelling:
		return fmt.Sprintf("%s %s", m.spinner.View(), cancelStyle.Render(fmt.Sprintf("stopping %s... %s", m.name, m.elapsed())))
	default:
		return fmt.Sprintf("%s running %s... %s %s", m.spinner.View(), m.name, m.elapsed(), mutedStyle.Render("(q to stop)"))
	}
}

// Run starts rc through l and shows its progress until it exits. The
// returned result and error are the launcher's.
func Run(ctx context.Context, l *launcher.Launcher, name string, rc runconfig.RunConfig) (launcher.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := NewLineWriter(256)
	m := newModel(name, l.Argv(rc), w.Lines(), cancel)
	p := tea.NewProgram(m, tea.WithAltScreen())

	finished := make(chan doneMsg, 1)
	go func() {
		res, err := l.WithOutput(w, w).Run(ctx, name, rc)
		_ = w.Close()
		finished <- doneMsg{result: res, err: err}
		p.Send(doneMsg{result: res, err: err})
	}()

	_, uiErr := p.Run()
	// the UI can stop before the run does, e.g. on a terminal error
	cancel()
	done := <-finished
	if uiErr != nil && done.err == nil {
		return done.result, fmt.Errorf("run monitor: %w", uiErr)
	}
	return done.result, done.err
}
