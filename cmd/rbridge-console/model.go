package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rbridge/pkg/bridge"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	inputStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	echoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// evaluator is the slice of the bridge session the console uses.
// *bridge.Session satisfies it; tests substitute a stub.
type evaluator interface {
	IsComplete(code string) (bridge.ProbeResult, error)
	Eval(code string) error
	EngineVersion() (string, error)
}

// submitResultMsg reports the outcome of one submitted fragment.
type submitResultMsg struct {
	code  string
	probe bridge.ProbeResult
	out   []string
	err   error
}

// versionMsg carries the engine's version banner.
type versionMsg string

// Model is the Bubble Tea model for the rbridge console.
type Model struct {
	ses  evaluator
	sink *captureSink

	input    textinput.Model
	view     viewport.Model
	lines    []string
	pending  []string
	busy     bool
	ready    bool
	fatalErr error
}

// newModel creates the console model around a live session.
func newModel(ses evaluator, sink *captureSink) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Focus()
	return Model{ses: ses, sink: sink, input: ti}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, versionCmd(m.ses))
}

// versionCmd fetches the engine banner in the background.
func versionCmd(ses evaluator) tea.Cmd {
	return func() tea.Msg {
		v, err := ses.EngineVersion()
		if err != nil {
			return versionMsg("")
		}
		return versionMsg(v)
	}
}

// submitCmd probes the accumulated fragment and, when complete,
// evaluates it while capturing echoed output.
func submitCmd(ses evaluator, sink *captureSink, code string) tea.Cmd {
	return func() tea.Msg {
		probe, err := ses.IsComplete(code)
		if err != nil {
			return submitResultMsg{code: code, err: err}
		}
		if probe.State != bridge.Complete {
			return submitResultMsg{code: code, probe: probe}
		}
		sink.Reset()
		err = ses.Eval(code)
		return submitResultMsg{code: code, probe: probe, out: sink.Lines(), err: err}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.view = viewport.New(msg.Width, msg.Height-2)
		m.input.Width = msg.Width - 4
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			line := m.input.Value()
			m.input.SetValue("")
			m.pending = append(m.pending, line)
			code := strings.Join(m.pending, "\n")
			if strings.TrimSpace(code) == "" {
				m.pending = nil
				return m, nil
			}
			m.appendLine(inputStyle.Render(m.prompt() + line))
			m.busy = true
			return m, submitCmd(m.ses, m.sink, code)
		}

	case versionMsg:
		if msg != "" {
			m.appendLine(titleStyle.Render(string(msg)))
		}
		return m, nil

	case submitResultMsg:
		m.busy = false
		return m.applyResult(msg), nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// applyResult folds a completed submission into the transcript.
func (m Model) applyResult(msg submitResultMsg) Model {
	switch {
	case msg.err != nil:
		m.pending = nil
		m.appendLine(failStyle.Render(msg.err.Error()))

	case msg.probe.State == bridge.Incomplete:
		// Keep accumulating; the next line joins the fragment.

	case msg.probe.State == bridge.Unrecoverable:
		m.pending = nil
		m.appendLine(failStyle.Render(fmt.Sprintf(
			"parse error at %d:%d: %s", msg.probe.Line, msg.probe.Column, msg.probe.Offending)))

	default:
		m.pending = nil
		for _, l := range msg.out {
			m.appendLine(echoStyle.Render(l))
		}
	}
	return m
}

func (m *Model) prompt() string {
	if len(m.pending) > 1 {
		return "+ "
	}
	return "> "
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.view.SetContent(strings.Join(m.lines, "\n"))
	m.view.GotoBottom()
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "starting rbridge console..."
	}
	status := ""
	if m.busy {
		status = statusStyle.Render(" running")
	} else if len(m.pending) > 0 {
		status = statusStyle.Render(" (continuation)")
	}
	m.input.Prompt = m.prompt()
	return m.view.View() + "\n" + m.input.View() + status
}
