// Package ui is the interactive terminal viewer for a live session.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Session executes prompt commands against the live view
type Session interface {
	Run(cmd Command) error
}

// StatusMsg reports a connection or channel state change
type StatusMsg struct {
	Connected bool
	State     string
}

// RenderMsg carries the text preview of the container after a render
type RenderMsg struct {
	Preview string
}

// ErrorMsg reports a session error
type ErrorMsg struct {
	Err error
}

// commandDoneMsg is emitted when a prompt command finished without error
type commandDoneMsg struct {
	cmd Command
}

// KeyMap defines keyboard shortcuts
type KeyMap struct {
	Submit   key.Binding
	Quit     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
}

var DefaultKeyMap = KeyMap{
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "run"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("pgup", "scroll up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("pgdn", "scroll down"),
	),
}

// Model is the viewer state
type Model struct {
	session Session
	topic   string
	keys    KeyMap

	width    int
	height   int
	spinner  spinner.Model
	viewport viewport.Model
	input    textinput.Model

	connected bool
	state     string
	preview   string
	status    string
	err       error
	quitting  bool
}

// NewModel creates a viewer for topic driving session
func NewModel(topic string, session Session) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = Usage
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{
		session:  session,
		topic:    topic,
		keys:     DefaultKeyMap,
		spinner:  s,
		viewport: viewport.New(80, 20),
		input:    input,
		state:    "closed",
	}
}

// Init starts the spinner
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeLines, 1)
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Submit):
			return m.runPrompt()
		case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case StatusMsg:
		m.connected = msg.Connected
		m.state = msg.State
		return m, nil

	case RenderMsg:
		m.preview = msg.Preview
		m.viewport.SetContent(msg.Preview)
		return m, nil

	case ErrorMsg:
		m.err = msg.Err
		return m, nil

	case commandDoneMsg:
		m.err = nil
		m.status = fmt.Sprintf("%s ok", msg.cmd.Verb)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) runPrompt() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	m.input.Reset()

	c, err := ParseCommand(line)
	if err != nil {
		if err != ErrEmptyCommand {
			m.err = err
		}
		return m, nil
	}
	if c.Verb == VerbQuit {
		m.quitting = true
		return m, tea.Quit
	}

	m.status = fmt.Sprintf("%s %s", c.Verb, c.Selector)
	session := m.session
	return m, func() tea.Msg {
		if err := session.Run(c); err != nil {
			return ErrorMsg{Err: err}
		}
		return commandDoneMsg{cmd: c}
	}
}

// Preview returns the last rendered text
func (m Model) Preview() string {
	return m.preview
}

// View renders the screen
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(m.viewport.View()))
	b.WriteString("\n")
	b.WriteString(m.footer())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter run • pgup/pgdn scroll • ctrl+c quit"))
	return b.String()
}
