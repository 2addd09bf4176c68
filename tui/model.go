package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/siherrmann/ragbot/model"
)

// ChatPort is the TUI-facing subset of the knowledge base.
type ChatPort interface {
	Chat(ctx context.Context, message string) model.ChatResponse
}

type answerMsg struct {
	question string
	response model.ChatResponse
}

type entry struct {
	human   string
	answer  string
	sources []string
}

// Model is the Bubble Tea model of the chat client.
type Model struct {
	ctx      context.Context
	service  ChatPort
	botName  string
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	entries  []entry
	waiting  bool
	ready    bool
	status   string
}

// New creates a chat model. Answers are requested with ctx.
func New(ctx context.Context, service ChatPort, botName string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 1000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:      ctx,
		service:  service,
		botName:  botName,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Ctrl+C to quit.",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 1 + 1 + ih + bh // header, status
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-1)
		m.refresh()
		return m, nil

	case answerMsg:
		m.waiting = false
		m.status = "Ctrl+C to quit."
		for i := len(m.entries) - 1; i >= 0; i-- {
			if m.entries[i].human == msg.question && m.entries[i].answer == "" {
				m.entries[i].answer = msg.response.Response
				m.entries[i].sources = msg.response.Sources
				break
			}
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			question := strings.TrimSpace(m.input.Value())
			if question == "" || m.waiting {
				return m, nil
			}
			m.input.Reset()
			m.entries = append(m.entries, entry{human: question})
			m.waiting = true
			m.status = "Thinking..."
			m.refresh()
			return m, tea.Batch(m.ask(question), m.spinner.Tick)
		}
		if msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		return answerMsg{question: question, response: m.service.Chat(m.ctx, question)}
	}
}

// View renders the transcript, the input box and the status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render(m.botName)
	status := statusStyle.Render(m.status)
	if m.waiting {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + transcriptStyle.Render(m.viewport.View()) + "\n" + inputStyle.Render(m.input.View()) + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.entries) == 0 {
		return "Ask " + m.botName + " anything about the ingested documents."
	}

	width := max(20, m.viewport.Width)
	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(humanStyle.Render("You: " + e.human))
		b.WriteString("\n")
		if e.answer == "" {
			b.WriteString(sourceStyle.Render("..."))
			b.WriteString("\n")
			continue
		}
		b.WriteString(lipgloss.NewStyle().Width(width).Render(m.botName + ": " + e.answer))
		b.WriteString("\n")
		if len(e.sources) > 0 {
			b.WriteString(sourceStyle.Render("Sources: " + strings.Join(e.sources, ", ")))
			b.WriteString("\n")
		}
	}
	return b.String()
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	humanStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
