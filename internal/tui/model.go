package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docchat/internal/domain"
	"docchat/internal/service"
	"docchat/internal/textutil"
)

// ChatPort is the TUI-facing subset of the document chat service.
type ChatPort interface {
	Answer(ctx context.Context, id, question string) (*service.Answer, error)
}

// Session describes the document the TUI chats about.
type Session struct {
	ID            string
	Filename      string
	Summary       domain.Summary
	SummaryFailed bool
}

type exchange struct {
	question  string
	answer    string
	grounding []domain.SearchResult
	err       error
}

type answeredMsg struct {
	question string
	answer   *service.Answer
	err      error
}

// Model is the Bubble Tea model for the document chat.
type Model struct {
	port        ChatPort
	session     Session
	timeout     time.Duration
	input       textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	exchanges   []exchange
	status      string
	pending     bool
	showSources bool
	ready       bool
	width       int
}

// New creates a chat model over an ingested session. timeout bounds each
// answer; zero means no extra bound beyond the service's own.
func New(port ChatPort, sess Session, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about the document and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	status := "Ready. Tab toggles sources, Ctrl+C quits."
	if sess.SummaryFailed {
		status = "Analysis unavailable, chat still works. Tab toggles sources, Ctrl+C quits."
	}
	return Model{
		port:     port,
		session:  sess,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   status,
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, rh := conversationBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := lipgloss.Height(m.renderHeader()) + 1 + qh + 1 + 1
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil
	case answeredMsg:
		m.pending = false
		ex := exchange{question: msg.question, err: msg.err}
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			ex.answer = msg.answer.Text
			ex.grounding = msg.answer.Grounding
			m.status = fmt.Sprintf("Answered from %d passages.", len(ex.grounding))
		}
		m.exchanges = append(m.exchanges, ex)
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil
	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.input.SetValue("")
			m.pending = true
			m.status = "Thinking..."
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case "tab":
			m.showSources = !m.showSources
			m.refresh()
			return m, nil
		case "pgup", "pgdown":
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
	port, id, timeout := m.port, m.session.ID, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		ans, err := port.Answer(ctx, id, question)
		return answeredMsg{question: question, answer: ans, err: err}
	}
}

// View renders the header, conversation, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	status := m.status
	if m.pending {
		status = m.spinner.View() + " " + status
	}
	return m.renderHeader() + "\n" +
		conversationBoxStyle.Render(m.viewport.View()) + "\n" +
		queryBoxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(status)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderConversation())
}

func (m Model) renderHeader() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("docchat: " + m.session.Filename))
	width := max(20, m.width-2)
	if s := m.session.Summary.Synopsis; s != "" {
		b.WriteString("\n" + dimStyle.Width(width).Render(s))
	}
	if terms := m.session.Summary.KeyTerms; len(terms) > 0 {
		names := make([]string, len(terms))
		for i, t := range terms {
			names[i] = t.Term
		}
		b.WriteString("\n" + termStyle.Width(width).Render("Key terms: "+strings.Join(names, ", ")))
	}
	return b.String()
}

func (m Model) renderConversation() string {
	if len(m.exchanges) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, ex := range m.exchanges {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: ") + ex.question + "\n")
		if ex.err != nil {
			b.WriteString(errorStyle.Render("Error: " + ex.err.Error()))
			continue
		}
		b.WriteString(answerStyle.Render("Answer: ") + ex.answer)
		if m.showSources {
			for j, r := range ex.grounding {
				b.WriteString(fmt.Sprintf("\n  [%d] offset=%d score=%.3f\n  ", j+1, r.Passage.Offset, r.Score))
				b.WriteString(highlightBestSentence(r.Passage.Text, ex.question))
			}
		}
	}
	return b.String()
}

var (
	conversationBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	titleStyle           = lipgloss.NewStyle().Bold(true)
	dimStyle             = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	termStyle            = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	questionStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// highlightBestSentence emphasises the sentence of text sharing the most
// tokens with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := textutil.SplitSentences(text)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	qTokens := textutil.TokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := textutil.OverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	out := make([]string, len(sentences))
	for i, s := range sentences {
		if i == bestIdx && bestScore > 0 {
			out[i] = highlightStyle.Render(s)
		} else {
			out[i] = s
		}
	}
	return strings.Join(out, " ")
}
