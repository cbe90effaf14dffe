package cli

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/aiaio-go/internal/client"
	"github.com/raphaelgruber/aiaio-go/internal/stream"
)

// Theme holds the color scheme for the reply display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// sendFunc starts a streamed request and delivers its events.
type sendFunc func(ctx context.Context, onEvent func(client.Event) error) (string, error)

// eventMsg carries one streamed event
type eventMsg client.Event

// replyDoneMsg is sent when the request returns
type replyDoneMsg struct {
	conversationID string
	err            error
}

// stopSentMsg reports the outcome of a stop request
type stopSentMsg struct{ err error }

// replyModel is the bubbletea model for a streaming reply.
type replyModel struct {
	spinner spinner.Model
	theme   Theme
	baseURL string
	stop    func() error

	content   string
	reasoning string
	notes     []string
	streamErr string

	conversationID string
	stopping       bool
	done           bool
	quitting       bool
	err            error
}

func newReplyModel(baseURL string, stop func() error) replyModel {
	return replyModel{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		theme:   defaultTheme,
		baseURL: baseURL,
		stop:    stop,
	}
}

// Init starts the spinner.
func (m replyModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages and returns the updated model.
func (m replyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		if msg.String() != "ctrl+c" {
			return m, nil
		}
		// First press stops the reply, the second abandons it.
		if !m.done && !m.stopping && m.stop != nil {
			m.stopping = true
			return m, sendStop(m.stop)
		}
		m.quitting = true
		return m, tea.Quit

	case stopSentMsg:
		if msg.err != nil {
			m.notes = append(m.notes, fmt.Sprintf("stop failed: %v", msg.err))
			m.stopping = false
		}
		return m, nil

	case eventMsg:
		m = m.apply(client.Event(msg))
		return m, nil

	case replyDoneMsg:
		m.done = true
		m.conversationID = msg.conversationID
		m.err = msg.err
		if m.err == nil && m.streamErr != "" {
			m.err = fmt.Errorf("%s", m.streamErr)
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m replyModel) apply(ev client.Event) replyModel {
	switch ev.Type {
	case stream.EventContent:
		m.content += ev.Text()
	case stream.EventReasoning:
		m.reasoning += ev.Text()
	case stream.EventError:
		m.streamErr = ev.Text()
	default:
		if note, ok := describeEvent(ev, m.baseURL); ok {
			m.notes = append(m.notes, note)
		}
	}
	return m
}

// View renders the reply display.
func (m replyModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m replyModel) renderContent() string {
	var b strings.Builder
	if m.reasoning != "" {
		b.WriteString(m.theme.hintStyle().Render(strings.TrimSpace(m.reasoning)))
		b.WriteString("\n\n")
	}
	for _, n := range m.notes {
		b.WriteString(m.theme.statusStyle().Render("• " + n))
		b.WriteString("\n")
	}
	if len(m.notes) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(m.content)
	b.WriteString("\n")

	if m.done || m.quitting {
		b.WriteString(m.finalView())
		return b.String()
	}

	b.WriteString("\n")
	if m.stopping {
		b.WriteString(m.spinner.View() + " " + m.theme.statusStyle().Render("stopping..."))
	} else {
		b.WriteString(m.spinner.View() + " " + m.theme.statusStyle().Render("generating"))
		b.WriteString("\n" + m.theme.hintStyle().Render("Press Ctrl+C to stop the reply"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m replyModel) finalView() string {
	if m.quitting && !m.done {
		return m.theme.hintStyle().Render("\nReply abandoned.\n")
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}
	return "\n" + m.theme.completedStyle().Render("✓ Conversation "+m.conversationID) + "\n"
}

func sendStop(stop func() error) tea.Cmd {
	return func() tea.Msg {
		return stopSentMsg{err: stop()}
	}
}

// RunReply streams a reply through the interactive display.
func RunReply(ctx context.Context, baseURL string, stop func() error, send sendFunc) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newReplyModel(baseURL, stop))
	go func() {
		convID, err := send(ctx, func(ev client.Event) error {
			p.Send(eventMsg(ev))
			return nil
		})
		p.Send(replyDoneMsg{conversationID: convID, err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("reply UI error: %w", err)
	}

	m, ok := finalModel.(replyModel)
	if !ok {
		return "", nil
	}
	if m.quitting && !m.done {
		return m.conversationID, context.Canceled
	}
	return m.conversationID, m.err
}
