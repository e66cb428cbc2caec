// Package tui 终端客户端：输入行、打字字幕、音频电平与概念图状态。
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mion-onsen/concierge/backend/internal/model/chat"
	"github.com/mion-onsen/concierge/backend/internal/model/onsen"
	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
)

// Engine is the part of the orchestrator the terminal drives.
type Engine interface {
	Submit(ctx context.Context, input string) error
	Greet(ctx context.Context) error
	SetMuted(muted bool)
	StopAudio()
	Replay()
	SelectConcept(ctx context.Context, index int) error
	DismissError()
	Snapshot() concierge.Snapshot
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F4A261")).
			MarginBottom(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#2A9D8F")).
			Padding(0, 1)

	userStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8ECAE6"))
	botStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#E9C46A"))
	captionStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#E9C46A"))
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#264653"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#2A9D8F")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E76F51")).Bold(true)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

const (
	tickInterval  = 100 * time.Millisecond
	meterWidth    = 24
	historyHeight = 10
	greetTimeout  = time.Minute
)

type eventMsg concierge.Event

type closedMsg struct{}

type tickMsg time.Time

type greetMsg struct{ err error }

// Model is the bubbletea model of one concierge conversation.
type Model struct {
	ctx    context.Context
	engine Engine
	events <-chan concierge.Event
	greet  bool

	input    textinput.Model
	history  viewport.Model
	spinner  spinner.Model
	snapshot concierge.Snapshot
	notice   string
	width    int
	quitting bool
}

// NewModel builds the model. events is usually engine's subscription; when
// greet is set the persona greeting is requested on start.
func NewModel(ctx context.Context, engine Engine, events <-chan concierge.Event, greet bool) Model {
	in := textinput.New()
	in.Placeholder = "Tell MION about your ideal onsen..."
	in.Prompt = "> "
	in.CharLimit = 2000
	in.Width = 60
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = activeStyle

	m := Model{
		ctx:      ctx,
		engine:   engine,
		events:   events,
		greet:    greet,
		input:    in,
		history:  viewport.New(78, historyHeight),
		spinner:  s,
		snapshot: engine.Snapshot(),
		width:    80,
	}
	m.refreshHistory()
	return m
}

// Init starts the spinner, the event listener and the meter tick.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick, m.listenForEvents(), tick()}
	if m.greet {
		cmds = append(cmds, m.greetCmd())
	}
	return tea.Batch(cmds...)
}

// Update handles keys, orchestrator events and timers.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.history.Width = msg.Width - 2
		m.input.Width = msg.Width - 4
		m.refreshHistory()
		return m, nil

	case eventMsg:
		m.snapshot = m.engine.Snapshot()
		if msg.Type == concierge.EventMessage || msg.Type == concierge.EventState {
			m.refreshHistory()
		}
		return m, m.listenForEvents()

	case closedMsg:
		m.quitting = true
		return m, tea.Quit

	case greetMsg:
		if msg.err != nil && !errors.Is(msg.err, concierge.ErrAlreadyGreeted) {
			m.notice = msg.err.Error()
		}
		return m, nil

	case tickMsg:
		m.snapshot = m.engine.Snapshot()
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		text := m.input.Value()
		if err := m.engine.Submit(m.ctx, text); err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.notice = ""
		m.input.Reset()
		return m, nil

	case "ctrl+t":
		m.engine.SetMuted(!m.snapshot.Muted)
		m.snapshot = m.engine.Snapshot()
		return m, nil

	case "ctrl+r":
		m.engine.Replay()
		return m, nil

	case "ctrl+s":
		m.engine.StopAudio()
		return m, nil

	case "esc":
		m.engine.DismissError()
		m.notice = ""
		m.snapshot = m.engine.Snapshot()
		return m, nil

	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		if m.input.Value() == "" && len(m.snapshot.Visual.Images) > 0 {
			index := int(key[0] - '1')
			if err := m.engine.SelectConcept(m.ctx, index); err != nil {
				m.notice = err.Error()
			}
			m.snapshot = m.engine.Snapshot()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the conversation screen.
func (m Model) View() string {
	if m.quitting {
		return "おやすみなさい. Goodbye!\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("♨  MION · onsen concierge"))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(m.history.View()))
	b.WriteString("\n")

	if caption := m.snapshot.Caption; caption != "" && m.snapshot.State == concierge.StateRevealing {
		b.WriteString(captionStyle.Render("MION: " + caption))
		b.WriteString("\n")
	}
	if sub := m.snapshot.Subtitle; sub != "" {
		b.WriteString(subtitleStyle.Render(" " + sub + " "))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	if visual := m.renderVisual(); visual != "" {
		b.WriteString(visual)
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(errorStyle.Render("! " + m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter send · ctrl+t mute · ctrl+r replay · ctrl+s stop · 1-9 pick concept · esc dismiss · ctrl+c quit"))
	return b.String()
}

func (m Model) renderStatus() string {
	var parts []string

	state := m.snapshot.State
	if state == concierge.StateIdle {
		parts = append(parts, statusStyle.Render("State: ")+string(state))
	} else {
		parts = append(parts, m.spinner.View()+" "+activeStyle.Render(stateLabel(state)))
	}
	parts = append(parts, renderMeter(m.snapshot.AudioLevel, m.snapshot.Muted, m.snapshot.AudioPlaying))
	return strings.Join(parts, "  │  ")
}

func (m Model) renderVisual() string {
	v := m.snapshot.Visual
	var lines []string
	switch {
	case v.IsGeneratingImage:
		lines = append(lines, m.spinner.View()+" Painting your onsen concepts...")
	case len(v.Images) > 0:
		var picks []string
		for i := range v.Images {
			label := fmt.Sprintf("[%d]", i+1)
			if i == v.SelectedConcept {
				label = activeStyle.Render(label)
			}
			picks = append(picks, label)
		}
		lines = append(lines, "Concepts: "+strings.Join(picks, " "))
	}
	if v.IsGeneratingVideo {
		lines = append(lines, m.spinner.View()+" "+v.VideoLoadingMsg)
	}
	if v.VideoURL != "" && v.SelectedConcept != onsen.NoConcept {
		lines = append(lines, activeStyle.Render("Video: ")+v.VideoURL)
	}
	if v.Error != "" {
		lines = append(lines, errorStyle.Render(v.Error)+helpStyle.Render(" (esc)"))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) refreshHistory() {
	m.history.SetContent(renderHistory(m.snapshot.History, m.history.Width))
	m.history.GotoBottom()
}

func renderHistory(history []chat.Message, width int) string {
	if len(history) == 0 {
		return statusStyle.Render("No messages yet.")
	}
	body := lipgloss.NewStyle().Width(max(width-6, 20))
	var b strings.Builder
	for i, msg := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		switch msg.Sender {
		case chat.SenderUser:
			b.WriteString(userStyle.Render("You  "))
		default:
			b.WriteString(botStyle.Render("MION "))
		}
		b.WriteString(body.Render(msg.Text))
	}
	return b.String()
}

func renderMeter(level float64, muted, playing bool) string {
	filled := int(level * 4 * meterWidth)
	if filled > meterWidth {
		filled = meterWidth
	}
	if filled < 0 {
		filled = 0
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", meterWidth-filled)

	indicator := "🔈"
	switch {
	case muted:
		indicator = "🔇"
	case playing:
		indicator = "🔊"
	}
	return fmt.Sprintf("%s [%s]", indicator, bar)
}

func stateLabel(s concierge.State) string {
	switch s {
	case concierge.StateSending:
		return "Thinking..."
	case concierge.StateGeneratingImage:
		return "Painting concepts..."
	case concierge.StateSpeaking:
		return "Preparing voice..."
	case concierge.StateRevealing:
		return "Speaking"
	default:
		return string(s)
	}
}

func (m Model) listenForEvents() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) greetCmd() tea.Cmd {
	ctx, engine := m.ctx, m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, greetTimeout)
		defer cancel()
		return greetMsg{err: engine.Greet(ctx)}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run starts the full-screen program and blocks until the user quits.
func Run(ctx context.Context, engine Engine, events <-chan concierge.Event, greet bool) error {
	p := tea.NewProgram(NewModel(ctx, engine, events, greet), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
