package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mion-onsen/concierge/backend/internal/model/chat"
	"github.com/mion-onsen/concierge/backend/internal/model/onsen"
	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
)

type fakeEngine struct {
	snap      concierge.Snapshot
	submitted []string
	submitErr error
	selected  []int
	replays   int
	stops     int
	dismissed int
	greeted   int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{snap: concierge.Snapshot{
		SessionID: "s-1",
		State:     concierge.StateIdle,
		Visual:    onsen.NewVisualState(),
	}}
}

func (f *fakeEngine) Submit(_ context.Context, input string) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, input)
	return nil
}

func (f *fakeEngine) Greet(context.Context) error {
	f.greeted++
	return nil
}

func (f *fakeEngine) SetMuted(muted bool) { f.snap.Muted = muted }
func (f *fakeEngine) StopAudio()          { f.stops++ }
func (f *fakeEngine) Replay()             { f.replays++ }
func (f *fakeEngine) DismissError() {
	f.dismissed++
	f.snap.Visual.Error = ""
}

func (f *fakeEngine) SelectConcept(_ context.Context, index int) error {
	if index >= len(f.snap.Visual.Images) {
		return concierge.ErrNoSuchConcept
	}
	f.selected = append(f.selected, index)
	f.snap.Visual.SelectedConcept = index
	return nil
}

func (f *fakeEngine) Snapshot() concierge.Snapshot { return f.snap }

func newTestModel(t *testing.T, engine *fakeEngine) (Model, chan concierge.Event) {
	t.Helper()
	events := make(chan concierge.Event, 4)
	return NewModel(context.Background(), engine, events, false), events
}

func typeText(m Model, text string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(Model)
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

func TestEnterSubmitsAndClearsInput(t *testing.T) {
	engine := newFakeEngine()
	m, _ := newTestModel(t, engine)

	m = typeText(m, "I love forests")
	assert.Equal(t, "I love forests", m.input.Value())

	m, _ = press(m, tea.KeyEnter)
	assert.Equal(t, []string{"I love forests"}, engine.submitted)
	assert.Empty(t, m.input.Value())
	assert.Empty(t, m.notice)
}

func TestRejectedSubmitKeepsInput(t *testing.T) {
	engine := newFakeEngine()
	engine.submitErr = concierge.ErrTurnInFlight
	m, _ := newTestModel(t, engine)

	m = typeText(m, "hello")
	m, _ = press(m, tea.KeyEnter)

	assert.Equal(t, "hello", m.input.Value())
	assert.Equal(t, concierge.ErrTurnInFlight.Error(), m.notice)
	assert.Contains(t, m.View(), concierge.ErrTurnInFlight.Error())
}

func TestControlKeys(t *testing.T) {
	engine := newFakeEngine()
	m, _ := newTestModel(t, engine)

	m, _ = press(m, tea.KeyCtrlT)
	assert.True(t, engine.snap.Muted)
	assert.True(t, m.snapshot.Muted)
	m, _ = press(m, tea.KeyCtrlT)
	assert.False(t, engine.snap.Muted)

	m, _ = press(m, tea.KeyCtrlR)
	m, _ = press(m, tea.KeyCtrlS)
	assert.Equal(t, 1, engine.replays)
	assert.Equal(t, 1, engine.stops)

	engine.snap.Visual.Error = concierge.ImageErrorText
	m, _ = press(m, tea.KeyEsc)
	assert.Equal(t, 1, engine.dismissed)
	assert.Empty(t, m.snapshot.Visual.Error)

	_, cmd := press(m, tea.KeyCtrlC)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestDigitSelectsConceptOnlyWithEmptyInput(t *testing.T) {
	engine := newFakeEngine()
	engine.snap.Visual.Images = []string{"a", "b"}
	m, _ := newTestModel(t, engine)

	m = typeText(m, "2")
	assert.Equal(t, []int{1}, engine.selected)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.View(), "Concepts:")

	m = typeText(m, "x")
	m = typeText(m, "1")
	assert.Equal(t, []int{1}, engine.selected)
	assert.Equal(t, "x1", m.input.Value())
}

func TestDigitWithoutConceptsTypes(t *testing.T) {
	engine := newFakeEngine()
	m, _ := newTestModel(t, engine)

	m = typeText(m, "3")
	assert.Empty(t, engine.selected)
	assert.Equal(t, "3", m.input.Value())
}

func TestEventRefreshesSnapshot(t *testing.T) {
	engine := newFakeEngine()
	m, events := newTestModel(t, engine)

	engine.snap.State = concierge.StateRevealing
	engine.snap.Caption = "Welc"
	engine.snap.Subtitle = "Welcome to MION."
	engine.snap.History = []chat.Message{chat.UserMessage("hi")}

	next, cmd := m.Update(eventMsg{Type: concierge.EventMessage})
	m = next.(Model)
	require.NotNil(t, cmd)

	view := m.View()
	assert.Contains(t, view, "Welc")
	assert.Contains(t, view, "Welcome to MION.")
	assert.Contains(t, view, "hi")
	assert.Contains(t, view, "Speaking")

	events <- concierge.Event{Type: concierge.EventCaption}
	msg := cmd()
	ev, ok := msg.(eventMsg)
	require.True(t, ok)
	assert.Equal(t, concierge.EventCaption, ev.Type)
}

func TestClosedEventsQuit(t *testing.T) {
	engine := newFakeEngine()
	m, events := newTestModel(t, engine)
	close(events)

	msg := m.listenForEvents()()
	require.IsType(t, closedMsg{}, msg)

	next, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.True(t, strings.Contains(next.View(), "Goodbye"))
}

func TestGreetOnInit(t *testing.T) {
	engine := newFakeEngine()
	events := make(chan concierge.Event)
	m := NewModel(context.Background(), engine, events, true)

	msg := m.greetCmd()()
	assert.Equal(t, greetMsg{}, msg)
	assert.Equal(t, 1, engine.greeted)
	require.NotNil(t, m.Init())
}

func TestRenderMeter(t *testing.T) {
	assert.Equal(t, "🔇 ["+strings.Repeat("░", meterWidth)+"]", renderMeter(0, true, false))
	full := renderMeter(1, false, true)
	assert.Equal(t, "🔊 ["+strings.Repeat("█", meterWidth)+"]", full)
}

func TestVisualLines(t *testing.T) {
	engine := newFakeEngine()
	engine.snap.Visual.IsGeneratingVideo = true
	engine.snap.Visual.VideoLoadingMsg = concierge.VideoLoadingMessage
	engine.snap.Visual.Error = concierge.VideoErrorText
	m, _ := newTestModel(t, engine)

	view := m.View()
	assert.Contains(t, view, concierge.VideoLoadingMessage)
	assert.Contains(t, view, concierge.VideoErrorText)

	engine.snap.Visual = onsen.VisualState{Images: []string{"a"}, SelectedConcept: 0, VideoURL: "/videos/x.mp4"}
	m.snapshot = engine.Snapshot()
	assert.Contains(t, m.View(), "/videos/x.mp4")
}
