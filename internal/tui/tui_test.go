package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/basar/internal/types"
)

type recorder struct {
	calls []string
}

func (r *recorder) actions() Actions {
	return Actions{
		Tap:        func() { r.calls = append(r.calls, "tap") },
		Activate:   func(m types.Mode) { r.calls = append(r.calls, "activate "+m.String()) },
		Deactivate: func() { r.calls = append(r.calls, "deactivate") },
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestModel_Keys(t *testing.T) {
	rec := &recorder{}
	m := NewModel(make(chan tea.Msg), rec.actions())

	for _, k := range []string{" ", "enter", "d", "r", "x", "z"} {
		_, cmd := m.Update(key(k))
		assert.Nil(t, cmd, "key %q", k)
	}
	assert.Equal(t, []string{"tap", "tap", "activate detecting", "activate reading", "deactivate"}, rec.calls)

	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	_, cmd = m.Update(key("ctrl+c"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_NilActions(t *testing.T) {
	m := NewModel(make(chan tea.Msg), Actions{})
	assert.NotPanics(t, func() {
		for _, k := range []string{" ", "d", "r", "x"} {
			m.Update(key(k))
		}
	})
}

func TestModel_View(t *testing.T) {
	m := NewModel(make(chan tea.Msg), Actions{})

	assert.Contains(t, m.View(), "idle")
	assert.Contains(t, m.View(), "double tap")

	m.Update(statusMsg(types.Status{Mode: types.ModeDetecting, Busy: true}))
	assert.Contains(t, m.View(), "detecting")
	assert.Contains(t, m.View(), "waiting for the first frame")

	m.Update(resultMsg(types.Result{
		Kind: types.ResultDetection,
		Objects: []types.Object{
			{Label: "chair", Distance: "2m"},
			{Label: "door"},
		},
	}))
	m.Update(statusMsg(types.Status{Mode: types.ModeDetecting, Text: "chair 2m, door", Cycles: 1, Speaking: true}))
	view := m.View()
	assert.Contains(t, view, "• chair 2m")
	assert.Contains(t, view, "• door")
	assert.Contains(t, view, "cycles 1")
	assert.Contains(t, view, "🔊")

	m.Update(statusMsg(types.Status{Mode: types.ModeReading}))
	assert.NotContains(t, m.View(), "chair", "a mode change clears the previous result")

	m.Update(resultMsg(types.Result{Kind: types.ResultText, Text: "EXIT\nمخرج"}))
	m.Update(statusMsg(types.Status{Mode: types.ModeReading, Err: "perception unreachable"}))
	view = m.View()
	assert.Contains(t, view, "EXIT")
	assert.Contains(t, view, "مخرج")
	assert.Contains(t, view, "! perception unreachable")
}

func TestModel_EmptyResultShowsMessage(t *testing.T) {
	m := NewModel(make(chan tea.Msg), Actions{})
	m.Update(statusMsg(types.Status{Mode: types.ModeDetecting}))
	m.Update(resultMsg(types.Result{Kind: types.ResultDetection}))
	m.Update(statusMsg(types.Status{Mode: types.ModeDetecting, Text: "لا توجد أشياء مكتشفة"}))

	assert.Contains(t, m.View(), "لا توجد أشياء مكتشفة")
}

func TestModel_Truncates(t *testing.T) {
	m := NewModel(make(chan tea.Msg), Actions{})
	m.Update(tea.WindowSizeMsg{Width: 10, Height: 10})

	assert.Equal(t, "short", m.fit("short"))
	got := m.fit("a very long line of recognized text")
	assert.Equal(t, "a very lo…", got)
}

func TestUI_NeverBlocks(t *testing.T) {
	ui := NewUI()
	for range updateBuffer * 2 {
		ui.SetStatus(types.Status{Mode: types.ModeReading})
	}
	ui.Render(types.Result{Kind: types.ResultText, Text: "dropped"})
	assert.Len(t, ui.updates, updateBuffer)

	msg := <-ui.updates
	assert.IsType(t, statusMsg{}, msg)
}

func TestModel_ListensForUpdates(t *testing.T) {
	ch := make(chan tea.Msg, 1)
	m := NewModel(ch, Actions{})

	ch <- statusMsg(types.Status{Mode: types.ModeReading})
	_, cmd := m.Update(resultMsg(types.Result{Kind: types.ResultText, Text: "STOP"}))
	require.NotNil(t, cmd)
	assert.Equal(t, statusMsg(types.Status{Mode: types.ModeReading}), cmd())
}
