// Package tui provides the terminal status display. It shows the active
// mode and the latest perception result, and turns the space bar into a tap.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"go.aimuz.me/basar/internal/types"
)

const updateBuffer = 64

// Actions are the session operations bound to keys.
type Actions struct {
	Tap        func()
	Activate   func(types.Mode)
	Deactivate func()
}

type statusMsg types.Status

type resultMsg types.Result

// UI implements session.Presenter by forwarding updates to the program.
// Updates never block the caller; when the display falls behind they are
// dropped.
type UI struct {
	updates chan tea.Msg
}

// NewUI creates a presenter.
func NewUI() *UI {
	return &UI{updates: make(chan tea.Msg, updateBuffer)}
}

// Render shows a perception result.
func (u *UI) Render(res types.Result) {
	u.push(resultMsg(res))
}

// SetStatus shows a session status.
func (u *UI) SetStatus(st types.Status) {
	u.push(statusMsg(st))
}

func (u *UI) push(msg tea.Msg) {
	select {
	case u.updates <- msg:
	default:
		slog.Debug("display update dropped")
	}
}

// Run shows the display until the user quits or ctx is done.
func (u *UI) Run(ctx context.Context, actions Actions) error {
	p := tea.NewProgram(
		NewModel(u.updates, actions),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run display: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Model
// ─────────────────────────────────────────────────────────────────────────────

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F0F0")).Background(lipgloss.Color("#3A5A8C")).Padding(0, 1)
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	activeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#52C41A"))
	objectStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
)

// Model implements the status display.
type Model struct {
	updates <-chan tea.Msg
	actions Actions
	spinner spinner.Model

	status    types.Status
	result    types.Result
	hasResult bool

	width  int
	height int
}

// NewModel creates a display model reading updates from ch.
func NewModel(ch <-chan tea.Msg, actions Actions) *Model {
	return &Model{
		updates: ch,
		actions: actions,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(spinnerStyle),
		),
	}
}

func listen(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, listen(m.updates))
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case statusMsg:
		if msg.Mode != m.status.Mode {
			m.hasResult = false
		}
		m.status = types.Status(msg)
		return m, listen(m.updates)
	case resultMsg:
		m.result = types.Result(msg)
		m.hasResult = true
		return m, listen(m.updates)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return tea.Quit
	case " ", "enter":
		call(m.actions.Tap)
	case "d":
		if m.actions.Activate != nil {
			m.actions.Activate(types.ModeDetecting)
		}
	case "r":
		if m.actions.Activate != nil {
			m.actions.Activate(types.ModeReading)
		}
	case "x":
		call(m.actions.Deactivate)
	}
	return nil
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.header())
	b.WriteString("\n\n")
	for _, line := range m.body() {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	if m.status.Err != "" {
		b.WriteString(errorStyle.Render(m.fit("! " + m.status.Err)))
		b.WriteByte('\n')
	}
	if m.status.Mode != types.ModeIdle {
		b.WriteString(footerStyle.Render(fmt.Sprintf("cycles %d · skipped %d", m.status.Cycles, m.status.Skipped)))
		b.WriteByte('\n')
	}
	b.WriteString(footerStyle.Render("space tap · d detect · r read · x stop · q quit"))
	return b.String()
}

func (m *Model) header() string {
	mode := idleStyle.Render(m.status.Mode.String())
	if m.status.Mode != types.ModeIdle {
		mode = activeStyle.Render("● " + m.status.Mode.String())
	}
	parts := []string{titleStyle.Render("basar"), mode}
	if m.status.Busy {
		parts = append(parts, m.spinner.View())
	}
	if m.status.Speaking {
		parts = append(parts, "🔊")
	}
	return strings.Join(parts, " ")
}

// body returns the lines for the latest result: one line per object in
// detection mode, the recognized text in reading mode.
func (m *Model) body() []string {
	if m.status.Mode == types.ModeIdle {
		return []string{idleStyle.Render(m.fit("double tap: detect objects · triple tap: read text"))}
	}
	if !m.hasResult || m.result.IsEmpty() {
		if m.status.Text != "" {
			return []string{idleStyle.Render(m.fit(m.status.Text))}
		}
		return []string{idleStyle.Render("waiting for the first frame…")}
	}

	var lines []string
	switch m.result.Kind {
	case types.ResultDetection:
		for _, o := range m.result.Objects {
			lines = append(lines, objectStyle.Render(m.fit("• "+o.Caption())))
		}
		if m.result.Summary != "" {
			lines = append(lines, idleStyle.Render(m.fit(m.result.Summary)))
		}
	default:
		for _, l := range strings.Split(strings.TrimSpace(m.result.Text), "\n") {
			lines = append(lines, textStyle.Render(m.fit(l)))
		}
	}
	return lines
}

// fit truncates unstyled s to the terminal width.
func (m *Model) fit(s string) string {
	if m.width <= 0 || runewidth.StringWidth(s) <= m.width {
		return s
	}
	return runewidth.Truncate(s, m.width, "…")
}
