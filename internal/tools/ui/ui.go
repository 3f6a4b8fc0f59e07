package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	spinnerChars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
)

type doneMsg struct {
	details []string
	err     error
}

type tickMsg time.Time

type model struct {
	title   string
	frame   int
	details []string
	err     error
	done    bool
	cancel  context.CancelFunc
}

// Run executes fn under an interactive spinner and returns its result once
// the task finishes or the user cancels.
func Run(title string, fn func(ctx context.Context) ([]string, error)) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	m := model{title: title, cancel: cancel}

	p := tea.NewProgram(m)
	go func() {
		details, err := fn(ctx)
		p.Send(doneMsg{details: details, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("run tui: %w", err)
	}
	fm := final.(model)
	return fm.details, fm.err
}

func tick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.details = msg.details
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.cancel()
			m.err = context.Canceled
			return m, tea.Quit
		}
	case tickMsg:
		m.frame = (m.frame + 1) % len(spinnerChars)
		return m, tick()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	for _, d := range m.details {
		b.WriteString(detailStyle.Render("  " + d))
		b.WriteString("\n")
	}
	switch {
	case !m.done:
		b.WriteString(spinnerChars[m.frame] + " working (q to cancel)\n")
	case m.err != nil:
		b.WriteString(failStyle.Render("FAIL: "+m.err.Error()) + "\n")
	default:
		b.WriteString(okStyle.Render("OK") + "\n")
	}
	return b.String()
}
