// Package tui implements the live status view: a bubbletea program that
// re-reads the process registry on an interval and renders the rehydration
// digest, so an operator can watch workers move through running, completed,
// and failed without re-running the status command.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/swell-sh/swell/internal/registry"
	"github.com/swell-sh/swell/internal/watchdog"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// tickMsg asks for a registry refresh.
type tickMsg time.Time

// digestMsg delivers a freshly built digest.
type digestMsg struct {
	digest *watchdog.Digest
	err    error
}

// Model is the bubbletea model behind `status --watch`.
type Model struct {
	store    *registry.Store
	interval time.Duration

	spinner spinner.Model
	digest  *watchdog.Digest
	err     error
	width   int
}

// NewModel returns a status model that refreshes at the given interval.
func NewModel(store *registry.Store, interval time.Duration) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	width := 80
	if w, _, err := term.GetSize(0); err == nil && w > 0 {
		width = w
	}

	return Model{
		store:    store,
		interval: interval,
		spinner:  sp,
		width:    width,
	}
}

// Init starts the spinner and the first refresh.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh)
}

// refresh loads the registry and builds a digest.
func (m Model) refresh() tea.Msg {
	doc, err := m.store.Load()
	if err != nil {
		return digestMsg{err: err}
	}
	return digestMsg{digest: watchdog.BuildDigest(doc, time.Now().UTC())}
}

func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles refresh ticks, digests, resizes, and quit keys.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refresh
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		return m, m.refresh

	case digestMsg:
		m.digest = msg.digest
		m.err = msg.err
		return m, m.scheduleTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current digest.
func (m Model) View() string {
	header := headerStyle.Render("swell status") + " " + m.spinner.View() +
		helpStyle.Render(fmt.Sprintf("  registry: %s", m.store.Path()))

	body := "loading registry..."
	switch {
	case m.err != nil:
		body = errStyle.Render(fmt.Sprintf("registry error: %v", m.err))
	case m.digest != nil:
		body = m.digest.Render()
	}

	help := helpStyle.Render("r refresh · q quit")

	view := header + "\n\n" + body + "\n" + help
	return lipgloss.NewStyle().MaxWidth(m.width).Render(view)
}

// Run starts the watch loop and blocks until the user quits.
func Run(store *registry.Store, interval time.Duration) error {
	p := tea.NewProgram(NewModel(store, interval))
	_, err := p.Run()
	return err
}
