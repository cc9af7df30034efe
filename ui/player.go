package ui

import (
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/narrator/internal/playback"
)

// Controller is the part of the sequencer the player view drives.
type Controller interface {
	TogglePlayPause() error
	Stop() error
	Status() playback.Status
}

// PlayerStatusMsg carries a sequencer snapshot.
type PlayerStatusMsg playback.Status

// PlayerModel shows chapter playback. Space toggles pause, q stops.
type PlayerModel struct {
	title   string
	ctl     Controller
	updates <-chan playback.Status
	done    <-chan struct{}

	status playback.Status
	err    error
	width  int
}

// NewPlayerModel creates the view. updates delivers sequencer changes and
// done closes when the session ends.
func NewPlayerModel(title string, ctl Controller, updates <-chan playback.Status, done <-chan struct{}) PlayerModel {
	return PlayerModel{
		title:   title,
		ctl:     ctl,
		updates: updates,
		done:    done,
		status:  ctl.Status(),
		width:   defaultWidth,
	}
}

// Status returns the last status seen.
func (m PlayerModel) Status() playback.Status {
	return m.status
}

func (m PlayerModel) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case st := <-m.updates:
			return PlayerStatusMsg(st)
		case <-m.done:
			return PlayerStatusMsg(m.ctl.Status())
		}
	}
}

// Init implements tea.Model.
func (m PlayerModel) Init() tea.Cmd {
	return m.listen()
}

// Update implements tea.Model.
func (m PlayerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case " ", "p":
			m.err = m.ctl.TogglePlayPause()
			m.status = m.ctl.Status()
		case "q", "esc", "ctrl+c":
			m.err = m.ctl.Stop()
			m.status = m.ctl.Status()
			return m, tea.Quit
		}
		return m, nil

	case PlayerStatusMsg:
		m.status = playback.Status(msg)
		if m.status.State == playback.StateStopped {
			return m, tea.Quit
		}
		return m, m.listen()
	}
	return m, nil
}

// View implements tea.Model.
func (m PlayerModel) View() string {
	var b strings.Builder
	inner := m.width - horizontalPad

	b.WriteString("\n  " + titleStyle.Render(clip(m.title, inner)) + "\n\n")
	b.WriteString("  " + StatusLine(m.status) + "\n")
	if m.status.Path != "" {
		b.WriteString("  " + detailStyle.Render(clip(filepath.Base(m.status.Path), inner)) + "\n")
	}
	if m.err != nil {
		b.WriteString("  " + errorStyle.Render(clip(m.err.Error(), inner)) + "\n")
	}
	b.WriteString("\n  " + helpStyle.Render("space pause/resume • q stop") + "\n")
	return b.String()
}
