package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/narrator/internal/playback"
)

const (
	green    = lipgloss.Color("#04B575")
	yellow   = lipgloss.Color("#ECFD65")
	red      = lipgloss.Color("#FF5F87")
	gray     = lipgloss.Color("#626262")
	darkGray = lipgloss.Color("#3C3C3C")
	fuchsia  = lipgloss.Color("#EE6FF8")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(fuchsia)
	labelStyle  = lipgloss.NewStyle().Bold(true)
	detailStyle = lipgloss.NewStyle().Foreground(gray)
	errorStyle  = lipgloss.NewStyle().Foreground(red)
	okStyle     = lipgloss.NewStyle().Foreground(green)
	helpStyle   = lipgloss.NewStyle().Foreground(darkGray)
)

func stateColor(s playback.State) lipgloss.Color {
	switch s {
	case playback.StatePlaying:
		return green
	case playback.StatePaused:
		return yellow
	case playback.StateStopped:
		return red
	default:
		return gray
	}
}

func stateIcon(s playback.State) string {
	switch s {
	case playback.StatePlaying:
		return "▶"
	case playback.StatePaused:
		return "⏸"
	case playback.StateStopped:
		return "◼"
	default:
		return "○"
	}
}

// StatusLine renders a one-line playback status such as "▶ playing 2/5".
func StatusLine(st playback.Status) string {
	line := lipgloss.NewStyle().Foreground(stateColor(st.State)).
		Render(fmt.Sprintf("%s %s", stateIcon(st.State), st.State))

	if st.Total > 0 {
		current := st.Index + 1
		if current > st.Total {
			current = st.Total
		}
		line += detailStyle.Render(fmt.Sprintf(" %d/%d", current, st.Total))
	}
	return line
}

// clip shortens s to width cells, marking the cut with an ellipsis.
func clip(s string, width int) string {
	if width <= 0 {
		return s
	}
	return truncate.StringWithTail(s, uint(width), "…")
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
