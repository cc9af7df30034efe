package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/narrator/internal/job"
)

const (
	feedBuffer    = 64
	maxBarWidth   = 60
	defaultWidth  = 80
	horizontalPad = 4
)

// ProgressMsg carries one orchestrator progress event.
type ProgressMsg job.Progress

// RecordDoneMsg ends a recording view. Report is shown as-is.
type RecordDoneMsg struct {
	Report string
	Err    error
}

type feedClosedMsg struct{}

// Feed connects a running job to a RecordModel. Progress never blocks the
// job: when the view falls behind, intermediate events are dropped.
type Feed struct {
	ch chan tea.Msg
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{ch: make(chan tea.Msg, feedBuffer)}
}

// Progress forwards p. It is safe to pass as job.Options.OnProgress.
func (f *Feed) Progress(p job.Progress) {
	select {
	case f.ch <- ProgressMsg(p):
	default:
	}
}

// Finish delivers the final report and closes the feed.
func (f *Feed) Finish(report string, err error) {
	select {
	case f.ch <- RecordDoneMsg{Report: report, Err: err}:
	default:
	}
	close(f.ch)
}

func (f *Feed) listen() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-f.ch
		if !ok {
			return feedClosedMsg{}
		}
		return msg
	}
}

// RecordModel shows the progress of a recording job. q asks the job to
// stop; a second ctrl+c leaves without waiting.
type RecordModel struct {
	title  string
	feed   *Feed
	cancel func()

	spinner spinner.Model
	bar     progress.Model
	width   int
	started time.Time

	last       job.Progress
	cancelling bool
	done       bool
	report     string
	err        error
}

// NewRecordModel creates the view. cancel is called once when the user
// asks to stop.
func NewRecordModel(title string, feed *Feed, cancel func()) RecordModel {
	return RecordModel{
		title:   title,
		feed:    feed,
		cancel:  cancel,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(okStyle)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
		width:   defaultWidth,
		started: time.Now(),
	}
}

// Err returns the job's error once the view has finished.
func (m RecordModel) Err() error {
	return m.err
}

// Report returns the final report.
func (m RecordModel) Report() string {
	return m.report
}

// Init implements tea.Model.
func (m RecordModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.feed.listen())
}

// Update implements tea.Model.
func (m RecordModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(max(msg.Width-horizontalPad, 10), maxBarWidth)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.done {
				return m, tea.Quit
			}
			if m.cancelling {
				if msg.String() == "ctrl+c" {
					return m, tea.Quit
				}
				return m, nil
			}
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case ProgressMsg:
		m.last = job.Progress(msg)
		return m, m.feed.listen()

	case RecordDoneMsg:
		m.done = true
		m.report = msg.Report
		m.err = msg.Err
		return m, tea.Quit

	case feedClosedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m RecordModel) View() string {
	var b strings.Builder
	inner := m.width - horizontalPad

	b.WriteString("\n  " + titleStyle.Render(clip(m.title, inner)) + "\n\n")

	if m.done {
		if m.err != nil {
			b.WriteString("  " + errorStyle.Render(clip(m.err.Error(), inner)) + "\n")
		}
		if m.report != "" {
			for _, line := range strings.Split(m.report, "\n") {
				b.WriteString("  " + line + "\n")
			}
		}
		return b.String()
	}

	label := m.last.Label
	if label == "" {
		label = "Starting"
	}
	if m.cancelling {
		label = "Cancelling after the current request"
	}
	fmt.Fprintf(&b, "  %s %s\n", m.spinner.View(), labelStyle.Render(clip(label, inner-2)))
	b.WriteString("  " + m.bar.ViewAs(m.last.Percent/100) + "\n")

	detail := m.last.Detail
	elapsed := "elapsed " + formatDuration(time.Since(m.started))
	if detail != "" {
		detail += " · "
	}
	b.WriteString("  " + detailStyle.Render(clip(detail+elapsed, inner)) + "\n\n")
	b.WriteString("  " + helpStyle.Render("q cancel") + "\n")
	return b.String()
}
