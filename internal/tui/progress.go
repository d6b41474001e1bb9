package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/CosmoTheDev/codesense/internal/progress"
	"github.com/CosmoTheDev/codesense/models"
)

// scanUpdateMsg carries one tracker snapshot into the program.
type scanUpdateMsg models.Scan

// Watch subscribes to every tracker update. The channel keeps the newest
// snapshots; when it is full the oldest one is dropped so terminal states
// are never lost.
func Watch(t *progress.Tracker) <-chan models.Scan {
	ch := make(chan models.Scan, 64)
	t.OnUpdate(func(s models.Scan) {
		for {
			select {
			case ch <- s:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	return ch
}

// ProgressModel renders the live state of one scan until it finishes.
type ProgressModel struct {
	scan    models.Scan
	updates <-chan models.Scan
	cancel  func()
	width   int
	now     func() time.Time
	aborted bool
}

// NewProgressModel follows the scan in initial. An initial snapshot without
// an ID adopts the first scan that reports. cancel is invoked when the user
// quits before the scan finishes.
func NewProgressModel(initial models.Scan, updates <-chan models.Scan, cancel func()) ProgressModel {
	return ProgressModel{scan: initial, updates: updates, cancel: cancel, width: 80, now: time.Now}
}

// Scan returns the latest snapshot.
func (m ProgressModel) Scan() models.Scan { return m.scan }

func (m ProgressModel) Init() tea.Cmd {
	if m.scan.Status.Terminal() {
		return tea.Quit
	}
	return m.waitForUpdate()
}

func (m ProgressModel) waitForUpdate() tea.Cmd {
	ch := m.updates
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return scanUpdateMsg(s)
	}
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.scan.Status.Terminal() && m.cancel != nil {
				m.cancel()
				m.aborted = true
			}
			return m, tea.Quit
		}
	case scanUpdateMsg:
		s := models.Scan(msg)
		if m.scan.ID != "" && s.ID != m.scan.ID {
			return m, m.waitForUpdate()
		}
		m.scan = s
		if s.Status.Terminal() {
			return m, tea.Quit
		}
		return m, m.waitForUpdate()
	}
	return m, nil
}

func (m ProgressModel) View() string {
	s := m.scan
	width := m.width - 4
	if width < 20 {
		width = 20
	}

	header := lipgloss.JoinHorizontal(lipgloss.Left,
		titleStyle.Render(s.Name),
		"  ",
		statusBadge(s.Status),
	)

	pct := s.Percentage()
	barW := width - 8
	if barW > 60 {
		barW = 60
	}
	bar := renderBar(pct, barW) + fmt.Sprintf(" %5.1f%%", pct)

	elapsed := m.now().Sub(s.StartTime).Round(time.Second)
	if s.EndTime != nil {
		elapsed = s.EndTime.Sub(s.StartTime).Round(time.Second)
	}
	if s.StartTime.IsZero() {
		elapsed = 0
	}
	stats := fmt.Sprintf("files %d/%d  failed %d  remaining %d  findings %d  elapsed %s",
		s.FilesScanned, s.TotalFiles, s.FailedFiles, s.Remaining(), s.Findings, elapsed)

	lines := []string{header, "", bar, dimStyle.Render(stats)}
	if s.ErrorMsg != "" {
		lines = append(lines, errStyle.Render(s.ErrorMsg))
	}
	if m.aborted {
		lines = append(lines, dimStyle.Render("cancelling..."))
	} else if !s.Status.Terminal() {
		lines = append(lines, "", keycapStyle.Render("q")+" "+dimStyle.Render("cancel"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n"
}

func renderBar(pct float64, width int) string {
	filled := int(pct / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return barFilledStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled))
}
