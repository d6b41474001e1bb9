package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/CosmoTheDev/codesense/internal/store"
	"github.com/CosmoTheDev/codesense/models"
)

// DashboardModel shows recent scans and the severity breakdown of the
// selected one.
type DashboardModel struct {
	store    store.Store
	scans    []models.Scan
	counts   map[models.SeverityLevel]int
	cursor   int
	width    int
	height   int
	lastLoad time.Time
	loading  bool
	err      error
}

type dashLoadedMsg struct {
	scans []models.Scan
	err   error
}

type countsLoadedMsg struct {
	scanID string
	counts map[models.SeverityLevel]int
}

// scanSelectedMsg asks the app to show the findings of a scan.
type scanSelectedMsg struct{ scanID string }

// NewDashboardModel creates a DashboardModel.
func NewDashboardModel(st store.Store) DashboardModel {
	return DashboardModel{store: st, loading: true}
}

func (d DashboardModel) Init() tea.Cmd {
	return d.loadCmd()
}

func (d DashboardModel) loadCmd() tea.Cmd {
	st := d.store
	return func() tea.Msg {
		scans, err := st.ListScans(context.Background(), 20)
		return dashLoadedMsg{scans: scans, err: err}
	}
}

func (d DashboardModel) countsCmd() tea.Cmd {
	if len(d.scans) == 0 {
		return nil
	}
	st, id := d.store, d.scans[d.cursor].ID
	return func() tea.Msg {
		counts, _ := st.SeverityCounts(context.Background(), id)
		return countsLoadedMsg{scanID: id, counts: counts}
	}
}

func (d DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case dashLoadedMsg:
		d.scans, d.err = msg.scans, msg.err
		d.loading = false
		d.lastLoad = time.Now()
		d = d.clampCursor()
		// Refresh every 10 seconds.
		return d, tea.Batch(d.countsCmd(), tea.Tick(10*time.Second, func(time.Time) tea.Msg {
			return d.loadCmd()()
		}))
	case countsLoadedMsg:
		if len(d.scans) > 0 && d.scans[d.cursor].ID == msg.scanID {
			d.counts = msg.counts
		}
	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			d.cursor++
			d = d.clampCursor()
			return d, d.countsCmd()
		case "k", "up":
			d.cursor--
			d = d.clampCursor()
			return d, d.countsCmd()
		case "enter":
			if len(d.scans) > 0 {
				id := d.scans[d.cursor].ID
				return d, func() tea.Msg { return scanSelectedMsg{scanID: id} }
			}
		case "r":
			d.loading = true
			return d, d.loadCmd()
		}
	}
	return d, nil
}

func (d DashboardModel) clampCursor() DashboardModel {
	if d.cursor >= len(d.scans) {
		d.cursor = len(d.scans) - 1
	}
	if d.cursor < 0 {
		d.cursor = 0
	}
	return d
}

func (d *DashboardModel) SetSize(w, h int) {
	d.width = w
	d.height = h
}

func (d DashboardModel) View() string {
	if d.loading && len(d.scans) == 0 {
		return panelStyle.Width(max(20, d.width-2)).Render("Loading scans...")
	}

	cards := make([]string, 0, len(models.AllSeverities))
	for _, sev := range models.AllSeverities {
		cards = append(cards, renderCounter(string(sev), d.counts[sev], severityStyle(sev), 16))
	}
	summary := lipgloss.JoinHorizontal(lipgloss.Top, cards...)

	lineLimit := max(5, d.height-12)
	rows := ""
	for i, s := range d.scans {
		if i >= lineLimit {
			break
		}
		cursor := " "
		if i == d.cursor {
			cursor = "▌"
		}
		row := lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(2).Foreground(accent).Render(cursor),
			lipgloss.NewStyle().Width(30).Foreground(ink).Render(truncate(s.Name, 28)),
			lipgloss.NewStyle().Width(14).Render(statusBadge(s.Status)),
			lipgloss.NewStyle().Width(14).Foreground(slate).Render(fmt.Sprintf("%d/%d", s.FilesScanned, s.TotalFiles)),
			lipgloss.NewStyle().Width(10).Foreground(slate).Render(fmt.Sprintf("%d", s.Findings)),
			dimStyle.Render(s.StartTime.Local().Format("2006-01-02 15:04")),
		)
		if i == d.cursor {
			row = selectedRowStyle.Render(row)
		}
		rows += row + "\n"
	}
	if len(d.scans) == 0 {
		rows = dimStyle.Render("No scans yet. Run: codesense scan --path <dir>\n")
	}
	if d.err != nil {
		rows += errStyle.Render("load failed: "+d.err.Error()) + "\n"
	}

	updated := "never"
	if !d.lastLoad.IsZero() {
		updated = d.lastLoad.Format("15:04:05")
	}
	refreshInfo := lipgloss.JoinHorizontal(lipgloss.Left,
		keycapStyle.Render("r"), " ", dimStyle.Render("refresh"), "   ",
		keycapStyle.Render("enter"), " ", dimStyle.Render("findings"), "   ",
		dimStyle.Render("updated "+updated),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Padding(0, 1).Render(summary),
		panelStyle.Width(max(20, d.width-2)).Render(
			lipgloss.JoinVertical(lipgloss.Left,
				panelHeaderStyle.Render("Recent Scans"),
				dimStyle.Render("  Name                          Status        Files         Findings  Started"),
				rows,
				refreshInfo,
			),
		),
	)
}
