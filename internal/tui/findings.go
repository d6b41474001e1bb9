package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/CosmoTheDev/codesense/internal/store"
	"github.com/CosmoTheDev/codesense/models"
)

const findingsPageSize = 50

// FindingsModel pages through the findings of one scan.
type FindingsModel struct {
	store   store.Store
	scanID  string
	items   []models.Finding
	total   int
	offset  int
	cursor  int
	detail  bool
	width   int
	height  int
	loading bool
	err     error
}

type findingsLoadedMsg struct {
	scanID string
	items  []models.Finding
	total  int
	err    error
}

// NewFindingsModel creates a FindingsModel with no scan selected.
func NewFindingsModel(st store.Store) FindingsModel {
	return FindingsModel{store: st}
}

// Select switches to scanID and reloads from the first page.
func (f FindingsModel) Select(scanID string) (FindingsModel, tea.Cmd) {
	f.scanID = scanID
	f.offset, f.cursor, f.detail = 0, 0, false
	f.loading = true
	return f, f.loadCmd()
}

func (f FindingsModel) loadCmd() tea.Cmd {
	if f.scanID == "" {
		return nil
	}
	st, id, offset := f.store, f.scanID, f.offset
	return func() tea.Msg {
		items, total, err := st.ListFindings(context.Background(), id, findingsPageSize, offset)
		return findingsLoadedMsg{scanID: id, items: items, total: total, err: err}
	}
}

func (f FindingsModel) Update(msg tea.Msg) (FindingsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case findingsLoadedMsg:
		if msg.scanID != f.scanID {
			return f, nil
		}
		f.items, f.total, f.err = msg.items, msg.total, msg.err
		f.loading = false
	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			f.cursor++
		case "k", "up":
			f.cursor--
		case "enter":
			f.detail = !f.detail
		case "n":
			if f.offset+findingsPageSize < f.total {
				f.offset += findingsPageSize
				f.cursor = 0
				f.loading = true
				return f, f.loadCmd()
			}
		case "p":
			if f.offset > 0 {
				f.offset -= findingsPageSize
				f.cursor = 0
				f.loading = true
				return f, f.loadCmd()
			}
		case "r":
			f.loading = true
			return f, f.loadCmd()
		}
	}
	if f.cursor >= len(f.items) {
		f.cursor = len(f.items) - 1
	}
	if f.cursor < 0 {
		f.cursor = 0
	}
	return f, nil
}

func (f *FindingsModel) SetSize(w, h int) {
	f.width = w
	f.height = h
}

func (f FindingsModel) View() string {
	width := max(20, f.width-2)
	if f.scanID == "" {
		return panelStyle.Width(width).Render(dimStyle.Render("Select a scan on the dashboard and press enter."))
	}
	if f.loading && len(f.items) == 0 {
		return panelStyle.Width(width).Render("Loading findings...")
	}
	if f.detail && len(f.items) > 0 {
		return panelStyle.Width(width).Render(f.renderDetail(f.items[f.cursor]))
	}

	lineLimit := max(5, f.height-8)
	rows := ""
	for i, it := range f.items {
		if i >= lineLimit {
			break
		}
		rows += f.renderRow(i, it)
	}
	if len(f.items) == 0 {
		rows = okStyle.Render("No findings for this scan.") + "\n"
	}
	if f.err != nil {
		rows += errStyle.Render("load failed: "+f.err.Error()) + "\n"
	}

	page := fmt.Sprintf("%d-%d of %d", min(f.offset+1, f.total), f.offset+len(f.items), f.total)
	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			panelHeaderStyle.Render("Findings")+"  "+dimStyle.Render(page),
			dimStyle.Render("  Severity  CWE       Title                                   Location"),
			rows,
			dimStyle.Render("j/k navigate  enter details  n/p page  r refresh"),
		),
	)
}

func (f FindingsModel) renderRow(idx int, it models.Finding) string {
	cursor := " "
	if idx == f.cursor {
		cursor = "▌"
	}
	loc := it.FilePath
	if !it.LocationResolved {
		loc = it.SourcePath + " ?"
	}
	row := lipgloss.JoinHorizontal(lipgloss.Left,
		lipgloss.NewStyle().Width(2).Foreground(accent).Render(cursor),
		lipgloss.NewStyle().Width(10).Render(severityStyle(it.Severity).Render(strings.ToUpper(string(it.Severity)))),
		lipgloss.NewStyle().Width(10).Foreground(slate).Render(it.CWE),
		lipgloss.NewStyle().Width(40).Foreground(ink).Render(truncate(it.Title, 38)),
		lipgloss.NewStyle().Foreground(slate).Render(truncate(loc, 40)),
	)
	if idx == f.cursor {
		return selectedRowStyle.Render(row) + "\n"
	}
	return row + "\n"
}

func (f FindingsModel) renderDetail(it models.Finding) string {
	field := func(label, value string) string {
		if value == "" {
			value = "-"
		}
		return lipgloss.NewStyle().Width(12).Foreground(slate).Render(label) + value
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		severityStyle(it.Severity).Render(strings.ToUpper(string(it.Severity)))+"  "+panelHeaderStyle.Render(it.Title),
		"",
		field("Code", it.Code),
		field("CWE", it.CWE),
		field("CVSS", fmt.Sprintf("%.1f %s", it.CVSSScore, it.CVSSVector)),
		field("Location", it.FilePath),
		field("Match", fmt.Sprintf("%s (%.2f)", it.MatchTier, it.LocationConfidence)),
		field("Affected", it.Affected),
		field("Reference", it.Reference),
		"",
		it.Description,
		"",
		panelHeaderStyle.Render("Risk"),
		it.SecurityRisk,
		"",
		panelHeaderStyle.Render("Mitigation"),
		it.Mitigation,
		"",
		panelHeaderStyle.Render("Snippet"),
		dimStyle.Render(it.CodeSnip),
		"",
		dimStyle.Render("enter back"),
	)
}
