package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/CosmoTheDev/codesense/internal/store"
)

// Tab represents a TUI navigation tab.
type Tab int

const (
	TabDashboard Tab = iota
	TabFindings
)

var tabNames = []string{"Dashboard", "Findings"}

// App is the root bubbletea model of the scan browser.
type App struct {
	width     int
	height    int
	activeTab Tab
	dashboard DashboardModel
	findings  FindingsModel
}

// NewApp creates the scan browser over st.
func NewApp(st store.Store) *App {
	return &App{
		dashboard: NewDashboardModel(st),
		findings:  NewFindingsModel(st),
	}
}

// Run starts the bubbletea program.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.dashboard.Init()
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		contentW := max(20, msg.Width-2)
		contentH := max(8, msg.Height-6)
		a.dashboard.SetSize(contentW, contentH)
		a.findings.SetSize(contentW, contentH)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		case "1":
			a.activeTab = TabDashboard
			return a, nil
		case "2":
			a.activeTab = TabFindings
			return a, nil
		case "tab", "shift+tab":
			a.activeTab = (a.activeTab + 1) % Tab(len(tabNames))
			return a, nil
		}

	case scanSelectedMsg:
		var cmd tea.Cmd
		a.findings, cmd = a.findings.Select(msg.scanID)
		a.activeTab = TabFindings
		return a, cmd

	case findingsLoadedMsg:
		var cmd tea.Cmd
		a.findings, cmd = a.findings.Update(msg)
		return a, cmd

	case dashLoadedMsg, countsLoadedMsg:
		var cmd tea.Cmd
		a.dashboard, cmd = a.dashboard.Update(msg)
		return a, cmd
	}

	// Keys go to the active view.
	var cmd tea.Cmd
	switch a.activeTab {
	case TabDashboard:
		a.dashboard, cmd = a.dashboard.Update(msg)
	case TabFindings:
		a.findings, cmd = a.findings.Update(msg)
	}
	return a, cmd
}

// View implements tea.Model.
func (a *App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	var content string
	switch a.activeTab {
	case TabDashboard:
		content = a.dashboard.View()
	case TabFindings:
		content = a.findings.View()
	}

	contentBox := lipgloss.NewStyle().
		Width(a.width).
		Padding(0, 1).
		MaxHeight(max(1, a.height-4)).
		Render(content)

	status := lipgloss.NewStyle().
		Width(a.width).
		Padding(0, 1).
		Foreground(slateDim).
		Render("tab switch  1-2 jump  q quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		a.renderHeader(),
		contentBox,
		status,
	)
}

func (a *App) renderHeader() string {
	parts := []string{titleStyle.Render("codesense"), "  ", dimStyle.Render("LLM-assisted security review"), "  "}
	for i, name := range tabNames {
		label := fmt.Sprintf("%d:%s", i+1, name)
		if Tab(i) == a.activeTab {
			parts = append(parts, lipgloss.NewStyle().Bold(true).Foreground(accent).Render(label))
		} else {
			parts = append(parts, dimStyle.Render(label))
		}
		parts = append(parts, "  ")
	}
	return lipgloss.NewStyle().
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(line).
		Width(a.width).
		Padding(0, 1).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, parts...))
}
