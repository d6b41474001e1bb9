package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/CosmoTheDev/codesense/models"
)

var (
	accent     = lipgloss.Color("#14B8A6") // teal
	green      = lipgloss.Color("#22C55E")
	yellow     = lipgloss.Color("#F59E0B")
	red        = lipgloss.Color("#EF4444")
	blue       = lipgloss.Color("#38BDF8")
	slate      = lipgloss.Color("#94A3B8")
	slateDim   = lipgloss.Color("#64748B")
	panelBg    = lipgloss.Color("#111827")
	bgDark     = lipgloss.Color("#0B1220")
	line       = lipgloss.Color("#1F2937")
	ink        = lipgloss.Color("#E5E7EB")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ink).
			Background(bgDark).
			BorderStyle(lipgloss.ThickBorder()).
			BorderLeft(true).
			BorderTop(false).
			BorderRight(false).
			BorderBottom(false).
			BorderForeground(accent).
			Padding(0, 1)

	criticalStyle = lipgloss.NewStyle().Bold(true).Foreground(red)
	highStyle     = lipgloss.NewStyle().Bold(true).Foreground(yellow)
	mediumStyle   = lipgloss.NewStyle().Foreground(blue)
	lowStyle      = lipgloss.NewStyle().Foreground(slate)
	okStyle       = lipgloss.NewStyle().Foreground(green)
	errStyle      = lipgloss.NewStyle().Foreground(red)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(line).
			Background(panelBg).
			Padding(0, 2)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(line).
			Background(panelBg).
			Padding(1, 1)

	panelHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ink)

	mutedBadgeStyle = lipgloss.NewStyle().
			Foreground(slate).
			Background(bgDark).
			Padding(0, 1)

	keycapStyle = lipgloss.NewStyle().
			Foreground(ink).
			Background(lipgloss.Color("#1E293B")).
			Padding(0, 1)

	selectedRowStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#0F172A")).
				BorderStyle(lipgloss.NormalBorder()).
				BorderLeft(true).
				BorderForeground(accent)

	barFilledStyle = lipgloss.NewStyle().Foreground(accent)
	barEmptyStyle  = lipgloss.NewStyle().Foreground(line)

	dimStyle = lipgloss.NewStyle().Foreground(slateDim)
)

func severityStyle(severity models.SeverityLevel) lipgloss.Style {
	switch severity {
	case models.SeverityCritical:
		return criticalStyle
	case models.SeverityHigh:
		return highStyle
	case models.SeverityMedium:
		return mediumStyle
	default:
		return lowStyle
	}
}

func statusBadge(status models.ScanStatus) string {
	s := string(status)
	switch status {
	case models.ScanCompleted:
		return lipgloss.NewStyle().Foreground(bgDark).Background(green).Padding(0, 1).Render(s)
	case models.ScanFailed:
		return lipgloss.NewStyle().Foreground(bgDark).Background(red).Padding(0, 1).Render(s)
	case models.ScanInProgress:
		return lipgloss.NewStyle().Foreground(bgDark).Background(blue).Padding(0, 1).Render(s)
	default:
		return mutedBadgeStyle.Render(s)
	}
}

func truncate(s string, max int) string {
	if max <= 1 || len(s) <= max {
		return s
	}
	return "…" + s[len(s)-max+1:]
}
