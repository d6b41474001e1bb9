package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/CosmoTheDev/codesense/models"
)

// RenderSummary formats a finished scan, its severity breakdown and its
// findings for terminal output.
func RenderSummary(scan models.Scan, counts map[models.SeverityLevel]int, found []models.Finding) string {
	var b strings.Builder

	header := lipgloss.JoinHorizontal(lipgloss.Left,
		titleStyle.Render(scan.Name),
		"  ",
		statusBadge(scan.Status),
		"  ",
		dimStyle.Render(scan.ID),
	)
	b.WriteString(header + "\n\n")

	elapsed := "-"
	if scan.EndTime != nil {
		elapsed = scan.EndTime.Sub(scan.StartTime).Round(time.Second).String()
	}
	fmt.Fprintf(&b, "Files: %d scanned, %d failed of %d   Duration: %s\n",
		scan.FilesScanned, scan.FailedFiles, scan.TotalFiles, elapsed)
	if scan.ErrorMsg != "" {
		b.WriteString(errStyle.Render("Error: "+scan.ErrorMsg) + "\n")
	}
	b.WriteString("\n")

	cards := make([]string, 0, len(models.AllSeverities))
	for _, sev := range models.AllSeverities {
		cards = append(cards, renderCounter(string(sev), counts[sev], severityStyle(sev), 14))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...) + "\n\n")

	if len(found) == 0 {
		b.WriteString(okStyle.Render("No findings.") + "\n")
		return b.String()
	}
	for _, f := range found {
		sev := severityStyle(f.Severity).Width(10).Render(strings.ToUpper(string(f.Severity)))
		loc := f.FilePath
		if !f.LocationResolved {
			loc = f.SourcePath + dimStyle.Render(" (location unresolved)")
		}
		fmt.Fprintf(&b, "%s %-9s %s\n", sev, f.CWE, f.Title)
		fmt.Fprintf(&b, "           %s\n", dimStyle.Render(loc))
	}
	return b.String()
}

func renderCounter(label string, count int, style lipgloss.Style, width int) string {
	return boxStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Center,
			style.Bold(true).Render(fmt.Sprintf("%d", count)),
			dimStyle.Render(strings.ToUpper(label)),
		),
	) + " "
}
