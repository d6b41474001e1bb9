package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/CosmoTheDev/codesense/internal/progress"
	"github.com/CosmoTheDev/codesense/models"
)

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestProgressModelFollowsScanUntilTerminal(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	initial := models.Scan{ID: "s1", Name: "demo", Status: models.ScanQueued, StartTime: start}
	m := NewProgressModel(initial, make(chan models.Scan), nil)
	m.now = func() time.Time { return start.Add(3 * time.Second) }

	next, cmd := m.Update(scanUpdateMsg(models.Scan{ID: "other", Status: models.ScanCompleted}))
	m = next.(ProgressModel)
	if m.scan.ID != "s1" || isQuit(cmd) {
		t.Fatalf("update for another scan must be ignored, got %+v", m.scan)
	}

	running := initial
	running.Status = models.ScanInProgress
	running.TotalFiles, running.FilesScanned, running.Findings = 4, 1, 2
	next, _ = m.Update(scanUpdateMsg(running))
	m = next.(ProgressModel)
	view := m.View()
	for _, want := range []string{"demo", "25.0%", "files 1/4", "findings 2", "elapsed 3s"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}

	done := running
	done.Status = models.ScanCompleted
	done.FilesScanned = 4
	next, cmd = m.Update(scanUpdateMsg(done))
	if !isQuit(cmd) {
		t.Fatalf("expected quit on terminal status")
	}
	if got := next.(ProgressModel).Scan(); got.Status != models.ScanCompleted {
		t.Fatalf("expected final snapshot, got %+v", got)
	}
}

func TestProgressModelQuitCancelsRunningScan(t *testing.T) {
	cancelled := false
	m := NewProgressModel(models.Scan{ID: "s1", Status: models.ScanInProgress}, nil, func() { cancelled = true })
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !cancelled || !isQuit(cmd) {
		t.Fatalf("expected cancel and quit, cancelled=%v", cancelled)
	}
}

func TestWatchKeepsTerminalUpdate(t *testing.T) {
	tr := progress.NewTracker(nil)
	ch := Watch(tr)
	ctx := context.Background()
	if err := tr.Begin(ctx, models.Scan{ID: "s1", TotalFiles: 200}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for i := 0; i < 100; i++ {
		if _, err := tr.FileDone(ctx, "s1", false, 0); err != nil {
			t.Fatalf("FileDone: %v", err)
		}
	}
	if _, err := tr.Update(ctx, "s1", models.ScanUpdate{Status: models.Ptr(models.ScanFailed)}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	var last models.Scan
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Status != models.ScanFailed {
		t.Fatalf("expected the terminal snapshot to survive, got %q", last.Status)
	}
}

func TestRenderSummary(t *testing.T) {
	end := time.Date(2026, 1, 2, 3, 5, 5, 0, time.UTC)
	scan := models.Scan{
		ID: "s1", Name: "demo", Status: models.ScanCompleted,
		TotalFiles: 3, FilesScanned: 3, FailedFiles: 1,
		StartTime: end.Add(-time.Minute), EndTime: &end,
	}
	counts := map[models.SeverityLevel]int{models.SeverityCritical: 1}
	found := []models.Finding{
		{Title: "SQL Injection", CWE: "CWE-89", Severity: models.SeverityCritical, FilePath: "app.py [5,5]", SourcePath: "app.py", LocationResolved: true},
		{Title: "Weak Hash", CWE: "CWE-328", Severity: models.SeverityLow, FilePath: "hash.py", SourcePath: "hash.py"},
	}
	out := RenderSummary(scan, counts, found)
	for _, want := range []string{"demo", "3 scanned, 1 failed of 3", "1m0s", "SQL Injection", "app.py [5,5]", "location unresolved"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestProgressModelAdoptsFirstScan(t *testing.T) {
	m := NewProgressModel(models.Scan{Name: "pending"}, make(chan models.Scan), nil)
	next, _ := m.Update(scanUpdateMsg(models.Scan{ID: "s9", Name: "repo", Status: models.ScanQueued}))
	m = next.(ProgressModel)
	next, _ = m.Update(scanUpdateMsg(models.Scan{ID: "s10", Status: models.ScanCompleted}))
	if got := next.(ProgressModel).Scan(); got.ID != "s9" || got.Status != models.ScanQueued {
		t.Fatalf("expected to stay on the first scan, got %+v", got)
	}
}
