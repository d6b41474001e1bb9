package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/CosmoTheDev/codesense/internal/ai"
	"github.com/CosmoTheDev/codesense/internal/knowledge"
	"github.com/CosmoTheDev/codesense/internal/notify"
	"github.com/CosmoTheDev/codesense/internal/profiles"
	"github.com/CosmoTheDev/codesense/internal/store"
	"github.com/CosmoTheDev/codesense/models"
)

// memStore is an in-memory store.Store.
type memStore struct {
	mu       sync.Mutex
	scans    map[string]models.Scan
	findings map[string]models.Finding
	raw      []store.RawOutput
	failOn   string // source path whose findings fail to insert
}

func newMemStore() *memStore {
	return &memStore{scans: map[string]models.Scan{}, findings: map[string]models.Finding{}}
}

func (m *memStore) CreateScan(_ context.Context, s *models.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[s.ID] = *s
	return nil
}

func (m *memStore) UpsertScanProgress(_ context.Context, id string, u models.ScanUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return store.ErrNotFound
	}
	if u.TotalFiles != nil {
		s.TotalFiles = *u.TotalFiles
	}
	if u.FilesScanned != nil {
		s.FilesScanned = *u.FilesScanned
	}
	if u.FailedFiles != nil {
		s.FailedFiles = *u.FailedFiles
	}
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.Findings != nil {
		s.Findings = *u.Findings
	}
	if u.EndTime != nil {
		s.EndTime = u.EndTime
	}
	if u.ErrorMsg != nil {
		s.ErrorMsg = *u.ErrorMsg
	}
	m.scans[id] = s
	return nil
}

func (m *memStore) GetScan(_ context.Context, id string) (*models.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) ListScans(context.Context, int) ([]models.Scan, error) { return nil, nil }

func (m *memStore) InsertFindings(_ context.Context, fs []models.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range fs {
		if m.failOn != "" && f.SourcePath == m.failOn {
			return errors.New("disk full")
		}
		m.findings[f.UniqueKey] = f
	}
	return nil
}

func (m *memStore) ListFindings(_ context.Context, scanID string, _, _ int) ([]models.Finding, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Finding
	for _, f := range m.findings {
		if f.ScanID == scanID {
			out = append(out, f)
		}
	}
	return out, len(out), nil
}

func (m *memStore) SeverityCounts(context.Context, string) (map[models.SeverityLevel]int, error) {
	return nil, nil
}

func (m *memStore) SaveRawOutput(_ context.Context, r store.RawOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = append(m.raw, r)
	return nil
}

func (m *memStore) RawOutputs(context.Context, string, string) ([]store.RawOutput, error) {
	return nil, nil
}

// scriptedProvider answers prompts by looking for the file name in them.
type scriptedProvider struct {
	available bool
	answers   map[string]string // file name → answer
	panicOn   string            // file name whose prompt panics
	block     chan struct{}     // when set, Invoke waits for it to close

	mu    sync.Mutex
	calls int
}

func (p *scriptedProvider) Name() string                     { return "scripted" }
func (p *scriptedProvider) IsAvailable(context.Context) bool { return p.available }

func (p *scriptedProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.panicOn != "" && strings.Contains(prompt, "File: "+p.panicOn) {
		panic("model exploded")
	}
	for name, answer := range p.answers {
		if strings.Contains(prompt, "File: "+name) {
			return answer, nil
		}
	}
	return "No vulnerabilities found.", nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, evt notify.Event) {
	n.mu.Lock()
	n.events = append(n.events, evt)
	n.mu.Unlock()
}

const vulnSource = `import sqlite3

def login(conn, name):
    cur = conn.cursor()
    cur.execute("SELECT * FROM users WHERE name='" + name + "'")
    return cur.fetchone()

def run(cmd):
    import os
    os.system(cmd)
`

const vulnAnswer = `Vulnerability: SQL Injection
CWE: CWE-89
Severity: Critical
Impact: Attackers can dump the users table.
Mitigation: Use parameterized queries.
Affected: login()
Code Snippet: cur.execute("SELECT * FROM users WHERE name='" + name + "'")

Vulnerability: OS Command Injection
CWE: CWE-78
Severity: High
Impact: Arbitrary commands run on the host.
Mitigation: Avoid os.system with user input.
Affected: run()
Code Snippet: os.system(cmd)

Vulnerability: SQL Injection
CWE: CWE-89
Severity: Critical
Impact: Attackers can dump the users table.
Mitigation: Use parameterized queries.
Affected: login()
Code Snippet: cur.execute("SELECT * FROM users WHERE name='" + name + "'")
`

func writeTree(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/src", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for p, c := range files {
		if err := afero.WriteFile(fs, "/src/"+p, []byte(c), 0o644); err != nil {
			t.Fatalf("WriteFile %s: %v", p, err)
		}
	}
	return fs
}

func threeFileTree(t *testing.T) afero.Fs {
	return writeTree(t, map[string]string{
		"app/boom.py":  strings.Repeat("print('this file makes the model fall over')\n", 3),
		"app/vuln.py":  vulnSource,
		"app/clean.py": strings.Repeat("def add(a, b):\n    return a + b\n", 3),
		"README.md":    "not scanned",
	})
}

func TestRunScansFilesAndIsolatesFailures(t *testing.T) {
	st := newMemStore()
	notifier := &recordingNotifier{}
	provider := &scriptedProvider{
		available: true,
		answers:   map[string]string{"vuln.py": vulnAnswer},
		panicOn:   "boom.py",
	}
	opts := DefaultOptions()
	opts.KeepRawOutputs = true
	r := NewRunner(Deps{Provider: provider, Store: st, FS: threeFileTree(t), Notifier: notifier}, opts)

	res, err := r.Run(context.Background(), Request{Root: "/src", TriggeredBy: "test"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	s := res.Scan
	if s.Status != models.ScanCompleted {
		t.Fatalf("status = %s, want completed", s.Status)
	}
	if s.TotalFiles != 3 || s.FilesScanned != 3 || s.FailedFiles != 1 || s.Findings != 2 {
		t.Fatalf("unexpected counters: %+v", s)
	}
	if s.EndTime == nil {
		t.Fatal("end time not set")
	}
	if len(res.FailedFiles) != 1 || res.FailedFiles[0] != "app/boom.py" {
		t.Fatalf("failed files = %v", res.FailedFiles)
	}

	stored, _, _ := st.ListFindings(context.Background(), s.ID, 0, 0)
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored findings, got %d", len(stored))
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].LineStart < stored[j].LineStart })
	sqli := stored[0]
	if sqli.CWE != "CWE-89" || sqli.Severity != models.SeverityCritical {
		t.Fatalf("unexpected first finding: %+v", sqli)
	}
	if sqli.LineStart != 5 || sqli.LineEnd != 5 || sqli.FilePath != "app/vuln.py [5,5]" {
		t.Fatalf("sql injection located at %s (%d-%d)", sqli.FilePath, sqli.LineStart, sqli.LineEnd)
	}
	if !sqli.LocationResolved || sqli.MatchTier != "exact" || sqli.CreatedBy != "test" {
		t.Fatalf("unexpected location metadata: %+v", sqli)
	}
	if stored[1].LineStart != 10 || stored[1].Severity != models.SeverityHigh {
		t.Fatalf("unexpected second finding: %+v", stored[1])
	}

	persisted, err := st.GetScan(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if persisted.Status != models.ScanCompleted || persisted.FilesScanned != 3 || persisted.Findings != 2 {
		t.Fatalf("store out of sync with tracker: %+v", persisted)
	}
	if len(st.raw) != 2 {
		t.Fatalf("expected raw outputs for the two answered files, got %d", len(st.raw))
	}

	var completed, critical int
	for _, e := range notifier.events {
		switch e.Type {
		case notify.EventScanCompleted:
			completed++
		case notify.EventCriticalFinding:
			critical++
			if e.Finding == nil || e.Finding.CWE != "CWE-89" {
				t.Fatalf("critical event without finding: %+v", e)
			}
		}
	}
	if completed != 1 || critical != 1 {
		t.Fatalf("events: completed=%d critical=%d", completed, critical)
	}
	if _, busy := r.Active(""); busy {
		t.Fatal("slot still held after Run returned")
	}
}

func TestRunCountsInsertFailureAsFailedFile(t *testing.T) {
	st := newMemStore()
	st.failOn = "app/vuln.py"
	provider := &scriptedProvider{available: true, answers: map[string]string{"vuln.py": vulnAnswer}}
	r := NewRunner(Deps{Provider: provider, Store: st, FS: writeTree(t, map[string]string{"app/vuln.py": vulnSource})}, DefaultOptions())

	res, err := r.Run(context.Background(), Request{Root: "/src"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Scan.FailedFiles != 1 || res.Scan.Findings != 0 || res.Scan.FilesScanned != 1 {
		t.Fatalf("unexpected counters: %+v", res.Scan)
	}
}

func TestRunWithNoFilesCompletes(t *testing.T) {
	st := newMemStore()
	r := NewRunner(Deps{
		Provider: &scriptedProvider{available: true},
		Store:    st,
		FS:       writeTree(t, map[string]string{"README.md": "docs only"}),
	}, DefaultOptions())

	res, err := r.Run(context.Background(), Request{Root: "/src"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Scan.Status != models.ScanCompleted || res.Scan.TotalFiles != 0 || res.Scan.Percentage() != 100 {
		t.Fatalf("unexpected empty scan: %+v", res.Scan)
	}
}

func TestRunFailsWhenInferenceUnavailable(t *testing.T) {
	st := newMemStore()
	notifier := &recordingNotifier{}
	r := NewRunner(Deps{
		Provider: &scriptedProvider{available: false},
		Store:    st,
		FS:       threeFileTree(t),
		Notifier: notifier,
	}, DefaultOptions())

	_, err := r.Run(context.Background(), Request{Root: "/src"})
	if !errors.Is(err, ErrInferenceUnavailable) {
		t.Fatalf("expected ErrInferenceUnavailable, got %v", err)
	}
	if len(st.scans) != 1 {
		t.Fatalf("expected the failed scan to be recorded, got %d", len(st.scans))
	}
	for _, s := range st.scans {
		if s.Status != models.ScanFailed || s.ErrorMsg == "" || s.EndTime == nil {
			t.Fatalf("unexpected failed scan: %+v", s)
		}
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != notify.EventScanFailed {
		t.Fatalf("expected one scan_failed event, got %+v", notifier.events)
	}
	if _, busy := r.Active(""); busy {
		t.Fatal("slot should be released after a setup failure")
	}
}

func TestPreflightFailureFailsScan(t *testing.T) {
	st := newMemStore()
	missing := errors.New("knowledge index missing")
	r := NewRunner(Deps{
		Provider:  &scriptedProvider{available: true},
		Store:     st,
		FS:        threeFileTree(t),
		Preflight: []func(context.Context) error{func(context.Context) error { return missing }},
	}, DefaultOptions())

	if _, err := r.Run(context.Background(), Request{Root: "/src"}); !errors.Is(err, missing) {
		t.Fatalf("expected preflight error, got %v", err)
	}
}

func TestStartRejectsConcurrentScan(t *testing.T) {
	provider := &scriptedProvider{available: true, block: make(chan struct{})}
	r := NewRunner(Deps{Provider: provider, Store: newMemStore(), FS: threeFileTree(t)}, DefaultOptions())

	id, err := r.Start(context.Background(), Request{Root: "/src"})
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if active, ok := r.Active(DefaultSlot); !ok || active != id {
		t.Fatalf("Active = %q, %v; want %q", active, ok, id)
	}

	if _, err := r.Start(context.Background(), Request{Root: "/src"}); !errors.Is(err, ErrScanInProgress) {
		t.Fatalf("second Start: expected ErrScanInProgress, got %v", err)
	}
	if _, err := r.Start(context.Background(), Request{Root: "/src", Slot: "other"}); err != nil {
		t.Fatalf("Start in another slot: %v", err)
	}

	close(provider.block)
	r.Wait()

	s, ok := r.Tracker().Get(id)
	if !ok || s.Status != models.ScanCompleted {
		t.Fatalf("first scan state = %+v", s)
	}
	if _, err := r.Start(context.Background(), Request{Root: "/src"}); err != nil {
		t.Fatalf("Start after completion: %v", err)
	}
	r.Wait()
}

func TestRetrievalCacheAvoidsRepeatedInference(t *testing.T) {
	// Both chunks land in one batch and render identical prompts.
	body := strings.Repeat("x = compute(value)\n", 6)
	provider := &scriptedProvider{available: true}
	opts := DefaultOptions()
	opts.Chunker = Chunker{Size: len(body), Overlap: 0, MinContent: 10}
	r := NewRunner(Deps{
		Provider: provider,
		Store:    newMemStore(),
		FS:       writeTree(t, map[string]string{"a.py": body + body}),
	}, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.Run(ctx, Request{Root: "/src"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("unexpected inference calls: %d", provider.calls)
	}
}

func TestRunCancelledMarksScanFailed(t *testing.T) {
	st := newMemStore()
	provider := &scriptedProvider{available: true, block: make(chan struct{})}
	r := NewRunner(Deps{Provider: provider, Store: st, FS: threeFileTree(t)}, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	res, err := r.Run(ctx, Request{Root: "/src"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res == nil || res.Scan.Status != models.ScanFailed || res.Scan.ErrorMsg != "scan cancelled" {
		t.Fatalf("unexpected result: %+v", res)
	}
	persisted, err := st.GetScan(context.Background(), res.Scan.ID)
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if persisted.Status != models.ScanFailed || persisted.FilesScanned != 3 {
		t.Fatalf("store not updated after cancel: %+v", persisted)
	}
	if _, busy := r.Active(DefaultSlot); busy {
		t.Fatal("slot still held after cancellation")
	}
}

// flakyProvider fails every second call and answers the others with a
// finding unique to that call.
type flakyProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *flakyProvider) Name() string                     { return "flaky" }
func (p *flakyProvider) IsAvailable(context.Context) bool { return true }

func (p *flakyProvider) Invoke(context.Context, string) (string, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.mu.Unlock()
	if n%2 == 0 {
		return "", errors.New("openai: status 500: upstream overloaded")
	}
	return fmt.Sprintf(`Vulnerability: Reflected XSS %d
CWE: CWE-79
Severity: High
Impact: Script runs in the victim's browser.
Mitigation: Escape template output.
Affected: handler_%d()
Code Snippet: return render(req.args['q'])
`, n, n), nil
}

func handlerSource(n int) string {
	var b strings.Builder
	for i := range n {
		fmt.Fprintf(&b, "def handler_%d(req):\n    return render(req.args['q'])\n", i)
	}
	return b.String()
}

func TestRunKeepsFileWhenSomeChunksFailInference(t *testing.T) {
	st := newMemStore()
	provider := &flakyProvider{}
	body := handlerSource(8)
	opts := DefaultOptions()
	opts.Chunker = Chunker{Size: 120, Overlap: 0, MinContent: 10}
	chunks := opts.Chunker.Split(body)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	r := NewRunner(Deps{Provider: provider, Store: st, FS: writeTree(t, map[string]string{"app/views.py": body})}, opts)

	res, err := r.Run(context.Background(), Request{Root: "/src"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	answered := (len(chunks) + 1) / 2
	if provider.calls != len(chunks) {
		t.Fatalf("expected one call per chunk (%d), got %d", len(chunks), provider.calls)
	}
	s := res.Scan
	if s.Status != models.ScanCompleted || s.FailedFiles != 0 || s.FilesScanned != 1 {
		t.Fatalf("a failed chunk must not fail the file: %+v", s)
	}
	if s.Findings != answered || len(res.Findings) != answered {
		t.Fatalf("expected %d findings from answered chunks, got scan=%d result=%d", answered, s.Findings, len(res.Findings))
	}
	stored, _, _ := st.ListFindings(context.Background(), s.ID, 0, 0)
	if len(stored) != answered {
		t.Fatalf("expected %d stored findings, got %d", answered, len(stored))
	}
}

func TestRunWithCacheDisabledCallsPerChunk(t *testing.T) {
	body := strings.Repeat("x = compute(value)\n", 6)
	provider := &scriptedProvider{available: true}
	opts := DefaultOptions()
	opts.CacheEnabled = false
	opts.Chunker = Chunker{Size: len(body), Overlap: 0, MinContent: 10}
	r := NewRunner(Deps{
		Provider: provider,
		Store:    newMemStore(),
		FS:       writeTree(t, map[string]string{"a.py": body + body + body}),
	}, opts)

	if _, err := r.Run(context.Background(), Request{Root: "/src"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if provider.calls != 3 {
		t.Fatalf("expected one inference call per chunk, got %d", provider.calls)
	}
}

type chunkRetriever struct {
	mu      sync.Mutex
	queries []string
}

func (r *chunkRetriever) Retrieve(q string) []knowledge.Doc {
	r.mu.Lock()
	r.queries = append(r.queries, q)
	r.mu.Unlock()
	return nil
}

func TestKnowledgeRetrievalUsesChunkText(t *testing.T) {
	kb := &chunkRetriever{}
	provider := ai.WithKnowledge(&scriptedProvider{available: true}, kb)
	fs := writeTree(t, map[string]string{"app/vuln.py": vulnSource})
	r := NewRunner(Deps{Provider: provider, Store: newMemStore(), FS: fs}, DefaultOptions())

	if _, err := r.Run(context.Background(), Request{Root: "/src"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(kb.queries) != 1 {
		t.Fatalf("expected one retrieval, got %d", len(kb.queries))
	}
	if kb.queries[0] != strings.TrimSpace(vulnSource) {
		t.Fatalf("retrieval should match the chunk, got %q", kb.queries[0])
	}
}

type promptRecorder struct {
	mu      sync.Mutex
	prompts []string
	answer  string
}

func (p *promptRecorder) Name() string                     { return "recorder" }
func (p *promptRecorder) IsAvailable(context.Context) bool { return true }
func (p *promptRecorder) Invoke(_ context.Context, prompt string) (string, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	p.mu.Unlock()
	return p.answer, nil
}

func TestProfileReplacesFocusAndFiltersSeverity(t *testing.T) {
	st := newMemStore()
	provider := &promptRecorder{answer: vulnAnswer}
	fs := writeTree(t, map[string]string{"app/vuln.py": vulnSource})
	r := NewRunner(Deps{Provider: provider, Store: st, FS: fs}, DefaultOptions())

	profile := &profiles.Profile{
		Name:        "strict",
		Languages:   []string{"py"},
		MinSeverity: "critical",
		Focus:       []string{"Only database access"},
	}
	res, err := r.Run(context.Background(), Request{Root: "/src", Profile: profile})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Findings) != 1 || res.Findings[0].CWE != "CWE-89" {
		t.Fatalf("expected only the critical finding, got %+v", res.Findings)
	}
	if len(provider.prompts) == 0 {
		t.Fatal("provider never called")
	}
	p := provider.prompts[0]
	if !strings.Contains(p, "- Only database access") || strings.Contains(p, "Template injection") {
		t.Fatalf("profile focus not applied:\n%s", p)
	}
}
