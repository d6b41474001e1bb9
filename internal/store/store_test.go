package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/CosmoTheDev/codesense/internal/config"
	"github.com/CosmoTheDev/codesense/internal/database"
	"github.com/CosmoTheDev/codesense/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := database.NewSQLite(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	s, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func seedScan(t *testing.T, s *SQLStore, id string) {
	t.Helper()
	scan := &models.Scan{
		ID:          id,
		Name:        "demo",
		RootPath:    "/src/demo",
		TriggeredBy: "test",
		Status:      models.ScanQueued,
		StartTime:   time.Now().UTC(),
	}
	if err := s.CreateScan(context.Background(), scan); err != nil {
		t.Fatalf("CreateScan: %v", err)
	}
}

func testFinding(scanID, key, title string, sev models.SeverityLevel) models.Finding {
	return models.Finding{
		UniqueKey:    key,
		ScanID:       scanID,
		CWE:          "CWE-89",
		CVSSVector:   "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
		CVSSScore:    9.0,
		Code:         "f-0a1b2c3d",
		Title:        title,
		Description:  "This proof of concept demonstrates how sql injection can occur.",
		Severity:     sev,
		FilePath:     "app/db.py [3,4]",
		SourcePath:   "app/db.py",
		CodeSnip:     "cur.execute(q)",
		SecurityRisk: "Attacker reads the database",
		Mitigation:   "Use bound parameters",
		Status:       models.FindingStatusOpen,
		Reference:    "https://cwe.mitre.org/data/definitions/89.html",
		CreatedAt:    time.Now().UTC(),
		CreatedBy:    "test",
		LineStart:    3,
		LineEnd:      4,
		Affected:     "query()",
		MatchTier:    "exact",
	}
}

func TestScanProgressOnlyTouchesProvidedFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedScan(t, s, "scan-1")

	if err := s.UpsertScanProgress(ctx, "scan-1", models.ScanUpdate{
		TotalFiles: models.Ptr(3),
		Status:     models.Ptr(models.ScanInProgress),
	}); err != nil {
		t.Fatalf("UpsertScanProgress: %v", err)
	}
	if err := s.UpsertScanProgress(ctx, "scan-1", models.ScanUpdate{FilesScanned: models.Ptr(2)}); err != nil {
		t.Fatalf("UpsertScanProgress: %v", err)
	}

	got, err := s.GetScan(ctx, "scan-1")
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.TotalFiles != 3 || got.FilesScanned != 2 || got.Status != models.ScanInProgress {
		t.Fatalf("unexpected scan state: %+v", got)
	}
	if got.Name != "demo" || got.EndTime != nil {
		t.Fatalf("untouched fields changed: %+v", got)
	}

	end := time.Now().UTC()
	if err := s.UpsertScanProgress(ctx, "scan-1", models.ScanUpdate{
		Status:  models.Ptr(models.ScanCompleted),
		EndTime: &end,
	}); err != nil {
		t.Fatalf("UpsertScanProgress: %v", err)
	}
	got, err = s.GetScan(ctx, "scan-1")
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.EndTime == nil || got.Status != models.ScanCompleted {
		t.Fatalf("expected completed scan with end time, got %+v", got)
	}
}

func TestGetScanNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetScan(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertFindingsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedScan(t, s, "scan-1")

	batch := []models.Finding{
		testFinding("scan-1", "k1", "SQL injection", models.SeverityCritical),
		testFinding("scan-1", "k2", "Weak hash", models.SeverityLow),
	}
	for i := 0; i < 2; i++ {
		if err := s.InsertFindings(ctx, batch); err != nil {
			t.Fatalf("InsertFindings (pass %d): %v", i, err)
		}
	}

	rows, total, err := s.ListFindings(ctx, "scan-1", 10, 0)
	if err != nil {
		t.Fatalf("ListFindings: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("expected 2 findings, got total=%d rows=%d", total, len(rows))
	}
	if rows[0].Severity != models.SeverityCritical {
		t.Fatalf("expected most severe first, got %s", rows[0].Severity)
	}

	page, total, err := s.ListFindings(ctx, "scan-1", 1, 1)
	if err != nil {
		t.Fatalf("ListFindings page: %v", err)
	}
	if total != 2 || len(page) != 1 || page[0].Title != "Weak hash" {
		t.Fatalf("unexpected second page: total=%d %+v", total, page)
	}
}

// failingTxDB fails the Upsert after the first `ok` succeed inside WithTx.
type failingTxDB struct {
	database.DB
	ok int
}

func (d *failingTxDB) WithTx(ctx context.Context, fn func(database.Tx) error) error {
	return d.DB.WithTx(ctx, func(tx database.Tx) error {
		return fn(&failingTx{Tx: tx, left: d.ok})
	})
}

type failingTx struct {
	database.Tx
	left int
}

func (t *failingTx) Upsert(ctx context.Context, table string, record any, conflict []string) error {
	if t.left == 0 {
		return errors.New("disk I/O error")
	}
	t.left--
	return t.Tx.Upsert(ctx, table, record, conflict)
}

func TestInsertFindingsRollsBackPartialBatch(t *testing.T) {
	db, err := database.NewSQLite(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "tx.db")})
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	s, err := New(&failingTxDB{DB: db, ok: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	seedScan(t, s, "scan-tx")

	err = s.InsertFindings(ctx, []models.Finding{
		testFinding("scan-tx", "k1", "SQL injection", models.SeverityCritical),
		testFinding("scan-tx", "k2", "Path traversal", models.SeverityHigh),
	})
	if err == nil {
		t.Fatal("expected the second upsert to fail")
	}
	rows, total, err := s.ListFindings(ctx, "scan-tx", 10, 0)
	if err != nil {
		t.Fatalf("ListFindings: %v", err)
	}
	if total != 0 || len(rows) != 0 {
		t.Fatalf("partial batch left %d rows behind", total)
	}
	counts, err := s.SeverityCounts(ctx, "scan-tx")
	if err != nil {
		t.Fatalf("SeverityCounts: %v", err)
	}
	if counts[models.SeverityCritical] != 0 {
		t.Fatalf("rolled back finding still counted: %v", counts)
	}
}

func TestSeverityCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedScan(t, s, "scan-1")
	err := s.InsertFindings(ctx, []models.Finding{
		testFinding("scan-1", "a", "A", models.SeverityHigh),
		testFinding("scan-1", "b", "B", models.SeverityHigh),
		testFinding("scan-1", "c", "C", models.SeverityMedium),
	})
	if err != nil {
		t.Fatalf("InsertFindings: %v", err)
	}

	counts, err := s.SeverityCounts(ctx, "scan-1")
	if err != nil {
		t.Fatalf("SeverityCounts: %v", err)
	}
	if counts[models.SeverityHigh] != 2 || counts[models.SeverityMedium] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if n, ok := counts[models.SeverityCritical]; !ok || n != 0 {
		t.Fatalf("expected zero critical entry, got %v", counts)
	}
}

func TestRawOutputsRoundTripCompressed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedScan(t, s, "scan-1")

	for i, text := range []string{"Vulnerability: first", "Vulnerability: second"} {
		err := s.SaveRawOutput(ctx, RawOutput{
			ScanID:     "scan-1",
			FilePath:   "app/db.py",
			ChunkIndex: i,
			PromptHash: "hash",
			Output:     text,
		})
		if err != nil {
			t.Fatalf("SaveRawOutput: %v", err)
		}
	}

	got, err := s.RawOutputs(ctx, "scan-1", "app/db.py")
	if err != nil {
		t.Fatalf("RawOutputs: %v", err)
	}
	if len(got) != 2 || got[0].Output != "Vulnerability: first" || got[1].ChunkIndex != 1 {
		t.Fatalf("unexpected raw outputs: %+v", got)
	}
}
