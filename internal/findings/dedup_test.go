package findings

import (
	"testing"

	"github.com/CosmoTheDev/codesense/models"
)

func TestDedupKeepsFirstPerKey(t *testing.T) {
	a := Draft{Title: "SQLi", CWE: "CWE-89", Affected: "login()", Impact: "first"}
	b := Draft{Title: "SQLi", CWE: "CWE-89", Affected: "login()", Impact: "second"}
	c := Draft{Title: "SQLi", CWE: "CWE-89", Affected: "logout()", Impact: "third"}

	out := Dedup([]Draft{a, b, c})
	if len(out) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(out))
	}
	if out[0].Impact != "first" || out[1].Impact != "third" {
		t.Fatalf("unexpected order or winner: %+v", out)
	}
}

func TestDedupIsPerFile(t *testing.T) {
	d := Draft{Title: "SQLi", CWE: "CWE-89", Affected: "login()", Impact: "x", Severity: models.SeverityHigh}
	loc := Location{StartLine: 3, EndLine: 4, Resolved: true, Tier: TierExact}

	var all []models.Finding
	for _, path := range []string{"a.py", "b.py"} {
		for _, kept := range Dedup([]Draft{d, d}) {
			all = append(all, NewFinding(kept, loc, Meta{ScanID: "s1", Path: path}))
		}
	}
	if len(all) != 2 {
		t.Fatalf("expected one finding per file, got %d", len(all))
	}
	if all[0].UniqueKey == all[1].UniqueKey {
		t.Fatal("findings in different files must have different unique keys")
	}
}

func TestNewFinding(t *testing.T) {
	d := Draft{Title: "XSS", CWE: "CWE-79", Severity: models.SeverityMedium, CVSSScore: 6.5, Impact: "i", Affected: "render"}
	f := NewFinding(d, Location{Region: "echo $x;", StartLine: 5, EndLine: 6, Resolved: true, Tier: TierExact, Confidence: 1},
		Meta{ScanID: "s1", Path: "web/index.php", CreatedBy: "cli"})

	if f.FilePath != "web/index.php [5,6]" {
		t.Fatalf("file_path = %q", f.FilePath)
	}
	if f.Status != "open" || f.Deleted || f.Approved {
		t.Fatalf("unexpected lifecycle flags: %+v", f)
	}
	if len(f.Code) != 10 || f.Code[:2] != "f-" {
		t.Fatalf("code = %q", f.Code)
	}
	if f.CreatedAt.IsZero() {
		t.Fatal("created_at not set")
	}
	if !f.LocationResolved || f.MatchTier != TierExact {
		t.Fatalf("location flags = %v/%q", f.LocationResolved, f.MatchTier)
	}
}
