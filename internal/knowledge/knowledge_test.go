package knowledge

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeIndex(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, IndexFile), []byte(strings.Join(lines, "\n")), 0o600); err != nil {
		t.Fatalf("write index: %v", err)
	}
	return dir
}

func TestOpenMissingIndex(t *testing.T) {
	_, err := Open(t.TempDir(), 3, 8)
	if !errors.Is(err, ErrIndexMissing) {
		t.Fatalf("expected ErrIndexMissing, got %v", err)
	}
}

func TestRetrieveRanksByOverlap(t *testing.T) {
	dir := writeIndex(t,
		`{"id":"1","title":"SQL injection","text":"Use parameterized queries for every database query.","cwe":"CWE-89"}`,
		`{"id":"2","title":"Cross-site scripting","text":"Encode output rendered into HTML pages.","cwe":"CWE-79"}`,
		``,
		`{"id":"3","title":"Buffer overflow","text":"Check bounds before memcpy.","cwe":"CWE-120"}`,
	)
	kb, err := Open(dir, 2, 8)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if kb.Len() != 3 {
		t.Fatalf("expected 3 docs, got %d", kb.Len())
	}

	docs := kb.Retrieve("cursor.execute builds a SQL query from user input")
	if len(docs) == 0 || docs[0].ID != "1" {
		t.Fatalf("expected SQL injection doc first, got %+v", docs)
	}
	if again := kb.Retrieve("cursor.execute builds a SQL query from user input"); len(again) != len(docs) {
		t.Fatalf("cached retrieval differs: %d vs %d", len(again), len(docs))
	}
	if none := kb.Retrieve("zz qq"); len(none) != 0 {
		t.Fatalf("expected no docs for unrelated query, got %+v", none)
	}
}

func TestOpenRejectsMalformedLine(t *testing.T) {
	dir := writeIndex(t, `{"id":"1"`)
	if _, err := Open(dir, 3, 8); err == nil || errors.Is(err, ErrIndexMissing) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestCheckDetectsRemovedIndex(t *testing.T) {
	dir := writeIndex(t, `{"id":"1","title":"t","text":"x"}`)
	kb, err := Open(dir, 3, 8)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := kb.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, IndexFile)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := kb.Check(); !errors.Is(err, ErrIndexMissing) {
		t.Fatalf("expected ErrIndexMissing, got %v", err)
	}
}

func TestAugment(t *testing.T) {
	out := Augment("PROMPT", []Doc{{Title: "SQL injection", Text: "Use params.", CWE: "CWE-89"}})
	if !strings.HasPrefix(out, "SECURITY REFERENCE MATERIAL:\n- CWE-89 SQL injection: Use params.\n\nPROMPT") {
		t.Fatalf("unexpected augment output: %q", out)
	}
	if Augment("P", nil) != "P" {
		t.Fatal("augment without docs should return prompt unchanged")
	}
}
