package findings

import (
	"fmt"
	"slices"
	"strings"
	"testing"
)

const sampleFile = `package main

import "database/sql"

func lookup(db *sql.DB, name string) error {
	query := "SELECT * FROM users WHERE name = '" + name + "'"
	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()
	return nil
}
`

func TestLocateExact(t *testing.T) {
	loc := NewLocator(DefaultLocatorOptions()).Locate(sampleFile, "rows, err := db.Query(query)\n\tif err != nil {")
	if loc.Tier != TierExact || !loc.Resolved {
		t.Fatalf("expected exact tier, got %+v", loc)
	}
	if loc.StartLine != 7 || loc.EndLine != 8 {
		t.Fatalf("expected lines [7,8], got [%d,%d]", loc.StartLine, loc.EndLine)
	}
	if loc.Confidence != 1 {
		t.Fatalf("confidence = %v", loc.Confidence)
	}
}

func TestLocateNormalisesLineEndingsAndQuotes(t *testing.T) {
	crlf := strings.ReplaceAll(sampleFile, "\n", "\r\n")
	loc := NewLocator(DefaultLocatorOptions()).Locate(crlf, "query := “SELECT * FROM users WHERE name = ’” + name + ”’”")
	if loc.Tier != TierExact || loc.StartLine != 6 || loc.EndLine != 6 {
		t.Fatalf("expected exact match on line 6, got %+v", loc)
	}
}

func TestLocateWhitespaceFlexible(t *testing.T) {
	snippet := "rows, err :=   db.Query(query)\n  if err != nil\n{"
	loc := NewLocator(DefaultLocatorOptions()).Locate(sampleFile, snippet)
	if loc.Tier != TierWhitespace {
		t.Fatalf("expected whitespace tier, got %+v", loc)
	}
	if loc.StartLine != 7 || loc.EndLine != 8 {
		t.Fatalf("expected lines [7,8], got [%d,%d]", loc.StartLine, loc.EndLine)
	}
}

func TestLocateStripsCodeFences(t *testing.T) {
	snippet := "```go\ndefer rows.Close()\n```"
	loc := NewLocator(DefaultLocatorOptions()).Locate(sampleFile, snippet)
	if loc.Tier != TierExact || loc.StartLine != 11 {
		t.Fatalf("expected exact match on line 11, got %+v", loc)
	}
}

func TestLocateSimilarityFallback(t *testing.T) {
	// Renamed identifiers: not present verbatim but close to lines 7-10.
	snippet := "rws, er := db.Query(qry)\nif er != nil {\n\treturn er\n}"
	loc := NewLocator(DefaultLocatorOptions()).Locate(sampleFile, snippet)
	if loc.Tier != TierSimilarity || !loc.Resolved {
		t.Fatalf("expected similarity tier, got %+v", loc)
	}
	if loc.StartLine != 7 || loc.EndLine != 10 {
		t.Fatalf("expected lines [7,10], got [%d,%d]", loc.StartLine, loc.EndLine)
	}
	if loc.Confidence < 0.6 {
		t.Fatalf("confidence below threshold: %v", loc.Confidence)
	}
	if !strings.Contains(loc.Region, "db.Query(query)") {
		t.Fatalf("region should be the file text, got %q", loc.Region)
	}
}

func TestLocateGivesUp(t *testing.T) {
	garbage := "zzqx !!! ### ~~~ @@@"
	loc := NewLocator(DefaultLocatorOptions()).Locate(sampleFile, garbage)
	if loc.Resolved || loc.StartLine != 1 || loc.EndLine != 1 || loc.Tier != TierNone {
		t.Fatalf("expected unresolved [1,1], got %+v", loc)
	}
	if loc.Region != garbage {
		t.Fatalf("expected original snippet back, got %q", loc.Region)
	}
}

func TestLocateSimilarityCapIsInconclusive(t *testing.T) {
	opts := DefaultLocatorOptions()
	opts.MaxWindowComparisons = 1
	snippet := "rws, er := db.Query(qry)\nif er != nil {\n\treturn er\n}"
	loc := NewLocator(opts).Locate(sampleFile, snippet)
	if loc.Resolved {
		t.Fatalf("expected an exhausted window budget to give up, got %+v", loc)
	}

	opts = DefaultLocatorOptions()
	opts.MaxFileLines = 2
	if loc := NewLocator(opts).Locate(sampleFile, snippet); loc.Resolved {
		t.Fatalf("expected file line cap to give up, got %+v", loc)
	}
}

func TestLocateSimilarityInLargeFile(t *testing.T) {
	var b strings.Builder
	for i := range 600 {
		fmt.Fprintf(&b, "total_%d = accumulate(%d)\n", i, i*7)
	}
	b.WriteString("rows, err := db.Query(query)\nif err != nil {\n\treturn err\n}\n")
	snippet := "rws, er := db.Query(qry)\nif er != nil {\n\treturn er\n}"

	loc := NewLocator(DefaultLocatorOptions()).Locate(b.String(), snippet)
	if loc.Tier != TierSimilarity || !loc.Resolved {
		t.Fatalf("expected similarity tier on a 604 line file, got tier=%s lines=[%d,%d]", loc.Tier, loc.StartLine, loc.EndLine)
	}
	if loc.StartLine != 601 || loc.EndLine != 604 {
		t.Fatalf("expected lines [601,604], got [%d,%d]", loc.StartLine, loc.EndLine)
	}
}

func TestWindowSizesClosestFirst(t *testing.T) {
	got := windowSizes(4, 2, 100)
	want := []int{4, 3, 5, 2, 6}
	if !slices.Equal(got, want) {
		t.Fatalf("windowSizes = %v, want %v", got, want)
	}
	if got := windowSizes(2, 3, 3); !slices.Equal(got, []int{2, 1, 3}) {
		t.Fatalf("expected sizes clipped to [1,3], got %v", got)
	}
}

func TestLocatorCustomChain(t *testing.T) {
	l := NewLocatorWith(whitespaceMatcher{})
	loc := l.Locate(sampleFile, "defer rows.Close()")
	if loc.Tier != TierWhitespace || loc.StartLine != 11 {
		t.Fatalf("got %+v", loc)
	}
}
