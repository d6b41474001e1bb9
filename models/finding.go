package models

import (
	"fmt"
	"time"
)

// Finding lifecycle status values.
const (
	FindingStatusOpen = "open"
)

// Finding is a normalised vulnerability record produced from one chunk of
// inference output and resolved against the scanned file.
type Finding struct {
	ID         int64         `json:"id"          db:"id"`
	UniqueKey  string        `json:"unique_key"  db:"unique_key"` // sha256(scan_id|source_path|dedup key)
	ScanID     string        `json:"scan_id"     db:"scan_id"`
	CWE        string        `json:"cwe"         db:"cwe"`
	CVSSVector string        `json:"cvss_vector" db:"cvss_vector"`
	CVSSScore  float64       `json:"cvss_score"  db:"cvss_score"`
	Code       string        `json:"code"        db:"code"` // f-xxxxxxxx
	Title      string        `json:"title"       db:"title"`
	// Description is the generated proof-of-concept sentence.
	Description  string        `json:"description"   db:"description"`
	Severity     SeverityLevel `json:"severity"      db:"severity"`
	FilePath     string        `json:"file_path"     db:"file_path"` // "<path> [start,end]"
	SourcePath   string        `json:"source_path"   db:"source_path"`
	CodeSnip     string        `json:"code_snip"     db:"code_snip"`
	SecurityRisk string        `json:"security_risk" db:"security_risk"`
	Mitigation   string        `json:"mitigation"    db:"mitigation"`
	Status       string        `json:"status"        db:"status"`
	Deleted      bool          `json:"deleted"       db:"deleted"`
	Approved     bool          `json:"approved"      db:"approved"`
	Reference    string        `json:"reference"     db:"reference"` // MITRE URL or "NA"
	CreatedAt    time.Time     `json:"created_at"    db:"created_at"`
	CreatedBy    string        `json:"created_by"    db:"created_by"`
	LineStart    int           `json:"line_start"    db:"line_start"`
	LineEnd      int           `json:"line_end"      db:"line_end"`
	Affected     string        `json:"affected"      db:"affected"`
	// LocationResolved is false when the lines are the [1,1] fallback.
	LocationResolved   bool    `json:"location_resolved"   db:"location_resolved"`
	LocationConfidence float64 `json:"location_confidence" db:"location_confidence"`
	MatchTier          string  `json:"match_tier"          db:"match_tier"`
}

// Lines returns the inclusive 1-indexed line range.
func (f *Finding) Lines() [2]int {
	return [2]int{f.LineStart, f.LineEnd}
}

// AnnotatedPath renders a source path with its resolved line range.
func AnnotatedPath(path string, start, end int) string {
	return fmt.Sprintf("%s [%d,%d]", path, start, end)
}
