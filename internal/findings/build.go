package findings

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CosmoTheDev/codesense/models"
)

// Meta carries the scan context stamped onto every finding of a file.
type Meta struct {
	ScanID    string
	Path      string // relative to the scan root
	CreatedBy string
	Now       time.Time
}

// NewCode returns a short random finding code such as "f-1a2b3c4d".
func NewCode() string {
	return "f-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// UniqueKey is the storage idempotency key of a finding.
func UniqueKey(scanID, path, dedupKey string) string {
	sum := sha256.Sum256([]byte(scanID + "|" + path + "|" + dedupKey))
	return hex.EncodeToString(sum[:])
}

// NewFinding assembles the stored record from a draft and its location.
func NewFinding(d Draft, loc Location, meta Meta) models.Finding {
	if meta.Now.IsZero() {
		meta.Now = time.Now().UTC()
	}
	region := loc.Region
	if r := []rune(region); len(r) > MaxCodeSnipLen {
		region = string(r[:MaxCodeSnipLen])
	}
	return models.Finding{
		UniqueKey:          UniqueKey(meta.ScanID, meta.Path, d.DedupKey()),
		ScanID:             meta.ScanID,
		CWE:                d.CWE,
		CVSSVector:         d.CVSSVector,
		CVSSScore:          d.CVSSScore,
		Code:               NewCode(),
		Title:              d.Title,
		Description:        d.Description,
		Severity:           d.Severity,
		FilePath:           models.AnnotatedPath(meta.Path, loc.StartLine, loc.EndLine),
		SourcePath:         meta.Path,
		CodeSnip:           region,
		SecurityRisk:       d.Impact,
		Mitigation:         d.Mitigation,
		Status:             models.FindingStatusOpen,
		Reference:          d.Reference,
		CreatedAt:          meta.Now,
		CreatedBy:          meta.CreatedBy,
		LineStart:          loc.StartLine,
		LineEnd:            loc.EndLine,
		Affected:           d.Affected,
		LocationResolved:   loc.Resolved,
		LocationConfidence: loc.Confidence,
		MatchTier:          loc.Tier,
	}
}
