package findings

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CosmoTheDev/codesense/models"
)

var errMissingField = errors.New("title or impact empty after cleaning")

// Draft is a finding parsed from inference text, before its location in
// the file is resolved.
type Draft struct {
	Title       string
	CWE         string
	Severity    models.SeverityLevel
	CVSSScore   float64
	CVSSVector  string
	Impact      string
	Mitigation  string
	Affected    string
	Snippet     string // cleaned and truncated
	RawSnippet  string // as emitted, used for location
	Reference   string
	Description string
	Grammar     string
}

// DedupKey identifies a draft within one file.
func (d *Draft) DedupKey() string {
	sum := sha256.Sum256([]byte(d.Title + d.CWE + d.Affected))
	return hex.EncodeToString(sum[:])
}

// Extractor turns raw inference text into drafts using an ordered list of
// grammars. Matches from every grammar are accumulated.
type Extractor struct {
	grammars []Grammar
}

// NewExtractor returns an extractor over grammars, or DefaultGrammars when
// none are given.
func NewExtractor(grammars ...Grammar) *Extractor {
	if len(grammars) == 0 {
		grammars = DefaultGrammars
	}
	return &Extractor{grammars: grammars}
}

// Extract parses text. Malformed matches are logged and skipped.
func (e *Extractor) Extract(text string) []Draft {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []Draft
	for _, g := range e.grammars {
		for i, m := range g.Matches(text) {
			d, err := buildDraft(m)
			if err != nil {
				slog.Debug("Skipping finding match", "grammar", g.Name(), "match", i, "error", err)
				continue
			}
			d.Grammar = g.Name()
			out = append(out, d)
		}
	}
	return out
}

func buildDraft(m RawMatch) (d Draft, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleaning match: %v", r)
		}
	}()

	d.Title = cleanField(m.Title, maxTitleLen)
	d.Impact = cleanField(m.Impact, maxImpactLen)
	if d.Title == "" || d.Impact == "" {
		return Draft{}, errMissingField
	}

	rating := RateSeverity(strings.ToUpper(cleanField(m.Severity, maxSeverityLen)))
	d.Severity = rating.Level
	d.CVSSScore = rating.Score
	d.CVSSVector = rating.Vector

	d.CWE = NormalizeCWE(cleanField(m.CWE, maxCWELen))
	d.Reference = CWEReference(d.CWE)
	d.Mitigation = cleanField(m.Mitigation, maxMitigationLen)
	d.Affected = cleanField(m.Affected, maxAffectedLen)
	d.Snippet = cleanField(m.Snippet, maxSnippetLen)
	d.RawSnippet = m.Snippet
	d.Description = ProofOfConcept(d.Title, d.Impact)
	return d, nil
}
