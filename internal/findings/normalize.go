package findings

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var cweIDPattern = regexp.MustCompile(`(?i)CWE-(\d+)`)

// cleanField collapses all whitespace runs to single spaces and truncates
// the result to max runes, marking the cut with "...".
func cleanField(s string, max int) string {
	cleaned := strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(cleaned) <= max {
		return cleaned
	}
	r := []rune(cleaned)
	return string(r[:max-3]) + "..."
}

// NormalizeCWE brings a model-supplied CWE value into CWE-<x> form.
// Bare numbers become CWE-<n>; other text lacking any CWE marker is
// prefixed. An empty value becomes CWE-Unknown.
func NormalizeCWE(raw string) string {
	cwe := strings.TrimSpace(raw)
	if cwe == "" {
		return "CWE-Unknown"
	}
	if strings.HasPrefix(strings.ToUpper(cwe), "CWE-") {
		return cwe
	}
	if isDigits(cwe) {
		return "CWE-" + cwe
	}
	lower := strings.ToLower(cwe)
	if !strings.Contains(lower, "cwe") && !strings.Contains(lower, "common weakness") {
		return "CWE-" + cwe
	}
	return cwe
}

// CWEReference returns the MITRE definition URL for the first numeric CWE
// id in cwe, or "NA" when there is none.
func CWEReference(cwe string) string {
	m := cweIDPattern.FindStringSubmatch(cwe)
	if m == nil {
		return "NA"
	}
	return fmt.Sprintf("https://cwe.mitre.org/data/definitions/%s.html", m[1])
}

// ProofOfConcept renders the description stored on every finding.
func ProofOfConcept(title, impact string) string {
	return fmt.Sprintf("This proof of concept demonstrates how %s can occur. %s", strings.ToLower(title), impact)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
