package models

import "strings"

// SeverityLevel is the canonical, lower-cased severity of a finding.
type SeverityLevel string

const (
	SeverityCritical SeverityLevel = "critical"
	SeverityHigh     SeverityLevel = "high"
	SeverityMedium   SeverityLevel = "medium"
	SeverityLow      SeverityLevel = "low"
)

// AllSeverities lists the canonical levels from most to least severe.
var AllSeverities = []SeverityLevel{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Weight returns a numeric weight for sorting (higher = more severe).
func (s SeverityLevel) Weight() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func (s SeverityLevel) String() string {
	return string(s)
}

// Valid reports whether s is one of the four canonical levels.
func (s SeverityLevel) Valid() bool {
	return s.Weight() > 0
}

// ParseSeverity normalises a user-supplied severity threshold such as
// "High" or "CRITICAL". Unknown strings return "" and false.
func ParseSeverity(raw string) (SeverityLevel, bool) {
	s := SeverityLevel(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", false
	}
	return s, true
}

// AtLeast reports whether s is at least as severe as min.
func (s SeverityLevel) AtLeast(min SeverityLevel) bool {
	return s.Weight() >= min.Weight()
}
