package findings

import "github.com/CosmoTheDev/codesense/models"

// SeverityRating is the CVSS rating attached to a canonical severity.
type SeverityRating struct {
	Level  models.SeverityLevel
	Score  float64
	Vector string
}

// severityTable maps an upper-cased severity label to its rating.
var severityTable = map[string]SeverityRating{
	"CRITICAL": {models.SeverityCritical, 9.8, "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"},
	"HIGH":     {models.SeverityHigh, 8.8, "CVSS:3.1/AV:N/AC:L/PR:L/UI:N/S:U/C:H/I:H/A:H"},
	"MEDIUM":   {models.SeverityMedium, 6.5, "CVSS:3.1/AV:N/AC:L/PR:L/UI:N/S:U/C:L/I:L/A:L"},
	"LOW":      {models.SeverityLow, 3.1, "CVSS:3.1/AV:L/AC:H/PR:L/UI:R/S:U/C:L/I:N/A:N"},
}

// defaultRating applies to labels the model invents.
var defaultRating = SeverityRating{models.SeverityMedium, 5.0, "CVSS:3.1/AV:L/AC:H/PR:L/UI:N/S:U/C:L/I:L/A:N"}

// RateSeverity maps a raw severity label to its canonical rating.
// Unknown labels fall back to medium/5.0.
func RateSeverity(label string) SeverityRating {
	if r, ok := severityTable[label]; ok {
		return r
	}
	return defaultRating
}

// Per-field length limits applied while cleaning extracted text.
const (
	maxTitleLen      = 200
	maxCWELen        = 100
	maxSeverityLen   = 20
	maxImpactLen     = 1000
	maxMitigationLen = 1000
	maxAffectedLen   = 200
	maxSnippetLen    = 500

	// MaxCodeSnipLen bounds the resolved region stored on a finding.
	MaxCodeSnipLen = 2000
)
