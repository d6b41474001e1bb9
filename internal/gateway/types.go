package gateway

import "github.com/CosmoTheDev/codesense/models"

// SSEEvent is serialised as JSON and pushed over the GET /events SSE stream.
type SSEEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// ScanView is a scan plus its derived progress figures.
type ScanView struct {
	models.Scan
	Percentage float64 `json:"percentage"`
	Remaining  int     `json:"remaining"`
}

func newScanView(s models.Scan) ScanView {
	return ScanView{Scan: s, Percentage: s.Percentage(), Remaining: s.Remaining()}
}

// Status is a live snapshot of the gateway.
type Status struct {
	ActiveScanID  string   `json:"active_scan_id,omitempty"`
	Schedules     int      `json:"schedules"`
	Notifiers     []string `json:"notifiers"`
	LastTriggerAt string   `json:"last_trigger_at,omitempty"`
	UptimeSeconds int64    `json:"uptime_seconds"`
}

// ScanRequest is the body of POST /api/scans. Exactly one of Path and Repo
// must be set.
type ScanRequest struct {
	Path        string `json:"path"`
	Repo        string `json:"repo"`
	Branch      string `json:"branch"`
	Name        string `json:"name"`
	TriggeredBy string `json:"triggered_by"`
	// Profile names a review profile; empty falls back to scan.profile.
	Profile string `json:"profile"`
}

// Schedule is a configured cron entry and its last run.
type Schedule struct {
	Name      string  `json:"name"`
	Expr      string  `json:"expr"`
	Path      string  `json:"path"`
	Profile   string  `json:"profile,omitempty"`
	LastRunAt *string `json:"last_run_at,omitempty"`
	LastError string  `json:"last_error,omitempty"`
}
