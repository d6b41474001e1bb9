package notify

import (
	"context"
	"time"

	"github.com/CosmoTheDev/codesense/models"
)

// Event types emitted by the scanner.
const (
	EventScanCompleted   = "scan_completed"
	EventScanFailed      = "scan_failed"
	EventCriticalFinding = "critical_finding"
)

// Event represents a notification event from codesense.
type Event struct {
	Type     string // one of the Event* constants
	Title    string
	Body     string
	URL      string // optional deep link (e.g. gateway scan URL)
	Severity string // "critical" | "high" | "medium" | "low" | ""
	ScanID   string
	Finding  *models.Finding // set on finding events
	Metadata map[string]any  // extra structured data
}

// Channel is implemented by each notification provider.
type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, evt Event) error
}

// payload is the JSON body shared by the webhook and NATS channels.
type payload struct {
	Type     string          `json:"type"`
	Title    string          `json:"title"`
	Body     string          `json:"body"`
	Severity string          `json:"severity,omitempty"`
	ScanID   string          `json:"scan_id,omitempty"`
	URL      string          `json:"url,omitempty"`
	Finding  *models.Finding `json:"finding,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
	TS       string          `json:"ts"`
}

func newPayload(evt Event, now time.Time) payload {
	return payload{
		Type:     evt.Type,
		Title:    evt.Title,
		Body:     evt.Body,
		Severity: evt.Severity,
		ScanID:   evt.ScanID,
		URL:      evt.URL,
		Finding:  evt.Finding,
		Metadata: evt.Metadata,
		TS:       now.UTC().Format(time.RFC3339),
	}
}
