package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/CosmoTheDev/codesense/internal/config"
	"github.com/CosmoTheDev/codesense/models"
)

type recordingChannel struct {
	name string
	err  error

	mu   sync.Mutex
	sent []Event
}

func (c *recordingChannel) Name() string       { return c.name }
func (c *recordingChannel) IsConfigured() bool { return true }
func (c *recordingChannel) Send(_ context.Context, evt Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, evt)
	return c.err
}

func TestDispatcherFiltersEventsAndSeverity(t *testing.T) {
	ch := &recordingChannel{name: "rec"}
	d := NewDispatcherWith(config.NotifyConfig{MinSeverity: "High"}, ch)

	d.Notify(context.Background(), Event{Type: EventCriticalFinding, Severity: "medium"})
	d.Notify(context.Background(), Event{Type: EventCriticalFinding, Severity: "critical"})
	d.Notify(context.Background(), Event{Type: "unknown_event"})
	d.Notify(context.Background(), Event{Type: EventScanCompleted})

	if len(ch.sent) != 2 {
		t.Fatalf("expected 2 delivered events, got %d: %+v", len(ch.sent), ch.sent)
	}
	if ch.sent[0].Severity != "critical" || ch.sent[1].Type != EventScanCompleted {
		t.Fatalf("unexpected events: %+v", ch.sent)
	}
}

func TestDispatcherCustomEventsAndFailures(t *testing.T) {
	ch := &recordingChannel{name: "flaky", err: errors.New("down")}
	d := NewDispatcherWith(config.NotifyConfig{Events: []string{EventScanFailed}}, ch, NewWebhook(config.WebhookNotifyConfig{}))

	if got := d.Channels(); len(got) != 1 || got[0] != "flaky" {
		t.Fatalf("unconfigured channels should be skipped, got %v", got)
	}
	var failed []string
	d.OnFailure(func(name string) { failed = append(failed, name) })

	d.Notify(context.Background(), Event{Type: EventScanCompleted})
	d.Notify(context.Background(), Event{Type: EventScanFailed})
	if len(ch.sent) != 1 || len(failed) != 1 || failed[0] != "flaky" {
		t.Fatalf("sent=%d failed=%v", len(ch.sent), failed)
	}
}

func TestWebhookSignsPayload(t *testing.T) {
	var (
		gotSig  string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(config.WebhookNotifyConfig{URL: srv.URL, Secret: "s3cret"})
	evt := Event{
		Type:     EventCriticalFinding,
		Title:    "SQL injection",
		Severity: "critical",
		ScanID:   "scan-1",
		Finding:  &models.Finding{CWE: "CWE-89", FilePath: "db.py [3,4]"},
	}
	if err := wh.Send(context.Background(), evt); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotSig != "sha256="+Sign("s3cret", gotBody) {
		t.Fatalf("signature mismatch: %q", gotSig)
	}
	var p payload
	if err := json.Unmarshal(gotBody, &p); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if p.ScanID != "scan-1" || p.Finding == nil || p.Finding.CWE != "CWE-89" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestWebhookReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := NewWebhook(config.WebhookNotifyConfig{URL: srv.URL}).Send(context.Background(), Event{Type: EventScanFailed}); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestNATSSubjectAndConfiguration(t *testing.T) {
	n := NewNATS(config.NATSNotifyConfig{})
	if n.IsConfigured() {
		t.Fatal("NATS without URL should not be configured")
	}
	if got := n.Subject(Event{Type: EventScanCompleted}); got != "codesense.events.scan_completed" {
		t.Fatalf("Subject = %q", got)
	}
	n = NewNATS(config.NATSNotifyConfig{URL: "nats://127.0.0.1:4222", Subject: "ci"})
	if !n.IsConfigured() || n.Subject(Event{Type: EventScanFailed}) != "ci.scan_failed" {
		t.Fatalf("unexpected NATS channel config: %+v", n.cfg)
	}
}

func TestSlackMessageCarriesFindingFields(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer srv.Close()

	s := NewSlack(config.SlackNotifyConfig{WebhookURL: srv.URL})
	err := s.Send(context.Background(), Event{
		Type:     EventCriticalFinding,
		Title:    "Command injection",
		Severity: "critical",
		Finding:  &models.Finding{CWE: "CWE-78", FilePath: "tool.py [5,5]", CVSSScore: 9.8, MatchTier: "exact"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("expected one attachment, got %+v", got)
	}
	att := got.Attachments[0]
	if att.Color != "#FF0000" || len(att.Fields) != 5 || att.Fields[2].Value != "9.8" || att.Fields[3].Value != "exact" {
		t.Fatalf("unexpected attachment: %+v", att)
	}
	if !s.IsConfigured() || NewSlack(config.SlackNotifyConfig{}).IsConfigured() {
		t.Fatal("IsConfigured should follow the webhook URL")
	}
}
