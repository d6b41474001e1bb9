package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/CosmoTheDev/codesense/internal/config"
	"github.com/CosmoTheDev/codesense/models"
)

// SlackChannel posts events to a Slack incoming webhook as one attachment.
type SlackChannel struct {
	cfg    config.SlackNotifyConfig
	client *http.Client
	now    func() time.Time
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	TitleLink string       `json:"title_link,omitempty"`
	Text      string       `json:"text"`
	Fields    []slackField `json:"fields,omitempty"`
	Footer    string       `json:"footer"`
	TS        int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlack creates a SlackChannel from cfg.
func NewSlack(cfg config.SlackNotifyConfig) *SlackChannel {
	return &SlackChannel{cfg: cfg, client: &http.Client{Timeout: 5 * time.Second}, now: time.Now}
}

func (s *SlackChannel) Name() string       { return "slack" }
func (s *SlackChannel) IsConfigured() bool { return s.cfg.WebhookURL != "" }

func (s *SlackChannel) Send(ctx context.Context, evt Event) error {
	body, err := json.Marshal(s.message(evt))
	if err != nil {
		return fmt.Errorf("encoding slack message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req) // #nosec G107 -- WebhookURL is a user-configured Slack incoming webhook URL
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (s *SlackChannel) message(evt Event) slackMessage {
	att := slackAttachment{
		Color:     severityColor(models.SeverityLevel(evt.Severity)),
		Title:     evt.Title,
		TitleLink: evt.URL,
		Text:      evt.Body,
		Footer:    "codesense",
		TS:        s.now().Unix(),
	}
	if f := evt.Finding; f != nil {
		att.Fields = []slackField{
			{Title: "Location", Value: f.FilePath, Short: true},
			{Title: "CWE", Value: f.CWE, Short: true},
			{Title: "CVSS", Value: strconv.FormatFloat(f.CVSSScore, 'f', 1, 64), Short: true},
			{Title: "Match", Value: f.MatchTier, Short: true},
			{Title: "Mitigation", Value: f.Mitigation},
		}
	}
	return slackMessage{Text: evt.Title, Attachments: []slackAttachment{att}}
}

func severityColor(sev models.SeverityLevel) string {
	switch sev {
	case models.SeverityCritical:
		return "#FF0000"
	case models.SeverityHigh:
		return "#FF6600"
	case models.SeverityMedium:
		return "#FFAA00"
	case models.SeverityLow:
		return "#0099FF"
	default:
		return "#888888"
	}
}
