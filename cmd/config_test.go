package cmd

import (
	"testing"

	"github.com/CosmoTheDev/codesense/internal/config"
)

func TestRedactMasksSecrets(t *testing.T) {
	cfg := &config.Config{}
	cfg.AI.OpenAIKey = "sk-live-123"
	cfg.Database.DSN = "user:pass@tcp(db:3306)/codesense"
	cfg.Notify.Webhook.Secret = "hunter2"
	cfg.Notify.Slack.WebhookURL = "https://hooks.slack.com/services/T/B/X"

	redact(cfg)

	if cfg.AI.OpenAIKey != "sk-***" || cfg.Database.DSN != "***" || cfg.Notify.Webhook.Secret != "***" {
		t.Fatalf("secrets not redacted: %+v", cfg)
	}
	if cfg.Notify.Slack.WebhookURL != "https://hooks.slack.com/***" {
		t.Fatalf("slack webhook not redacted: %q", cfg.Notify.Slack.WebhookURL)
	}
}

func TestRunnerOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Scan.MaxFileWorkers = 7
	cfg.Scan.ChunkSize = 1000
	cfg.Scan.ChunkOverlap = 100
	cfg.Scan.ChunkBatchSize = 3
	cfg.Scan.KeepRawOutputs = true
	cfg.Locator.SimilarityThreshold = 0.75

	opts := runnerOptions(cfg)
	if opts.MaxFileWorkers != 7 || opts.Chunker.Size != 1000 || opts.Chunker.Overlap != 100 || opts.ChunkBatchSize != 3 {
		t.Fatalf("unexpected pipeline options: %+v", opts)
	}
	if !opts.KeepRawOutputs || opts.Locator.SimilarityThreshold != 0.75 {
		t.Fatalf("unexpected storage/locator options: %+v", opts)
	}
}
