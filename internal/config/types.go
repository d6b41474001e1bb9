package config

import "time"

// Config is the root configuration structure for codesense.
// Serialised to ~/.codesense/config.json.
type Config struct {
	Database  DatabaseConfig   `mapstructure:"database"  json:"database"`
	AI        AIConfig         `mapstructure:"ai"        json:"ai"`
	Knowledge KnowledgeConfig  `mapstructure:"knowledge" json:"knowledge"`
	Scan      ScanConfig       `mapstructure:"scan"      json:"scan"`
	Locator   LocatorConfig    `mapstructure:"locator"   json:"locator"`
	Gateway   GatewayConfig    `mapstructure:"gateway"   json:"gateway"`
	Notify    NotifyConfig     `mapstructure:"notify"    json:"notify"`
	Schedules []ScheduleConfig `mapstructure:"schedules" json:"schedules"`
}

// DatabaseConfig controls the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// AIConfig controls the inference backend.
type AIConfig struct {
	// Provider is "ollama" (default), "openai" or "none".
	Provider  string `mapstructure:"provider"       json:"provider"`
	OpenAIKey string `mapstructure:"openai_api_key" json:"openai_api_key"`
	Model     string `mapstructure:"model"          json:"model"`
	// BaseURL overrides the OpenAI endpoint (useful for proxies or LM Studio).
	BaseURL   string `mapstructure:"base_url"   json:"base_url"`
	OllamaURL string `mapstructure:"ollama_url" json:"ollama_url"`
	// Fallback lists providers tried in order when the primary fails.
	Fallback    []string `mapstructure:"fallback"    json:"fallback"`
	Temperature float64  `mapstructure:"temperature" json:"temperature"`
	NumCtx      int      `mapstructure:"num_ctx"     json:"num_ctx"`
	NumPredict  int      `mapstructure:"num_predict" json:"num_predict"`
	// OptimizeForLocal enables stricter local timeouts with one retry.
	OptimizeForLocal bool `mapstructure:"optimize_for_local" json:"optimize_for_local"`
}

// KnowledgeConfig points at the security reference index used to ground
// every prompt. An empty Path disables retrieval.
type KnowledgeConfig struct {
	Path      string `mapstructure:"path"       json:"path"`
	TopK      int    `mapstructure:"top_k"      json:"top_k"`
	CacheSize int    `mapstructure:"cache_size" json:"cache_size"`
}

// ScanConfig tunes the scanning pipeline.
type ScanConfig struct {
	MaxFileWorkers     int           `mapstructure:"max_file_workers"     json:"max_file_workers"`
	ChunkSize          int           `mapstructure:"chunk_size"           json:"chunk_size"`
	ChunkOverlap       int           `mapstructure:"chunk_overlap"        json:"chunk_overlap"`
	MinContentChars    int           `mapstructure:"min_content_chars"    json:"min_content_chars"`
	ChunkBatchSize     int           `mapstructure:"chunk_batch_size"     json:"chunk_batch_size"`
	ChunkConcurrency   int           `mapstructure:"chunk_concurrency"    json:"chunk_concurrency"`
	CacheEnabled       bool          `mapstructure:"cache_enabled"        json:"cache_enabled"`
	LoadThreshold      float64       `mapstructure:"load_threshold"       json:"load_threshold"`
	ThrottlePause      time.Duration `mapstructure:"throttle_pause"       json:"throttle_pause"`
	LoadSampleInterval time.Duration `mapstructure:"load_sample_interval" json:"load_sample_interval"`
	// KeepRawOutputs stores every inference answer (zstd compressed).
	KeepRawOutputs bool `mapstructure:"keep_raw_outputs" json:"keep_raw_outputs"`
	// Profile names the review profile applied when a request names none.
	Profile     string `mapstructure:"profile"      json:"profile"`
	ProfilesDir string `mapstructure:"profiles_dir" json:"profiles_dir"`
}

// LocatorConfig tunes snippet-to-line resolution.
type LocatorConfig struct {
	SimilarityThreshold  float64 `mapstructure:"similarity_threshold"   json:"similarity_threshold"`
	WindowSlack          int     `mapstructure:"window_slack"           json:"window_slack"`
	MaxFileLines         int     `mapstructure:"max_file_lines"         json:"max_file_lines"`
	MaxWindowComparisons int     `mapstructure:"max_window_comparisons" json:"max_window_comparisons"`
}

// GatewayConfig controls the persistent gateway daemon.
type GatewayConfig struct {
	// Port is the localhost HTTP port the gateway listens on (default: 6080).
	Port int `mapstructure:"port" json:"port"`
}

// NotifyConfig controls outbound notifications.
type NotifyConfig struct {
	// MinSeverity filters finding events ("" = all).
	MinSeverity string `mapstructure:"min_severity" json:"min_severity"`
	// Events lists event types to send; empty uses the defaults.
	Events  []string            `mapstructure:"events"  json:"events"`
	Slack   SlackNotifyConfig   `mapstructure:"slack"   json:"slack"`
	Webhook WebhookNotifyConfig `mapstructure:"webhook" json:"webhook"`
	NATS    NATSNotifyConfig    `mapstructure:"nats"    json:"nats"`
}

// SlackNotifyConfig holds a Slack incoming webhook.
type SlackNotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" json:"webhook_url"`
}

// WebhookNotifyConfig holds a generic HTTP endpoint with optional HMAC secret.
type WebhookNotifyConfig struct {
	URL    string `mapstructure:"url"    json:"url"`
	Secret string `mapstructure:"secret" json:"secret"`
}

// NATSNotifyConfig publishes events to a NATS subject.
type NATSNotifyConfig struct {
	URL     string `mapstructure:"url"     json:"url"`
	Subject string `mapstructure:"subject" json:"subject"`
}

// ScheduleConfig runs a scan of Path on a cron expression while the gateway
// is up.
type ScheduleConfig struct {
	Name string `mapstructure:"name" json:"name"`
	Expr string `mapstructure:"expr" json:"expr"`
	Path string `mapstructure:"path" json:"path"`
	// Profile overrides scan.profile for this schedule.
	Profile string `mapstructure:"profile" json:"profile"`
}
