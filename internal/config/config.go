package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir    = ".codesense"
	DefaultConfigFile   = "config.json"
	DefaultDBFile       = ".codesense/codesense.db"
	DefaultKnowledgeDir = ".codesense/knowledge"
)

// Load reads the config file (creating it with defaults if absent) and returns
// a populated Config. The configPath flag may override the default location.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("codesense")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file exists but is malformed.
			if !isNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
		// No config yet; defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	expandPaths(&cfg, home)
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	if configPath == "" {
		configPath = filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// EnsureDir creates ~/.codesense and its knowledge directory if they don't exist.
func EnsureDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dirs := []string{
		filepath.Join(home, DefaultConfigDir),
		filepath.Join(home, DefaultKnowledgeDir),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}
	return nil
}

// setDefaults populates viper with sensible out-of-the-box values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("ai.provider", "ollama")
	v.SetDefault("ai.model", "codellama:13b")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.ollama_url", "http://localhost:11434")
	v.SetDefault("ai.temperature", 0.1)
	v.SetDefault("ai.num_ctx", 4096)
	v.SetDefault("ai.num_predict", 1024)
	v.SetDefault("ai.optimize_for_local", false)

	v.SetDefault("knowledge.path", "")
	v.SetDefault("knowledge.top_k", 3)
	v.SetDefault("knowledge.cache_size", 256)

	v.SetDefault("scan.max_file_workers", 20)
	v.SetDefault("scan.chunk_size", 2048)
	v.SetDefault("scan.chunk_overlap", 300)
	v.SetDefault("scan.min_content_chars", 50)
	v.SetDefault("scan.chunk_batch_size", 5)
	v.SetDefault("scan.chunk_concurrency", 4)
	v.SetDefault("scan.cache_enabled", true)
	v.SetDefault("scan.load_threshold", 90.0)
	v.SetDefault("scan.throttle_pause", "1s")
	v.SetDefault("scan.load_sample_interval", "100ms")
	v.SetDefault("scan.keep_raw_outputs", false)
	v.SetDefault("scan.profile", "")
	v.SetDefault("scan.profiles_dir", filepath.Join(home, DefaultConfigDir, "profiles"))

	v.SetDefault("locator.similarity_threshold", 0.6)
	v.SetDefault("locator.window_slack", 6)
	v.SetDefault("locator.max_file_lines", 5000)
	v.SetDefault("locator.max_window_comparisons", 4000)

	v.SetDefault("gateway.port", 6080)
	v.SetDefault("notify.nats.subject", "codesense.events")
}

// expandPaths resolves ~ in configured paths.
func expandPaths(cfg *Config, home string) {
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
	cfg.Knowledge.Path = expandHome(cfg.Knowledge.Path, home)
	cfg.Scan.ProfilesDir = expandHome(cfg.Scan.ProfilesDir, home)
	for i := range cfg.Schedules {
		cfg.Schedules[i].Path = expandHome(cfg.Schedules[i].Path, home)
	}
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}
