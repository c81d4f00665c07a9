package common

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Publisher   PublisherConfig `toml:"publisher"`
	Analytics   AnalyticsConfig `toml:"analytics"`
	Logging     LoggingConfig   `toml:"logging"`
	LLM         LLMConfig       `toml:"llm"`
	Transcriber TranscriberConfig `toml:"transcriber"`
	Social      SocialConfig    `toml:"social"`
	Tiers       TiersConfig     `toml:"tiers"`
	Reclaimer   ReclaimerConfig `toml:"reclaimer"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	Badger      BadgerConfig `toml:"badger"`
	ArtifactDir string       `toml:"artifact_dir"` // transient source artifacts
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type PipelineConfig struct {
	DurationLimitSeconds int    `toml:"duration_limit_seconds"` // max source media length
	TranscribeRetryDelay string `toml:"transcribe_retry_delay"` // e.g. "5s", one stage-local retry
	MaxThreadsPerJob     int    `toml:"max_threads_per_job"`
}

type PublisherConfig struct {
	WindowDuration   string `toml:"window_duration"`    // sliding window size, e.g. "15m"
	MaxActions       int    `toml:"max_actions"`        // post cap inside the window
	MessageDelay     string `toml:"message_delay"`      // pause between thread messages, e.g. "2s"
	MaxMessages      int    `toml:"max_messages"`       // per-thread message cap
	MaxMessageLength int    `toml:"max_message_length"` // per-message length cap
}

type AnalyticsConfig struct {
	CacheTTL    string `toml:"cache_ttl"`   // e.g. "30m"
	Concurrency int    `toml:"concurrency"` // metric fan-out bound
	TopPosts    int    `toml:"top_posts"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`
	Output []string `toml:"output"` // "console", "file"
}

type LLMConfig struct {
	Provider string       `toml:"provider"` // "claude" or "gemini"
	Claude   ClaudeConfig `toml:"claude"`
	Gemini   GeminiConfig `toml:"gemini"`
}

type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
	Timeout   string `toml:"timeout"`
}

type GeminiConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	Timeout string `toml:"timeout"`
}

type TranscriberConfig struct {
	Endpoint string `toml:"endpoint"` // Whisper-compatible transcription service
	Timeout  string `toml:"timeout"`
}

type SocialConfig struct {
	BaseURL           string `toml:"base_url"`
	AccessToken       string `toml:"access_token"`
	RequestsPerSecond int    `toml:"requests_per_second"` // upstream courtesy pacing
}

type TiersConfig struct {
	Path string `toml:"path"` // tier catalog YAML file
}

type ReclaimerConfig struct {
	Delay         string `toml:"delay"`          // grace period before artifact deletion, e.g. "1h"
	SweepSchedule string `toml:"sweep_schedule"` // cron expression for the cleanup sweep
}

// DefaultConfig returns configuration defaults applied before any file or
// environment override.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger:      BadgerConfig{Path: "./data/threadforge"},
			ArtifactDir: "./data/artifacts",
		},
		Pipeline: PipelineConfig{
			DurationLimitSeconds: 3 * 60 * 60,
			TranscribeRetryDelay: "5s",
			MaxThreadsPerJob:     3,
		},
		Publisher: PublisherConfig{
			WindowDuration:   "15m",
			MaxActions:       50,
			MessageDelay:     "2s",
			MaxMessages:      25,
			MaxMessageLength: 280,
		},
		Analytics: AnalyticsConfig{
			CacheTTL:    "30m",
			Concurrency: 5,
			TopPosts:    5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"console"},
		},
		LLM: LLMConfig{
			Provider: "claude",
			Claude:   ClaudeConfig{Timeout: "120s", MaxTokens: 8192},
			Gemini:   GeminiConfig{Timeout: "120s"},
		},
		Transcriber: TranscriberConfig{Timeout: "600s"},
		Social:      SocialConfig{BaseURL: "https://api.x.com/2", RequestsPerSecond: 1},
		Tiers:       TiersConfig{Path: "./tiers.yaml"},
		Reclaimer: ReclaimerConfig{
			Delay:         "1h",
			SweepSchedule: "*/5 * * * *",
		},
	}
}

// LoadConfig loads configuration from defaults, then the optional TOML file,
// then environment variable overrides.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies THREADFORGE_* environment variables on top of
// file configuration. Only secrets and deploy-specific paths are exposed.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("THREADFORGE_CLAUDE_API_KEY"); v != "" {
		config.LLM.Claude.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && config.LLM.Claude.APIKey == "" {
		config.LLM.Claude.APIKey = v
	}
	if v := os.Getenv("THREADFORGE_GEMINI_API_KEY"); v != "" {
		config.LLM.Gemini.APIKey = v
	}
	if v := os.Getenv("THREADFORGE_SOCIAL_TOKEN"); v != "" {
		config.Social.AccessToken = v
	}
	if v := os.Getenv("THREADFORGE_DATA_DIR"); v != "" {
		config.Storage.Badger.Path = v
	}
}

// Validate checks durations and bounds that would otherwise fail at first use.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"pipeline.transcribe_retry_delay": c.Pipeline.TranscribeRetryDelay,
		"publisher.window_duration":       c.Publisher.WindowDuration,
		"publisher.message_delay":         c.Publisher.MessageDelay,
		"analytics.cache_ttl":             c.Analytics.CacheTTL,
		"reclaimer.delay":                 c.Reclaimer.Delay,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}
	if c.Publisher.MaxActions <= 0 {
		return fmt.Errorf("publisher.max_actions must be positive")
	}
	if c.Analytics.Concurrency <= 0 {
		return fmt.Errorf("analytics.concurrency must be positive")
	}
	return nil
}
