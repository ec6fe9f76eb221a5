package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	fctx "github.com/friday-ai/friday/internal/context"
	ferrors "github.com/friday-ai/friday/internal/errors"
)

// ContextConfig holds token budget settings
type ContextConfig struct {
	SoftTokenLimit       int     `yaml:"soft_token_limit" json:"soft_token_limit"`             // Compaction trigger
	HardTokenLimit       int     `yaml:"hard_token_limit" json:"hard_token_limit"`             // Never exceeded after compaction
	SummaryTokenOverhead int     `yaml:"summary_token_overhead" json:"summary_token_overhead"` // Token cost charged per summary turn
	WarnThreshold        float64 `yaml:"warn_threshold" json:"warn_threshold"`                 // Fraction of soft limit (default: 0.80)
	PinLatestUser        bool    `yaml:"pin_latest_user" json:"pin_latest_user"`               // Keep the current request out of compaction
	PreserveRecent       int     `yaml:"preserve_recent" json:"preserve_recent"`               // Trailing turns never summarized
	MaskPreserveRecent   int     `yaml:"mask_preserve_recent" json:"mask_preserve_recent"`     // Trailing tool results kept verbatim in prompts
}

// LoopConfig holds loop detector settings
type LoopConfig struct {
	WindowSize      int      `yaml:"window_size" json:"window_size"`           // N
	RepeatThreshold int      `yaml:"repeat_threshold" json:"repeat_threshold"` // K
	Tolerance       int      `yaml:"tolerance" json:"tolerance"`               // Distinct calls allowed between repeats
	MaxCycleLength  int      `yaml:"max_cycle_length" json:"max_cycle_length"` // Longest A-B-...-A-B period detected
	MaxRedirects    int      `yaml:"max_redirects" json:"max_redirects"`       // Abort after this many episodes (0: never)
	VolatileFields  []string `yaml:"volatile_fields" json:"volatile_fields"`   // Argument keys ignored for every tool
}

// SummarizerConfig selects and tunes the span summarizer
type SummarizerConfig struct {
	Provider         string `yaml:"provider" json:"provider"` // digest or anthropic
	Model            string `yaml:"model" json:"model"`
	MaxTokens        int    `yaml:"max_tokens" json:"max_tokens"`
	TokensPerMinute  int    `yaml:"tokens_per_minute" json:"tokens_per_minute"`
	FailureThreshold int    `yaml:"failure_threshold" json:"failure_threshold"` // Consecutive failures before the circuit opens
	CooldownSeconds  int    `yaml:"cooldown_seconds" json:"cooldown_seconds"`
	APIKey           string `yaml:"-" json:"-"` // From environment only
}

// AgentConfig holds tool dispatch settings
type AgentConfig struct {
	MaxConcurrency   int    `yaml:"max_concurrency" json:"max_concurrency"`
	WorkingDirectory string `yaml:"working_directory" json:"working_directory"`
}

// SessionConfig holds snapshot persistence settings
type SessionConfig struct {
	Dir         string `yaml:"dir" json:"dir"`
	Format      string `yaml:"format" json:"format"` // json or cbor
	MaxSessions int    `yaml:"max_sessions" json:"max_sessions"`
}

// Config holds the application configuration
type Config struct {
	Context    ContextConfig    `yaml:"context" json:"context"`
	Loop       LoopConfig       `yaml:"loop" json:"loop"`
	Summarizer SummarizerConfig `yaml:"summarizer" json:"summarizer"`
	Agent      AgentConfig      `yaml:"agent" json:"agent"`
	Session    SessionConfig    `yaml:"session" json:"session"`

	// Internal: where config was loaded from
	configPath string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Context: ContextConfig{
			SoftTokenLimit:       150000,
			HardTokenLimit:       190000,
			SummaryTokenOverhead: 200,
			WarnThreshold:        0.80,
			PinLatestUser:        true,
			MaskPreserveRecent:   6,
		},
		Loop: LoopConfig{
			WindowSize:      4,
			RepeatThreshold: 3,
			MaxCycleLength:  3,
		},
		Summarizer: SummarizerConfig{
			Provider:         "digest",
			Model:            "claude-haiku-4-5-20251015",
			MaxTokens:        1024,
			TokensPerMinute:  30000,
			FailureThreshold: 3,
			CooldownSeconds:  30,
		},
		Agent: AgentConfig{
			MaxConcurrency: 4,
		},
		Session: SessionConfig{
			Dir:         ".friday/sessions",
			Format:      "json",
			MaxSessions: 20,
		},
	}
}

// Load loads configuration from the first config file found, then applies
// environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadFromFile(path); err != nil {
				return nil, ferrors.ConfigLoadFailed(path, err)
			}
			cfg.configPath = path
			break
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFile loads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.loadFromFile(path); err != nil {
		return nil, ferrors.ConfigLoadFailed(path, err)
	}
	cfg.configPath = path

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// getConfigPaths returns config file paths in priority order
func getConfigPaths() []string {
	paths := []string{
		"friday.yaml",
		".friday/config.yaml",
		".friday/config.jsonc",
		".friday/config.json",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "friday", "config.yaml"),
			filepath.Join(home, ".config", "friday", "config.jsonc"),
		)
	}

	return paths
}

// loadFromFile decodes YAML, or JSON with comments for .json/.jsonc files.
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return yaml.Unmarshal(data, c)
	}
}

// applyEnv overrides file settings from FRIDAY_* variables.
func (c *Config) applyEnv() error {
	ints := []struct {
		name string
		dst  *int
	}{
		{"FRIDAY_SOFT_TOKEN_LIMIT", &c.Context.SoftTokenLimit},
		{"FRIDAY_HARD_TOKEN_LIMIT", &c.Context.HardTokenLimit},
		{"FRIDAY_SUMMARY_TOKEN_OVERHEAD", &c.Context.SummaryTokenOverhead},
		{"FRIDAY_LOOP_WINDOW", &c.Loop.WindowSize},
		{"FRIDAY_LOOP_THRESHOLD", &c.Loop.RepeatThreshold},
		{"FRIDAY_LOOP_MAX_REDIRECTS", &c.Loop.MaxRedirects},
	}
	for _, v := range ints {
		raw := os.Getenv(v.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return ferrors.ConfigInvalid("%s=%q is not an integer", v.name, raw)
		}
		*v.dst = n
	}

	if provider := os.Getenv("FRIDAY_SUMMARIZER"); provider != "" {
		c.Summarizer.Provider = provider
	}
	c.Summarizer.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	return nil
}

// Validate checks that the settings can work together.
func (c *Config) Validate() error {
	ctx := c.Context
	switch {
	case ctx.SoftTokenLimit <= 0 || ctx.HardTokenLimit <= 0:
		return ferrors.ConfigInvalid("token limits must be positive (soft=%d hard=%d)", ctx.SoftTokenLimit, ctx.HardTokenLimit)
	case ctx.SoftTokenLimit > ctx.HardTokenLimit:
		return ferrors.ConfigInvalid("soft_token_limit %d exceeds hard_token_limit %d", ctx.SoftTokenLimit, ctx.HardTokenLimit)
	case ctx.SummaryTokenOverhead < 0 || ctx.SummaryTokenOverhead >= ctx.HardTokenLimit:
		return ferrors.ConfigInvalid("summary_token_overhead %d out of range", ctx.SummaryTokenOverhead)
	case c.Loop.WindowSize < 2:
		return ferrors.ConfigInvalid("loop window_size must be at least 2, got %d", c.Loop.WindowSize)
	case c.Loop.RepeatThreshold < 2:
		return ferrors.ConfigInvalid("loop repeat_threshold must be at least 2, got %d", c.Loop.RepeatThreshold)
	}

	switch c.Summarizer.Provider {
	case "digest":
	case "anthropic":
		if c.Summarizer.APIKey == "" {
			return ferrors.ConfigInvalid("summarizer provider anthropic requires ANTHROPIC_API_KEY")
		}
	default:
		return ferrors.ConfigInvalid("unknown summarizer provider %q", c.Summarizer.Provider)
	}

	switch c.Session.Format {
	case "json", "cbor":
	default:
		return ferrors.ConfigInvalid("unknown session format %q", c.Session.Format)
	}
	return nil
}

// ManagerConfig converts the settings consumed by the context manager.
func (c *Config) ManagerConfig() fctx.ManagerConfig {
	return fctx.ManagerConfig{
		SoftTokenLimit:       c.Context.SoftTokenLimit,
		HardTokenLimit:       c.Context.HardTokenLimit,
		SummaryTokenOverhead: c.Context.SummaryTokenOverhead,
		WarnThreshold:        c.Context.WarnThreshold,
		PinLatestUser:        c.Context.PinLatestUser,
		PreserveRecent:       c.Context.PreserveRecent,
		MaxRedirects:         c.Loop.MaxRedirects,
		Loop: fctx.LoopConfig{
			WindowSize:      c.Loop.WindowSize,
			RepeatThreshold: c.Loop.RepeatThreshold,
			Tolerance:       c.Loop.Tolerance,
			MaxCycleLength:  c.Loop.MaxCycleLength,
			VolatileFields:  append([]string(nil), c.Loop.VolatileFields...),
		},
	}
}

// ConfigPath returns where the config was loaded from
func (c *Config) ConfigPath() string {
	return c.configPath
}

// String renders the effective settings as YAML.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
