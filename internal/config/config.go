package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir  string `json:"data_dir" yaml:"data_dir"`
	LogLevel string `json:"log_level" yaml:"log_level"`
	Database struct {
		Path          string `json:"path" yaml:"path"`
		BusyTimeoutMs int    `json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
	} `json:"database" yaml:"database"`
	HTTP struct {
		Enabled bool   `json:"enabled" yaml:"enabled"`
		Listen  string `json:"listen" yaml:"listen"`
	} `json:"http" yaml:"http"`
	Stripe struct {
		WebhookSecret string `json:"webhook_secret" yaml:"webhook_secret"`
		ToleranceSec  int    `json:"tolerance_sec" yaml:"tolerance_sec"`
	} `json:"stripe" yaml:"stripe"`
	Slack struct {
		WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
	} `json:"slack" yaml:"slack"`
	Telegram struct {
		Token      string `json:"token" yaml:"token"`
		ChatID     int64  `json:"chat_id" yaml:"chat_id"`
		TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec"`

		// APIEndpoint overrides the Bot API URL format, for self-hosted
		// Bot API servers. Empty uses api.telegram.org.
		APIEndpoint string `json:"api_endpoint,omitempty" yaml:"api_endpoint,omitempty"`
	} `json:"telegram" yaml:"telegram"`
	Notify struct {
		// Target is "slack" or "telegram:<chat_id>". Empty picks Slack when a
		// webhook is set, else the configured Telegram chat.
		Target string `json:"target" yaml:"target"`
	} `json:"notify" yaml:"notify"`
	AI struct {
		BaseURL         string `json:"base_url" yaml:"base_url"`
		APIKey          string `json:"api_key" yaml:"api_key"`
		Model           string `json:"model" yaml:"model"`
		TimeoutSec      int    `json:"timeout_sec" yaml:"timeout_sec"`
		MaxPromptTokens int    `json:"max_prompt_tokens" yaml:"max_prompt_tokens"`
	} `json:"ai" yaml:"ai"`
	Summary struct {
		Kind                  string `json:"kind" yaml:"kind"`
		ForceResend           bool   `json:"force_resend" yaml:"force_resend"`
		ShowAIUnavailableNote bool   `json:"show_ai_unavailable_note" yaml:"show_ai_unavailable_note"`
		StaleSendingMinutes   int    `json:"stale_sending_minutes" yaml:"stale_sending_minutes"`
	} `json:"summary" yaml:"summary"`
	Schedule struct {
		Rules        string `json:"rules" yaml:"rules"`
		DailySummary string `json:"daily_summary" yaml:"daily_summary"`
	} `json:"schedule" yaml:"schedule"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".sentinelops"),
		LogLevel: "info",
	}
	cfg.Database.BusyTimeoutMs = 5000
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = ":8000"
	cfg.Stripe.ToleranceSec = 300
	cfg.AI.BaseURL = "https://api.openai.com/v1"
	cfg.Telegram.TimeoutSec = 10
	cfg.AI.TimeoutSec = 12
	cfg.AI.MaxPromptTokens = 4000
	cfg.Summary.Kind = "daily_ops"
	cfg.Summary.StaleSendingMinutes = 15
	cfg.Schedule.Rules = "*/5 * * * *"
	cfg.Schedule.DailySummary = "0 9 * * *"
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := Defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	applyEnv(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SENTINELOPS_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Stripe.WebhookSecret = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Slack.WebhookURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("AI_SUMMARY_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("AI_SUMMARY_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AI.TimeoutSec = n
		}
	}
	if v, ok := envBool("FORCE_RESEND_DAILY_SUMMARY"); ok {
		cfg.Summary.ForceResend = v
	}
	if v, ok := envBool("SHOW_AI_UNAVAILABLE_NOTE"); ok {
		cfg.Summary.ShowAIUnavailableNote = v
	}
}

// envBool reads a boolean flag. "1", "true", "yes" and "on" are true.
func envBool(name string) (bool, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, true
	default:
		return false, true
	}
}

// DBPath returns the SQLite file path, defaulting to the data directory.
func (c *Config) DBPath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, "sentinelops.db")
}

// AITimeout returns the insight request timeout.
// TelegramTimeout bounds one Telegram API request. Defaults to 10s.
func (c *Config) TelegramTimeout() time.Duration {
	if c.Telegram.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Telegram.TimeoutSec) * time.Second
}

func (c *Config) AITimeout() time.Duration {
	if c.AI.TimeoutSec <= 0 {
		return 12 * time.Second
	}
	return time.Duration(c.AI.TimeoutSec) * time.Second
}

// StaleAfter returns how long a sending ledger row may sit before it is
// reclaimed. Zero disables reclaiming.
func (c *Config) StaleAfter() time.Duration {
	if c.Summary.StaleSendingMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Summary.StaleSendingMinutes) * time.Minute
}

// NotifyTarget resolves the delivery target, or "" when no channel is set.
func (c *Config) NotifyTarget() string {
	if c.Notify.Target != "" {
		return c.Notify.Target
	}
	if c.Slack.WebhookURL != "" {
		return "slack"
	}
	if c.Telegram.Token != "" && c.Telegram.ChatID != 0 {
		return "telegram:" + strconv.FormatInt(c.Telegram.ChatID, 10)
	}
	return ""
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func unmarshal(path string, data []byte, v any) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

func marshal(path string, v any) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(v)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save writes cfg to path atomically, as YAML for .yaml/.yml paths and JSON
// otherwise.
func Save(path string, cfg *Config) error {
	data, err := marshal(path, cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into a generic nested map keyed by JSON field names.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns the flattened configuration, optionally with secrets
// masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := unmarshal(path, data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// GetValue reads a single dot-separated key from the file at path. A missing
// file is created with defaults first.
func GetValue(path, key string) (any, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := Load(path); err != nil {
			return nil, err
		}
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue writes a single dot-separated key to the file at path. The value
// is parsed as JSON when possible (numbers, booleans), otherwise stored as a
// string.
func SetValue(path, key, value string) error {
	m, err := readRaw(path)
	if err != nil {
		return err
	}
	flat := Flatten(m)

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	flat[key] = parsed

	data, err := marshal(path, Unflatten(flat))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}
