package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse. A bare
// number is read as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration value: %v", raw)
	}
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the application configuration
type Config struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	DatabaseURL string `yaml:"database_url"`
	AuthSecret  string `yaml:"auth_secret"`

	Hub struct {
		HistorySize       int      `yaml:"history_size"`
		QueueDepth        int      `yaml:"queue_depth"`
		HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	} `yaml:"hub"`

	Transcription struct {
		Timeout             Duration         `yaml:"timeout"`
		ConfidenceThreshold float64          `yaml:"confidence_threshold"`
		Providers           []ProviderConfig `yaml:"providers"`
	} `yaml:"transcription"`
}

// ProviderConfig describes one speech provider in fallback order.
type ProviderConfig struct {
	Kind      string `yaml:"kind"` // "openai" or "deepgram"
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// APIKey resolves the provider's key from its configured environment
// variable, if any. Constructors fall back to their conventional variable
// when this is empty.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	cfg := &Config{
		Port:        8080,
		MetricsPort: 9090,
		DatabaseURL: "tableside.db",
	}
	cfg.Hub.HistorySize = 20
	cfg.Hub.QueueDepth = 50
	cfg.Hub.HeartbeatInterval = Duration(30 * time.Second)
	cfg.Transcription.Timeout = Duration(8 * time.Second)
	cfg.Transcription.ConfidenceThreshold = 0.75
	cfg.Transcription.Providers = []ProviderConfig{
		{Kind: "openai"},
		{Kind: "deepgram"},
	}
	return cfg
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TABLESIDE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("TABLESIDE_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = port
		}
	}
	if v := os.Getenv("TABLESIDE_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("TABLESIDE_AUTH_SECRET"); v != "" {
		cfg.AuthSecret = v
	}
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Transcription.ConfidenceThreshold < 0 || c.Transcription.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be within [0, 1], got %v", c.Transcription.ConfidenceThreshold)
	}
	for _, p := range c.Transcription.Providers {
		switch p.Kind {
		case "openai", "deepgram":
		default:
			return fmt.Errorf("unknown transcription provider kind: %q", p.Kind)
		}
	}
	return nil
}
