package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Target     string         `yaml:"target"`      // "Name" or "Name@Realm"; empty disables logging
	OutputPath string         `yaml:"output_path"` // CSV file rows are appended to
	Log        LogConfig      `yaml:"log"`
	Recorder   RecorderConfig `yaml:"recorder"`
	Twitch     TwitchConfig   `yaml:"twitch"`
	Kick       KickConfig     `yaml:"kick"`
	NATS       NATSConfig     `yaml:"nats"`
	S3         S3Config       `yaml:"s3"`
	Uploader   UploaderConfig `yaml:"uploader"`
	Health     HealthConfig   `yaml:"health"`
}

// LogConfig selects the zap configuration
type LogConfig struct {
	Environment string `yaml:"environment"` // "production" or "development"
}

// RecorderConfig holds event pipeline configuration
type RecorderConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// TwitchConfig holds Twitch-specific configuration
type TwitchConfig struct {
	Username string   `yaml:"username"` // Empty connects anonymously
	OAuth    string   `yaml:"oauth"`
	Channels []string `yaml:"channels"`
}

// KickConfig holds Kick-specific configuration
type KickConfig struct {
	Enabled  bool                `yaml:"enabled"`
	Channels []KickChannelConfig `yaml:"channels"`
}

// KickChannelConfig is a Kick channel with an optional pre-resolved chatroom ID
type KickChannelConfig struct {
	Slug       string `yaml:"slug"`
	ChatroomID int    `yaml:"chatroom_id"` // 0 means resolve via the Kick API
}

// NATSConfig holds configuration for the NATS chat bridge
type NATSConfig struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Subject string `yaml:"subject"`
}

// S3Config holds S3 archival configuration
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	RoleARN         string `yaml:"role_arn"`          // IAM role ARN for OIDC authentication
	AccessKeyID     string `yaml:"access_key_id"`     // Legacy: static credentials
	SecretAccessKey string `yaml:"secret_access_key"` // Legacy: static credentials
	Endpoint        string `yaml:"endpoint"`          // For S3-compatible services
}

// UploaderConfig holds uploader configuration
type UploaderConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	MaxRetries      int `yaml:"max_retries"`
}

// HealthConfig holds the status server configuration
type HealthConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"` // Bearer token required by PUT /target when set
}

// TwitchEnabled reports whether any Twitch channel is configured
func (c *Config) TwitchEnabled() bool {
	return len(c.Twitch.Channels) > 0
}

// KickEnabled reports whether the Kick source should run
func (c *Config) KickEnabled() bool {
	return c.Kick.Enabled && len(c.Kick.Channels) > 0
}

// NATSEnabled reports whether the NATS bridge should run
func (c *Config) NATSEnabled() bool {
	return c.NATS.URL != ""
}

// S3Enabled reports whether CSV snapshots are archived to S3
func (c *Config) S3Enabled() bool {
	return c.S3.Bucket != ""
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Read YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Parse YAML over the numeric defaults so an explicit 0 survives
	cfg := Config{
		Recorder: RecorderConfig{BufferSize: 100},
		Uploader: UploaderConfig{IntervalSeconds: 300, MaxRetries: 3},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnv(&cfg)

	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"SPEAKERLOG_TARGET", &cfg.Target},
		{"SPEAKERLOG_OUTPUT_PATH", &cfg.OutputPath},
		{"SPEAKERLOG_ENV", &cfg.Log.Environment},
		{"SPEAKERLOG_API_TOKEN", &cfg.Health.Token},
		{"TWITCH_OAUTH", &cfg.Twitch.OAuth},
		{"NATS_URL", &cfg.NATS.URL},
		{"NATS_TOKEN", &cfg.NATS.Token},
		{"AWS_ROLE_ARN", &cfg.S3.RoleARN},
		{"S3_ACCESS_KEY_ID", &cfg.S3.AccessKeyID},
		{"S3_SECRET_ACCESS_KEY", &cfg.S3.SecretAccessKey},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
}

func applyDefaults(cfg *Config) error {
	cfg.Target = strings.TrimSpace(cfg.Target)
	cfg.OutputPath = strings.TrimSpace(cfg.OutputPath)

	if cfg.OutputPath == "" {
		path, err := DefaultOutputPath()
		if err != nil {
			return err
		}
		cfg.OutputPath = path
	}
	if cfg.Log.Environment == "" {
		cfg.Log.Environment = "development"
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "speakerlog.chat"
	}
	if cfg.Health.Addr == "" {
		cfg.Health.Addr = "127.0.0.1:8080"
	}
	return nil
}

// DefaultOutputPath returns ~/Documents/SpeakerLogger/chat.csv
func DefaultOutputPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, "Documents", "SpeakerLogger", "chat.csv"), nil
}

// Validate checks that the configuration can be run
func (c *Config) Validate() error {
	if !c.TwitchEnabled() && !c.KickEnabled() && !c.NATSEnabled() {
		return fmt.Errorf("at least one source is required (twitch.channels, kick.channels or nats.url)")
	}
	if c.Twitch.Username != "" && c.Twitch.OAuth == "" {
		return fmt.Errorf("twitch.oauth is required when twitch.username is set (or set TWITCH_OAUTH env var)")
	}
	if c.Kick.Enabled && len(c.Kick.Channels) == 0 {
		return fmt.Errorf("kick.channels is required when kick is enabled")
	}
	for i, ch := range c.Kick.Channels {
		if ch.Slug == "" {
			return fmt.Errorf("kick.channels[%d].slug is required", i)
		}
	}
	if c.Recorder.BufferSize < 0 {
		return fmt.Errorf("recorder.buffer_size must not be negative")
	}
	if c.Uploader.MaxRetries < 0 {
		return fmt.Errorf("uploader.max_retries must not be negative")
	}
	if c.Uploader.IntervalSeconds <= 0 {
		return fmt.Errorf("uploader.interval_seconds must be positive")
	}

	if !c.S3Enabled() {
		return nil
	}
	if c.S3.Region == "" {
		return fmt.Errorf("s3.region is required")
	}
	// Either OIDC role or static credentials required
	if c.S3.RoleARN == "" && c.S3.AccessKeyID == "" {
		return fmt.Errorf("either s3.role_arn (OIDC) or s3.access_key_id (legacy) is required")
	}
	// If using static credentials, both key and secret are required
	if c.S3.AccessKeyID != "" && c.S3.SecretAccessKey == "" {
		return fmt.Errorf("s3.secret_access_key is required when using access_key_id")
	}

	return nil
}
