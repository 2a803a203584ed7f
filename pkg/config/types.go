package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Security      SecurityConfig      `yaml:"security"`
	Logging       LoggingConfig       `yaml:"logging"`
	Policy        PolicyConfig        `yaml:"policy"`
	Presence      PresenceConfig      `yaml:"presence"`
	Conversations ConversationsConfig `yaml:"conversations"`
	Blobs         BlobConfig          `yaml:"blobs"`
	Compaction    CompactionConfig    `yaml:"compaction"`
}

// ServerConfig holds listen address and storage path settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
}

// SecurityConfig holds CORS, rate limiting, API key and webhook settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
		Admin    []string `yaml:"admin"`
	} `yaml:"api_keys"`
	Webhook struct {
		// Secret is the identity-provider signing secret (whsec_...).
		Secret string `yaml:"secret"`
		// Tolerance bounds the accepted clock skew on signed timestamps.
		Tolerance Duration `yaml:"tolerance"`
	} `yaml:"webhook"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// PolicyConfig holds project-specific behavior switches.
type PolicyConfig struct {
	// UniqueEmailName rejects identity syncs whose email or name already
	// belongs to a different user. Off by default: the webhook is
	// at-least-once and must stay redeliverable.
	UniqueEmailName bool `yaml:"unique_email_name"`
}

// PresenceConfig holds the read-time staleness windows.
type PresenceConfig struct {
	OnlineThreshold Duration `yaml:"online_threshold"`
	TypingWindow    Duration `yaml:"typing_window"`
}

// ConversationsConfig tunes listing enrichment.
type ConversationsConfig struct {
	// PreviewScan is how many of the newest messages are examined when
	// picking the preview not hidden from the caller.
	PreviewScan int `yaml:"preview_scan"`
}

// BlobConfig holds the local blob store settings.
type BlobConfig struct {
	Dir     string    `yaml:"dir"`
	MaxSize SizeBytes `yaml:"max_size"`
}

// CompactionConfig drives the optional typing-indicator sweep.
type CompactionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	// MaxAge is how old a typing entry must be before the sweep clears it.
	MaxAge Duration `yaml:"max_age"`
}

// Duration is a yaml-parsable time.Duration ("30s", "5m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if s == "" {
		*d = 0
		return nil
	}
	// bare numbers are taken as milliseconds
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(n) * time.Millisecond)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// SizeBytes is a yaml-parsable byte size ("4 MiB", "1048576").
type SizeBytes uint64

func (s *SizeBytes) UnmarshalYAML(value *yaml.Node) error {
	v := strings.TrimSpace(value.Value)
	if v == "" {
		*s = 0
		return nil
	}
	if n, err := strconv.ParseUint(v, 10, 64); err == nil {
		*s = SizeBytes(n)
		return nil
	}
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", v, err)
	}
	*s = SizeBytes(n)
	return nil
}

// Addr returns the effective listen address.
func (c *Config) Addr() string {
	if c.Server.Address == "" && c.Server.Port == 0 {
		return ""
	}
	if c.Server.Port == 0 {
		return c.Server.Address
	}
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
