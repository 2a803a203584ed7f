package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults observed in the original product surface.
const (
	DefaultOnlineThreshold = 60 * time.Second
	DefaultTypingWindow    = 3 * time.Second
	DefaultPreviewScan     = 10
	DefaultWebhookSkew     = 5 * time.Minute
)

// RuntimeConfig holds the runtime key sets consulted by the auth layer.
type RuntimeConfig struct {
	BackendKeys   map[string]struct{}
	SigningKeys   map[string]struct{}
	WebhookSecret string
}

var (
	runtimeMu sync.RWMutex
	runtime   *RuntimeConfig
)

// SetRuntime installs the runtime key sets for global use.
func SetRuntime(rc *RuntimeConfig) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	runtime = rc
}

// GetSigningKeys returns the secrets accepted for user-signature
// verification. Backend API keys double as signing secrets.
func GetSigningKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	if runtime == nil {
		return nil
	}
	return runtime.SigningKeys
}

// GetWebhookSecret returns the identity-provider signing secret.
func GetWebhookSecret() string {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	if runtime == nil {
		return ""
	}
	return runtime.WebhookSecret
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Presence.OnlineThreshold == 0 {
		c.Presence.OnlineThreshold = Duration(DefaultOnlineThreshold)
	}
	if c.Presence.TypingWindow == 0 {
		c.Presence.TypingWindow = Duration(DefaultTypingWindow)
	}
	if c.Conversations.PreviewScan <= 0 {
		c.Conversations.PreviewScan = DefaultPreviewScan
	}
	if c.Security.Webhook.Tolerance == 0 {
		c.Security.Webhook.Tolerance = Duration(DefaultWebhookSkew)
	}
	if c.Blobs.Dir == "" {
		c.Blobs.Dir = "./blobs"
	}
	if c.Compaction.Cron == "" {
		c.Compaction.Cron = "*/10 * * * *"
	}
	if c.Compaction.MaxAge == 0 {
		c.Compaction.MaxAge = Duration(time.Minute)
	}
}
