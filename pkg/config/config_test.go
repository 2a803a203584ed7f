package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  address: "0.0.0.0"
  port: 9000
  db_path: "/var/lib/parlor"
security:
  cors:
    allowed_origins: ["https://app.example.com"]
  rate_limit:
    rps: 50
    burst: 100
  api_keys:
    backend: ["bk1", "bk2"]
    frontend: ["fk1"]
  webhook:
    secret: "whsec_abc"
    tolerance: "2m"
logging:
  level: "debug"
policy:
  unique_email_name: true
presence:
  online_threshold: "90s"
  typing_window: 2500
conversations:
  preview_scan: 25
blobs:
  dir: "/tmp/blobs"
  max_size: "4 MiB"
compaction:
  enabled: true
  cron: "*/5 * * * *"
  max_age: "45s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:9000", cfg.Addr())
	require.Equal(t, "/var/lib/parlor", cfg.Server.DBPath)
	require.Equal(t, []string{"bk1", "bk2"}, cfg.Security.APIKeys.Backend)
	require.Equal(t, "whsec_abc", cfg.Security.Webhook.Secret)
	require.Equal(t, 2*time.Minute, cfg.Security.Webhook.Tolerance.Std())
	require.True(t, cfg.Policy.UniqueEmailName)
	require.Equal(t, 90*time.Second, cfg.Presence.OnlineThreshold.Std())
	// bare numbers are milliseconds
	require.Equal(t, 2500*time.Millisecond, cfg.Presence.TypingWindow.Std())
	require.Equal(t, 25, cfg.Conversations.PreviewScan)
	require.Equal(t, SizeBytes(4<<20), cfg.Blobs.MaxSize)
	require.True(t, cfg.Compaction.Enabled)
	require.Equal(t, 45*time.Second, cfg.Compaction.MaxAge.Std())
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `server: {port: 8080}`))
	require.NoError(t, err)

	require.Equal(t, DefaultOnlineThreshold, cfg.Presence.OnlineThreshold.Std())
	require.Equal(t, DefaultTypingWindow, cfg.Presence.TypingWindow.Std())
	require.Equal(t, DefaultPreviewScan, cfg.Conversations.PreviewScan)
	require.Equal(t, DefaultWebhookSkew, cfg.Security.Webhook.Tolerance.Std())
	require.Equal(t, "./blobs", cfg.Blobs.Dir)
	require.Equal(t, "*/10 * * * *", cfg.Compaction.Cron)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `presence: {typing_window: "soon"}`))
	require.Error(t, err)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("PARLOR_ADDR", ":7777")
	t.Setenv("PARLOR_BACKEND_KEYS", "k1, k2")
	t.Setenv("PARLOR_WEBHOOK_SECRET", "whsec_env")

	eff, err := LoadEffective(Flags{Config: filepath.Join(t.TempDir(), "missing.yaml"), Addr: ":8080", DB: "./.database"})
	require.NoError(t, err)

	require.Equal(t, ":7777", eff.Addr)
	require.Equal(t, []string{"k1", "k2"}, eff.Config.Security.APIKeys.Backend)
	require.Equal(t, "whsec_env", eff.Config.Security.Webhook.Secret)
	require.Equal(t, "env", eff.Source)
}

func TestFlagsWin(t *testing.T) {
	path := writeConfig(t, `server: {port: 9000, db_path: "/from/config"}`)
	eff, err := LoadEffective(Flags{
		Config: path,
		Addr:   ":5555",
		DB:     "/from/flag",
		Set:    map[string]bool{"addr": true, "db": true},
	})
	require.NoError(t, err)
	require.Equal(t, ":5555", eff.Addr)
	require.Equal(t, "/from/flag", eff.DBPath)
	require.Equal(t, "flags", eff.Source)
}

func TestRuntimeKeys(t *testing.T) {
	SetRuntime(&RuntimeConfig{
		SigningKeys:   map[string]struct{}{"s1": {}},
		WebhookSecret: "whsec_x",
	})
	t.Cleanup(func() { SetRuntime(nil) })

	require.Contains(t, GetSigningKeys(), "s1")
	require.Equal(t, "whsec_x", GetWebhookSecret())
}
