package config

import (
	"flag"
	"os"
	"strings"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the resolved configuration plus where each
// top-level value came from.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// ParseFlags parses command-line flags.
func ParseFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: set}
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// applyEnv overlays PARLOR_* environment variables onto cfg and reports
// whether any were present.
func applyEnv(cfg *Config) bool {
	used := false
	if v := os.Getenv("PARLOR_ADDR"); v != "" {
		cfg.Server.Address = v
		cfg.Server.Port = 0
		used = true
	}
	if v := os.Getenv("PARLOR_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
		used = true
	}
	if v := os.Getenv("PARLOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
		used = true
	}
	if v := os.Getenv("PARLOR_BACKEND_KEYS"); v != "" {
		cfg.Security.APIKeys.Backend = parseList(v)
		used = true
	}
	if v := os.Getenv("PARLOR_FRONTEND_KEYS"); v != "" {
		cfg.Security.APIKeys.Frontend = parseList(v)
		used = true
	}
	if v := os.Getenv("PARLOR_ADMIN_KEYS"); v != "" {
		cfg.Security.APIKeys.Admin = parseList(v)
		used = true
	}
	if v := os.Getenv("PARLOR_WEBHOOK_SECRET"); v != "" {
		cfg.Security.Webhook.Secret = v
		used = true
	}
	if v := os.Getenv("PARLOR_BLOB_DIR"); v != "" {
		cfg.Blobs.Dir = v
		used = true
	}
	return used
}

// LoadEffective resolves config from file, env and flags: the file is
// the base, env overlays it, and explicitly-set flags win.
func LoadEffective(flags Flags) (EffectiveConfigResult, error) {
	cfg := &Config{}
	source := "env"
	if b, err := os.Stat(flags.Config); err == nil && !b.IsDir() {
		loaded, err := Load(flags.Config)
		if err != nil {
			return EffectiveConfigResult{}, err
		}
		cfg = loaded
		source = "config"
	}
	if applyEnv(cfg) && source != "config" {
		source = "env"
	}
	cfg.applyDefaults()

	addr := cfg.Addr()
	if addr == "" {
		addr = flags.Addr
	}
	dbPath := cfg.Server.DBPath
	if dbPath == "" {
		dbPath = flags.DB
	}
	if flags.Set["addr"] {
		addr = flags.Addr
		source = "flags"
	}
	if flags.Set["db"] {
		dbPath = flags.DB
		source = "flags"
	}
	return EffectiveConfigResult{Config: cfg, Addr: addr, DBPath: dbPath, Source: source}, nil
}
