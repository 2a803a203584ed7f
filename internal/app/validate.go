package app

import (
	"fmt"
	"strings"

	"parlor/pkg/config"
)

// validateConfig fails fast on configurations that would only surface
// as confusing runtime errors later.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, PARLOR_DB_PATH env, or server.db_path in config")
	}
	if eff.Addr == "" {
		return fmt.Errorf("listen address is empty: set --addr flag, PARLOR_ADDR env, or server.address in config")
	}
	sec := eff.Config.Security
	if len(sec.APIKeys.Backend) == 0 && len(sec.APIKeys.Frontend) == 0 && len(sec.APIKeys.Admin) == 0 {
		return fmt.Errorf("no API keys configured: every endpoint would reject; set security.api_keys")
	}
	if s := sec.Webhook.Secret; s != "" && !strings.HasPrefix(s, "whsec_") {
		return fmt.Errorf("webhook secret must carry the whsec_ prefix")
	}
	return nil
}
