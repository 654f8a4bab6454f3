package profile

import "github.com/matheus3301/wachat/internal/config"

const DefaultName = "main"

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. cfg.DefaultProfile (config.toml default_profile or WACHAT_PROFILE)
// 3. "main"
func Resolve(flagOverride string, cfg *config.Config) string {
	if flagOverride != "" {
		return flagOverride
	}
	if cfg != nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultName
}
