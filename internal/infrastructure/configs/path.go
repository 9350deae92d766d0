package configs

import (
	"flag"
	"os"

	"github.com/hilthontt/quadchat/internal/infrastructure/env"
)

// DetermineConfigPath returns "" when no file is found; Load then runs on
// defaults and environment overrides only.
func DetermineConfigPath() string {
	var configPath string

	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = env.GetString("QUADCHAT_CONFIG", "")
	}

	if configPath == "" {
		configPath = findConfig([]string{
			"./config.yaml",
			"./config.yml",
			"./tmp/config.yaml",
			"/etc/quadchat/config.yaml",
			"/app/config.yaml", // common in Docker
		})
	}

	return configPath
}

func findConfig(candidates []string) string {
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
