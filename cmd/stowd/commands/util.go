package commands

import (
	"fmt"
	"strconv"

	"github.com/marmos91/stowd/internal/logger"
	"github.com/marmos91/stowd/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// parsePort validates a port given on the command line.
func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: not a number", s)
	}
	if port < 1024 || port > 65535 {
		return 0, fmt.Errorf("invalid port %d: must be between 1024 and 65535", port)
	}
	return port, nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// apiURL returns the admin API base URL, from the flag or the config.
func apiURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return "", err
	}
	if !cfg.API.IsEnabled() {
		return "", fmt.Errorf("the admin API is disabled in the configuration; pass --api-url")
	}
	return fmt.Sprintf("http://localhost:%d", cfg.API.Port), nil
}
