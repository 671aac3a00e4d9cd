package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// BaseConfig provides common configuration functionality
type BaseConfig struct {
	ConfigPath string

	logger *zap.Logger
}

// LoadConfig loads configuration from a file. Missing files are not an error;
// callers fill the gaps from environment variables.
func (c *BaseConfig) LoadConfig(configPath string, envPrefix string, config interface{}) error {
	log := c.logger
	if log == nil {
		log = zap.NewNop()
	}

	// An explicit path must exist and parse
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", configPath, err)
		}
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
		log.Info("loaded model configuration", zap.String("path", configPath))
		return nil
	}

	// Try default config file in config directory
	defaultPath := filepath.Join("config", fmt.Sprintf("%s.json", envPrefix))
	if data, err := os.ReadFile(defaultPath); err == nil {
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse %s: %w", defaultPath, err)
		}
		log.Info("loaded model configuration", zap.String("path", defaultPath))
		return nil
	}

	log.Info("using environment variables for model configuration", zap.String("model", envPrefix))
	return nil
}

func envDefault(current, key string) string {
	if current != "" {
		return current
	}
	return os.Getenv(key)
}
