package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server struct {
		Port      string `json:"port"`
		StaticDir string `json:"static_dir"`
		Debug     bool   `json:"debug"`
	} `json:"server"`

	Database struct {
		Path string `json:"path"`
	} `json:"database"`

	ML struct {
		Type       string `json:"type"` // "openai", "google" or "local"
		ConfigPath string `json:"config_path"`
	} `json:"ml"`

	History struct {
		Limit int `json:"limit"`
	} `json:"history"`
}

const (
	defaultStaticDir    = "./static"
	defaultDatabasePath = "macrotrack.db"
	defaultMLType       = "openai"
	defaultHistoryLimit = 50
)

// LoadEnv reads a .env file into the process environment if one exists.
// Variables already set are left alone.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a JSON file, then applies
// environment overrides
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv("PORT"); v != "" {
		config.Server.Port = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		config.Database.Path = v
	}
	if v := os.Getenv("ML_TYPE"); v != "" {
		config.ML.Type = v
	}

	// Handle missing values
	if config.Server.Port == "" {
		return nil, fmt.Errorf("server port is not set in config file")
	}
	if config.Server.StaticDir == "" {
		config.Server.StaticDir = defaultStaticDir
	}
	if config.Database.Path == "" {
		config.Database.Path = defaultDatabasePath
	}
	if config.ML.Type == "" {
		config.ML.Type = defaultMLType
	}
	if config.History.Limit <= 0 {
		config.History.Limit = defaultHistoryLimit
	}

	return &config, nil
}

// GetConfigPath returns the path to the configuration file
func GetConfigPath() string {
	// First try environment variable
	if path := os.Getenv("MACROTRACK_CONFIG"); path != "" {
		return path
	}

	// Then try config directory
	configDir := "config"
	if _, err := os.Stat(configDir); err == nil {
		return filepath.Join(configDir, "config.json")
	}

	// Finally, try current directory
	return "config.json"
}
