package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Media       MediaConfig               `json:"media"`
}

type BasicConfig struct {
	ServerAddress   string `json:"server_address"`
	DefaultProvider string `json:"default_provider"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// MediaConfig gates the optional recommendation stage.
type MediaConfig struct {
	Enabled bool `json:"enabled"`
}

// Load reads configuration from the provided path (defaults to
// config.json). A .env file next to the working directory is applied
// first so provider keys can live outside the config file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}

	for name, prov := range cfg.Providers {
		if prov.APIKey == "" {
			if key := os.Getenv(providerKeyEnv(name)); key != "" {
				prov.APIKey = key
				cfg.Providers[name] = prov
			}
		}
	}

	return &cfg, nil
}

func providerKeyEnv(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	case "claude":
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}
