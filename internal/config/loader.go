package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppDir is the name of the configuration directory.
const AppDir = "taskflow"

// Load loads configuration from the given file (or the default location when
// path is empty), then applies .env and environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := LoadDotEnv("."); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = getConfigPath()
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			// The default config file is optional; an explicit one is not.
			if explicit || !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	loadFromEnv(cfg)

	return cfg, nil
}

// LoadDotEnv loads environment variables from <baseDir>/.env if it exists.
// Variables already present in the environment take priority.
func LoadDotEnv(baseDir string) error {
	envPath := filepath.Join(baseDir, ".env")
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(envPath)
}

// getConfigPath returns the path to the config file.
func getConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, AppDir, "config.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", AppDir, "config.yaml")
}

// GetConfigPath returns the path to the config file (exported for external use).
func GetConfigPath() string {
	return getConfigPath()
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func loadFromEnv(cfg *Config) {
	if key := os.Getenv("TASKFLOW_GEMINI_KEY"); key != "" {
		cfg.API.GeminiKey = key
	} else if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.API.GeminiKey = key
	}

	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		cfg.API.OllamaBaseURL = host
	}

	if provider := os.Getenv("TASKFLOW_PROVIDER"); provider != "" {
		cfg.API.Provider = provider
	}
	if model := os.Getenv("TASKFLOW_MODEL"); model != "" {
		cfg.Model.Name = model
	}
	if addr := os.Getenv("TASKFLOW_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if backend := os.Getenv("TASKFLOW_STORE"); backend != "" {
		cfg.Store.Backend = backend
	}
	if path := os.Getenv("TASKFLOW_STORE_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if level := os.Getenv("TASKFLOW_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if v := os.Getenv("TASKFLOW_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Loop.MaxIterations = n
		}
	}
	if v := os.Getenv("TASKFLOW_EXTRACTOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Loop.ExtractorTimeout = d
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.API.Provider {
	case "gemini", "ollama":
	default:
		return ConfigError(fmt.Sprintf("unknown provider %q (want gemini or ollama)", c.API.Provider))
	}
	if c.Loop.MaxIterations <= 0 || c.Loop.MaxIterations > MaxLoopIterations {
		return ConfigError(fmt.Sprintf("loop.max_iterations must be between 1 and %d, got %d",
			MaxLoopIterations, c.Loop.MaxIterations))
	}
	if c.Loop.ExtractorTimeout <= 0 {
		return ErrInvalidTimeout
	}
	switch c.Store.Backend {
	case "memory":
	case "file", "sqlite":
		if c.Store.Path == "" {
			return ConfigError(fmt.Sprintf("store.path is required for the %s backend", c.Store.Backend))
		}
	default:
		return ConfigError(fmt.Sprintf("unknown store backend %q (want memory, file or sqlite)", c.Store.Backend))
	}
	if c.Insights.QuestionHorizon < 0 {
		return ConfigError("insights.question_horizon must not be negative")
	}
	return nil
}

// RequireCredentials checks that the selected provider can authenticate.
// Ollama servers usually run unauthenticated, so only Gemini needs a key.
func (c *Config) RequireCredentials() error {
	if c.API.Provider == "gemini" && c.API.GeminiKey == "" && os.Getenv("GEMINI_API_KEY") == "" {
		return ErrMissingAuth
	}
	return nil
}

// ConfigError is a configuration validation error.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrMissingAuth    ConfigError = "missing authentication: set GEMINI_API_KEY or api.gemini_key, or use provider ollama"
	ErrInvalidTimeout ConfigError = "loop.extractor_timeout must be positive"
)
