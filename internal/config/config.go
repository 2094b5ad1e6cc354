// Package config handles TaskFlow configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/taskflow/config.yaml,
// /etc/taskflow/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "taskflow", "config.yaml"))
	}

	paths = append(paths, "/etc/taskflow/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all TaskFlow configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	LLM      LLMConfig      `yaml:"llm"`
	CORS     CORSConfig     `yaml:"cors"`
	LogLevel string         `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// DatabaseConfig defines SQLite storage settings.
type DatabaseConfig struct {
	// Path is the SQLite database file. The parent directory is created
	// on startup if missing.
	Path string `yaml:"path"`
}

// AuthConfig defines token signing settings.
type AuthConfig struct {
	// JWTSecret signs access tokens. Required; use ${TASKFLOW_JWT_SECRET}
	// in the config file to pull it from the environment.
	JWTSecret string `yaml:"jwt_secret"`
}

// LLMConfig defines the chat-completion provider.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"` // Default: OpenRouter
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	// MaxTokens caps generation length per model call (default 1000).
	MaxTokens int `yaml:"max_tokens"`
	// TimeoutSec bounds a single provider request (default 120).
	TimeoutSec int `yaml:"timeout_sec"`
}

// CORSConfig defines allowed browser origins.
type CORSConfig struct {
	// AllowedOrigins lists origins granted cross-origin access. The local
	// frontend dev server is always allowed regardless of this list.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:   ListenConfig{Port: 8000},
		Database: DatabaseConfig{Path: "taskflow.db"},
		LLM: LLMConfig{
			Model:      "google/gemma-3-4b-it:free",
			MaxTokens:  1000,
			TimeoutSec: 120,
		},
	}
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	return nil
}
