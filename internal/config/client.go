package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigDir returns the default config directory (~/.taskline).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".taskline"), nil
}

// DefaultConfigPath returns the default config file path (~/.taskline/config.yml).
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// ClientConfig holds the tasklinectl configuration.
type ClientConfig struct {
	DatabaseURL string `yaml:"database_url,omitempty"`
	ServerURL   string `yaml:"server_url,omitempty"`
	AccessToken string `yaml:"access_token,omitempty"`
}

// Validate checks that the configuration has required fields for operation.
func (c *ClientConfig) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database_url is required")
	}
	return nil
}

// LoadClient reads the configuration from the given path.
// If the file does not exist, an empty config is returned.
func LoadClient(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ClientConfig{}, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return &cfg, nil
}

// LoadClientDefault loads the configuration from the default path.
func LoadClientDefault() (*ClientConfig, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadClient(path)
}

// Save writes the configuration to the given path, creating directories as needed.
func (c *ClientConfig) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Write with restricted permissions (user-only read/write)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}
