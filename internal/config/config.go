package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models gigline.yml.
type Config struct {
	Server struct {
		Address  string `yaml:"address"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Notify struct {
		Workers       int `yaml:"workers"`
		QueueSize     int `yaml:"queue_size"`
		RetentionDays int `yaml:"retention_days"`
	} `yaml:"notify"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// WebhookConfig describes one push endpoint consuming notification records.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	Categories     []string `yaml:"categories,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

const fileName = "gigline.yml"

// Path returns the config path inside workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// Default returns a runnable configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Address = ":8080"
	cfg.Server.BasePath = "/v1"
	cfg.Notify.Workers = 4
	cfg.Notify.QueueSize = 256
	cfg.Notify.RetentionDays = 90
	return cfg
}

// Load reads gigline.yml from the workspace, falling back to defaults when
// the file is absent.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates a config document.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("config.server.address is required")
	}
	if c.Notify.Workers <= 0 {
		return fmt.Errorf("config.notify.workers must be positive")
	}
	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("config.notify.queue_size must be positive")
	}
	if c.Notify.RetentionDays < 0 {
		return fmt.Errorf("config.notify.retention_days must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}
