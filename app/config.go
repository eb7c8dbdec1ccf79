package app

import (
	"fmt"
	"strings"

	coreconfig "github.com/m3rciful/streambot/core/config"
	coredatabase "github.com/m3rciful/streambot/core/database"
	"github.com/m3rciful/streambot/providers/youtube"
	"github.com/m3rciful/streambot/tracker"
)

// Database defaults.
const (
	DefaultDBHost           = "localhost"
	DefaultDBPort           = "5432"
	DefaultDBSSLMode        = "disable"
	DefaultDBMaxConnections = 10
)

// LocaleConfig points at an optional message catalogue overlay.
type LocaleConfig struct {
	Path string `yaml:"path" envconfig:"LOCALE_PATH"`
}

// Config is the streambot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Locale   LocaleConfig        `yaml:"locale"`
	AdminIDs []int64             `yaml:"admin_ids" envconfig:"ADMIN_IDS"`
	Tracker  tracker.Config      `yaml:"tracker"`
	YouTube  youtube.Config      `yaml:"youtube"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// LoadConfig reads path, applies the environment and validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if strings.TrimSpace(c.YouTube.APIKey) == "" {
		return fmt.Errorf("youtube.api_key is required")
	}
	if strings.TrimSpace(c.Database.Name) == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.Host == "" {
		c.Database.Host = DefaultDBHost
	}
	if c.Database.Port == "" {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConnections <= 0 {
		c.Database.MaxConnections = DefaultDBMaxConnections
	}
	return nil
}
