package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

const configPathEnvVar = "CONFIG_PATH"

type Config interface {
	EnvConfig
	APIConfig
	SessionConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetMetricsAddr() string
}

type mainConfig struct {
	EnvVars `yaml:",inline"`
	API     `yaml:"api"`
	Session `yaml:"session"`
	Storage `yaml:"storage"`
}

// New reads configuration from env vars only.
func New() (Config, error) {
	var c mainConfig
	if err := cleanenv.ReadEnv(&c); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	return c, nil
}

// Load reads the YAML file at path (or CONFIG_PATH) and overlays env vars.
// With neither present it falls back to New.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(configPathEnvVar)
	}
	if path == "" {
		return New()
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}

	var c mainConfig
	if err := cleanenv.ReadConfig(path, &c); err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return c, nil
}
