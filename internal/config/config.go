// Package config reads the leadsync configuration from a yaml file and
// the environment.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jakopako/leadsync/internal/api"
	"github.com/jakopako/leadsync/internal/fetch"
	"github.com/jakopako/leadsync/internal/progress"
	"github.com/jakopako/leadsync/internal/server"
	"github.com/jakopako/leadsync/internal/syncer"
)

type StorageConfig struct {
	Path string `yaml:"path" env:"LEADSYNC_DB" env-default:"leadsync.db"`
}

type SchemasConfig struct {
	// Path of a yaml file whose platforms replace the embedded defaults.
	Path string `yaml:"path" env:"LEADSYNC_SCHEMAS"`
}

// Config defines the overall structure of the leadsync configuration.
// Values are taken from a yaml file or environment variables or both.
type Config struct {
	Backend  api.Config            `yaml:"backend"`
	Cache    api.TTLs              `yaml:"cache"`
	Fetcher  fetch.FetcherConfig   `yaml:"fetcher"`
	Sync     syncer.Config         `yaml:"sync"`
	Progress progress.WriterConfig `yaml:"progress"`
	Storage  StorageConfig         `yaml:"storage"`
	Schemas  SchemasConfig         `yaml:"schemas"`
	Server   server.Config         `yaml:"server"`
}

// NewConfigFromFile reads the configuration at path. If path is empty only
// the environment and the defaults are used.
func NewConfigFromFile(path string) (*Config, error) {
	var config Config

	if path == "" {
		if err := cleanenv.ReadEnv(&config); err != nil {
			return nil, fmt.Errorf("error reading environment: %w", err)
		}
		return &config, nil
	}
	if err := cleanenv.ReadConfig(path, &config); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return &config, nil
}
