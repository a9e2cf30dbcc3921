package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-connections/core"
	"gopkg.in/yaml.v3"
)

const (
	envStorage  = "CONNECTIONS_STORAGE"
	envDSN      = "CONNECTIONS_DSN"
	envDatabase = "CONNECTIONS_DATABASE"
	envAppKey   = "CONNECTIONS_APP_KEY"
	envUser     = "CONNECTIONS_USER"
	envLogLevel = "CONNECTIONS_LOG_LEVEL"
)

// fileConfig is the YAML layout read through --config. The connections
// section is handed to the core config provider as is.
type fileConfig struct {
	Connections map[string]any `yaml:"connections"`
	Storage     storageConfig  `yaml:"storage"`
	LogLevel    string         `yaml:"log_level"`
}

type storageConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Database string `yaml:"database"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// yamlConfigLoader implements core.RawConfigLoader over the connections
// section of the YAML file.
type yamlConfigLoader struct {
	values map[string]any
}

var _ core.RawConfigLoader = yamlConfigLoader{}

func (l yamlConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// settings are the resolved runtime choices. Precedence is flag, then
// environment, then config file, then the built-in default.
type settings struct {
	Storage  string
	DSN      string
	Database string
	AppKey   string
	UserID   string
	LogLevel string
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
