package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr         string `yaml:"addr"`
	DataDir      string `yaml:"data_dir"`
	PublicDir    string `yaml:"public_dir"`
	CookieSecure bool   `yaml:"cookie_secure"`
	LogLevel     string `yaml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		Addr:      ":3000",
		DataDir:   "data",
		PublicDir: "public",
		LogLevel:  "info",
	}
}

// LoadConfig reads the optional YAML file and applies TASKBOARD_* environment
// overrides on top. A missing file at the default path is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// defaults only
	case err != nil:
		return Config{}, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if v := os.Getenv("TASKBOARD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("TASKBOARD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TASKBOARD_PUBLIC_DIR"); v != "" {
		cfg.PublicDir = v
	}
	if v := os.Getenv("TASKBOARD_COOKIE_SECURE"); v != "" {
		cfg.CookieSecure = v == "1" || v == "true"
	}
	if v := os.Getenv("TASKBOARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}
