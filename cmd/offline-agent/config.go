package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen  string `yaml:"listen"`
	Origin  string `yaml:"origin"`
	Version string `yaml:"version"`
	Store   struct {
		// Backend is one of sqlite, leveldb, memory.
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"store"`
	Cache struct {
		MaxEntries int    `yaml:"maxEntries"`
		MaxAge     string `yaml:"maxAge"`

		// compiled
		maxAgeDur time.Duration
	} `yaml:"cache"`
	Manifest []string `yaml:"manifest"`
	Offline  string   `yaml:"offline"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, err
	}
	if config.Cache.MaxAge != "" {
		dur, err := time.ParseDuration(config.Cache.MaxAge)
		if err != nil {
			return config, fmt.Errorf("cache.maxAge: %w", err)
		}
		config.Cache.maxAgeDur = dur
	}
	if config.Listen == "" {
		config.Listen = ":8080"
	}
	return config, nil
}
