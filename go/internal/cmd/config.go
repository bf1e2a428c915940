package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	API struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"api"`

	Channel struct {
		URL              string `yaml:"url"`
		ReconnectWaitMS  int    `yaml:"reconnect_wait_ms"`
		ResyncIntervalMS int    `yaml:"resync_interval_ms"`
	} `yaml:"channel"`

	Engine struct {
		PollIntervalMS int `yaml:"poll_interval_ms"`
	} `yaml:"engine"`

	Auth struct {
		TokenFile string `yaml:"token_file"`
	} `yaml:"auth"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads the YAML config and layers env overrides on top. A
// missing file is fine; everything has a default.
func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("PORT", fallback(config.Server.Port, "8080"))
	config.API.BaseURL = getEnv("API_BASE_URL", fallback(config.API.BaseURL, "http://localhost:3000"))
	config.Channel.URL = getEnv("CHANNEL_URL", fallback(config.Channel.URL, "ws://localhost:3000/ws"))
	config.Auth.TokenFile = getEnv("AUTH_TOKEN_FILE", fallback(config.Auth.TokenFile, defaultTokenFile()))

	if config.Channel.ReconnectWaitMS == 0 {
		config.Channel.ReconnectWaitMS = getEnvAsInt("CHANNEL_RECONNECT_WAIT_MS", 2000)
	}
	if config.Channel.ResyncIntervalMS == 0 {
		config.Channel.ResyncIntervalMS = getEnvAsInt("CHANNEL_RESYNC_INTERVAL_MS", 1000)
	}
	if config.Engine.PollIntervalMS == 0 {
		config.Engine.PollIntervalMS = getEnvAsInt("ENGINE_POLL_INTERVAL_MS", 2000)
	}

	return &config, nil
}

func fallback(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tickshare-token.json"
	}
	return filepath.Join(home, ".config", "tickshare", "token.json")
}

func (c *Config) reconnectWait() time.Duration {
	return time.Duration(c.Channel.ReconnectWaitMS) * time.Millisecond
}

func (c *Config) resyncInterval() time.Duration {
	return time.Duration(c.Channel.ResyncIntervalMS) * time.Millisecond
}

func (c *Config) pollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMS) * time.Millisecond
}
