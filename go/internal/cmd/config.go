package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		APIBaseURL string `yaml:"api_base_url"`
		ChannelURL string `yaml:"channel_url"`
	} `yaml:"server"`
	Client struct {
		IdentityFile         string `yaml:"identity_file"`
		MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
		ReconnectWaitMS      int    `yaml:"reconnect_wait_ms"`
	} `yaml:"client"`
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

func loadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Environment variables override the file; defaults fill the rest.
	config.Server.APIBaseURL = getEnv("FOURFURY_API_URL", defaultString(config.Server.APIBaseURL, "http://localhost:8000/api"))
	config.Server.ChannelURL = getEnv("FOURFURY_CHANNEL_URL", defaultString(config.Server.ChannelURL, "ws://localhost:8000/api/socket"))
	config.Client.IdentityFile = getEnv("FOURFURY_IDENTITY_FILE", defaultString(config.Client.IdentityFile, defaultIdentityPath()))
	config.Client.MaxReconnectAttempts = getEnvAsInt("FOURFURY_MAX_RECONNECT_ATTEMPTS", config.Client.MaxReconnectAttempts)
	config.Client.ReconnectWaitMS = getEnvAsInt("FOURFURY_RECONNECT_WAIT_MS", config.Client.ReconnectWaitMS)

	return &config, nil
}

func defaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func defaultIdentityPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fourfury-identity.json"
	}
	return home + "/.fourfury/identity.json"
}
