package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device struct {
		BaseURL   string `yaml:"base_url"`
		SocketURL string `yaml:"socket_url"`
	} `yaml:"device"`
	Prefs struct {
		Path string `yaml:"path"`
	} `yaml:"prefs"`
	Auth struct {
		MaxAttempts     int `yaml:"max_attempts"`
		CoolDownSeconds int `yaml:"cool_down_seconds"`
	} `yaml:"auth"`
}

func defaultConfig() *Config {
	var config Config
	config.Device.BaseURL = "http://192.168.4.1/api"
	config.Device.SocketURL = "ws://192.168.4.1/ws"
	config.Prefs.Path = "panel-prefs.db"
	config.Auth.MaxAttempts = 5
	config.Auth.CoolDownSeconds = 30
	return &config
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

// loadConfig reads the YAML config file and applies environment
// overrides on top. A missing file is not an error; the defaults
// describe a device in access-point mode.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.Device.BaseURL = getEnv("DEVICE_BASE_URL", config.Device.BaseURL)
	config.Device.SocketURL = getEnv("DEVICE_SOCKET_URL", config.Device.SocketURL)
	config.Prefs.Path = getEnv("PREFS_PATH", config.Prefs.Path)
	config.Auth.MaxAttempts = getEnvAsInt("AUTH_MAX_ATTEMPTS", config.Auth.MaxAttempts)
	config.Auth.CoolDownSeconds = getEnvAsInt("AUTH_COOL_DOWN_SECONDS", config.Auth.CoolDownSeconds)

	return config, nil
}
