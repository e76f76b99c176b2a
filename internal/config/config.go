// Package config loads karmafeed settings: defaults, then an optional
// YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIBaseURL string `yaml:"api_base_url"`
	UserID     int64  `yaml:"user_id"`
	Username   string `yaml:"username"`

	DatabaseURL string `yaml:"database_url"`
	Port        string `yaml:"port"`
	CORSOrigin  string `yaml:"cors_origin"`

	LeaderboardInterval time.Duration `yaml:"leaderboard_interval"`
	MaxReplyDepth       int           `yaml:"max_reply_depth"`
	MaxContentLength    int           `yaml:"max_content_length"`

	ClientRPS   float64       `yaml:"client_rps"`
	ClientBurst int           `yaml:"client_burst"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Default() Config {
	return Config{
		APIBaseURL:          "http://127.0.0.1:8000/api",
		UserID:              1,
		Username:            "demo_user",
		DatabaseURL:         "sqlite://feed.db",
		Port:                "8080",
		CORSOrigin:          "*",
		LeaderboardInterval: 30 * time.Second,
		MaxReplyDepth:       3,
		MaxContentLength:    1000,
		ClientRPS:           10,
		ClientBurst:         5,
		HTTPTimeout:         15 * time.Second,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// Load builds the configuration. path may be empty; a missing file at a
// non-empty path is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.APIBaseURL = getEnv("FEED_API_URL", c.APIBaseURL)
	c.Username = getEnv("FEED_USERNAME", c.Username)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.Port = getEnv("PORT", c.Port)
	c.CORSOrigin = getEnv("CORS_ORIGIN", c.CORSOrigin)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	if v := os.Getenv("FEED_USER_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid FEED_USER_ID %q: %w", v, err)
		}
		c.UserID = id
	}
	if v := os.Getenv("LEADERBOARD_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LEADERBOARD_INTERVAL %q: %w", v, err)
		}
		c.LeaderboardInterval = d
	}
	if v := os.Getenv("MAX_REPLY_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_REPLY_DEPTH %q: %w", v, err)
		}
		c.MaxReplyDepth = n
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.APIBaseURL == "" {
		errs = append(errs, errors.New("api_base_url is required"))
	}
	if c.LeaderboardInterval <= 0 {
		errs = append(errs, fmt.Errorf("leaderboard_interval must be positive, got %s", c.LeaderboardInterval))
	}
	if c.MaxReplyDepth < 1 {
		errs = append(errs, fmt.Errorf("max_reply_depth must be at least 1, got %d", c.MaxReplyDepth))
	}
	if c.MaxContentLength < 1 {
		errs = append(errs, fmt.Errorf("max_content_length must be at least 1, got %d", c.MaxContentLength))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
