// Package config loads tramway-tour settings from the environment and .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by Load
const (
	EnvManifest    = "TRAMWAY_TOUR_MANIFEST"
	EnvLogLevel    = "TRAMWAY_TOUR_LOG_LEVEL"
	EnvLogFormat   = "TRAMWAY_TOUR_LOG_FORMAT"
	EnvHTTPTimeout = "TRAMWAY_TOUR_HTTP_TIMEOUT"
	EnvUserAgent   = "TRAMWAY_TOUR_USER_AGENT"
	EnvRetries     = "TRAMWAY_TOUR_RETRIES"
)

// Config holds runtime settings. Bundle URLs and checksums live in the
// manifest, never here.
type Config struct {
	ManifestPath string
	LogLevel     string
	LogFormat    string
	HTTPTimeout  time.Duration
	UserAgent    string
	Retries      int
}

// Load reads envFiles (".env" when none are given) without overriding
// variables already set, then builds a Config from the environment.
// A missing default .env is not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}

	timeout, err := time.ParseDuration(getEnv(EnvHTTPTimeout, "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvHTTPTimeout, err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("invalid %s: must be positive", EnvHTTPTimeout)
	}

	retries, err := strconv.Atoi(getEnv(EnvRetries, "0"))
	if err != nil || retries < 0 {
		return nil, fmt.Errorf("invalid %s: want a non-negative integer", EnvRetries)
	}

	return &Config{
		ManifestPath: getEnv(EnvManifest, "bundles.yml"),
		LogLevel:     getEnv(EnvLogLevel, "info"),
		LogFormat:    getEnv(EnvLogFormat, "console"),
		HTTPTimeout:  timeout,
		UserAgent:    getEnv(EnvUserAgent, ""),
		Retries:      retries,
	}, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
