// Package config provides configuration loading for the SpeedVitals CLI
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	prerrors "github.com/mrz1836/go-speedvitals/internal/errors"
)

// EnvFileName is the optional environment file looked up from the working directory
const EnvFileName = ".speedvitals.env"

// Defaults
const (
	DefaultBaseURL         = "https://api.speedvitals.com/v1"
	DefaultConcurrency     = 3
	DefaultPollInterval    = 5 * time.Second
	DefaultMaxPollAttempts = 60
	DefaultMaxRetries      = 2
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultDevice          = "mobile"
	DefaultLocation        = "us"
	DefaultLogLevel        = "warn"
)

// Config holds the configuration for the CLI
type Config struct {
	// Core settings
	APIKey   string // SPEEDVITALS_API_KEY
	BaseURL  string // SPEEDVITALS_BASE_URL
	LogLevel string // SPEEDVITALS_LOG_LEVEL
	EnvFile  string // Environment file that was loaded, if any

	// Request defaults for --urls
	Defaults struct {
		Device   string // SPEEDVITALS_DEFAULT_DEVICE
		Location string // SPEEDVITALS_DEFAULT_LOCATION
	}

	// Scheduling
	Performance struct {
		Concurrency int // SPEEDVITALS_CONCURRENCY
		MaxRetries  int // SPEEDVITALS_MAX_RETRIES
	}

	// Polling
	Polling struct {
		Interval    time.Duration // SPEEDVITALS_POLL_INTERVAL
		MaxAttempts int           // SPEEDVITALS_MAX_POLL_ATTEMPTS
	}

	// HTTP client
	HTTP struct {
		Timeout time.Duration // SPEEDVITALS_HTTP_TIMEOUT
	}

	// UI settings
	UI struct {
		ColorOutput bool // SPEEDVITALS_COLOR_OUTPUT (default: true)
	}
}

// Load reads configuration from the environment. envFile names an env file to
// load first; when empty, .speedvitals.env is searched for from the working
// directory upwards and skipped if absent. Variables already set in the
// environment win over file values.
func Load(envFile string) (*Config, error) {
	cfg := &Config{}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		cfg.EnvFile = envFile
	} else if found, err := findEnvFile(); err == nil {
		if err := godotenv.Load(found); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", found, err)
		}
		cfg.EnvFile = found
	}

	// Core settings
	cfg.APIKey = getStringEnv("SPEEDVITALS_API_KEY", "")
	cfg.BaseURL = strings.TrimRight(getStringEnv("SPEEDVITALS_BASE_URL", DefaultBaseURL), "/")
	cfg.LogLevel = getStringEnv("SPEEDVITALS_LOG_LEVEL", DefaultLogLevel)

	// Request defaults
	cfg.Defaults.Device = getStringEnv("SPEEDVITALS_DEFAULT_DEVICE", DefaultDevice)
	cfg.Defaults.Location = getStringEnv("SPEEDVITALS_DEFAULT_LOCATION", DefaultLocation)

	// Scheduling
	cfg.Performance.Concurrency = getIntEnv("SPEEDVITALS_CONCURRENCY", DefaultConcurrency)
	cfg.Performance.MaxRetries = getIntEnv("SPEEDVITALS_MAX_RETRIES", DefaultMaxRetries)

	// Polling
	cfg.Polling.Interval = getDurationEnv("SPEEDVITALS_POLL_INTERVAL", DefaultPollInterval)
	cfg.Polling.MaxAttempts = getIntEnv("SPEEDVITALS_MAX_POLL_ATTEMPTS", DefaultMaxPollAttempts)

	// HTTP client
	cfg.HTTP.Timeout = getDurationEnv("SPEEDVITALS_HTTP_TIMEOUT", DefaultHTTPTimeout)

	// UI settings
	cfg.UI.ColorOutput = getBoolEnv("SPEEDVITALS_COLOR_OUTPUT", true)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration and provides helpful error messages.
// A missing API key is not a configuration error; the analyze command
// reports it alongside the other option problems.
func (c *Config) Validate() error {
	var errors []string

	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, "SPEEDVITALS_BASE_URL must be an absolute http(s) URL")
	}

	if c.Performance.Concurrency <= 0 {
		errors = append(errors, "SPEEDVITALS_CONCURRENCY must be greater than 0")
	}

	if c.Performance.MaxRetries < 0 {
		errors = append(errors, "SPEEDVITALS_MAX_RETRIES must be 0 or positive")
	}

	if c.Polling.Interval <= 0 {
		errors = append(errors, "SPEEDVITALS_POLL_INTERVAL must be greater than 0")
	}

	if c.Polling.MaxAttempts <= 0 {
		errors = append(errors, "SPEEDVITALS_MAX_POLL_ATTEMPTS must be greater than 0")
	}

	if c.HTTP.Timeout <= 0 {
		errors = append(errors, "SPEEDVITALS_HTTP_TIMEOUT must be greater than 0")
	}

	if strings.TrimSpace(c.Defaults.Device) == "" {
		errors = append(errors, "SPEEDVITALS_DEFAULT_DEVICE must not be empty")
	}

	if strings.TrimSpace(c.Defaults.Location) == "" {
		errors = append(errors, "SPEEDVITALS_DEFAULT_LOCATION must not be empty")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errors = append(errors, "SPEEDVITALS_LOG_LEVEL must be one of: debug, info, warn, error")
	}

	if len(errors) > 0 {
		return &ValidationError{
			Errors: errors,
		}
	}

	return nil
}

// NewLogger builds a logrus logger writing to w at the configured level.
// verbose forces debug.
func (c *Config) NewLogger(w io.Writer, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors: !c.UI.ColorOutput,
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	return logger
}

// ValidationError represents configuration validation errors
type ValidationError struct {
	Errors []string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// GetConfigHelp returns helpful information about configuration options
func GetConfigHelp() string {
	return `SpeedVitals CLI Configuration Help

Environment Variables:

Core Settings:
  SPEEDVITALS_API_KEY=<key>                     API key (https://speedvitals.com/account/api)
  SPEEDVITALS_BASE_URL=https://api.speedvitals.com/v1  API base URL
  SPEEDVITALS_LOG_LEVEL=warn                    Log level (debug, info, warn, error)

Request Defaults (used with --urls):
  SPEEDVITALS_DEFAULT_DEVICE=mobile             Device type
  SPEEDVITALS_DEFAULT_LOCATION=us               Testing location

Performance Settings:
  SPEEDVITALS_CONCURRENCY=3                     Tests running at the same time
  SPEEDVITALS_MAX_RETRIES=2                     Extra attempts per URL after a failure

Polling:
  SPEEDVITALS_POLL_INTERVAL=5s                  Wait between status checks
  SPEEDVITALS_MAX_POLL_ATTEMPTS=60              Status checks before a test times out

HTTP Settings:
  SPEEDVITALS_HTTP_TIMEOUT=30s                  Timeout for a single API call

UI Settings:
  SPEEDVITALS_COLOR_OUTPUT=true                 Enable colored output

Values are read from the environment and from an optional .speedvitals.env
file, found by walking up from the current directory (or named with --env-file).
Variables already set in the environment take precedence over the file.

Example .speedvitals.env:
  SPEEDVITALS_API_KEY=sv_xxxxxxxxxxxx
  SPEEDVITALS_CONCURRENCY=5
  SPEEDVITALS_POLL_INTERVAL=10s  # slower polling for long pages
`
}

// findEnvFile locates the .speedvitals.env file
func findEnvFile() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	for {
		envPath := filepath.Join(cwd, EnvFileName)
		if info, err := os.Stat(envPath); err == nil && !info.IsDir() {
			return envPath, nil
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			// Reached root
			break
		}
		cwd = parent
	}

	return "", prerrors.ErrEnvFileNotFound
}

// Helper functions for environment variable parsing
func getBoolEnv(key string, defaultValue bool) bool {
	val := getStringEnv(key, "")
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

func getIntEnv(key string, defaultValue int) int {
	val := getStringEnv(key, "")
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

// getDurationEnv accepts Go durations ("5s") or a bare number of milliseconds
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	val := getStringEnv(key, "")
	if val == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}
	return d
}

func getStringEnv(key, defaultValue string) string {
	val := stripComments(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	return val
}

// stripComments removes a trailing " #comment" from a value; a hash not
// preceded by whitespace is part of the value
func stripComments(value string) string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "#") {
		return ""
	}
	for i := 1; i < len(value); i++ {
		if value[i] == '#' && (value[i-1] == ' ' || value[i-1] == '\t') {
			return strings.TrimSpace(value[:i])
		}
	}
	return value
}
