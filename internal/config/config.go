// Package config loads echopedal settings from YAML with environment overrides
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/linuxmatters/echopedal/internal/pots"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultFile is searched in the working directory when no path is given
const DefaultFile = "echopedal.yaml"

// Config is the application configuration
type Config struct {
	Server        string         `yaml:"server"`          // Base URL of the processing service
	Timeout       time.Duration  `yaml:"timeout"`         // Per-request HTTP timeout; processing is synchronous on the server
	LogLevel      string         `yaml:"log_level"`       // debug, info, warn or error
	LogFile       string         `yaml:"log_file"`        // Debug log used while the TUI owns the terminal
	DownloadDir   string         `yaml:"download_dir"`    // Where downloaded results are saved
	ErrorDismiss  time.Duration  `yaml:"error_dismiss"`   // How long an error banner stays up
	CleanupOnExit bool           `yaml:"cleanup_on_exit"` // Release the session when quitting
	Initial       ControlsConfig `yaml:"initial"`         // Starting pot positions
}

// ControlsConfig holds raw 0-100 pot positions
type ControlsConfig struct {
	Delay    int `yaml:"delay"`
	Mix      int `yaml:"mix"`
	LFO      int `yaml:"lfo"`
	Feedback int `yaml:"feedback"`
}

// Controls converts the positions for the controller
func (c ControlsConfig) Controls() pots.Controls {
	return pots.Controls{
		Delay:    pots.Clamp(c.Delay),
		Mix:      pots.Clamp(c.Mix),
		LFO:      pots.Clamp(c.LFO),
		Feedback: pots.Clamp(c.Feedback),
	}
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server:        "http://127.0.0.1:5000",
		Timeout:       5 * time.Minute,
		LogLevel:      "info",
		LogFile:       "echopedal-debug.log",
		DownloadDir:   ".",
		ErrorDismiss:  5 * time.Second,
		CleanupOnExit: true,
		Initial:       ControlsConfig{Delay: 30, Mix: 0, LFO: 0, Feedback: 50},
	}
}

// LoadConfig loads configuration from path. With an empty path it looks for
// DefaultFile in the working directory and falls back to the defaults when
// there is none. Environment overrides are applied last, then the result is
// validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err != nil {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return &cfg, nil
		}
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the values LoadConfig cannot default
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server %q must be an http or https URL", c.Server)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ErrorDismiss <= 0 {
		return fmt.Errorf("error_dismiss must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level %q must be debug, info, warn or error", c.LogLevel)
	}
	for name, v := range map[string]int{
		"delay":    c.Initial.Delay,
		"mix":      c.Initial.Mix,
		"lfo":      c.Initial.LFO,
		"feedback": c.Initial.Feedback,
	} {
		if v < int(pots.MinValue) || v > int(pots.MaxValue) {
			return fmt.Errorf("initial.%s %d out of range 0-100", name, v)
		}
	}
	return nil
}

// EnvVar documents one environment override
type EnvVar struct {
	Name string
	Help string
}

// EnvVars lists the environment overrides applied over the config file
var EnvVars = []EnvVar{
	{"ECHOPEDAL_SERVER", "Processing service base URL"},
	{"ECHOPEDAL_TIMEOUT", "HTTP timeout, e.g. 2m"},
	{"ECHOPEDAL_LOG_LEVEL", "debug, info, warn or error"},
	{"ECHOPEDAL_DOWNLOAD_DIR", "Where downloads and reports are saved"},
}

// applyEnvOverrides reads ECHOPEDAL_* variables; unparsable values are ignored
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ECHOPEDAL_SERVER"); ok {
		c.Server = val
		logOverride("server", val)
	}
	if val, ok := os.LookupEnv("ECHOPEDAL_TIMEOUT"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			c.Timeout = d
			logOverride("timeout", d.String())
		}
	}
	if val, ok := os.LookupEnv("ECHOPEDAL_LOG_LEVEL"); ok {
		c.LogLevel = val
		logOverride("log_level", val)
	}
	if val, ok := os.LookupEnv("ECHOPEDAL_DOWNLOAD_DIR"); ok {
		c.DownloadDir = val
		logOverride("download_dir", val)
	}
}

func logOverride(key, val string) {
	logrus.WithFields(logrus.Fields{
		"function": "applyEnvOverrides",
		"key":      key,
		"value":    val,
	}).Debug("Overriding configuration from env")
}
