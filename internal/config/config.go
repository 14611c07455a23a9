// Package config loads the backend configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file location used when none is given.
const DefaultPath = "console.yaml"

// Config is the top-level backend configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// DBPath is the SQLite database file for run history.
	DBPath string `yaml:"db_path"`

	// ScrollbackLines is the size of the in-memory console scrollback.
	ScrollbackLines int `yaml:"scrollback_lines"`

	Server ServerConfig `yaml:"server"`
}

// ServerConfig describes the game server process to supervise.
type ServerConfig struct {
	// Command is the server executable.
	Command string `yaml:"command"`

	// Args are passed to the executable.
	Args []string `yaml:"args"`

	// Workdir is the working directory for the server process.
	Workdir string `yaml:"workdir"`

	// StopCommand is written to the server console to request shutdown.
	StopCommand string `yaml:"stop_command"`

	// StopTimeoutSeconds bounds the graceful-stop wait before the process
	// is killed.
	StopTimeoutSeconds int `yaml:"stop_timeout_seconds"`
}

// StopTimeout returns the graceful-stop wait as a duration.
func (c ServerConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutSeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:          ":8080",
		DBPath:          "data/console.db",
		ScrollbackLines: 1000,
		Server: ServerConfig{
			StopCommand:        "stop",
			StopTimeoutSeconds: 30,
		},
	}
}

// Load reads the config file at path, falling back to defaults when the file
// does not exist, then applies environment overrides. A missing file is only
// an error when the path was set explicitly.
func Load(path string, explicit bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnv()

	if cfg.Server.StopCommand == "" {
		cfg.Server.StopCommand = "stop"
	}
	if cfg.Server.StopTimeoutSeconds <= 0 {
		cfg.Server.StopTimeoutSeconds = 30
	}
	if cfg.ScrollbackLines <= 0 {
		cfg.ScrollbackLines = 1000
	}

	return cfg, nil
}

// applyEnv overrides file values with CONSOLE_* environment variables.
func (c *Config) applyEnv() {
	c.Listen = getEnv("CONSOLE_LISTEN", c.Listen)
	c.DBPath = getEnv("CONSOLE_DB_PATH", c.DBPath)
	c.Server.Command = getEnv("CONSOLE_SERVER_COMMAND", c.Server.Command)
	c.Server.Workdir = getEnv("CONSOLE_SERVER_WORKDIR", c.Server.Workdir)
	c.Server.StopCommand = getEnv("CONSOLE_STOP_COMMAND", c.Server.StopCommand)

	if v := os.Getenv("CONSOLE_STOP_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Server.StopTimeoutSeconds = n
		}
	}
	if v := os.Getenv("CONSOLE_SCROLLBACK_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ScrollbackLines = n
		}
	}
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
