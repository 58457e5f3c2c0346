// Package config provides configuration management for the asset pipeline
// using Viper for flexible loading from files, environment variables, and
// command-line flags.
//
// Configuration comes from .assetpipe.yml, environment variables with the
// ASSETPIPE_ prefix, and bound flags. Values are validated for dangerous
// characters and path traversal before the pipeline sees them.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Roots              []string      `yaml:"roots"`
	Hosts              []string      `yaml:"hosts"`
	Prefix             string        `yaml:"prefix"`
	Pristine           []string      `yaml:"pristine"`
	Entries            []string      `yaml:"entries"`
	Minify             bool          `yaml:"minify"`
	MinifiedPatterns   []string      `yaml:"minified_patterns"`
	MinProcessInterval time.Duration `yaml:"min_process_interval"`
	Log                LogConfig     `yaml:"log"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration written by `assetpipe init`.
func Default() *Config {
	return &Config{
		Roots:              []string{"./assets"},
		MinProcessInterval: 500 * time.Millisecond,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from viper state and validates it.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Workarounds for viper slice handling when values come from env/flags.
	if viper.IsSet("roots") && len(config.Roots) == 0 {
		config.Roots = viper.GetStringSlice("roots")
	}
	if viper.IsSet("hosts") && len(config.Hosts) == 0 {
		config.Hosts = viper.GetStringSlice("hosts")
	}
	if viper.IsSet("entries") && len(config.Entries) == 0 {
		config.Entries = viper.GetStringSlice("entries")
	}
	if viper.IsSet("pristine") && len(config.Pristine) == 0 {
		config.Pristine = viper.GetStringSlice("pristine")
	}
	if viper.IsSet("minify") {
		config.Minify = viper.GetBool("minify")
	}
	if viper.IsSet("min_process_interval") {
		config.MinProcessInterval = viper.GetDuration("min_process_interval")
	}

	if len(config.Roots) == 0 {
		config.Roots = []string{"./assets"}
	}
	if config.MinProcessInterval == 0 {
		config.MinProcessInterval = 500 * time.Millisecond
	}
	if config.Log.Level == "" {
		config.Log.Level = viper.GetString("log-level")
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks configuration values for security and correctness.
func Validate(config *Config) error {
	for _, root := range config.Roots {
		if err := validatePath(root); err != nil {
			return fmt.Errorf("invalid root '%s': %w", root, err)
		}
	}

	for _, host := range config.Hosts {
		if err := validateHost(host); err != nil {
			return fmt.Errorf("invalid host '%s': %w", host, err)
		}
	}

	if config.Prefix != "" && !strings.HasPrefix(config.Prefix, "/") {
		return fmt.Errorf("prefix must start with '/': %s", config.Prefix)
	}

	for _, p := range config.Pristine {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("pristine path must start with '/': %s", p)
		}
	}

	return nil
}

// validatePath validates a root directory path.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// validateHost validates a host prefix.
func validateHost(host string) error {
	if host == "" {
		return fmt.Errorf("empty host")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("host contains dangerous character: %s", char)
		}
	}

	return nil
}
