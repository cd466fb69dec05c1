package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Config holds all configurable smilebooth settings.
type Config struct {
	BackendURL string `json:"backend_url"` // smile-detection service base URL
	Device     string `json:"device"`      // camera selector: "", "v4l2:<path>", "dir:<path>", or an ffmpeg device
	OutputDir  string `json:"output_dir"`  // where composed strips are written
	Filter     string `json:"filter"`      // default cosmetic filter
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		BackendURL: "http://localhost:5000",
		OutputDir:  ".",
		Filter:     "none",
	}
}

// LoadGlobal reads ~/.config/smilebooth/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(home, ".config", "smilebooth", "config.json")
	return loadFile(path, true)
}

// LoadProject reads .smileboothrc in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".smileboothrc", false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()

	apply := func(c *Config) {
		if c == nil {
			return
		}
		if c.BackendURL != "" {
			result.BackendURL = c.BackendURL
		}
		if c.Device != "" {
			result.Device = c.Device
		}
		if c.OutputDir != "" {
			result.OutputDir = c.OutputDir
		}
		if c.Filter != "" {
			result.Filter = c.Filter
		}
	}

	apply(global)
	apply(project)

	return result
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
