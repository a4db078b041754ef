// Package config provides configuration loading and management for grainmetrics.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Metrics parameters for grain adjacency and distributions
	Metrics struct {
		// Labeling selects how pixels map to grains: "color" or "component"
		Labeling string `yaml:"labeling"`

		// Algorithm selects the adjacency builder: "scan" or "dilation"
		Algorithm string `yaml:"algorithm"`

		// Connectivity is 4 (edge neighbours) or 8 (edge and corner neighbours)
		Connectivity int `yaml:"connectivity"`

		// Workers bounds concurrent slices per volume
		Workers int `yaml:"workers"`

		// GrainWorkers bounds concurrent grains per slice for dilation
		GrainWorkers int `yaml:"grainWorkers"`

		// MaxGrains rejects slices with more grains than this; 0 disables the limit
		MaxGrains int `yaml:"maxGrains"`

		// Timeout bounds a whole comparison; 0 disables it
		Timeout time.Duration `yaml:"timeout"`

		// KDEPoints is the number of samples written per density curve
		KDEPoints int `yaml:"kdePoints"`

		// KDESamples caps the values fed to each density estimate; 0 disables the cap
		KDESamples int `yaml:"kdeSamples"`
	} `yaml:"metrics"`

	// Slicing parameters
	Slicing struct {
		// NumSlices is how many evenly spaced slices to extract per axis
		NumSlices int `yaml:"numSlices"`

		// Isotropic extracts along z only; otherwise along x, y and z
		Isotropic bool `yaml:"isotropic"`
	} `yaml:"slicing"`

	// Postprocess parameters for volume sharpening
	Postprocess struct {
		Alpha float64 `yaml:"alpha"`
		Sigma float64 `yaml:"sigma"`

		// Grayscale collapses RGB volumes to one channel before export
		Grayscale bool `yaml:"grayscale"`
	} `yaml:"postprocess"`

	// Output parameters
	Output struct {
		// Dir is where reports are written
		Dir string `yaml:"dir"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Metrics.Labeling = "color"
	cfg.Metrics.Algorithm = "scan"
	cfg.Metrics.Connectivity = 4
	cfg.Metrics.Workers = runtime.NumCPU()
	cfg.Metrics.GrainWorkers = 1
	cfg.Metrics.MaxGrains = 0
	cfg.Metrics.Timeout = 0
	cfg.Metrics.KDEPoints = 1000
	cfg.Metrics.KDESamples = 200000

	cfg.Slicing.NumSlices = 100
	cfg.Slicing.Isotropic = true

	cfg.Postprocess.Alpha = 1.5
	cfg.Postprocess.Sigma = 1.0
	cfg.Postprocess.Grayscale = true

	cfg.Output.Dir = "output_metrics"
	cfg.Output.Verbose = false

	return cfg
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Metrics.Labeling {
	case "color", "component":
	default:
		return fmt.Errorf("metrics.labeling must be color or component, got %q", c.Metrics.Labeling)
	}
	switch c.Metrics.Algorithm {
	case "scan", "dilation":
	default:
		return fmt.Errorf("metrics.algorithm must be scan or dilation, got %q", c.Metrics.Algorithm)
	}
	if c.Metrics.Connectivity != 4 && c.Metrics.Connectivity != 8 {
		return fmt.Errorf("metrics.connectivity must be 4 or 8, got %d", c.Metrics.Connectivity)
	}
	if c.Metrics.Workers < 0 || c.Metrics.GrainWorkers < 0 {
		return fmt.Errorf("metrics.workers and metrics.grainWorkers must not be negative")
	}
	if c.Metrics.MaxGrains < 0 {
		return fmt.Errorf("metrics.maxGrains must not be negative, got %d", c.Metrics.MaxGrains)
	}
	if c.Metrics.KDEPoints < 2 {
		return fmt.Errorf("metrics.kdePoints must be at least 2, got %d", c.Metrics.KDEPoints)
	}
	if c.Metrics.KDESamples < 0 {
		return fmt.Errorf("metrics.kdeSamples must not be negative, got %d", c.Metrics.KDESamples)
	}
	if c.Slicing.NumSlices < 1 {
		return fmt.Errorf("slicing.numSlices must be positive, got %d", c.Slicing.NumSlices)
	}
	if c.Postprocess.Sigma <= 0 {
		return fmt.Errorf("postprocess.sigma must be positive, got %g", c.Postprocess.Sigma)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
