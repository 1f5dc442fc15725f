// Package config provides configuration loading and management for sweepvol.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"sweepvol/internal/models"
)

// Interpolation method names accepted by the resampler.
const (
	MethodFastLinear = "fast_linear"
	MethodRBF        = "rbf"
)

// Config represents the application configuration loaded from YAML.
// CLI flags override values loaded from the file.
type Config struct {
	// Resample holds the volume resampling parameters.
	Resample struct {
		// Thickness is the isotropic output voxel spacing in mm.
		Thickness float64 `yaml:"thickness"`

		// Interpolation selects the resampling method: fast_linear or rbf.
		Interpolation string `yaml:"interpolation"`

		// Workers is the number of parallel resampling workers.
		Workers int `yaml:"workers"`
	} `yaml:"resample"`

	// Respiration holds the surrogate estimation and classification parameters.
	Respiration struct {
		// NStates is the number of discrete respiration states.
		NStates int `yaml:"nStates"`

		// DisableCrop turns off the stable-range surrogate crop before
		// classification.
		DisableCrop bool `yaml:"disableCrop"`

		// CropPercentile is the tail fraction (per side, in percent)
		// discarded by the stable-range crop.
		CropPercentile float64 `yaml:"cropPercentile"`

		// SampleIntervalSec is the time between consecutive slice
		// acquisitions, used for the respiration-band QC diagnostic.
		SampleIntervalSec float64 `yaml:"sampleIntervalSec"`

		// SmoothingRadius is the half-width, in samples, of the bounded-lag
		// smoothing filter applied to the raw surrogate trace.
		SmoothingRadius int `yaml:"smoothingRadius"`
	} `yaml:"respiration"`

	// Run holds orchestration parameters.
	Run struct {
		// Redo forces recomputation, ignoring cached stage results.
		Redo bool `yaml:"redo"`

		// CachePath is the sqlite file used for stage bookkeeping.
		CachePath string `yaml:"cachePath"`

		// WriteReport controls QC report generation.
		WriteReport bool `yaml:"writeReport"`
	} `yaml:"run"`

	// Output parameters.
	Output struct {
		// Dir is the directory receiving per-state volumes and reports.
		Dir string `yaml:"dir"`

		// LogFile is the structured log destination.
		LogFile string `yaml:"logFile"`

		// Verbose enables debug-level console logging.
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Resample.Thickness = 2.5
	cfg.Resample.Interpolation = MethodFastLinear
	cfg.Resample.Workers = defaultWorkers()

	cfg.Respiration.NStates = 4
	cfg.Respiration.DisableCrop = false
	cfg.Respiration.CropPercentile = 2.5
	cfg.Respiration.SampleIntervalSec = 0.5
	cfg.Respiration.SmoothingRadius = 4

	cfg.Run.Redo = false
	cfg.Run.CachePath = "sweepvol_cache.db"
	cfg.Run.WriteReport = true

	cfg.Output.Dir = "sweepvol_out"
	cfg.Output.LogFile = "sweepvol.log"
	cfg.Output.Verbose = false

	return cfg
}

// defaultWorkers leaves one core free so the host stays responsive.
func defaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// Validate checks the configuration surface before any stage runs.
func (c *Config) Validate() error {
	if c.Resample.Thickness <= 0 {
		return fmt.Errorf("%w: thickness must be positive, got %g", models.ErrConfig, c.Resample.Thickness)
	}
	if c.Resample.Interpolation != MethodFastLinear && c.Resample.Interpolation != MethodRBF {
		return fmt.Errorf("%w: unknown interpolation method %q", models.ErrConfig, c.Resample.Interpolation)
	}
	if c.Resample.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", models.ErrConfig, c.Resample.Workers)
	}
	if c.Respiration.NStates < 1 {
		return fmt.Errorf("%w: nStates must be at least 1, got %d", models.ErrConfig, c.Respiration.NStates)
	}
	if c.Respiration.CropPercentile < 0 || c.Respiration.CropPercentile >= 50 {
		return fmt.Errorf("%w: cropPercentile must be in [0, 50), got %g", models.ErrConfig, c.Respiration.CropPercentile)
	}
	if c.Respiration.SmoothingRadius < 0 {
		return fmt.Errorf("%w: smoothingRadius must be non-negative, got %d", models.ErrConfig, c.Respiration.SmoothingRadius)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
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

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
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
