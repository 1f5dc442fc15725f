package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sweepvol/internal/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 2.5, cfg.Resample.Thickness)
	require.Equal(t, MethodFastLinear, cfg.Resample.Interpolation)
	require.Equal(t, 4, cfg.Respiration.NStates)
	require.Equal(t, 2.5, cfg.Respiration.CropPercentile)
	require.GreaterOrEqual(t, cfg.Resample.Workers, 1)
	require.True(t, cfg.Run.WriteReport)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero thickness":     func(c *Config) { c.Resample.Thickness = 0 },
		"negative thickness": func(c *Config) { c.Resample.Thickness = -1 },
		"unknown method":     func(c *Config) { c.Resample.Interpolation = "bicubic" },
		"zero workers":       func(c *Config) { c.Resample.Workers = 0 },
		"zero states":        func(c *Config) { c.Respiration.NStates = 0 },
		"crop over half":     func(c *Config) { c.Respiration.CropPercentile = 50 },
		"negative crop":      func(c *Config) { c.Respiration.CropPercentile = -1 },
		"negative smoothing": func(c *Config) { c.Respiration.SmoothingRadius = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, models.ErrConfig), "want configuration error, got %v", err)
		})
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweepvol.yaml")
	doc := `
resample:
  thickness: 1.25
  interpolation: rbf
respiration:
  nStates: 6
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 1.25, cfg.Resample.Thickness)
	require.Equal(t, MethodRBF, cfg.Resample.Interpolation)
	require.Equal(t, 6, cfg.Respiration.NStates)
	// Untouched fields keep their defaults.
	require.Equal(t, 2.5, cfg.Respiration.CropPercentile)
	require.Equal(t, "sweepvol_out", cfg.Output.Dir)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("resample: [not a map"), 0644))
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sweepvol.yaml")

	cfg := DefaultConfig()
	cfg.Resample.Thickness = 3.5
	cfg.Respiration.DisableCrop = true
	cfg.Output.Dir = "elsewhere"
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}
