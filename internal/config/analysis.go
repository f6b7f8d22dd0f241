package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/deltacchalf/internal/crystal"
	"github.com/banshee-data/deltacchalf/internal/simulate"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// AnalysisConfig holds the tunable parameters of an analysis run and of the
// synthetic data generator. Every field is optional; the Get* methods fall
// back to built-in defaults, so partial configs are safe.
type AnalysisConfig struct {
	NBins         *int     `json:"nbins,omitempty"`
	Workers       *int     `json:"workers,omitempty"`
	HistogramBins *int     `json:"histogram_bins,omitempty"`
	RejectAbove   *float64 `json:"reject_above,omitempty"`

	Simulation *SimulationConfig `json:"simulation,omitempty"`
}

// SimulationConfig parameterises `cchalf simulate`.
type SimulationConfig struct {
	Cell           []float64 `json:"cell,omitempty"` // a, b, c, alpha, beta, gamma
	LaueGroup      *string   `json:"laue_group,omitempty"`
	DMin           *float64  `json:"d_min,omitempty"`
	Batches        *int      `json:"batches,omitempty"`
	Multiplicity   *int      `json:"multiplicity,omitempty"`
	MeanIntensity  *float64  `json:"mean_intensity,omitempty"`
	NoiseSigma     *float64  `json:"noise_sigma,omitempty"`
	OutlierBatches []int     `json:"outlier_batches,omitempty"`
	OutlierScale   *float64  `json:"outlier_scale,omitempty"`
	OutlierNoise   *float64  `json:"outlier_noise,omitempty"`
	Seed           *uint64   `json:"seed,omitempty"`
}

// EmptyAnalysisConfig returns a config with every field unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from the
// working directory. Panics if the file cannot be loaded; intended for
// tests.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *AnalysisConfig) Validate() error {
	if c.NBins != nil && *c.NBins < 1 {
		return fmt.Errorf("nbins must be at least 1, got %d", *c.NBins)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.HistogramBins != nil && *c.HistogramBins < 1 {
		return fmt.Errorf("histogram_bins must be at least 1, got %d", *c.HistogramBins)
	}
	if c.Simulation != nil {
		if _, err := c.SimulationParams(); err != nil {
			return fmt.Errorf("simulation: %w", err)
		}
	}
	return nil
}

// GetNBins returns the nbins value or the default.
func (c *AnalysisConfig) GetNBins() int {
	if c.NBins == nil {
		return 10
	}
	return *c.NBins
}

// GetWorkers returns the workers value or the default (0, one per CPU).
func (c *AnalysisConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetHistogramBins returns the histogram_bins value or the default.
func (c *AnalysisConfig) GetHistogramBins() int {
	if c.HistogramBins == nil {
		return 10
	}
	return *c.HistogramBins
}

// GetRejectAbove returns the reject_above threshold. The second result is
// false when no threshold is configured.
func (c *AnalysisConfig) GetRejectAbove() (float64, bool) {
	if c.RejectAbove == nil {
		return 0, false
	}
	return *c.RejectAbove, true
}

// SimulationParams overlays the configured simulation fields on
// simulate.DefaultParams and validates the result.
func (c *AnalysisConfig) SimulationParams() (simulate.Params, error) {
	p := simulate.DefaultParams()
	s := c.Simulation
	if s == nil {
		return p, nil
	}

	if s.Cell != nil {
		if len(s.Cell) != 6 {
			return p, fmt.Errorf("cell needs 6 values, got %d", len(s.Cell))
		}
		uc, err := crystal.NewUnitCell(s.Cell[0], s.Cell[1], s.Cell[2], s.Cell[3], s.Cell[4], s.Cell[5])
		if err != nil {
			return p, err
		}
		p.Cell = uc
	}
	if s.LaueGroup != nil {
		g, err := crystal.ParseLaueGroup(*s.LaueGroup)
		if err != nil {
			return p, err
		}
		p.LaueGroup = g
	}
	if s.DMin != nil {
		p.DMin = *s.DMin
	}
	if s.Batches != nil {
		p.Batches = *s.Batches
	}
	if s.Multiplicity != nil {
		p.Multiplicity = *s.Multiplicity
	}
	if s.MeanIntensity != nil {
		p.MeanIntensity = *s.MeanIntensity
	}
	if s.NoiseSigma != nil {
		p.NoiseSigma = *s.NoiseSigma
	}
	if s.OutlierBatches != nil {
		p.OutlierBatches = append([]int(nil), s.OutlierBatches...)
	}
	if s.OutlierScale != nil {
		p.OutlierScale = *s.OutlierScale
	}
	if s.OutlierNoise != nil {
		p.OutlierNoise = *s.OutlierNoise
	}
	if s.Seed != nil {
		p.Seed = *s.Seed
	}
	return p, p.Validate()
}
