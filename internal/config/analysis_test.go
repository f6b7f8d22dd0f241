package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/deltacchalf/internal/simulate"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultsFileMatchesBuiltins(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	empty := EmptyAnalysisConfig()

	assert.Equal(t, empty.GetNBins(), cfg.GetNBins())
	assert.Equal(t, empty.GetWorkers(), cfg.GetWorkers())
	assert.Equal(t, empty.GetHistogramBins(), cfg.GetHistogramBins())
	_, ok := cfg.GetRejectAbove()
	assert.False(t, ok)

	p, err := cfg.SimulationParams()
	require.NoError(t, err)
	want := simulate.DefaultParams()
	assert.Equal(t, want.Cell.Parameters(), p.Cell.Parameters())
	assert.Equal(t, want.LaueGroup.Name(), p.LaueGroup.Name())
	assert.Equal(t, want.DMin, p.DMin)
	assert.Equal(t, want.Batches, p.Batches)
	assert.Equal(t, want.Multiplicity, p.Multiplicity)
	assert.Equal(t, want.Seed, p.Seed)
}

func TestLoadAnalysisConfig(t *testing.T) {
	path := writeConfig(t, "partial.json", `{
  "nbins": 4,
  "reject_above": 0.002,
  "simulation": {"laue_group": "m-3m", "cell": [30, 30, 30, 90, 90, 90], "outlier_batches": [2, 5]}
}`)

	cfg, err := LoadAnalysisConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.GetNBins())
	assert.Equal(t, 10, cfg.GetHistogramBins())
	threshold, ok := cfg.GetRejectAbove()
	assert.True(t, ok)
	assert.Equal(t, 0.002, threshold)

	p, err := cfg.SimulationParams()
	require.NoError(t, err)
	assert.Equal(t, "m-3m", p.LaueGroup.Name())
	assert.Equal(t, [6]float64{30, 30, 30, 90, 90, 90}, p.Cell.Parameters())
	assert.Equal(t, []int{2, 5}, p.OutlierBatches)
	// Unset fields keep their defaults.
	assert.Equal(t, simulate.DefaultParams().Batches, p.Batches)
}

func TestLoadAnalysisConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "config.yaml", `{}`, ".json extension"},
		{"malformed", "bad.json", `{"nbins": "ten"`, "failed to parse"},
		{"zero bins", "bins.json", `{"nbins": 0}`, "nbins must be at least 1"},
		{"negative workers", "workers.json", `{"workers": -2}`, "workers must be non-negative"},
		{"zero histogram", "hist.json", `{"histogram_bins": 0}`, "histogram_bins"},
		{"short cell", "cell.json", `{"simulation": {"cell": [1, 2, 3]}}`, "cell needs 6 values"},
		{"unknown group", "group.json", `{"simulation": {"laue_group": "p6"}}`, "simulation"},
		{"outlier out of range", "outlier.json", `{"simulation": {"batches": 3, "outlier_batches": [4]}}`, "outlier batch 4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadAnalysisConfig(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadAnalysisConfigMissing(t *testing.T) {
	_, err := LoadAnalysisConfig("/nonexistent/path/to/config.json")
	assert.Error(t, err)
}

func TestLoadAnalysisConfigTooLarge(t *testing.T) {
	body := `{"nbins": 3` + strings.Repeat(" ", 1024*1024) + `}`
	_, err := LoadAnalysisConfig(writeConfig(t, "huge.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestSimulationParamsWithoutSection(t *testing.T) {
	p, err := EmptyAnalysisConfig().SimulationParams()
	require.NoError(t, err)
	assert.Equal(t, simulate.DefaultParams().DMin, p.DMin)
}
