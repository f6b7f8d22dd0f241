package simulate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/deltacchalf/internal/cchalf"
	"github.com/banshee-data/deltacchalf/internal/crystal"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"missing cell", func(p *Params) { p.Cell = nil }},
		{"missing group", func(p *Params) { p.LaueGroup = nil }},
		{"zero dmin", func(p *Params) { p.DMin = 0 }},
		{"no batches", func(p *Params) { p.Batches = 0 }},
		{"no multiplicity", func(p *Params) { p.Multiplicity = 0 }},
		{"negative noise", func(p *Params) { p.NoiseSigma = -1 }},
		{"zero intensity", func(p *Params) { p.MeanIntensity = 0 }},
		{"outlier out of range", func(p *Params) { p.OutlierBatches = []int{11} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := DefaultParams()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}

	require.NoError(t, DefaultParams().Validate())
}

func TestUniqueReflections(t *testing.T) {
	t.Parallel()
	cell := crystal.MustUnitCell(20, 20, 20, 90, 90, 90)
	group := crystal.MustLaueGroup("m-3m")

	refl := UniqueReflections(cell, group, 9.9)
	// d >= 9.9 with a = 20 keeps h²+k²+l² <= 4.
	assert.Equal(t, []crystal.MillerIndex{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {2, 0, 0}}, refl)

	for _, h := range refl {
		assert.Equal(t, h, group.MapToASU(h))
	}
}

func TestGenerateDeterministic(t *testing.T) {
	t.Parallel()
	p := DefaultParams()
	p.DMin = 8

	a, err := Generate(p)
	require.NoError(t, err)
	b, err := Generate(p)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	p.Seed = 2
	c, err := Generate(p)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGenerateLayout(t *testing.T) {
	t.Parallel()
	p := DefaultParams()
	p.DMin = 8

	obs, err := Generate(p)
	require.NoError(t, err)
	unique := UniqueReflections(p.Cell, p.LaueGroup, p.DMin)
	require.Len(t, obs, len(unique)*p.Multiplicity)

	perBatch := make(map[int]int)
	perRefl := make(map[crystal.MillerIndex]int)
	for _, o := range obs {
		assert.Equal(t, o.H, p.LaueGroup.MapToASU(o.H))
		perBatch[o.Batch]++
		perRefl[o.H]++
	}
	assert.Len(t, perBatch, p.Batches)
	assert.Len(t, perRefl, len(unique))
	for h, n := range perRefl {
		assert.Equal(t, p.Multiplicity, n, "%v", h)
	}
}

func TestGeneratedOutlierIsFlagged(t *testing.T) {
	t.Parallel()
	p := DefaultParams()
	p.DMin = 5
	p.OutlierBatches = []int{7}
	p.OutlierScale = 0.5
	p.OutlierNoise = 10

	obs, err := Generate(p)
	require.NoError(t, err)

	res, err := cchalf.Compute(context.Background(), obs, cchalf.Options{NBins: 4, Resolver: p.Cell})
	require.NoError(t, err)

	ranked := res.Ranked()
	require.Len(t, ranked, p.Batches)
	assert.Equal(t, 7, ranked[len(ranked)-1].Batch)
	rejected := res.Rejected(0)
	require.NotEmpty(t, rejected)
	assert.Equal(t, 7, rejected[0].Batch)
}
