// Package simulate generates synthetic merged-intensity datasets with a
// known batch structure, for exercising the CC1/2 analysis end to end.
package simulate

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/deltacchalf/internal/cchalf"
	"github.com/banshee-data/deltacchalf/internal/crystal"
)

// Params describes a synthetic experiment.
type Params struct {
	Cell      *crystal.UnitCell
	LaueGroup *crystal.LaueGroup

	// DMin is the high-resolution limit in Å.
	DMin float64
	// Batches is the number of batches; ids run from 1.
	Batches int
	// Multiplicity is the number of observations of each unique
	// reflection, spread round-robin over the batches.
	Multiplicity int
	// MeanIntensity is the Wilson mean of the true intensities.
	MeanIntensity float64
	// NoiseSigma is the per-observation Gaussian error.
	NoiseSigma float64

	// OutlierBatches have their intensities multiplied by OutlierScale and
	// their noise by OutlierNoise.
	OutlierBatches []int
	OutlierScale   float64
	OutlierNoise   float64

	Seed uint64
}

// DefaultParams returns a small orthorhombic experiment.
func DefaultParams() Params {
	return Params{
		Cell:          crystal.MustUnitCell(40, 50, 60, 90, 90, 90),
		LaueGroup:     crystal.MustLaueGroup("mmm"),
		DMin:          4,
		Batches:       10,
		Multiplicity:  6,
		MeanIntensity: 1000,
		NoiseSigma:    50,
		OutlierScale:  1,
		OutlierNoise:  10,
		Seed:          1,
	}
}

// Validate reports the first inconsistent parameter.
func (p Params) Validate() error {
	switch {
	case p.Cell == nil:
		return errors.New("simulate: unit cell is required")
	case p.LaueGroup == nil:
		return errors.New("simulate: Laue group is required")
	case !(p.DMin > 0):
		return fmt.Errorf("simulate: d_min must be positive, got %g", p.DMin)
	case p.Batches < 1:
		return fmt.Errorf("simulate: need at least one batch, got %d", p.Batches)
	case p.Multiplicity < 1:
		return fmt.Errorf("simulate: multiplicity must be positive, got %d", p.Multiplicity)
	case !(p.MeanIntensity > 0):
		return fmt.Errorf("simulate: mean intensity must be positive, got %g", p.MeanIntensity)
	case p.NoiseSigma < 0:
		return fmt.Errorf("simulate: noise sigma must be non-negative, got %g", p.NoiseSigma)
	}
	for _, b := range p.OutlierBatches {
		if b < 1 || b > p.Batches {
			return fmt.Errorf("simulate: outlier batch %d outside 1..%d", b, p.Batches)
		}
	}
	return nil
}

// UniqueReflections enumerates the asymmetric-unit reflections with
// d >= dmin, sorted.
func UniqueReflections(cell *crystal.UnitCell, group *crystal.LaueGroup, dmin float64) []crystal.MillerIndex {
	limit := 1 / (dmin * dmin)
	hmax := int(math.Ceil(cell.A / dmin))
	kmax := int(math.Ceil(cell.B / dmin))
	lmax := int(math.Ceil(cell.C / dmin))

	seen := make(map[crystal.MillerIndex]struct{})
	var out []crystal.MillerIndex
	for h := -hmax; h <= hmax; h++ {
		for k := -kmax; k <= kmax; k++ {
			for l := -lmax; l <= lmax; l++ {
				idx := crystal.MillerIndex{h, k, l}
				if idx.IsZero() || cell.InvD2(idx) > limit {
					continue
				}
				asu := group.MapToASU(idx)
				if _, ok := seen[asu]; ok {
					continue
				}
				seen[asu] = struct{}{}
				out = append(out, asu)
			}
		}
	}
	slices.SortFunc(out, crystal.Compare)
	return out
}

// Generate draws a dataset. Each observation is recorded at a random
// symmetry equivalent and mapped back to the asymmetric unit, the way a
// reduction program hands merged-ready data over.
func Generate(p Params) ([]cchalf.Observation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	src := rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15)
	rng := rand.New(src)
	wilson := distuv.Exponential{Rate: 1 / p.MeanIntensity, Src: src}
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	outlier := make(map[int]bool, len(p.OutlierBatches))
	for _, b := range p.OutlierBatches {
		outlier[b] = true
	}

	unique := UniqueReflections(p.Cell, p.LaueGroup, p.DMin)
	obs := make([]cchalf.Observation, 0, len(unique)*p.Multiplicity)
	next := 0
	for _, h := range unique {
		truth := wilson.Rand()
		equivalents := p.LaueGroup.Equivalents(h)
		for j := 0; j < p.Multiplicity; j++ {
			batch := next%p.Batches + 1
			next++

			raw := equivalents[rng.IntN(len(equivalents))]
			x := truth + p.NoiseSigma*noise.Rand()
			if outlier[batch] {
				x = p.OutlierScale*truth + p.OutlierNoise*p.NoiseSigma*noise.Rand()
			}
			obs = append(obs, cchalf.Observation{
				H:         p.LaueGroup.MapToASU(raw),
				Batch:     batch,
				Intensity: x,
			})
		}
	}
	return obs, nil
}
