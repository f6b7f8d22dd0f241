package cchalf

import (
	"context"
	"fmt"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/deltacchalf/internal/crystal"
)

// Observation is one intensity measurement of a reflection already reduced
// to the asymmetric unit.
type Observation struct {
	H         crystal.MillerIndex
	Batch     int
	Intensity float64
}

// Resolver maps a reflection to its interplanar spacing d in Å.
// *crystal.UnitCell satisfies it.
type Resolver interface {
	D(h crystal.MillerIndex) float64
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(h crystal.MillerIndex) float64

func (f ResolverFunc) D(h crystal.MillerIndex) float64 { return f(h) }

type reflection struct {
	h     crystal.MillerIndex
	invD2 float64
	bin   int
	sums  ReflectionSums
}

// contribution is one batch's share of one reflection group.
type contribution struct {
	refl int
	sums ReflectionSums
}

// Estimator holds the cached sufficient statistics of an observation set.
// It is immutable after construction and safe for concurrent use.
type Estimator struct {
	binner       Binner
	reflections  []reflection // sorted by index
	batches      map[int][]contribution
	batchIDs     []int
	observations int
}

// NewEstimator groups obs by reflection, resolves every reflection's 1/d²
// and sets up nbins resolution bins over the observed range.
func NewEstimator(obs []Observation, nbins int, resolver Resolver) (*Estimator, error) {
	if len(obs) == 0 {
		return nil, ErrEmptyDataset
	}
	if nbins < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBinCount, nbins)
	}
	if resolver == nil {
		return nil, ErrNoResolver
	}

	unique := make([]crystal.MillerIndex, 0, len(obs))
	seen := make(map[crystal.MillerIndex]struct{}, len(obs))
	for _, o := range obs {
		if math.IsNaN(o.Intensity) || math.IsInf(o.Intensity, 0) {
			return nil, fmt.Errorf("%w: %g for %v batch %d", ErrInvalidIntensity, o.Intensity, o.H, o.Batch)
		}
		if _, ok := seen[o.H]; !ok {
			seen[o.H] = struct{}{}
			unique = append(unique, o.H)
		}
	}
	slices.SortFunc(unique, crystal.Compare)

	index := make(map[crystal.MillerIndex]int, len(unique))
	refl := make([]reflection, len(unique))
	invD2 := make([]float64, len(unique))
	for i, h := range unique {
		d := resolver.D(h)
		if !(d > 0) || math.IsInf(d, 0) {
			return nil, fmt.Errorf("%w: d=%g for %v", ErrInvalidResolution, d, h)
		}
		index[h] = i
		invD2[i] = 1 / (d * d)
		refl[i] = reflection{h: h, invD2: invD2[i]}
	}

	binner, err := NewBinner(invD2, nbins)
	if err != nil {
		return nil, err
	}

	perBatch := make(map[int]map[int]*ReflectionSums)
	for _, o := range obs {
		i := index[o.H]
		refl[i].sums.Add(o.Intensity)

		m, ok := perBatch[o.Batch]
		if !ok {
			m = make(map[int]*ReflectionSums)
			perBatch[o.Batch] = m
		}
		s, ok := m[i]
		if !ok {
			s = &ReflectionSums{}
			m[i] = s
		}
		s.Add(o.Intensity)
	}
	for i := range refl {
		refl[i].bin = binner.Index(refl[i].invD2)
	}

	batches := make(map[int][]contribution, len(perBatch))
	batchIDs := make([]int, 0, len(perBatch))
	for b, m := range perBatch {
		cs := make([]contribution, 0, len(m))
		for i, s := range m {
			cs = append(cs, contribution{refl: i, sums: *s})
		}
		slices.SortFunc(cs, func(a, b contribution) int { return a.refl - b.refl })
		batches[b] = cs
		batchIDs = append(batchIDs, b)
	}
	slices.Sort(batchIDs)

	return &Estimator{
		binner:       binner,
		reflections:  refl,
		batches:      batches,
		batchIDs:     batchIDs,
		observations: len(obs),
	}, nil
}

// Binner returns the resolution binning in use.
func (e *Estimator) Binner() Binner { return e.binner }

// Batches returns the batch ids present, ascending.
func (e *Estimator) Batches() []int { return slices.Clone(e.batchIDs) }

// Observations returns the number of observations supplied.
func (e *Estimator) Observations() int { return e.observations }

// Unique returns the number of distinct reflections.
func (e *Estimator) Unique() int { return len(e.reflections) }

// Sums returns the cached sufficient statistics of h.
func (e *Estimator) Sums(h crystal.MillerIndex) (ReflectionSums, bool) {
	i, ok := slices.BinarySearchFunc(e.reflections, h, func(r reflection, h crystal.MillerIndex) int {
		return crystal.Compare(r.h, h)
	})
	if !ok {
		return ReflectionSums{}, false
	}
	return e.reflections[i].sums, true
}

// bin assigns every usable reflection to its bin. sums(i) supplies the
// statistics of reflection i for this pass.
func (e *Estimator) bin(sums func(i int) ReflectionSums) []BinData {
	bins := make([]BinData, e.binner.N)
	for i, r := range e.reflections {
		s := sums(i)
		if !s.Usable() {
			continue
		}
		bins[r.bin].add(s)
	}
	return bins
}

// Overall returns CC1/2 over all observations.
func (e *Estimator) Overall() (float64, error) {
	cc, _, err := e.overall()
	return cc, err
}

func (e *Estimator) overall() (float64, []BinData, error) {
	bins := e.bin(func(i int) ReflectionSums { return e.reflections[i].sums })
	cc, _, err := combineBins(bins, nil)
	if err != nil {
		return 0, nil, err
	}
	return cc, bins, nil
}

// ExcludingBatch returns CC1/2 with every observation of batch removed. The
// adjusted statistics are derived into a fresh slice; the cached sums are
// only read. An unknown batch gives exactly Overall().
func (e *Estimator) ExcludingBatch(batch int) (float64, error) {
	adjusted := make([]ReflectionSums, len(e.reflections))
	for i, r := range e.reflections {
		adjusted[i] = r.sums
	}
	for _, c := range e.batches[batch] {
		adjusted[c.refl] = adjusted[c.refl].Sub(c.sums)
		if adjusted[c.refl].N < 0 {
			return 0, fmt.Errorf("cchalf: reflection %v has negative count excluding batch %d", e.reflections[c.refl].h, batch)
		}
	}
	bins := e.bin(func(i int) ReflectionSums { return adjusted[i] })
	cc, _, err := combineBins(bins, &batch)
	return cc, err
}

// DeltaCCHalf returns CC1/2_excluding(b) − CC1/2_overall for every batch.
// Batches are evaluated concurrently on at most workers goroutines
// (unbounded when workers <= 0). The first failure cancels the rest.
func (e *Estimator) DeltaCCHalf(ctx context.Context, workers int) (map[int]float64, error) {
	overall, err := e.Overall()
	if err != nil {
		return nil, err
	}
	excluding, err := e.excludingAll(ctx, workers)
	if err != nil {
		return nil, err
	}
	deltas := make(map[int]float64, len(excluding))
	for i, b := range e.batchIDs {
		deltas[b] = excluding[i] - overall
	}
	return deltas, nil
}

func (e *Estimator) excludingAll(ctx context.Context, workers int) ([]float64, error) {
	out := make([]float64, len(e.batchIDs))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, b := range e.batchIDs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cc, err := e.ExcludingBatch(b)
			if err != nil {
				return err
			}
			out[i] = cc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
