package cchalf

import (
	"context"
	"runtime"
	"slices"
)

// Options controls a one-shot Compute.
type Options struct {
	NBins    int
	Workers  int // 0 uses GOMAXPROCS
	Resolver Resolver
}

// BinSummary describes one resolution bin of the overall pass.
type BinSummary struct {
	Index     int     `json:"index"`
	InvD2Low  float64 `json:"inv_d2_low"`
	InvD2High float64 `json:"inv_d2_high"`
	DLow      float64 `json:"d_low"`
	DHigh     float64 `json:"d_high"`
	Count     int     `json:"count"`
	CCHalf    float64 `json:"cc_half"`
}

// BatchDelta is the jackknife outcome for one batch.
type BatchDelta struct {
	Batch  int     `json:"batch"`
	CCHalf float64 `json:"cc_half"`
	Delta  float64 `json:"delta"`
}

// Result is the outcome of a full CC1/2 analysis.
type Result struct {
	NBins        int             `json:"nbins"`
	Overall      float64         `json:"overall"`
	Deltas       map[int]float64 `json:"deltas"`
	Excluding    map[int]float64 `json:"excluding"`
	Bins         []BinSummary    `json:"bins"`
	Observations int             `json:"observations"`
	Unique       int             `json:"unique"`
}

// Compute runs the overall and per-batch passes over obs.
func Compute(ctx context.Context, obs []Observation, opts Options) (*Result, error) {
	est, err := NewEstimator(obs, opts.NBins, opts.Resolver)
	if err != nil {
		return nil, err
	}
	return est.Analyze(ctx, opts.Workers)
}

// Analyze computes the overall statistic, the bin summaries and the
// per-batch deltas.
func (e *Estimator) Analyze(ctx context.Context, workers int) (*Result, error) {
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	overall, bins, err := e.overall()
	if err != nil {
		return nil, err
	}
	summaries, err := e.summarize(bins)
	if err != nil {
		return nil, err
	}
	excluding, err := e.excludingAll(ctx, workers)
	if err != nil {
		return nil, err
	}

	res := &Result{
		NBins:        e.binner.N,
		Overall:      overall,
		Deltas:       make(map[int]float64, len(e.batchIDs)),
		Excluding:    make(map[int]float64, len(e.batchIDs)),
		Bins:         summaries,
		Observations: e.observations,
		Unique:       len(e.reflections),
	}
	for i, b := range e.batchIDs {
		res.Excluding[b] = excluding[i]
		res.Deltas[b] = excluding[i] - overall
	}
	return res, nil
}

func (e *Estimator) summarize(bins []BinData) ([]BinSummary, error) {
	_, cc, err := combineBins(bins, nil)
	if err != nil {
		return nil, err
	}
	out := make([]BinSummary, len(bins))
	for i, b := range bins {
		lo, hi := e.binner.Bounds(i)
		dlo, dhi := e.binner.DBounds(i)
		out[i] = BinSummary{
			Index:     i,
			InvD2Low:  lo,
			InvD2High: hi,
			DLow:      dlo,
			DHigh:     dhi,
			Count:     b.Len(),
			CCHalf:    cc[i],
		}
	}
	return out, nil
}

// Ranked returns the batches ordered by ascending delta. Ties go to the
// lower id.
func (r *Result) Ranked() []BatchDelta {
	out := make([]BatchDelta, 0, len(r.Deltas))
	for b, d := range r.Deltas {
		out = append(out, BatchDelta{Batch: b, CCHalf: r.Excluding[b], Delta: d})
	}
	slices.SortFunc(out, func(a, b BatchDelta) int {
		switch {
		case a.Delta < b.Delta:
			return -1
		case a.Delta > b.Delta:
			return 1
		default:
			return a.Batch - b.Batch
		}
	})
	return out
}

// Rejected returns the batches whose removal raises CC1/2 by more than
// threshold, largest gain first.
func (r *Result) Rejected(threshold float64) []BatchDelta {
	ranked := r.Ranked()
	var out []BatchDelta
	for i := len(ranked) - 1; i >= 0; i-- {
		if ranked[i].Delta <= threshold {
			break
		}
		out = append(out, ranked[i])
	}
	return out
}
