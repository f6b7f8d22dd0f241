package cchalf

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// BinData holds the per-reflection means and variances of one bin for one
// pass, in reflection order.
type BinData struct {
	Mean []float64
	Var  []float64
}

func (b *BinData) add(s ReflectionSums) {
	b.Mean = append(b.Mean, s.Mean())
	b.Var = append(b.Var, s.Variance())
}

// Len returns the number of reflections in the bin.
func (b BinData) Len() int { return len(b.Mean) }

// CCHalf computes σ_E as the mean intra-reflection variance and σ_Y as the
// Bessel-corrected variance of the reflection means, and returns
// (σ_Y − σ_E/2)/(σ_Y + σ_E/2).
func CCHalf(mean, variance []float64) (float64, error) {
	if len(mean) != len(variance) {
		return 0, fmt.Errorf("cchalf: %d means but %d variances", len(mean), len(variance))
	}
	if len(mean) < 2 {
		return 0, &BinPopulationError{Count: len(mean)}
	}
	sigmaE := stat.Mean(variance, nil)
	sigmaY := stat.Variance(mean, nil)
	den := sigmaY + 0.5*sigmaE
	if den == 0 {
		return 0, ErrDegenerateBin
	}
	return (sigmaY - 0.5*sigmaE) / den, nil
}

// combineBins returns the reflection-count-weighted mean of the per-bin
// CC1/2 values along with the per-bin values. batch is nil for the overall
// pass and only labels errors.
func combineBins(bins []BinData, batch *int) (float64, []float64, error) {
	cc := make([]float64, len(bins))
	weights := make([]float64, len(bins))
	for i, b := range bins {
		v, err := CCHalf(b.Mean, b.Var)
		if err != nil {
			if bpe, ok := err.(*BinPopulationError); ok {
				bpe.Bin = i
				bpe.Batch = batch
				return 0, nil, bpe
			}
			return 0, nil, fmt.Errorf("bin %d: %w", i, err)
		}
		cc[i] = v
		weights[i] = float64(b.Len())
	}
	return stat.Mean(cc, weights), cc, nil
}
