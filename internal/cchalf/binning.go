package cchalf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Binner partitions 1/d² into N equal-width bins spanning [Min, Max].
//
// Bins are half-open [lo, hi) except the last, which also takes Max. The
// lower edge gets no special handling: a value at Min falls in bin 0
// naturally. When Min == Max every value lands in bin 0.
type Binner struct {
	Min   float64
	Max   float64
	Width float64
	N     int
}

// NewBinner spans the range of values with nbins bins.
func NewBinner(values []float64, nbins int) (Binner, error) {
	if nbins < 1 {
		return Binner{}, fmt.Errorf("%w: got %d", ErrInvalidBinCount, nbins)
	}
	if len(values) == 0 {
		return Binner{}, ErrEmptyDataset
	}
	lo, hi := floats.Min(values), floats.Max(values)
	return Binner{
		Min:   lo,
		Max:   hi,
		Width: (hi - lo) / float64(nbins),
		N:     nbins,
	}, nil
}

// Index returns the bin of v, which must lie in [Min, Max].
func (b Binner) Index(v float64) int {
	if b.Width == 0 {
		return 0
	}
	i := int(math.Floor((v - b.Min) / b.Width))
	if i == b.N {
		i = b.N - 1
	}
	return i
}

// Bounds returns the 1/d² interval of bin i.
func (b Binner) Bounds(i int) (lo, hi float64) {
	lo = b.Min + float64(i)*b.Width
	hi = b.Min + float64(i+1)*b.Width
	if i == b.N-1 {
		hi = b.Max
	}
	return lo, hi
}

// DBounds returns the resolution interval of bin i in Å, low resolution
// first.
func (b Binner) DBounds(i int) (dlow, dhigh float64) {
	lo, hi := b.Bounds(i)
	return InvD2ToD(lo), InvD2ToD(hi)
}

// InvD2ToD converts 1/d² to d; zero maps to +Inf.
func InvD2ToD(s float64) float64 {
	if s <= 0 {
		return math.Inf(1)
	}
	return 1 / math.Sqrt(s)
}
