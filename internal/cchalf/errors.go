package cchalf

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDataset is returned when no observations are supplied.
	ErrEmptyDataset = errors.New("cchalf: empty dataset")

	// ErrInsufficientBinPopulation is matched by *BinPopulationError.
	ErrInsufficientBinPopulation = errors.New("cchalf: insufficient bin population")

	// ErrMissingRequiredColumns is returned by data suppliers that could not
	// provide intensity or batch values for every observation.
	ErrMissingRequiredColumns = errors.New("cchalf: missing required columns")

	// ErrInvalidBinCount is returned when nbins < 1.
	ErrInvalidBinCount = errors.New("cchalf: bin count must be at least 1")

	// ErrInvalidResolution is returned when a reflection has no finite,
	// positive resolution.
	ErrInvalidResolution = errors.New("cchalf: invalid resolution")

	// ErrInvalidIntensity is returned for a NaN or infinite intensity.
	ErrInvalidIntensity = errors.New("cchalf: invalid intensity")

	// ErrNoResolver is returned when no Resolver is supplied.
	ErrNoResolver = errors.New("cchalf: resolver is required")

	// ErrDegenerateBin is returned when a bin has neither signal nor error
	// variance, leaving CC1/2 undefined.
	ErrDegenerateBin = errors.New("cchalf: degenerate bin")
)

// BinPopulationError reports a resolution bin with fewer than two usable
// reflections.
type BinPopulationError struct {
	Bin   int
	Count int
	// Batch is the excluded batch, or nil for the overall pass.
	Batch *int
}

func (e *BinPopulationError) Error() string {
	msg := fmt.Sprintf("cchalf: bin %d has %d usable reflections, need at least 2", e.Bin, e.Count)
	if e.Batch != nil {
		msg += fmt.Sprintf(" (excluding batch %d)", *e.Batch)
	}
	return msg
}

func (e *BinPopulationError) Is(target error) bool {
	return target == ErrInsufficientBinPopulation
}
