// Package report renders CC1/2 analysis results as plain text.
package report

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
	"text/tabwriter"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/deltacchalf/internal/cchalf"
)

// barWidth is the length of the longest histogram bar.
const barWidth = 40

// Options selects the optional sections of a report.
type Options struct {
	// HistogramBins is the number of ΔCC1/2 histogram bins; 0 omits the
	// histogram.
	HistogramBins int
	// RejectAbove, when set, lists the batches whose removal raises CC1/2
	// by more than the threshold.
	RejectAbove *float64
}

// Write renders res to w: counts and overall CC1/2, the resolution bin
// table, the ranked per-batch deltas and the optional sections of opts.
func Write(w io.Writer, res *cchalf.Result, opts Options) error {
	fmt.Fprintf(w, "Observations:        %d\n", res.Observations)
	fmt.Fprintf(w, "Unique reflections:  %d\n", res.Unique)
	fmt.Fprintf(w, "Batches:             %d\n", len(res.Deltas))
	fmt.Fprintf(w, "Resolution bins:     %d\n", res.NBins)
	fmt.Fprintf(w, "Overall CC1/2:       %.6f\n\n", res.Overall)

	if err := WriteBins(w, res.Bins); err != nil {
		return err
	}
	fmt.Fprintln(w)

	ranked := res.Ranked()
	if err := WriteDeltas(w, ranked); err != nil {
		return err
	}

	if opts.HistogramBins > 0 && len(ranked) > 0 {
		deltas := make([]float64, len(ranked))
		for i, bd := range ranked {
			deltas[i] = bd.Delta
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "ΔCC1/2 distribution:")
		WriteHistogram(w, DeltaHistogram(deltas, opts.HistogramBins))
	}

	if opts.RejectAbove != nil {
		fmt.Fprintln(w)
		rejected := res.Rejected(*opts.RejectAbove)
		if len(rejected) == 0 {
			fmt.Fprintf(w, "No batches with ΔCC1/2 > %g\n", *opts.RejectAbove)
			return nil
		}
		fmt.Fprintf(w, "Rejection candidates (ΔCC1/2 > %g):", *opts.RejectAbove)
		for _, bd := range rejected {
			fmt.Fprintf(w, " %d", bd.Batch)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteBins writes the resolution bin table, low resolution first.
func WriteBins(w io.Writer, bins []cchalf.BinSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "BIN\tD_MAX\tD_MIN\t1/D²_LOW\t1/D²_HIGH\tREFLECTIONS\tCC1/2\t")
	for _, b := range bins {
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.5f\t%.5f\t%d\t%.4f\t\n",
			b.Index, b.DLow, b.DHigh, b.InvD2Low, b.InvD2High, b.Count, b.CCHalf)
	}
	return tw.Flush()
}

// WriteDeltas writes one row per batch in the given order.
func WriteDeltas(w io.Writer, ranked []cchalf.BatchDelta) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "BATCH\tCC1/2 EXCLUDING\tΔCC1/2\t")
	for _, bd := range ranked {
		fmt.Fprintf(tw, "%d\t%.6f\t%+.6f\t\n", bd.Batch, bd.CCHalf, bd.Delta)
	}
	return tw.Flush()
}

// HistogramBin is one interval [Lo, Hi) of a delta histogram.
type HistogramBin struct {
	Lo, Hi float64
	Count  int
}

// DeltaHistogram counts deltas into nbins equal-width bins spanning their
// range. A zero-width range yields a single bin.
func DeltaHistogram(deltas []float64, nbins int) []HistogramBin {
	if len(deltas) == 0 || nbins < 1 {
		return nil
	}
	x := slices.Clone(deltas)
	slices.Sort(x)
	lo, hi := x[0], x[len(x)-1]
	if lo == hi {
		nbins = 1
	}

	dividers := floats.Span(make([]float64, nbins+1), lo, hi)
	// stat.Histogram bins are half-open; nudge the last divider so the
	// maximum is counted.
	dividers[nbins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, x, nil)

	out := make([]HistogramBin, nbins)
	for i := range out {
		out[i] = HistogramBin{Lo: dividers[i], Hi: dividers[i+1], Count: int(counts[i])}
	}
	out[nbins-1].Hi = hi
	return out
}

// WriteHistogram draws bins as horizontal bars scaled to the fullest bin.
func WriteHistogram(w io.Writer, bins []HistogramBin) {
	peak := 0
	for _, b := range bins {
		peak = max(peak, b.Count)
	}
	for _, b := range bins {
		n := 0
		if peak > 0 {
			n = (b.Count*barWidth + peak - 1) / peak
		}
		fmt.Fprintf(w, "  [%+.5f, %+.5f]  %-*s %d\n", b.Lo, b.Hi, barWidth, strings.Repeat("#", n), b.Count)
	}
}
