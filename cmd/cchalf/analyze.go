package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/deltacchalf/internal/cchalf"
	"github.com/banshee-data/deltacchalf/internal/db"
	"github.com/banshee-data/deltacchalf/internal/monitoring"
	"github.com/banshee-data/deltacchalf/internal/report"
	"github.com/banshee-data/deltacchalf/internal/simulate"
)

func cmdSimulate(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "simulate")
	dbPath := fs.String("db", defaultDBPath, "SQLite database path")
	configPath := fs.String("config", "", "JSON analysis config")
	name := fs.String("name", "simulated", "Dataset name")
	dmin := fs.Float64("dmin", 0, "High-resolution limit in Å")
	batches := fs.Int("batches", 0, "Number of batches")
	multiplicity := fs.Int("multiplicity", 0, "Observations per unique reflection")
	outliers := fs.String("outliers", "", "Comma-separated outlier batch ids")
	outlierScale := fs.Float64("outlier-scale", 0, "Intensity scale applied to outlier batches")
	outlierNoise := fs.Float64("outlier-noise", 0, "Noise multiplier applied to outlier batches")
	seed := fs.Uint64("seed", 0, "Random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	p, err := cfg.SimulationParams()
	if err != nil {
		return err
	}
	if isSet(fs, "dmin") {
		p.DMin = *dmin
	}
	if isSet(fs, "batches") {
		p.Batches = *batches
	}
	if isSet(fs, "multiplicity") {
		p.Multiplicity = *multiplicity
	}
	if isSet(fs, "outliers") {
		if p.OutlierBatches, err = parseBatchList(*outliers); err != nil {
			return err
		}
	}
	if isSet(fs, "outlier-scale") {
		p.OutlierScale = *outlierScale
	}
	if isSet(fs, "outlier-noise") {
		p.OutlierNoise = *outlierNoise
	}
	if isSet(fs, "seed") {
		p.Seed = *seed
	}

	done := monitoring.Stage(e.clock, "simulate")
	obs, err := simulate.Generate(p)
	done()
	if err != nil {
		return err
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ds := &db.Dataset{Name: *name, Cell: p.Cell.Parameters(), LaueGroup: p.LaueGroup.Name()}
	if err := database.CreateDataset(ds); err != nil {
		return err
	}
	if err := database.InsertObservations(ctx, ds.ID, obs); err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "Created dataset %s (%s): %d observations in %d batches, %s %s, d_min %.2f Å\n",
		ds.ID, ds.Name, len(obs), p.Batches, p.LaueGroup.Name(), p.Cell, p.DMin)
	return nil
}

func cmdRun(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "run")
	dbPath := fs.String("db", defaultDBPath, "SQLite database path")
	configPath := fs.String("config", "", "JSON analysis config")
	datasetID := fs.String("dataset", "", "Dataset id (required)")
	nbins := fs.Int("nbins", 0, "Number of resolution bins")
	workers := fs.Int("workers", 0, "Parallel jackknife workers (0 uses all CPUs)")
	hist := fs.Int("hist", 0, "ΔCC1/2 histogram bins (0 disables)")
	reject := fs.Float64("reject", 0, "List batches whose removal raises CC1/2 by more than this")
	noSave := fs.Bool("no-save", false, "Do not store the run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *datasetID == "" {
		fs.Usage()
		return errors.New("-dataset is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	opts := cchalf.Options{NBins: cfg.GetNBins(), Workers: cfg.GetWorkers()}
	if isSet(fs, "nbins") {
		opts.NBins = *nbins
	}
	if isSet(fs, "workers") {
		opts.Workers = *workers
	}
	ropts := reportOptions(fs, cfg.GetHistogramBins(), *hist, *reject)
	if threshold, ok := cfg.GetRejectAbove(); ok && ropts.RejectAbove == nil {
		ropts.RejectAbove = &threshold
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ds, err := database.Dataset(*datasetID)
	if err != nil {
		return err
	}
	cell, err := ds.UnitCell()
	if err != nil {
		return err
	}
	opts.Resolver = cell

	obs, err := database.LoadObservations(ctx, ds.ID)
	if err != nil {
		return err
	}
	monitoring.Logf("loaded %d observations of dataset %s", len(obs), ds.ID)

	done := monitoring.Stage(e.clock, "cc1/2 analysis")
	res, err := cchalf.Compute(ctx, obs, opts)
	done()
	if err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "Dataset %s (%s), cell %s, %s\n\n", ds.ID, ds.Name, cell, ds.LaueGroup)
	if err := report.Write(e.stdout, res, ropts); err != nil {
		return err
	}

	if *noSave {
		return nil
	}
	stored, err := database.RecordRun(ctx, ds.ID, res)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "\nStored run %s\n", stored.ID)
	return nil
}

func cmdShow(e *env, args []string) error {
	fs := newFlagSet(e, "show")
	dbPath := fs.String("db", defaultDBPath, "SQLite database path")
	runID := fs.String("run", "", "Run id (required)")
	hist := fs.Int("hist", 0, "ΔCC1/2 histogram bins (0 disables)")
	reject := fs.Float64("reject", 0, "List batches whose removal raises CC1/2 by more than this")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		fs.Usage()
		return errors.New("-run is required")
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	run, res, err := database.RunResult(*runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Run %s of dataset %s at %s\n\n", run.ID, run.DatasetID, run.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	return report.Write(e.stdout, res, reportOptions(fs, 0, *hist, *reject))
}

// reportOptions merges the -hist and -reject flags over the configured
// histogram size.
func reportOptions(fs *flag.FlagSet, histDefault, hist int, reject float64) report.Options {
	opts := report.Options{HistogramBins: histDefault}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "hist":
			opts.HistogramBins = hist
		case "reject":
			r := reject
			opts.RejectAbove = &r
		}
	})
	return opts
}

func parseBatchList(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid batch id %q: %w", part, err)
		}
		out = append(out, b)
	}
	return out, nil
}
