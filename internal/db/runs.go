package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/deltacchalf/internal/cchalf"
)

// AnalysisRun is the stored header of one CC1/2 computation.
type AnalysisRun struct {
	ID           string    `json:"id"`
	DatasetID    string    `json:"dataset_id"`
	NBins        int       `json:"nbins"`
	Overall      float64   `json:"overall_cc_half"`
	Observations int       `json:"observations"`
	Unique       int       `json:"unique_reflections"`
	CreatedAt    time.Time `json:"created_at"`
}

// RecordRun stores a result with its per-batch deltas and bin summaries.
func (db *DB) RecordRun(ctx context.Context, datasetID string, res *cchalf.Result) (*AnalysisRun, error) {
	run := &AnalysisRun{
		ID:           uuid.NewString(),
		DatasetID:    datasetID,
		NBins:        res.NBins,
		Overall:      res.Overall,
		Observations: res.Observations,
		Unique:       res.Unique,
		CreatedAt:    db.clock.Now().UTC(),
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO analysis_runs (
			run_id, dataset_id, nbins, overall_cc_half, observations,
			unique_reflections, created_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DatasetID, run.NBins, run.Overall, run.Observations,
		run.Unique, run.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert analysis run: %w", err)
	}

	for _, bd := range res.Ranked() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO batch_deltas (run_id, batch, cc_half_excluding, delta_cc_half) VALUES (?, ?, ?, ?)`,
			run.ID, bd.Batch, bd.CCHalf, bd.Delta,
		); err != nil {
			return nil, fmt.Errorf("failed to insert delta for batch %d: %w", bd.Batch, err)
		}
	}

	for _, b := range res.Bins {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_bins (run_id, bin_index, inv_d2_low, inv_d2_high, reflections, cc_half)
			VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, b.Index, b.InvD2Low, b.InvD2High, b.Count, b.CCHalf,
		); err != nil {
			return nil, fmt.Errorf("failed to insert bin %d: %w", b.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit analysis run: %w", err)
	}
	return run, nil
}

const runColumns = `run_id, dataset_id, nbins, overall_cc_half, observations,
	unique_reflections, created_unix_nanos`

func scanRun(s scanner) (AnalysisRun, error) {
	var (
		r       AnalysisRun
		created int64
	)
	if err := s.Scan(&r.ID, &r.DatasetID, &r.NBins, &r.Overall, &r.Observations, &r.Unique, &created); err != nil {
		return AnalysisRun{}, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	return r, nil
}

// Run returns one analysis run header.
func (db *DB) Run(id string) (*AnalysisRun, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM analysis_runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Runs lists runs newest first, optionally restricted to one dataset.
func (db *DB) Runs(datasetID string) ([]AnalysisRun, error) {
	query := `SELECT ` + runColumns + ` FROM analysis_runs`
	var args []any
	if datasetID != "" {
		query += ` WHERE dataset_id = ?`
		args = append(args, datasetID)
	}
	query += ` ORDER BY created_unix_nanos DESC, run_id`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnalysisRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunDeltas returns the per-batch outcome of a run ordered by ascending
// delta, matching cchalf.Result.Ranked.
func (db *DB) RunDeltas(runID string) ([]cchalf.BatchDelta, error) {
	rows, err := db.Query(
		`SELECT batch, cc_half_excluding, delta_cc_half FROM batch_deltas
		WHERE run_id = ? ORDER BY delta_cc_half ASC, batch ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cchalf.BatchDelta
	for rows.Next() {
		var bd cchalf.BatchDelta
		if err := rows.Scan(&bd.Batch, &bd.CCHalf, &bd.Delta); err != nil {
			return nil, err
		}
		out = append(out, bd)
	}
	return out, rows.Err()
}

// RunBins returns the stored bin summaries of a run.
func (db *DB) RunBins(runID string) ([]cchalf.BinSummary, error) {
	rows, err := db.Query(
		`SELECT bin_index, inv_d2_low, inv_d2_high, reflections, cc_half FROM run_bins
		WHERE run_id = ? ORDER BY bin_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cchalf.BinSummary
	for rows.Next() {
		var b cchalf.BinSummary
		if err := rows.Scan(&b.Index, &b.InvD2Low, &b.InvD2High, &b.Count, &b.CCHalf); err != nil {
			return nil, err
		}
		b.DLow, b.DHigh = cchalf.InvD2ToD(b.InvD2Low), cchalf.InvD2ToD(b.InvD2High)
		out = append(out, b)
	}
	return out, rows.Err()
}

// RunResult reassembles a stored run into a cchalf.Result.
func (db *DB) RunResult(runID string) (*AnalysisRun, *cchalf.Result, error) {
	run, err := db.Run(runID)
	if err != nil {
		return nil, nil, err
	}
	deltas, err := db.RunDeltas(runID)
	if err != nil {
		return nil, nil, err
	}
	bins, err := db.RunBins(runID)
	if err != nil {
		return nil, nil, err
	}
	res := &cchalf.Result{
		NBins:        run.NBins,
		Overall:      run.Overall,
		Deltas:       make(map[int]float64, len(deltas)),
		Excluding:    make(map[int]float64, len(deltas)),
		Bins:         bins,
		Observations: run.Observations,
		Unique:       run.Unique,
	}
	for _, bd := range deltas {
		res.Deltas[bd.Batch] = bd.Delta
		res.Excluding[bd.Batch] = bd.CCHalf
	}
	return run, res, nil
}
