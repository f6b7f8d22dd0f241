package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/deltacchalf/internal/cchalf"
	"github.com/banshee-data/deltacchalf/internal/crystal"
)

// Dataset is a stored observation set with the metadata needed to resolve
// its reflections.
type Dataset struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Cell      [6]float64 `json:"cell"`
	LaueGroup string     `json:"laue_group"`
	CreatedAt time.Time  `json:"created_at"`

	// Observations is filled in by Datasets and Dataset.
	Observations int `json:"observations"`
}

// UnitCell builds the crystal.UnitCell of the dataset.
func (d *Dataset) UnitCell() (*crystal.UnitCell, error) {
	c := d.Cell
	return crystal.NewUnitCell(c[0], c[1], c[2], c[3], c[4], c[5])
}

// CreateDataset stores the dataset header. An empty ID is replaced with a
// new UUID and CreatedAt is stamped from the DB clock.
func (db *DB) CreateDataset(d *Dataset) error {
	if d.Name == "" {
		return fmt.Errorf("dataset name is required")
	}
	if _, err := d.UnitCell(); err != nil {
		return err
	}
	if _, err := crystal.ParseLaueGroup(d.LaueGroup); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = db.clock.Now().UTC()

	_, err := db.Exec(
		`INSERT INTO datasets (
			dataset_id, name, cell_a, cell_b, cell_c, cell_alpha, cell_beta, cell_gamma,
			laue_group, created_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Cell[0], d.Cell[1], d.Cell[2], d.Cell[3], d.Cell[4], d.Cell[5],
		d.LaueGroup, d.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert dataset: %w", err)
	}
	return nil
}

// InsertObservations appends observations to a dataset in one transaction.
func (db *DB) InsertObservations(ctx context.Context, datasetID string, obs []cchalf.Observation) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO observations (dataset_id, h, k, l, batch, intensity) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx, datasetID, o.H[0], o.H[1], o.H[2], o.Batch, o.Intensity); err != nil {
			return fmt.Errorf("failed to insert observation %v: %w", o.H, err)
		}
	}
	return tx.Commit()
}

// LoadObservations returns every observation of a dataset in insertion
// order. A NULL batch or intensity is reported as
// cchalf.ErrMissingRequiredColumns before any analysis can start.
func (db *DB) LoadObservations(ctx context.Context, datasetID string) ([]cchalf.Observation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT h, k, l, batch, intensity FROM observations
		WHERE dataset_id = ? ORDER BY observation_id`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		obs              []cchalf.Observation
		missingBatch     int
		missingIntensity int
	)
	for rows.Next() {
		var (
			h, k, l   int
			batch     sql.NullInt64
			intensity sql.NullFloat64
		)
		if err := rows.Scan(&h, &k, &l, &batch, &intensity); err != nil {
			return nil, err
		}
		if !batch.Valid {
			missingBatch++
		}
		if !intensity.Valid {
			missingIntensity++
		}
		obs = append(obs, cchalf.Observation{
			H:         crystal.MillerIndex{h, k, l},
			Batch:     int(batch.Int64),
			Intensity: intensity.Float64,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if missingBatch > 0 || missingIntensity > 0 {
		return nil, fmt.Errorf("%w: dataset %s has %d observations without batch and %d without intensity",
			cchalf.ErrMissingRequiredColumns, datasetID, missingBatch, missingIntensity)
	}
	return obs, nil
}

const datasetColumns = `d.dataset_id, d.name, d.cell_a, d.cell_b, d.cell_c,
	d.cell_alpha, d.cell_beta, d.cell_gamma, d.laue_group, d.created_unix_nanos,
	(SELECT COUNT(*) FROM observations o WHERE o.dataset_id = d.dataset_id)`

type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(s scanner) (Dataset, error) {
	var (
		d       Dataset
		created int64
	)
	err := s.Scan(&d.ID, &d.Name, &d.Cell[0], &d.Cell[1], &d.Cell[2],
		&d.Cell[3], &d.Cell[4], &d.Cell[5], &d.LaueGroup, &created, &d.Observations)
	if err != nil {
		return Dataset{}, err
	}
	d.CreatedAt = time.Unix(0, created).UTC()
	return d, nil
}

// Dataset returns one dataset header.
func (db *DB) Dataset(id string) (*Dataset, error) {
	row := db.QueryRow(`SELECT `+datasetColumns+` FROM datasets d WHERE d.dataset_id = ?`, id)
	d, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Datasets lists every dataset, newest first.
func (db *DB) Datasets() ([]Dataset, error) {
	rows, err := db.Query(`SELECT ` + datasetColumns + ` FROM datasets d ORDER BY d.created_unix_nanos DESC, d.dataset_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDataset removes a dataset with its observations and runs.
func (db *DB) DeleteDataset(id string) error {
	res, err := db.Exec(`DELETE FROM datasets WHERE dataset_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	return nil
}
