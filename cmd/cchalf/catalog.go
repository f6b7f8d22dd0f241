package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/banshee-data/deltacchalf/internal/db"
)

const listTimeFormat = "2006-01-02 15:04:05"

func cmdDatasets(e *env, args []string) error {
	fs := newFlagSet(e, "datasets")
	dbPath := fs.String("db", defaultDBPath, "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	datasets, err := database.Datasets()
	if err != nil {
		return err
	}
	if len(datasets) == 0 {
		fmt.Fprintln(e.stdout, "No datasets.")
		return nil
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLAUE\tCELL\tOBSERVATIONS\tCREATED")
	for _, d := range datasets {
		c := d.Cell
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g %g %g %g %g %g\t%d\t%s\n",
			d.ID, d.Name, d.LaueGroup, c[0], c[1], c[2], c[3], c[4], c[5],
			d.Observations, d.CreatedAt.Local().Format(listTimeFormat))
	}
	return tw.Flush()
}

func cmdRuns(e *env, args []string) error {
	fs := newFlagSet(e, "runs")
	dbPath := fs.String("db", defaultDBPath, "SQLite database path")
	datasetID := fs.String("dataset", "", "Only list runs of this dataset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	runs, err := database.Runs(*datasetID)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(e.stdout, "No runs.")
		return nil
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATASET\tBINS\tCC1/2\tOBSERVATIONS\tUNIQUE\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.4f\t%d\t%d\t%s\n",
			r.ID, r.DatasetID, r.NBins, r.Overall, r.Observations, r.Unique,
			r.CreatedAt.Local().Format(listTimeFormat))
	}
	return tw.Flush()
}

func cmdMigrate(e *env, args []string) error {
	fs := newFlagSet(e, "migrate")
	dbPath := fs.String("db", defaultDBPath, "SQLite database path")
	fs.Usage = func() { db.PrintMigrateHelp(e.stderr) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	return db.RunMigrateCommand(e.stdout, fs.Args(), *dbPath)
}
