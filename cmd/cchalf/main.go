// Command cchalf estimates per-batch ΔCC1/2 for merged diffraction data.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/deltacchalf/internal/config"
	"github.com/banshee-data/deltacchalf/internal/timeutil"
	"github.com/banshee-data/deltacchalf/internal/version"
)

const defaultDBPath = "cchalf.db"

// env carries the process surroundings so commands can run under test.
type env struct {
	stdout io.Writer
	stderr io.Writer
	clock  timeutil.Clock
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := &env{stdout: os.Stdout, stderr: os.Stderr, clock: timeutil.RealClock{}}
	if err := run(ctx, e, os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, e *env, args []string) error {
	if len(args) < 1 {
		printUsage(e.stderr)
		return errors.New("missing command")
	}

	command, rest := args[0], args[1:]
	switch command {
	case "simulate":
		return cmdSimulate(ctx, e, rest)
	case "run":
		return cmdRun(ctx, e, rest)
	case "show":
		return cmdShow(e, rest)
	case "datasets":
		return cmdDatasets(e, rest)
	case "runs":
		return cmdRuns(e, rest)
	case "migrate":
		return cmdMigrate(e, rest)
	case "serve":
		return cmdServe(ctx, e, rest)
	case "version":
		fmt.Fprintln(e.stdout, version.String())
		return nil
	case "help", "-h", "--help":
		printUsage(e.stdout)
		return nil
	default:
		printUsage(e.stderr)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `cchalf - per-batch CC1/2 jackknife for merged diffraction data

Usage: cchalf <command> [options]

Commands:
  simulate   Generate a synthetic dataset and store it
  run        Compute CC1/2 and per-batch ΔCC1/2 for a stored dataset
  show       Print a stored analysis run
  datasets   List stored datasets
  runs       List stored analysis runs
  migrate    Manage the database schema (up, down, status, force)
  serve      Serve the JSON API and debug pages
  version    Show version information
  help       Show this help message

Common Flags:
  -db <path>        SQLite database (default: cchalf.db)
  -config <file>    JSON analysis config (see config/analysis.defaults.json)

Examples:
  cchalf simulate -outliers 3,7 -name demo
  cchalf run -dataset <id> -nbins 10 -reject 0
  cchalf serve -listen :8080`)
}

// newFlagSet returns a flag set whose errors and usage go to e.stderr.
func newFlagSet(e *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

// isSet reports whether the named flag was given on the command line.
func isSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// loadConfig reads path, or returns an empty config when path is empty.
func loadConfig(path string) (*config.AnalysisConfig, error) {
	if path == "" {
		return config.EmptyAnalysisConfig(), nil
	}
	return config.LoadAnalysisConfig(path)
}
