// Package monitoring is the diagnostic logging hook shared by the CLI, the
// storage layer and the HTTP handlers.
package monitoring

import (
	"log"

	"github.com/banshee-data/deltacchalf/internal/timeutil"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf;
// SetLogger redirects or mutes it.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces the package logger. nil installs a no-op logger.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}

// Stage logs the start of a named processing stage and returns a func that
// logs its elapsed time on clock.
//
//	done := monitoring.Stage(clock, "jackknife")
//	defer done()
func Stage(clock timeutil.Clock, name string) func() {
	start := clock.Now()
	Logf("%s: started", name)
	return func() {
		Logf("%s: finished in %v", name, clock.Since(start))
	}
}
