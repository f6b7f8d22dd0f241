package monitoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/deltacchalf/internal/timeutil"
)

func captureLogs(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() { Logf = original })
	var lines []string
	SetLogger(func(format string, v ...any) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := captureLogs(t)

	Logf("loaded %d observations", 12)
	assert.Equal(t, []string{"loaded 12 observations"}, *lines)

	SetLogger(nil)
	Logf("dropped")
	assert.Len(t, *lines, 1)
}

func TestLogfDefault(t *testing.T) {
	assert.NotNil(t, Logf)
	assert.NotPanics(t, func() { Logf("test message: %s", "value") })
}

func TestStage(t *testing.T) {
	lines := captureLogs(t)
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	done := Stage(clock, "jackknife")
	clock.Advance(1500 * time.Millisecond)
	done()

	assert.Equal(t, []string{
		"jackknife: started",
		"jackknife: finished in 1.5s",
	}, *lines)
}
