package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/deltacchalf/internal/db"
	"github.com/banshee-data/deltacchalf/internal/monitoring"
	"github.com/banshee-data/deltacchalf/internal/timeutil"
)

func newTestEnv(t *testing.T) (*env, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	original := monitoring.Logf
	t.Cleanup(func() { monitoring.Logf = original })
	monitoring.SetLogger(t.Logf)

	var stdout, stderr bytes.Buffer
	return &env{
		stdout: &stdout,
		stderr: &stderr,
		clock:  timeutil.NewMockClock(time.Date(2025, 6, 23, 23, 3, 46, 0, time.UTC)),
	}, &stdout, &stderr
}

var (
	datasetIDPattern = regexp.MustCompile(`Created dataset (\S+)`)
	runIDPattern     = regexp.MustCompile(`Stored run (\S+)`)
)

func TestEndToEnd(t *testing.T) {
	e, stdout, _ := newTestEnv(t)
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "e2e.db")

	require.NoError(t, run(ctx, e, []string{
		"simulate", "-db", dbPath, "-name", "demo",
		"-dmin", "5", "-outliers", "7", "-outlier-scale", "0.5", "-outlier-noise", "10",
	}))
	m := datasetIDPattern.FindStringSubmatch(stdout.String())
	require.Len(t, m, 2, stdout.String())
	datasetID := m[1]
	assert.Contains(t, stdout.String(), "in 10 batches, mmm")

	stdout.Reset()
	require.NoError(t, run(ctx, e, []string{
		"run", "-db", dbPath, "-dataset", datasetID, "-nbins", "4", "-workers", "2", "-hist", "5", "-reject", "0",
	}))
	out := stdout.String()
	assert.Contains(t, out, "Overall CC1/2:")
	assert.Contains(t, out, "Batches:             10")
	assert.Contains(t, out, "ΔCC1/2 distribution:")
	assert.Regexp(t, `Rejection candidates \(ΔCC1/2 > 0\): 7\b`, out)
	m = runIDPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	runID := m[1]

	stdout.Reset()
	require.NoError(t, run(ctx, e, []string{"show", "-db", dbPath, "-run", runID}))
	assert.Contains(t, stdout.String(), "Run "+runID+" of dataset "+datasetID)
	assert.Contains(t, stdout.String(), "Overall CC1/2:")

	stdout.Reset()
	require.NoError(t, run(ctx, e, []string{"datasets", "-db", dbPath}))
	assert.Contains(t, stdout.String(), datasetID)
	assert.Contains(t, stdout.String(), "demo")

	stdout.Reset()
	require.NoError(t, run(ctx, e, []string{"runs", "-db", dbPath, "-dataset", datasetID}))
	assert.Contains(t, stdout.String(), runID)

	d, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer d.Close()
	runs, err := d.Runs(datasetID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 4, runs[0].NBins)
}

func TestRunNoSaveWithConfig(t *testing.T) {
	e, stdout, _ := newTestEnv(t)
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cfg.db")
	cfgPath := filepath.Join(dir, "analysis.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{
  "nbins": 3,
  "reject_above": 0.5,
  "simulation": {"cell": [30, 30, 30, 90, 90, 90], "laue_group": "m-3m", "d_min": 3, "batches": 4}
}`), 0644))

	require.NoError(t, run(ctx, e, []string{"simulate", "-db", dbPath, "-config", cfgPath}))
	assert.Contains(t, stdout.String(), "in 4 batches, m-3m")
	datasetID := datasetIDPattern.FindStringSubmatch(stdout.String())[1]

	stdout.Reset()
	require.NoError(t, run(ctx, e, []string{"run", "-db", dbPath, "-config", cfgPath, "-dataset", datasetID, "-no-save"}))
	assert.Contains(t, stdout.String(), "Resolution bins:     3")
	assert.Contains(t, stdout.String(), "No batches with ΔCC1/2 > 0.5")
	assert.NotContains(t, stdout.String(), "Stored run")

	stdout.Reset()
	require.NoError(t, run(ctx, e, []string{"runs", "-db", dbPath}))
	assert.Contains(t, stdout.String(), "No runs.")
}

func TestMigrateCommand(t *testing.T) {
	e, stdout, _ := newTestEnv(t)
	dbPath := filepath.Join(t.TempDir(), "migrate.db")

	require.NoError(t, run(context.Background(), e, []string{"migrate", "-db", dbPath, "up"}))
	assert.Contains(t, stdout.String(), "Current version: 2")

	stdout.Reset()
	require.NoError(t, run(context.Background(), e, []string{"migrate", "-db", dbPath, "status"}))
	assert.Contains(t, stdout.String(), "Latest version: 2")
}

func TestCommandErrors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "errors.db")

	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"frobnicate"}},
		{"run without dataset", []string{"run", "-db", dbPath}},
		{"run unknown dataset", []string{"run", "-db", dbPath, "-dataset", "missing"}},
		{"show without run", []string{"show", "-db", dbPath}},
		{"show unknown run", []string{"show", "-db", dbPath, "-run", "missing"}},
		{"bad outliers", []string{"simulate", "-db", dbPath, "-outliers", "1,x"}},
		{"outlier out of range", []string{"simulate", "-db", dbPath, "-batches", "3", "-outliers", "9"}},
		{"bad flag", []string{"datasets", "-nope"}},
		{"missing config", []string{"run", "-db", dbPath, "-dataset", "x", "-config", "/nonexistent.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, _ := newTestEnv(t)
			assert.Error(t, run(context.Background(), e, tt.args))
		})
	}
}

func TestVersionAndHelp(t *testing.T) {
	e, stdout, _ := newTestEnv(t)

	require.NoError(t, run(context.Background(), e, []string{"version"}))
	assert.Contains(t, stdout.String(), "cchalf dev")

	stdout.Reset()
	require.NoError(t, run(context.Background(), e, []string{"help"}))
	assert.Contains(t, stdout.String(), "Usage: cchalf <command>")
}

func TestParseBatchList(t *testing.T) {
	got, err := parseBatchList(" 3, 7,,12 ")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7, 12}, got)

	got, err = parseBatchList("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	e, _, _ := newTestEnv(t)
	dbPath := filepath.Join(t.TempDir(), "serve.db")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, e, []string{"serve", "-db", dbPath, "-listen", addr}) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + addr + "/api/datasets")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
