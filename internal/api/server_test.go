package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/deltacchalf/internal/cchalf"
	"github.com/banshee-data/deltacchalf/internal/db"
	"github.com/banshee-data/deltacchalf/internal/monitoring"
	"github.com/banshee-data/deltacchalf/internal/simulate"
	"github.com/banshee-data/deltacchalf/internal/timeutil"
)

type fixture struct {
	server  *Server
	db      *db.DB
	dataset *db.Dataset
	run     *db.AnalysisRun
	result  *cchalf.Result
}

func setupTestServer(t *testing.T) *fixture {
	t.Helper()
	dbInst, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbInst.Close() })
	dbInst.SetClock(timeutil.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))

	params := simulate.DefaultParams()
	params.DMin = 6
	obs, err := simulate.Generate(params)
	require.NoError(t, err)

	ctx := context.Background()
	ds := &db.Dataset{Name: "sim", Cell: params.Cell.Parameters(), LaueGroup: params.LaueGroup.Name()}
	require.NoError(t, dbInst.CreateDataset(ds))
	require.NoError(t, dbInst.InsertObservations(ctx, ds.ID, obs))

	res, err := cchalf.Compute(ctx, obs, cchalf.Options{NBins: 3, Resolver: params.Cell})
	require.NoError(t, err)
	run, err := dbInst.RecordRun(ctx, ds.ID, res)
	require.NoError(t, err)

	return &fixture{server: NewServer(dbInst), db: dbInst, dataset: ds, run: run, result: res}
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.server.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestListDatasets(t *testing.T) {
	f := setupTestServer(t)

	w := f.get(t, "/api/datasets")
	require.Equal(t, http.StatusOK, w.Code)

	var got []db.Dataset
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, f.dataset.ID, got[0].ID)
	assert.Equal(t, f.result.Observations, got[0].Observations)
}

func TestShowDataset(t *testing.T) {
	f := setupTestServer(t)

	w := f.get(t, "/api/datasets/"+f.dataset.ID)
	require.Equal(t, http.StatusOK, w.Code)
	var got db.Dataset
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "sim", got.Name)
	assert.Equal(t, "mmm", got.LaueGroup)

	w = f.get(t, "/api/datasets/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRuns(t *testing.T) {
	f := setupTestServer(t)

	tests := []struct {
		name   string
		target string
		status int
		count  int
	}{
		{"all", "/api/runs", http.StatusOK, 1},
		{"by dataset", "/api/runs?dataset=" + f.dataset.ID, http.StatusOK, 1},
		{"unknown dataset", "/api/runs?dataset=missing", http.StatusNotFound, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.get(t, tt.target)
			require.Equal(t, tt.status, w.Code)
			if tt.status != http.StatusOK {
				return
			}
			var runs []db.AnalysisRun
			require.NoError(t, json.NewDecoder(w.Body).Decode(&runs))
			assert.Len(t, runs, tt.count)
		})
	}
}

func TestListRunsEmpty(t *testing.T) {
	f := setupTestServer(t)
	require.NoError(t, f.db.DeleteDataset(f.dataset.ID))

	w := f.get(t, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestShowRun(t *testing.T) {
	f := setupTestServer(t)

	w := f.get(t, "/api/runs/"+f.run.ID)
	require.Equal(t, http.StatusOK, w.Code)

	var got RunDetail
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, f.run.ID, got.Run.ID)
	assert.Equal(t, f.result.Overall, got.Run.Overall)
	if diff := cmp.Diff(f.result.Ranked(), got.Deltas); diff != "" {
		t.Errorf("Deltas mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, got.Bins, 3)
	assert.Equal(t, f.result.Bins[2].Count, got.Bins[2].Count)

	w = f.get(t, "/api/runs/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShowRunWithoutRows(t *testing.T) {
	f := setupTestServer(t)
	_, err := f.db.Exec(`DELETE FROM batch_deltas WHERE run_id = ?`, f.run.ID)
	require.NoError(t, err)
	_, err = f.db.Exec(`DELETE FROM run_bins WHERE run_id = ?`, f.run.ID)
	require.NoError(t, err)

	w := f.get(t, "/api/runs/"+f.run.ID)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.JSONEq(t, `[]`, string(body["deltas"]))
	assert.JSONEq(t, `[]`, string(body["bins"]))
}

func TestMethodNotAllowed(t *testing.T) {
	f := setupTestServer(t)

	for _, target := range []string{"/api/datasets", "/api/runs", "/api/runs/" + f.run.ID} {
		w := httptest.NewRecorder()
		f.server.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodPost, target, strings.NewReader("{}")))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, target)
		assert.Equal(t, http.MethodGet, w.Header().Get("Allow"), target)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()
	var lines []string
	monitoring.SetLogger(func(format string, v ...any) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	f := setupTestServer(t)
	f.server.SetClock(timeutil.NewMockClock(time.Unix(0, 0)))
	handler := f.server.LoggingMiddleware(f.server.ServeMux())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	require.NotEmpty(t, lines)
	last := lines[len(lines)-1]
	assert.Contains(t, last, statusCodeColor(http.StatusNotFound))
	assert.Contains(t, last, "/api/runs/missing")
	assert.Contains(t, last, "0ms")
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"304"+colorReset, statusCodeColor(304))
	assert.Equal(t, colorBoldRed+"500"+colorReset, statusCodeColor(500))
	assert.Equal(t, "101", statusCodeColor(101))
}
