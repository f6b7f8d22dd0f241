// Package api serves stored datasets and CC1/2 analysis runs as JSON.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/banshee-data/deltacchalf/internal/cchalf"
	"github.com/banshee-data/deltacchalf/internal/db"
	"github.com/banshee-data/deltacchalf/internal/httputil"
	"github.com/banshee-data/deltacchalf/internal/monitoring"
	"github.com/banshee-data/deltacchalf/internal/timeutil"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

type Server struct {
	db    *db.DB
	clock timeutil.Clock
}

func NewServer(database *db.DB) *Server {
	return &Server{db: database, clock: timeutil.RealClock{}}
}

// SetClock replaces the clock used for request timing.
func (s *Server) SetClock(c timeutil.Clock) {
	s.clock = c
}

// RunDetail is the body of GET /api/runs/{id}.
type RunDetail struct {
	Run    *db.AnalysisRun     `json:"run"`
	Deltas []cchalf.BatchDelta `json:"deltas"`
	Bins   []cchalf.BinSummary `json:"bins"`
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(s.clock.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/datasets", s.listDatasets)
	mux.HandleFunc("/api/datasets/{id}", s.showDataset)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/{id}", s.showRun)
	return mux
}

// writeLookupError maps storage errors to a response.
func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err)
}

func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	datasets, err := s.db.Datasets()
	if err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	if datasets == nil {
		datasets = []db.Dataset{}
	}
	httputil.WriteJSONOK(w, datasets)
}

func (s *Server) showDataset(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	d, err := s.db.Dataset(r.PathValue("id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	httputil.WriteJSONOK(w, d)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	datasetID := r.URL.Query().Get("dataset")
	if datasetID != "" {
		if _, err := s.db.Dataset(datasetID); err != nil {
			writeLookupError(w, err)
			return
		}
	}
	runs, err := s.db.Runs(datasetID)
	if err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	if runs == nil {
		runs = []db.AnalysisRun{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	id := r.PathValue("id")
	run, err := s.db.Run(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	deltas, err := s.db.RunDeltas(id)
	if err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	bins, err := s.db.RunBins(id)
	if err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	if deltas == nil {
		deltas = []cchalf.BatchDelta{}
	}
	if bins == nil {
		bins = []cchalf.BinSummary{}
	}
	httputil.WriteJSONOK(w, RunDetail{Run: run, Deltas: deltas, Bins: bins})
}
