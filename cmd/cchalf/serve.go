package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/banshee-data/deltacchalf/internal/api"
	"github.com/banshee-data/deltacchalf/internal/db"
	"github.com/banshee-data/deltacchalf/internal/monitoring"
)

func cmdServe(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "serve")
	dbPath := fs.String("db", defaultDBPath, "SQLite database path")
	listen := fs.String("listen", ":8080", "Listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen == "" {
		return errors.New("listen address is required")
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	server := api.NewServer(database)
	server.SetClock(e.clock)
	mux := server.ServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              *listen,
		Handler:           server.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("listening on %s", *listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := httpServer.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	monitoring.Logf("graceful shutdown complete")
	return nil
}
