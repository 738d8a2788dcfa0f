package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rflorenc/pan-deduper/internal/api"
	"github.com/rflorenc/pan-deduper/internal/config"
	"github.com/rflorenc/pan-deduper/internal/deduper"
	"github.com/rflorenc/pan-deduper/internal/logging"
	"github.com/rflorenc/pan-deduper/internal/metrics"
	"github.com/rflorenc/pan-deduper/internal/models"
)

func runServe(ctx context.Context, cfg *config.Config, con *console) int {
	log, closeLog, err := logging.New(logging.Options{File: cfg.LogFile, Verbose: cfg.Verbose, Console: con.errOut})
	if err != nil {
		return con.fail(err)
	}
	defer closeLog()
	if err := con.credentials(cfg); err != nil {
		return con.fail(err)
	}

	server := &api.Server{
		Config:  cfg,
		Jobs:    models.NewJobStore(),
		Connect: deduper.Connect,
		Log:     log,
		Metrics: metrics.NewRecorder(nil),
	}
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewRouter(server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	fmt.Fprintf(con.out, "pan-deduper %s listening on %s\n", version, cfg.Listen)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return con.fail(err)
		}
		return exitOK
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return con.fail(err)
	}
	fmt.Fprintln(con.out, "Server stopped")
	return exitOK
}
