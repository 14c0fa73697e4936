package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"pet-tracker/internal/general/logger"

	"golang.org/x/sync/semaphore"
)

const shutdownTimeout = 10 * time.Second

// New builds an http.Server on port with the service timeouts and a global concurrency limit.
func New(ctx context.Context, port, maxConcurrent int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           WithConcurrencyLimit(maxConcurrent, handler),
		ReadHeaderTimeout: 5 * time.Second,                                   // time to read headers
		ReadTimeout:       15 * time.Second,                                  // photo uploads need more than 10s
		IdleTimeout:       60 * time.Second,                                  // keep-alive window
		BaseContext:       func(net.Listener) context.Context { return ctx }, // pass base ctx to all handlers
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, log *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil {
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"addr": srv.Addr})
		}
		return err
	}
}

// WithConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
// WebSocket streams hold a slot for their whole lifetime.
func WithConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := semaphore.NewWeighted(int64(n))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// blocks when capacity is full; fails when the client goes away or the server shuts down
		if err := sem.Acquire(r.Context(), 1); err != nil {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		defer sem.Release(1)
		next.ServeHTTP(w, r)
	})
}
