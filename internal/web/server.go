// Package web exposes the pipeline over a JSON HTTP API: submission,
// polling, draft review, media, health, and metrics.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resonate/internal/pipeline"
)

// NewServer creates and configures the HTTP server.
func NewServer(pl *pipeline.Pipeline, mediaDir, bind string, port int, log *slog.Logger) *http.Server {
	h := &Handlers{pipeline: pl, log: log}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/posts", h.HandleSubmit)
	mux.HandleFunc("GET /api/posts/{id}", h.HandleGetPost)
	mux.HandleFunc("GET /api/posts/{id}/result", h.HandleResult)
	mux.HandleFunc("GET /api/drafts", h.HandleListDrafts)
	mux.HandleFunc("GET /api/drafts/{id}", h.HandleGetDraft)
	mux.HandleFunc("PATCH /api/drafts/{id}", h.HandleUpdateDraft)

	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	if mediaDir != "" {
		mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(mediaDir))))
	}

	handler := securityHeaders(mux)

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", bind, port),
		Handler: handler,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, log *slog.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("server running", "addr", srv.Addr)
	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
