package web

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/siakad/templar/internal/binding"
	"github.com/siakad/templar/internal/config"
	"github.com/siakad/templar/internal/logging"
	"github.com/siakad/templar/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewServer creates and configures the HTTP server for the Templar web UI.
func NewServer(db *sql.DB, cfg *config.Config, logger *zap.Logger, version, bind string, port int) (*http.Server, error) {
	logger = logging.OrNop(logger).Named("web")

	h, err := newHandlers(db, cfg, logger, version)
	if err != nil {
		return nil, err
	}

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to create static sub-FS: %w", err)
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           securityHeaders(h.routes(staticSub)),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func newHandlers(db *sql.DB, cfg *config.Config, logger *zap.Logger, version string) (*Handlers, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to create template sub-FS: %w", err)
	}
	matcher, err := ops.NewMatcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Handlers{
		db:       db,
		cfg:      cfg,
		sessions: binding.NewManager(),
		matcher:  matcher,
		renderer: NewRenderer(templateSub, version, logger),
		logger:   logger,
	}, nil
}

func (h *Handlers) routes(static fs.FS) *http.ServeMux {
	mux := http.NewServeMux()

	// Pages
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/templates", http.StatusFound)
	})
	mux.HandleFunc("GET /templates", h.HandleList)
	mux.HandleFunc("POST /templates", h.HandleImport)
	mux.HandleFunc("POST /templates/purge", h.HandlePurge)
	mux.HandleFunc("GET /templates/{id}", h.HandleDetail)
	mux.HandleFunc("DELETE /templates/{id}", h.HandleDelete)
	mux.HandleFunc("GET /templates/{id}/detect", h.HandleDetect)
	mux.HandleFunc("POST /templates/{id}/generate", h.HandleGenerate)

	// Session API
	mux.HandleFunc("POST /api/sessions/{id}", h.HandleSessionOpen)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleSessionState)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.HandleSessionClose)
	mux.HandleFunc("POST /api/sessions/{id}/select", h.HandleSessionSelect)
	mux.HandleFunc("POST /api/sessions/{id}/variables", h.HandleSessionAdd)
	mux.HandleFunc("PATCH /api/sessions/{id}/variables/{key}", h.HandleSessionEdit)
	mux.HandleFunc("DELETE /api/sessions/{id}/variables/{key}", h.HandleSessionDelete)
	mux.HandleFunc("POST /api/sessions/{id}/undo", h.HandleSessionUndo)
	mux.HandleFunc("POST /api/sessions/{id}/redo", h.HandleSessionRedo)
	mux.HandleFunc("GET /api/sessions/{id}/render", h.HandleSessionRender)
	mux.HandleFunc("POST /api/sessions/{id}/save", h.HandleSessionSave)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	return mux
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("templar UI running", zap.String("url", "http://"+srv.Addr))

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
