package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/config"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/service"
)

const defaultRateWindow = time.Minute

// Options configures the HTTP server.
type Options struct {
	// Pipeline runs speech translation for POST /translate.
	Pipeline Processor

	// Models reports model state for GET /health.
	Models service.Models

	// Config returns the live configuration.
	Config func() *config.Config

	Version string
}

// Server exposes the speech translation API over HTTP.
type Server struct {
	router chi.Router
	api    huma.API
	config func() *config.Config
}

// New builds the router, middleware and every endpoint. Middleware settings
// are read once from the configuration at construction.
func New(opts Options) *Server {
	version := opts.Version
	if version == "" {
		version = "1.0.0"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(recoverer)

	cfg := opts.Config()
	if origins := cfg.Server.CORS.AllowedOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
	}
	if limit := cfg.Server.RateLimit; limit.Requests > 0 {
		window := limit.Window.Std()
		if window <= 0 {
			window = defaultRateWindow
		}
		r.Use(httprate.Limit(limit.Requests, window,
			httprate.WithKeyByIP(),
			httprate.WithLimitHandler(rateLimited),
		))
	}

	humaConfig := huma.DefaultConfig("Seamless speech translation", version)
	humaConfig.CreateHooks = nil
	api := humachi.New(r, humaConfig)

	s := &Server{router: r, api: api, config: opts.Config}

	NewTranslateHandler(api, opts.Pipeline, opts.Config)
	NewHealthHandler(api, opts.Models, version)

	r.Handle("/translated/*", http.StripPrefix("/translated/", http.HandlerFunc(s.serveArtifact)))

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API the endpoints are registered on.
func (s *Server) API() huma.API {
	return s.api
}

// serveArtifact serves synthesized audio from the current output directory.
func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request) {
	dir := s.config().Output.Dir
	if dir == "" {
		dir = "."
	}
	if filepath.Base(r.URL.Path) != r.URL.Path || r.URL.Path == "" {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	http.FileServer(http.Dir(dir)).ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
