// Package server exposes the crime map pipeline over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/crimemap/internal/boundary"
	"github.com/sells-group/crimemap/internal/classify"
	"github.com/sells-group/crimemap/internal/dataset"
	"github.com/sells-group/crimemap/internal/pipeline"
)

// Options configures the HTTP server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	RateLimit      rate.Limit // requests per second per client; 0 disables limiting
	RateBurst      int
}

// Server serves year snapshots, filters, and summaries as JSON.
type Server struct {
	pipe    *pipeline.Pipeline
	reg     *dataset.Registry
	set     *boundary.Set
	table   *classify.Table
	opts    Options
	limiter *clientLimiter
}

// New wires a Server around an already-constructed pipeline.
func New(pipe *pipeline.Pipeline, reg *dataset.Registry, set *boundary.Set, table *classify.Table, opts Options) (*Server, error) {
	if pipe == nil || reg == nil || set == nil || table == nil {
		return nil, eris.New("server: pipeline, registry, boundary set, and table are required")
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}

	s := &Server{
		pipe:  pipe,
		reg:   reg,
		set:   set,
		table: table,
		opts:  opts,
	}
	if opts.RateLimit > 0 {
		s.limiter = newClientLimiter(opts.RateLimit, opts.RateBurst)
	}
	return s, nil
}

// Handler builds the chi router with all routes and middleware attached.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if s.limiter != nil {
		r.Use(s.limiter.middleware)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/years", s.handleYears)
		r.Get("/buckets", s.handleBuckets)
		r.Get("/categories", s.handleCategories)
		r.Get("/regions", s.handleRegions)
		r.Get("/incidents", s.handleIncidents)
		r.Get("/summary", s.handleSummary)
		r.Get("/export", s.handleExport)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("http server listening", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server: shutdown")
		}
		return nil
	case err := <-errCh:
		if eris.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server: listen")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
