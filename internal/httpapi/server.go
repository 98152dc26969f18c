// Package httpapi exposes the bank domain over HTTP and provides the client
// the CLI talks to.
//
// Write endpoints run the starting command synchronously, so validation and
// refusals come back as HTTP errors. The rest of the transaction is carried
// by the dispatcher's Run loop; a 202 response means the transaction has
// started, not that it has finished.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/eventual2pc/internal/bank"
	"github.com/roach88/eventual2pc/internal/dispatch"
	"github.com/roach88/eventual2pc/internal/store"
)

// Server routes HTTP requests to the dispatcher.
type Server struct {
	engine     *chi.Mux
	dispatcher *dispatch.Dispatcher
	domain     *bank.Domain
	store      *store.Store
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewServer builds the router.
func NewServer(d *dispatch.Dispatcher, domain *bank.Domain, st *store.Store, opts ...Option) *Server {
	s := &Server{
		engine:     chi.NewRouter(),
		dispatcher: d,
		domain:     domain,
		store:      st,
		gatherer:   prometheus.DefaultGatherer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine.Use(middleware.RequestID)
	s.engine.Use(requestLogger(s.logger))
	s.engine.Use(middleware.Recoverer)
	s.registerRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.engine.Get("/health", s.health)
	s.engine.Post("/accounts", s.openAccount)
	s.engine.Get("/accounts/{id}", s.getAccount)
	s.engine.Post("/accounts/{id}/collections", s.startCollect)
	s.engine.Post("/accounts/{id}/freezes", s.startFreeze)
	s.engine.Post("/transfers", s.startTransfer)
	s.engine.Get("/transfers/{id}", s.getTransfer)
	s.engine.Get("/freezes/{id}", s.getFreeze)
	s.engine.Get("/streams/{type}/{id}", s.getStream)
	s.engine.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// requestLogger logs one line per request with its status and latency.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
