package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elonfeng/aipulse/internal/logging"
	"github.com/elonfeng/aipulse/internal/metrics"
	"github.com/elonfeng/aipulse/internal/store"
	"github.com/elonfeng/aipulse/pkg/graph"
	"github.com/elonfeng/aipulse/pkg/source"
	"github.com/elonfeng/aipulse/pkg/srs"
	"github.com/elonfeng/aipulse/pkg/trend"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ArticleReader lists stored articles.
type ArticleReader interface {
	ListArticles(ctx context.Context, opts store.ListOpts) ([]source.Article, error)
}

// Deps are the components the API exposes. Pipeline may be nil when no LLM is configured.
type Deps struct {
	Articles  ArticleReader
	Trends    *trend.Service
	Reviewer  *srs.Reviewer
	Graph     *graph.Browser
	Pipeline  *graph.Pipeline
	Collector *source.Collector
}

// Server provides the HTTP API.
type Server struct {
	deps Deps
	port int
}

// New creates a new HTTP server.
func New(d Deps, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{deps: d, port: port}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(instrument)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/articles", s.handleArticles)
		r.Get("/trending", s.handleTrending)
		r.Post("/collect", s.handleCollect)

		r.Post("/reviews", s.handleReview)
		r.Get("/reviews/due", s.handleDue)

		r.Route("/graph", func(r chi.Router) {
			r.Post("/ingest", s.handleGraphIngest)
			r.Get("/entities", s.handleEntitySearch)
			r.Get("/entities/{id}/neighbors", s.handleNeighbors)
			r.Get("/entities/{id}/relations", s.handleRelations)
		})
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("aipulse server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// instrument records request latency by route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
		logging.Debug().Str("method", r.Method).Str("route", route).Int("status", status).
			Dur("elapsed", elapsed).Str("request_id", chimiddleware.GetReqID(r.Context())).Msg("http request")
	})
}
