// Package ingest is the HTTP intake surface: report submission, source
// archive upload, and health checks. Built on chi, in the style of the
// rest of this module's request handling.
package ingest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lqt0707/monitor/internal/config"
	"github.com/lqt0707/monitor/internal/observability"
	"github.com/lqt0707/monitor/internal/pipeline"
	"github.com/lqt0707/monitor/internal/sourcemapresolver"
	"github.com/lqt0707/monitor/internal/store"
)

// Server is the intake HTTP listener.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *zap.Logger
}

// Deps bundles every collaborator the intake routes need.
type Deps struct {
	Config         config.ServerConfig
	Projects       store.ProjectConfigRepo
	SourceArchives store.SourceArchiveRepo
	Blobs          *store.BlobStore
	Resolver       *sourcemapresolver.Resolver
	Metrics        *observability.Metrics
	Log            *zap.Logger

	EnqueueReport func(pipeline.ReportJob) bool
}

// New builds a Server with its full middleware chain and route table.
func New(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(log),
		middleware.Recoverer,
		middleware.Timeout(deps.Config.WriteTimeout),
	)

	h := &handlers{deps: deps, log: log}
	setupRoutes(r, h)

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:         deps.Config.ListenAddr,
			Handler:      r,
			ReadTimeout:  deps.Config.ReadTimeout,
			WriteTimeout: deps.Config.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Handler returns the server's root http.Handler, for tests that want to
// drive requests in-process via httptest rather than a real listener.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks serving until ctx is cancelled, then drains
// in-flight requests within the server's configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("ingest server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("ingest server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("ingest server shutting down")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ingest server shutdown: %w", err)
		}
		return nil
	}
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
