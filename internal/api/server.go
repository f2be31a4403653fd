package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Feaskye/SkyeAI-sub001/internal/engine"
	"github.com/Feaskye/SkyeAI-sub001/internal/service"
	"github.com/Feaskye/SkyeAI-sub001/internal/tool"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	maxBodySize       = 1 << 20 // 1 MB
)

// Server wraps the chi router and application dependencies.
type Server struct {
	router   *chi.Mux
	svc      *service.Service
	tools    *tool.Adapter
	logger   *slog.Logger
	addr     string
	registry *prometheus.Registry
	metrics  *httpMetrics
}

// NewServer creates and configures a new HTTP server. tools may be nil, in
// which case the /tools routes are not mounted. HTTP collectors are
// registered in reg, which /metrics also serves; a nil reg gets a fresh
// registry.
func NewServer(addr string, svc *service.Service, tools *tool.Adapter, logger *slog.Logger, reg *prometheus.Registry) *Server {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	srv := &Server{
		router:   chi.NewRouter(),
		svc:      svc,
		tools:    tools,
		logger:   logger,
		addr:     addr,
		registry: reg,
		metrics:  newHTTPMetrics(reg, svc.Executor().InFlight),
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(srv.metrics.middleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler(s.registry))

	s.router.Route("/skills", func(r chi.Router) {
		r.Post("/register", s.handleRegisterSkill)
		r.Get("/all", s.handleListSkills)
		r.Get("/active", s.handleListActiveSkills)
		r.Get("/search", s.handleSearchSkills)
		r.Get("/name/{name}", s.handleGetSkillByName)
		r.Post("/name/{name}/execute", s.handleExecuteSkillByName)
		r.Get("/{skillId}", s.handleGetSkill)
		r.Put("/{skillId}", s.handleUpdateSkill)
		r.Delete("/{skillId}", s.handleUnregisterSkill)
		r.Post("/{skillId}/activate", s.handleActivateSkill)
		r.Post("/{skillId}/deactivate", s.handleDeactivateSkill)

		r.Post("/execute/{skillId}", s.handleExecuteSkill)
		r.Post("/execute-async/{skillId}", s.handleExecuteSkillAsync)
		r.Get("/execution/{executionId}", s.handleGetExecution)
		r.Post("/execution/{executionId}/cancel", s.handleCancelExecution)
		r.Get("/execution/{executionId}/events", s.handleStreamEvents)
		r.Get("/executions", s.handleListExecutions)
		r.Get("/executions/summary", s.handleExecutionSummary)

		r.Get("/stats/all", s.handleGetAllStats)
		r.Post("/stats/reset-all", s.handleResetAllStats)
		r.Get("/stats/{skillId}", s.handleGetSkillStats)
		r.Post("/stats/{skillId}/reset", s.handleResetSkillStats)
	})

	if s.tools != nil {
		s.router.Route("/tools", func(r chi.Router) {
			r.Get("/", s.handleListTools)
			r.Post("/", s.handleRegisterTool)
			r.Post("/execute", s.handleExecuteTool)
			r.Post("/execute/batch", s.handleExecuteBatch)
			r.Post("/load-from-yaml", s.handleLoadTools)
			r.Get("/{name}", s.handleGetTool)
			r.Delete("/{name}", s.handleUnregisterTool)
		})
	}
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
// Draining the executor is left to the caller.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           otelhttp.NewHandler(s.router, "skillengine"),
		ReadHeaderTimeout: readHeaderTimeout,
		// No WriteTimeout: synchronous executions may legitimately run for
		// the configured execution timeout, and event streams are long-lived.
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// writeJSON writes v as a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps a service or tool error onto an HTTP status.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, tool.ErrNotFound), errors.Is(err, engine.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidSkill), errors.Is(err, tool.ErrInvalidDescriptor):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrShutdown):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.ErrorContext(r.Context(), op, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	return err
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
