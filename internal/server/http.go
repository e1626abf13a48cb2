package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"househunt/config"
	"househunt/internal/core"
	"househunt/internal/observability"
	"househunt/internal/usage"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	ChatPath        string // Route for the chat endpoint (default: /api/chat)
	MetricsEnabled  bool   // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint string // HTTP path for metrics endpoint (default: /metrics)
	BodySizeLimit   int64  // Max request body size in bytes (default: 1MB)

	// UsageLogger records one entry per opened stream. Nil disables it.
	UsageLogger usage.LoggerInterface
}

// New creates a new HTTP server serving provider on the chat route.
func New(provider core.ChatProvider, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	chatPath := "/api/chat"
	if cfg.ChatPath != "" {
		chatPath = path.Clean(cfg.ChatPath)
	}

	handler := NewHandler(provider, HandlerOptions{
		Endpoint:    chatPath,
		UsageLogger: cfg.UsageLogger,
		Metrics:     observability.NewStreamRecorder(cfg.MetricsEnabled),
	})

	// Global middleware stack (order matters)
	e.Use(RequestID())
	e.Use(RequestLogger())
	e.Use(middleware.Recover())

	bodySizeLimit := config.DefaultBodySizeLimit
	if cfg.BodySizeLimit > 0 {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodySizeLimit, 10) + "B"))

	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		metricsPath := "/metrics"
		if cfg.MetricsEndpoint != "" {
			// Normalize path to prevent traversal attacks
			metricsPath = path.Clean(cfg.MetricsEndpoint)
		}
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	e.POST(chatPath, handler.Chat)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// errorHandler writes errors raised outside the chat handler (unknown routes,
// body limit, recovered panics) in the same {"error": msg} shape as chat failures.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = http.StatusText(code)
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		}
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, map[string]string{"error": msg})
	}
	if err != nil {
		slog.Warn("failed to write error response", "error", err, "request_id", core.GetRequestID(c.Request().Context()))
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
