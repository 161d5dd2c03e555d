// Package server is the HTTP surface: the tool registry, the management
// workflow, health and Prometheus metrics behind one gin engine.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/needze/agentflow/graph/tool"
	"github.com/needze/agentflow/internal/management"
)

// ManagementRunner runs issue monitoring for a query.
type ManagementRunner interface {
	SafeRun(ctx context.Context, query string, maxRetries int) (management.State, error)
}

// Options configures a Server. Tools is required.
type Options struct {
	Addr  string
	Tools *tool.Registry

	// Management may be nil, in which case the workflow route answers 503.
	Management ManagementRunner
	MaxRetries int

	// Gatherer serves /metrics. Defaults to the Prometheus default gatherer.
	Gatherer prometheus.Gatherer

	// ServiceName enables otelgin spans when set.
	ServiceName string

	Logger *zap.Logger
}

// Server is the tool server.
type Server struct {
	opts   Options
	engine *gin.Engine
}

// New builds the router.
func New(opts Options) (*Server, error) {
	if opts.Tools == nil {
		return nil, errors.New("server: tool registry is required")
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	router := gin.New()
	if opts.ServiceName != "" {
		router.Use(otelgin.Middleware(opts.ServiceName))
	}
	router.Use(gin.Recovery())
	router.Use(requestLogger(opts.Logger))

	s := &Server{opts: opts, engine: router}
	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	router.POST("/tools/:name", s.callTool)
	router.POST("/workflows/management", s.runManagement)
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("tool server listening", zap.String("addr", s.opts.Addr))
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

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.opts.Logger.Info("tool server stopped")
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
