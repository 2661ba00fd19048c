// Package server exposes archive processing over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docintake/internal/ingest"
	"docintake/internal/metrics"
	"docintake/internal/model"
)

const (
	defaultMaxUploadBytes = 64 << 20
	limiterIdleTTL        = 10 * time.Minute
	shutdownTimeout       = 10 * time.Second
)

// Options configures a Server. Processor is required; the rest are optional.
type Options struct {
	Processor *ingest.Processor
	Store     model.RunStore
	Extractor model.TextExtractor
	Metrics   metrics.Recorder
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
	Logger         *slog.Logger

	MaxUploadBytes int64
	RateLimitRPS   float64
	RateLimitBurst int
	TrustedProxies []string
	TextWorkers    int
	// UploadDir holds uploaded archives while they are processed; empty
	// means the system temp dir.
	UploadDir string
}

// Server holds the state for the REST API server.
type Server struct {
	opts    Options
	router  *gin.Engine
	limiter *ipRateLimiter
	metrics metrics.Recorder
}

// New creates a Server and registers its routes.
func New(opts Options) (*Server, error) {
	if opts.Processor == nil {
		return nil, errors.New("server: processor is required")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.TextWorkers <= 0 {
		opts.TextWorkers = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("server: trusted proxies: %w", err)
	}
	r.MaxMultipartMemory = 8 << 20

	s := &Server{
		opts:    opts,
		router:  r,
		limiter: newIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		metrics: opts.Metrics,
	}
	r.Use(gin.Recovery(), s.observe())
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.POST("/v1/archives", s.rateLimit(), s.handleUpload)
	s.router.GET("/v1/runs", s.handleListRuns)
	s.router.GET("/v1/runs/:id", s.handleGetRun)
	if s.opts.MetricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(s.opts.MetricsHandler))
	}
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sweepLimiter(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger().Info("server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterIdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.cleanup(limiterIdleTTL)
		}
	}
}

func (s *Server) logger() *slog.Logger {
	if s.opts.Logger != nil {
		return s.opts.Logger
	}
	return slog.Default()
}

// observe logs every request and feeds the request metrics.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(c.Request.Method, route, c.Writer.Status(), elapsed)
		s.logger().Debug("http request",
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"client", c.ClientIP(),
			"elapsed", elapsed)
		if c.Writer.Status() >= http.StatusInternalServerError && len(c.Errors) > 0 {
			s.logger().Error("request failed", "route", route, "error", c.Errors.Last().Err)
		}
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			abortWithMessage(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}

// healthCheck reports liveness.
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
