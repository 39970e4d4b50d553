package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/genricoloni/ledmatrix/internal/catalog"
	"github.com/genricoloni/ledmatrix/internal/config"
	"github.com/genricoloni/ledmatrix/internal/domain"
	"github.com/genricoloni/ledmatrix/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type programLister interface {
	Snapshot() []catalog.ProgramInfo
}

type connectionState interface {
	IsConnected() bool
}

// Server exposes read-only scheduler state over HTTP
type Server struct {
	addr     string
	logger   *zap.Logger
	catalog  programLister
	conn     connectionState
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
	started  time.Time

	httpServer *http.Server
	listenAddr net.Addr
}

// programView is the JSON shape of one catalog entry
type programView struct {
	ID          string    `json:"id"`
	Frames      int       `json:"frames"`
	DurationMs  int64     `json:"duration_ms"`
	Priority    string    `json:"priority,omitempty"`
	AgeS        float64   `json:"age_s"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewServer creates the status server; it listens once started
func NewServer(
	cfg *config.AppConfig,
	logger *zap.Logger,
	cat *catalog.Catalog,
	tr domain.Transport,
	reg *prometheus.Registry,
	m *metrics.Metrics,
) *Server {
	return &Server{
		addr:     cfg.Status.Addr,
		logger:   logger,
		catalog:  cat,
		conn:     tr,
		gatherer: reg,
		metrics:  m,
		started:  time.Now(),
	}
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	eng := gin.New()
	eng.Use(gin.Recovery(), s.requestLogger(), s.requestMetrics())

	eng.GET("/healthz", s.health)
	eng.GET("/programs", s.programs)
	eng.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	return eng
}

// Start binds the listen address and serves in the background
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("status server listen on %s: %w", s.addr, err)
	}

	s.listenAddr = ln.Addr()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("Status server listening", zap.String("addr", s.boundAddr()))
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) boundAddr() string {
	if s.listenAddr == nil {
		return s.addr
	}
	return s.listenAddr.String()
}

func (s *Server) health(c *gin.Context) {
	connected := s.conn.IsConnected()
	status, code := "ok", http.StatusOK
	if !connected {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"connected": connected,
		"programs":  len(s.catalog.Snapshot()),
		"uptime_s":  int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) programs(c *gin.Context) {
	snapshot := s.catalog.Snapshot()
	out := make([]programView, 0, len(snapshot))
	for _, p := range snapshot {
		out = append(out, programView{
			ID:          p.ID,
			Frames:      p.Frames,
			DurationMs:  p.Duration.Milliseconds(),
			Priority:    string(p.Priority),
			AgeS:        p.Age.Seconds(),
			LastUpdated: p.LastUpdated,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", routePath(c)),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("clientIP", c.ClientIP()),
		}
		switch {
		case status >= 500:
			s.logger.Error("http_request", fields...)
		case status >= 400:
			s.logger.Warn("http_request", fields...)
		default:
			s.logger.Debug("http_request", fields...)
		}
	}
}

func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.metrics.RecordHTTPRequest(c.Request.Method, routePath(c), c.Writer.Status(), time.Since(start))
	}
}

// routePath prefers the route template to keep label cardinality bounded
func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "unmatched"
}
