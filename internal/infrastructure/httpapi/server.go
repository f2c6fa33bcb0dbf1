// Package httpapi exposes the pipeline entry points over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"TrendsScanner/internal/domain"
	"TrendsScanner/internal/infrastructure/worker"
	"TrendsScanner/internal/ports"
	"TrendsScanner/internal/usecase"
	"TrendsScanner/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Ingester ingests a stored payload.
type Ingester interface {
	Ingest(ctx context.Context, name string) (domain.RunSummary, error)
}

// Drainer runs one queue drain cycle.
type Drainer interface {
	Drain(ctx context.Context) (usecase.DrainSummary, error)
}

// StatsReader reports queue counts.
type StatsReader interface {
	Stats(ctx context.Context) (domain.QueueStats, error)
}

// Pinger checks a backing dependency.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Services are the handlers' dependencies. Nil members disable their routes.
type Services struct {
	Enricher ports.Enricher
	Ingester Ingester
	Drainer  Drainer
	Queue    StatsReader
	Database Pinger
}

type ingestRequest struct {
	Filename string `json:"filename" binding:"required"`
}

type handler struct {
	svc Services
}

// NewRouter builds the gin engine. When apiKey is set, /v1 routes require
// "Authorization: Bearer <apiKey>".
func NewRouter(svc Services, apiKey string, log *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logger.Middleware(log))

	h := &handler{svc: svc}
	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	if apiKey != "" {
		v1.Use(requireKey(apiKey))
	}
	if svc.Enricher != nil {
		v1.POST("/enrich", h.enrich)
	}
	if svc.Ingester != nil {
		v1.POST("/ingest", h.ingest)
	}
	if svc.Drainer != nil {
		v1.POST("/drain", h.drain)
	}
	if svc.Queue != nil {
		v1.GET("/queue/stats", h.stats)
	}
	return router
}

func requireKey(apiKey string) gin.HandlerFunc {
	want := []byte("Bearer " + apiKey)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (h *handler) health(c *gin.Context) {
	if h.svc.Database != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.svc.Database.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// enrich accepts either {"trend_id": n} or {"trend_ids": [...]}.
func (h *handler) enrich(c *gin.Context) {
	var req worker.EnrichRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, worker.EnrichResponse{Error: err.Error()})
		return
	}

	ids := req.TrendIDs
	if len(ids) == 0 && req.TrendID != 0 {
		ids = []int64{req.TrendID}
	}
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, worker.EnrichResponse{Error: "trend_id or trend_ids is required"})
		return
	}

	results, err := h.svc.Enricher.EnrichBatch(c.Request.Context(), ids)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, worker.EnrichResponse{Error: err.Error()})
		return
	}

	ok := true
	for _, r := range results {
		ok = ok && r.Success
	}
	c.JSON(http.StatusOK, worker.EnrichResponse{Success: ok, Results: results})
}

func (h *handler) ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.svc.Ingester.Ingest(c.Request.Context(), strings.TrimSpace(req.Filename))
	if err != nil {
		_ = c.Error(err)
		c.JSON(ingestStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func ingestStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrParse):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) drain(c *gin.Context) {
	summary, err := h.svc.Drainer.Drain(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handler) stats(c *gin.Context) {
	stats, err := h.svc.Queue.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Server runs the router until its context is cancelled.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// NewServer binds handler to addr.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	return s.http.Shutdown(shutdownCtx)
}
