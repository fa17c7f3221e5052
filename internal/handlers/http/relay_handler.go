package http

import (
	"context"
	"net/http"
	"time"

	"peerlens/internal/core/services"
	"peerlens/internal/infrastructure/middleware"
	"peerlens/internal/infrastructure/signal"
	"peerlens/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthChecker reports readiness of a backing dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RelayHandler exposes the relay's HTTP surface: the signaling websocket,
// health, diagnostics and Prometheus metrics.
type RelayHandler struct {
	relay   *services.RelayService
	ws      *signal.WebSocketServer
	health  HealthChecker
	cfg     *config.Config
	logger  *zap.SugaredLogger
	started time.Time
}

func NewRelayHandler(relay *services.RelayService, ws *signal.WebSocketServer, health HealthChecker, cfg *config.Config, logger *zap.Logger) *RelayHandler {
	return &RelayHandler{
		relay:   relay,
		ws:      ws,
		health:  health,
		cfg:     cfg,
		logger:  logger.Sugar(),
		started: time.Now(),
	}
}

func (h *RelayHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/ws", middleware.NewConnectionRateLimitMiddleware(h.cfg), h.handleWebSocket)
	router.GET("/healthz", h.handleHealth)
	router.GET("/sessions", h.handleSessions)

	if h.cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

func (h *RelayHandler) handleWebSocket(c *gin.Context) {
	h.ws.HandleWebSocket(c.Writer, c.Request)
}

func (h *RelayHandler) handleHealth(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

// handleSessions lists sessions and which roles have joined. Diagnostics
// only: no connection handles or signaling payloads are exposed.
func (h *RelayHandler) handleSessions(c *gin.Context) {
	sessions := h.relay.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"count":    len(sessions),
		"sessions": sessions,
	})
}
