// Package api exposes the order hub over HTTP: mutation endpoints, the
// transcription call and the per-role websocket stream.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tableside/internal/hub"
	"tableside/internal/monitoring"
	"tableside/internal/orders"
	"tableside/internal/transcribe"
)

// Server wires the gin router to the hub, the order lifecycle manager and
// the transcription gateway.
type Server struct {
	router     *gin.Engine
	hub        *hub.Hub
	manager    *orders.Manager
	gateway    *transcribe.Gateway
	monitor    *monitoring.Monitor
	authSecret string
}

// NewServer creates the API server. An empty authSecret disables token
// checks (development mode).
func NewServer(h *hub.Hub, manager *orders.Manager, gateway *transcribe.Gateway, monitor *monitoring.Monitor, authSecret string) *Server {
	s := &Server{
		router:     gin.Default(),
		hub:        h,
		manager:    manager,
		gateway:    gateway,
		monitor:    monitor,
		authSecret: authSecret,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "tableside API is running"})
	})

	s.router.GET("/ws", s.handleWebSocket)

	v1 := s.router.Group("/api/v1")
	v1.Use(s.authRequired())
	{
		// Order management
		v1.POST("/orders", s.CreateOrder)
		v1.GET("/orders", s.GetActiveOrders)
		v1.GET("/orders/:id", s.GetOrder)
		v1.PATCH("/orders/:id/status", s.UpdateStatus)
		v1.POST("/orders/:id/flag", s.FlagOrder)
		v1.DELETE("/orders/:id/flag", s.ResolveFlag)

		// Voice capture
		v1.POST("/transcribe", s.Transcribe)

		// Runtime metrics
		v1.GET("/metrics", s.Metrics)
	}
}

// Router returns the Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}

// handleWebSocket upgrades a client onto its role's event stream.
func (s *Server) handleWebSocket(c *gin.Context) {
	role := hub.Role(c.Query("role"))
	if !hub.ValidRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role: " + string(role)})
		return
	}

	if s.authSecret != "" {
		claimed, err := s.roleFromRequest(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if claimed != role && claimed != hub.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "token role does not permit stream: " + string(role)})
			return
		}
	}

	hub.ServeWS(s.hub, role, c.Writer, c.Request)
}

// Metrics returns the runtime metrics map plus live connection counts.
func (s *Server) Metrics(c *gin.Context) {
	metrics := s.monitor.GetMetrics()
	for _, role := range hub.Roles {
		metrics["connections_"+string(role)] = s.hub.ConnectionCount(role)
	}
	c.JSON(http.StatusOK, metrics)
}
