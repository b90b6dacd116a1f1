package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"dispatch-backend/internal/config"
	"dispatch-backend/internal/metrics"
	"dispatch-backend/internal/usecase"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Store         usecase.Store
	Orders        *usecase.OrderService
	Drivers       *usecase.DriverService
	Notifications *usecase.NotificationService
	Auth          *usecase.AuthService
	Metrics       *metrics.Metrics
	Log           *slog.Logger
}

type Server struct {
	cfg     config.Config
	deps    Deps
	log     *slog.Logger
	engine  *gin.Engine
	timeout time.Duration
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func New(cfg config.Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		log:     log.With("component", "http"),
		engine:  gin.New(),
		timeout: timeout,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	e := s.engine
	e.HandleMethodNotAllowed = true
	e.Use(gin.Recovery(), s.requestID(), s.accessLog(), s.cors(), s.deadline())
	if s.deps.Metrics != nil {
		e.Use(s.observe())
		e.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
	e.NoRoute(func(c *gin.Context) {
		s.err(c, http.StatusNotFound, "NotFound", "route not found")
	})
	e.NoMethod(func(c *gin.Context) {
		s.err(c, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})
	e.GET("/healthz", s.handleHealth)

	api := e.Group("/api")
	api.POST("/auth/token", s.handleIssueToken)

	open := api.Group("", s.identify(false))
	open.POST("/orders", s.handleCreateOrder)
	open.GET("/orders/:id/track", s.handleTrackOrder)

	authed := api.Group("", s.identify(true))
	authed.GET("/orders", s.handleListOrders)
	authed.GET("/orders/available", s.handleAvailableOrders)
	authed.GET("/orders/:id", s.handleGetOrder)
	authed.PUT("/orders/:id", s.handlePatchOrder)
	authed.POST("/orders/:id/accept", s.handleAcceptOrder)
	authed.PATCH("/orders/:id/status", s.handleUpdateStatus)
	authed.POST("/orders/:id/cancel", s.handleCancelOrder)
	authed.GET("/drivers/:id", s.handleGetDriver)
	authed.PUT("/drivers/:id", s.handleUpdateDriver)
	authed.PATCH("/drivers/:id/availability", s.handleSetAvailability)
	authed.GET("/notifications", s.handleListNotifications)
	authed.PATCH("/notifications/:id/read", s.handleMarkRead)

	admin := api.Group("", s.identify(true), s.requireAdmin())
	admin.PUT("/orders/:id/assign-driver", s.handleAssignDriver)
	admin.POST("/drivers", s.handleCreateDriver)
	admin.GET("/drivers", s.handleListDrivers)
	admin.POST("/notifications", s.handleSendNotification)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.log.Error("health check failed", "error", err)
			s.err(c, http.StatusServiceUnavailable, "Unavailable", "store unreachable")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
