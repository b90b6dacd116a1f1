package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dispatch-backend/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxRequestID = "requestID"
	ctxActor     = "actor"
)

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = c.GetHeader("Idempotency-Key")
		}
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		args := []any{
			"request_id", c.GetString(ctxRequestID),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", c.ClientIP(),
		}
		switch {
		case status >= 500:
			s.log.Error("request completed", args...)
		case status >= 400:
			s.log.Warn("request completed", args...)
		default:
			s.log.Info("request completed", args...)
		}
	}
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.ObserveHTTP(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

func (s *Server) cors() gin.HandlerFunc {
	allowed := s.cfg.CORSOrigins
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		for _, o := range allowed {
			if o == "*" || o == origin {
				c.Header("Access-Control-Allow-Origin", o)
				break
			}
		}
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Actor-ID, X-Actor-Type")
		c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) deadline() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// identify resolves the caller. With auth enabled a bearer token is required
// when required is set; without auth the caller may name itself through the
// X-Actor-ID and X-Actor-Type headers.
func (s *Server) identify(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.deps.Auth.Enabled() {
			actor := domain.SystemActor
			if t := domain.ActorType(c.GetHeader("X-Actor-Type")); t.Valid() {
				actor = domain.Actor{ID: c.GetHeader("X-Actor-ID"), Type: t}
				if actor.ID == "" {
					actor.ID = string(t)
				}
			}
			c.Set(ctxActor, actor)
			c.Next()
			return
		}
		h := c.GetHeader("Authorization")
		tok, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(tok) == "" {
			if required {
				s.err(c, http.StatusUnauthorized, "Unauthorized", "bearer token required")
				return
			}
			c.Set(ctxActor, domain.SystemActor)
			c.Next()
			return
		}
		actor, err := s.deps.Auth.Verify(strings.TrimSpace(tok))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.Set(ctxActor, actor)
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.deps.Auth.Enabled() {
			c.Next()
			return
		}
		if actorOf(c).Type != domain.ActorAdmin {
			s.err(c, http.StatusForbidden, "Forbidden", "admin role required")
			return
		}
		c.Next()
	}
}

func actorOf(c *gin.Context) domain.Actor {
	if v, ok := c.Get(ctxActor); ok {
		if a, ok := v.(domain.Actor); ok {
			return a
		}
	}
	return domain.SystemActor
}

// selfOrAdmin rejects drivers acting on another driver's record.
func (s *Server) selfOrAdmin(c *gin.Context, driverID string) bool {
	a := actorOf(c)
	if a.Type == domain.ActorDriver && a.ID != driverID {
		s.err(c, http.StatusForbidden, "Forbidden", "drivers may only act on their own record")
		return false
	}
	return true
}
