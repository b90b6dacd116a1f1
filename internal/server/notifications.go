package server

import (
	"net/http"

	"dispatch-backend/internal/domain"
	"dispatch-backend/internal/usecase"
	"github.com/gin-gonic/gin"
)

type sendNotificationReq struct {
	Type          string `json:"type" binding:"omitempty,oneof=order_created order_status driver_assigned"`
	Title         string `json:"title" binding:"required,max=200"`
	Message       string `json:"message" binding:"required,max=2000"`
	RecipientType string `json:"recipientType" binding:"required,oneof=customer driver admin"`
	RecipientID   string `json:"recipientId" binding:"max=64"`
	OrderID       string `json:"orderId" binding:"max=64"`
}

type tokenReq struct {
	Phone string `json:"phone" binding:"required,max=32"`
}

func (s *Server) handleListNotifications(c *gin.Context) {
	f := domain.NotificationFilter{
		RecipientType: domain.RecipientType(c.Query("recipientType")),
		RecipientID:   c.Query("recipientId"),
		UnreadOnly:    c.Query("unread") == "true",
	}
	var ok bool
	if f.Limit, ok = s.queryInt(c, "limit"); !ok {
		return
	}
	if a := actorOf(c); a.Type == domain.ActorDriver {
		f.RecipientType = domain.RecipientDriver
		f.RecipientID = a.ID
	}
	ns, err := s.deps.Notifications.List(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ns)
}

func (s *Server) handleMarkRead(c *gin.Context) {
	if err := s.deps.Notifications.MarkRead(c.Request.Context(), c.Param("id"), actorOf(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "isRead": true})
}

func (s *Server) handleSendNotification(c *gin.Context) {
	var req sendNotificationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, err)
		return
	}
	n, err := s.deps.Notifications.Send(c.Request.Context(), usecase.SendNotificationInput{
		Type:          req.Type,
		Title:         req.Title,
		Message:       req.Message,
		RecipientType: req.RecipientType,
		RecipientID:   req.RecipientID,
		OrderID:       req.OrderID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (s *Server) handleIssueToken(c *gin.Context) {
	if !s.deps.Auth.Enabled() {
		s.err(c, http.StatusNotFound, "NotFound", "authentication is disabled")
		return
	}
	var req tokenReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, err)
		return
	}
	tok, d, err := s.deps.Auth.LoginDriver(c.Request.Context(), req.Phone)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok, "driver": d})
}
