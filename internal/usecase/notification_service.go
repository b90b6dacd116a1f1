package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"dispatch-backend/internal/domain"
)

type SendNotificationInput struct {
	Type          string
	Title         string
	Message       string
	RecipientType string
	RecipientID   string
	OrderID       string
}

type NotificationService struct {
	Repo      NotificationRepo
	Publisher Publisher
	Log       *slog.Logger
}

func (s *NotificationService) List(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error) {
	if f.RecipientType != "" && !f.RecipientType.Valid() {
		return nil, ErrBadRequest("recipientType must be customer, driver or admin")
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return s.Repo.ListNotifications(ctx, f)
}

// MarkRead flags a notification as read. Drivers can only touch their own.
func (s *NotificationService) MarkRead(ctx context.Context, id string, actor domain.Actor) error {
	var to domain.Recipient
	if actor.Type == domain.ActorDriver {
		to = domain.Recipient{Type: domain.RecipientDriver, ID: actor.ID}
	}
	if err := s.Repo.MarkNotificationRead(ctx, id, to); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrNotFound("notification")
		}
		return err
	}
	return nil
}

// Send stores an ad hoc notification, e.g. an admin broadcast to drivers.
func (s *NotificationService) Send(ctx context.Context, in SendNotificationInput) (*domain.Notification, error) {
	rt := domain.RecipientType(in.RecipientType)
	if !rt.Valid() {
		return nil, ErrBadRequest("recipientType must be customer, driver or admin")
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Message) == "" {
		return nil, ErrBadRequest("title and message required")
	}
	typ := domain.NotificationType(in.Type)
	if typ == "" {
		typ = domain.NotifyOrderStatus
	}
	n := &domain.Notification{
		ID:            newID(),
		Type:          typ,
		Title:         in.Title,
		Message:       in.Message,
		RecipientType: rt,
		RecipientID:   in.RecipientID,
		OrderID:       in.OrderID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.Repo.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	if s.Publisher != nil {
		if err := s.Publisher.Publish(ctx, *n); err != nil {
			s.logger().Warn("notification publish failed", "notification_id", n.ID, "recipient_type", n.RecipientType, "error", err)
		}
	}
	return n, nil
}

func (s *NotificationService) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}
