package usecase

import (
	"context"

	"dispatch-backend/internal/domain"
	"github.com/google/uuid"
)

type OrderRepo interface {
	CreateOrder(ctx context.Context, o *domain.Order, ev domain.TrackingEvent, notes []domain.Notification) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error)
	AssignDriver(ctx context.Context, a domain.Assignment) (*domain.Order, error)
	ApplyTransition(ctx context.Context, t domain.Transition) (*domain.Order, error)
	ListTracking(ctx context.Context, orderID string) ([]domain.TrackingEvent, error)
}

type DriverRepo interface {
	CreateDriver(ctx context.Context, d *domain.Driver) error
	GetDriver(ctx context.Context, id string) (*domain.Driver, error)
	ListDrivers(ctx context.Context, f domain.DriverFilter) ([]domain.Driver, error)
	UpdateDriver(ctx context.Context, id string, p domain.DriverPatch) (*domain.Driver, error)
}

type NotificationRepo interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id string, to domain.Recipient) error
}

// Store is the full persistence surface. The memory and SQL repos both satisfy it.
type Store interface {
	OrderRepo
	DriverRepo
	NotificationRepo
	Ping(ctx context.Context) error
	Close() error
}

// Publisher pushes committed notifications to an outside channel.
type Publisher interface {
	Publish(ctx context.Context, n domain.Notification) error
}

// Observer receives counters for the order flows.
type Observer interface {
	OrderCreated()
	OrderAssigned()
	AssignmentRejected(reason string)
	StatusChanged(from, to domain.OrderStatus)
}

type nopObserver struct{}

func (nopObserver) OrderCreated() {}
func (nopObserver) OrderAssigned() {}
func (nopObserver) AssignmentRejected(string) {}
func (nopObserver) StatusChanged(domain.OrderStatus, domain.OrderStatus) {}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
