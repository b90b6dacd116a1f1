package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dispatch-backend/internal/domain"
)

const defaultMaxAttempts = 3

type CreateOrderInput struct {
	CustomerName    string
	CustomerPhone   string
	DeliveryAddress string
	RestaurantID    string
	PaymentMethod   string
	Notes           string
	Items           []domain.OrderItem
	Subtotal        *domain.Money
	DeliveryFee     domain.Money
	TotalAmount     *domain.Money
	DriverEarnings  *domain.Money
}

type OrderService struct {
	Repo        Store
	Publisher   Publisher
	Observer    Observer
	Log         *slog.Logger
	MaxAttempts int
}

func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	o, err := buildOrder(in)
	if err != nil {
		return nil, err
	}
	ev := trackingEvent(o.ID, domain.OrderPending, domain.OrderPending.Message(), domain.SystemActor, o.CreatedAt)
	notes := []domain.Notification{{
		ID:            newID(),
		Type:          domain.NotifyOrderCreated,
		Title:         "طلب جديد",
		Message:       fmt.Sprintf("طلب جديد رقم %s بقيمة %s", o.OrderNumber, o.Total),
		RecipientType: domain.RecipientAdmin,
		OrderID:       o.ID,
		CreatedAt:     o.CreatedAt,
	}}
	for attempt := 0; ; attempt++ {
		err = s.Repo.CreateOrder(ctx, o, ev, notes)
		if !errors.Is(err, domain.ErrDuplicate) || attempt >= s.maxAttempts() {
			break
		}
		o.OrderNumber = newOrderNumber(o.CreatedAt)
		notes[0].Message = fmt.Sprintf("طلب جديد رقم %s بقيمة %s", o.OrderNumber, o.Total)
	}
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.observer().OrderCreated()
	s.logger().Info("order created", "order_id", o.ID, "order_number", o.OrderNumber, "total", o.Total.String())
	s.publish(ctx, notes)
	return o, nil
}

func buildOrder(in CreateOrderInput) (*domain.Order, error) {
	if strings.TrimSpace(in.CustomerName) == "" {
		return nil, ErrBadRequest("customerName required")
	}
	if strings.TrimSpace(in.CustomerPhone) == "" {
		return nil, ErrBadRequest("customerPhone required")
	}
	if strings.TrimSpace(in.DeliveryAddress) == "" {
		return nil, ErrBadRequest("deliveryAddress required")
	}
	if len(in.Items) == 0 {
		return nil, ErrBadRequest("items required")
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.Name) == "" {
			return nil, ErrBadRequest(fmt.Sprintf("item %d: name required", i+1))
		}
		if it.Quantity <= 0 {
			return nil, ErrBadRequest(fmt.Sprintf("item %d: quantity must be positive", i+1))
		}
		if it.Price < 0 {
			return nil, ErrBadRequest(fmt.Sprintf("item %d: price must not be negative", i+1))
		}
	}
	if in.DeliveryFee < 0 {
		return nil, ErrBadRequest("deliveryFee must not be negative")
	}
	subtotal, err := domain.ItemsSubtotal(in.Items)
	if err != nil {
		return nil, err
	}
	if in.Subtotal != nil && *in.Subtotal != subtotal {
		return nil, ErrBadRequest(fmt.Sprintf("subtotal %s does not match items total %s", *in.Subtotal, subtotal))
	}
	total, err := subtotal.Add(in.DeliveryFee)
	if err != nil {
		return nil, fmt.Errorf("total: %w", err)
	}
	if in.TotalAmount != nil && *in.TotalAmount != total {
		return nil, ErrBadRequest(fmt.Sprintf("totalAmount %s does not equal subtotal plus deliveryFee %s", *in.TotalAmount, total))
	}
	earnings := in.DeliveryFee
	if in.DriverEarnings != nil {
		if *in.DriverEarnings < 0 {
			return nil, ErrBadRequest("driverEarnings must not be negative")
		}
		if !in.DriverEarnings.InRange() {
			return nil, fmt.Errorf("driverEarnings: %w", domain.ErrInvalidAmount)
		}
		earnings = *in.DriverEarnings
	}
	payment := domain.PaymentMethod(strings.TrimSpace(in.PaymentMethod))
	switch payment {
	case "":
		payment = domain.PaymentCash
	case domain.PaymentCash, domain.PaymentCard:
	default:
		return nil, ErrBadRequest("paymentMethod must be cash or card")
	}
	now := time.Now().UTC()
	items := make([]domain.OrderItem, len(in.Items))
	copy(items, in.Items)
	return &domain.Order{
		ID:              newID(),
		OrderNumber:     newOrderNumber(now),
		CustomerName:    strings.TrimSpace(in.CustomerName),
		CustomerPhone:   strings.TrimSpace(in.CustomerPhone),
		DeliveryAddress: strings.TrimSpace(in.DeliveryAddress),
		RestaurantID:    in.RestaurantID,
		PaymentMethod:   payment,
		Notes:           in.Notes,
		Items:           items,
		Subtotal:        subtotal,
		DeliveryFee:     in.DeliveryFee,
		Total:           total,
		DriverEarnings:  earnings,
		Status:          domain.OrderPending,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *OrderService) Get(ctx context.Context, id string) (*domain.Order, error) {
	o, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		return nil, notFound(err, "order")
	}
	return o, nil
}

func (s *OrderService) List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, ErrBadRequest(fmt.Sprintf("unknown status %q", st))
		}
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.Repo.ListOrders(ctx, f)
}

// Available lists the open orders a driver may claim.
func (s *OrderService) Available(ctx context.Context, driverID string) ([]domain.Order, error) {
	d, err := s.Repo.GetDriver(ctx, driverID)
	if err != nil {
		return nil, notFound(err, "driver")
	}
	if !d.CanTakeOrders() {
		return nil, ErrDriverUnavailable
	}
	return s.Repo.ListOrders(ctx, domain.OrderFilter{
		Statuses:   domain.AcceptableForAssignment,
		Unassigned: true,
		Limit:      200,
	})
}

// Accept lets driverID claim an unassigned order. Exactly one of several
// concurrent callers succeeds; the others get domain.ErrAlreadyAssigned.
func (s *OrderService) Accept(ctx context.Context, orderID, driverID string, actor domain.Actor) (*domain.Order, error) {
	log := s.logger().With("order_id", orderID, "driver_id", driverID)
	if strings.TrimSpace(driverID) == "" {
		return nil, ErrBadRequest("driverId required")
	}
	if actor.Type == domain.ActorDriver && actor.ID != driverID {
		return nil, ErrForbidden("drivers may only accept orders for themselves")
	}
	d, err := s.Repo.GetDriver(ctx, driverID)
	if err != nil {
		return nil, notFound(err, "driver")
	}
	if !d.CanTakeOrders() {
		s.observer().AssignmentRejected("driver_unavailable")
		return nil, ErrDriverUnavailable
	}
	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	if o.AssignedTo(driverID) {
		return o, nil
	}
	if o.Assigned() {
		s.observer().AssignmentRejected("already_assigned")
		return nil, domain.ErrAlreadyAssigned
	}
	to, err := domain.AssignmentTarget(o.Status)
	if err != nil {
		s.observer().AssignmentRejected("invalid_status")
		return nil, err
	}
	if actor.Type == "" || actor.Type == domain.ActorSystem {
		actor = domain.Actor{ID: driverID, Type: domain.ActorDriver}
	}
	now := time.Now().UTC()
	a := domain.Assignment{
		OrderID:  orderID,
		DriverID: driverID,
		From:     domain.AcceptableForAssignment,
		Event:    trackingEvent(orderID, to, domain.DriverAssignedMessage+": "+d.Name, actor, now),
		Notifications: []domain.Notification{
			{
				ID:            newID(),
				Type:          domain.NotifyDriverAssigned,
				Title:         "طلب جديد مسند إليك",
				Message:       fmt.Sprintf("تم إسناد الطلب %s إليك. العنوان: %s", o.OrderNumber, o.DeliveryAddress),
				RecipientType: domain.RecipientDriver,
				RecipientID:   driverID,
				OrderID:       orderID,
				CreatedAt:     now,
			},
			customerNotification(o, to, domain.DriverAssignedMessage, now),
		},
		At: now,
	}
	updated, err := s.Repo.AssignDriver(ctx, a)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyAssigned) {
			// A retry of a request that already won the race is not a loss.
			if cur, gerr := s.Repo.GetOrder(ctx, orderID); gerr == nil && cur.AssignedTo(driverID) {
				return cur, nil
			}
			s.observer().AssignmentRejected("already_assigned")
			log.Info("order already taken")
			return nil, err
		}
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.observer().AssignmentRejected("invalid_status")
			return nil, err
		}
		if errors.Is(err, domain.ErrDriverUnavailable) {
			s.observer().AssignmentRejected("driver_unavailable")
			return nil, ErrDriverUnavailable
		}
		return nil, notFound(err, "order")
	}
	s.observer().OrderAssigned()
	if o.Status != updated.Status {
		s.observer().StatusChanged(o.Status, updated.Status)
	}
	log.Info("order assigned", "status", updated.Status)
	s.publish(ctx, a.Notifications)
	return updated, nil
}

// UpdateStatus moves an order along its lifecycle. Setting the current
// status again is a no-op and records nothing.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, to domain.OrderStatus, actor domain.Actor) (*domain.Order, error) {
	return s.transition(ctx, orderID, to, actor, "")
}

func (s *OrderService) Cancel(ctx context.Context, orderID, reason string, actor domain.Actor) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.OrderCancelled, actor, strings.TrimSpace(reason))
}

func (s *OrderService) transition(ctx context.Context, orderID string, to domain.OrderStatus, actor domain.Actor, note string) (*domain.Order, error) {
	if !to.Valid() {
		return nil, ErrBadRequest(fmt.Sprintf("unknown status %q", to))
	}
	if actor.Type == "" {
		actor = domain.SystemActor
	}
	log := s.logger().With("order_id", orderID, "to", to)
	for attempt := 0; attempt < s.maxAttempts(); attempt++ {
		o, err := s.Repo.GetOrder(ctx, orderID)
		if err != nil {
			return nil, notFound(err, "order")
		}
		if o.Status == to {
			return o, nil
		}
		if err := domain.CheckTransition(o.Status, to); err != nil {
			return nil, err
		}
		if to.NeedsDriver() && !o.Assigned() {
			return nil, ErrDriverRequired
		}
		if actor.Type == domain.ActorDriver && !o.AssignedTo(actor.ID) {
			return nil, ErrForbidden("order is not assigned to this driver")
		}
		now := time.Now().UTC()
		msg := to.Message()
		if note != "" {
			msg += ": " + note
		}
		t := domain.Transition{
			OrderID:         orderID,
			ExpectedVersion: o.Version,
			From:            o.Status,
			To:              to,
			Event:           trackingEvent(orderID, to, msg, actor, now),
			Notifications:   []domain.Notification{customerNotification(o, to, msg, now)},
			At:              now,
		}
		if to == domain.OrderDelivered && o.Assigned() {
			t.CreditDriverID = *o.DriverID
			t.Credit = o.DriverEarnings
		}
		if to == domain.OrderCancelled && o.Assigned() {
			t.Notifications = append(t.Notifications, domain.Notification{
				ID:            newID(),
				Type:          domain.NotifyOrderStatus,
				Title:         "تم إلغاء الطلب",
				Message:       fmt.Sprintf("تم إلغاء الطلب %s", o.OrderNumber),
				RecipientType: domain.RecipientDriver,
				RecipientID:   *o.DriverID,
				OrderID:       orderID,
				CreatedAt:     now,
			})
		}
		updated, err := s.Repo.ApplyTransition(ctx, t)
		if errors.Is(err, domain.ErrVersionConflict) {
			log.Debug("version conflict, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, notFound(err, "order")
		}
		s.observer().StatusChanged(o.Status, to)
		log.Info("order status changed", "from", o.Status)
		s.publish(ctx, t.Notifications)
		return updated, nil
	}
	return nil, ErrBusy
}

// Track returns the order and its persisted timeline, oldest first.
func (s *OrderService) Track(ctx context.Context, orderID string) (*domain.Order, []domain.TrackingEvent, error) {
	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, notFound(err, "order")
	}
	events, err := s.Repo.ListTracking(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return o, events, nil
}

func (s *OrderService) publish(ctx context.Context, notes []domain.Notification) {
	if s.Publisher == nil {
		return
	}
	for _, n := range notes {
		if err := s.Publisher.Publish(ctx, n); err != nil {
			s.logger().Warn("notification publish failed", "notification_id", n.ID, "order_id", n.OrderID, "error", err)
		}
	}
}

func (s *OrderService) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return s.MaxAttempts
}

func (s *OrderService) observer() Observer {
	if s.Observer == nil {
		return nopObserver{}
	}
	return s.Observer
}

func (s *OrderService) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

func trackingEvent(orderID string, st domain.OrderStatus, msg string, actor domain.Actor, at time.Time) domain.TrackingEvent {
	return domain.TrackingEvent{
		ID:            newID(),
		OrderID:       orderID,
		Status:        st,
		Message:       msg,
		CreatedBy:     actor.ID,
		CreatedByType: actor.Type,
		CreatedAt:     at,
	}
}

func customerNotification(o *domain.Order, st domain.OrderStatus, msg string, at time.Time) domain.Notification {
	return domain.Notification{
		ID:            newID(),
		Type:          domain.NotifyOrderStatus,
		Title:         "تحديث الطلب " + o.OrderNumber,
		Message:       msg,
		RecipientType: domain.RecipientCustomer,
		RecipientID:   o.CustomerPhone,
		OrderID:       o.ID,
		CreatedAt:     at,
	}
}

func newOrderNumber(at time.Time) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return "ORD_" + at.Format("20060102") + "_" + strings.ToUpper(hex.EncodeToString(b))
}
