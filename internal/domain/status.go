package domain

import (
	"errors"
	"fmt"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderOnWay     OrderStatus = "on_way"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// transitions is the order lifecycle. Terminal states have no entry.
var transitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderConfirmed, OrderCancelled},
	OrderConfirmed: {OrderPreparing, OrderCancelled},
	OrderPreparing: {OrderReady, OrderCancelled},
	OrderReady:     {OrderOnWay, OrderCancelled},
	OrderOnWay:     {OrderDelivered, OrderCancelled},
}

// AcceptableForAssignment lists the states a driver may claim an order in.
// Kitchen progress does not wait for a driver, so preparing and ready orders
// stay claimable.
var AcceptableForAssignment = []OrderStatus{OrderPending, OrderConfirmed, OrderPreparing, OrderReady}

var ErrInvalidTransition = errors.New("invalid status transition")

type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderPreparing, OrderReady, OrderOnWay, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// NeedsDriver reports whether an order must have a driver to enter s.
func (s OrderStatus) NeedsDriver() bool {
	return s == OrderOnWay || s == OrderDelivered
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Successors returns the states reachable from s in one step.
func (s OrderStatus) Successors() []OrderStatus {
	out := make([]OrderStatus, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// CheckTransition returns an *InvalidTransitionError when from -> to is not in the lifecycle.
func CheckTransition(from, to OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

func acceptable(s OrderStatus) bool {
	for _, a := range AcceptableForAssignment {
		if a == s {
			return true
		}
	}
	return false
}

// AssignmentTarget returns the status an order moves to when a driver claims
// it: pending becomes confirmed, later kitchen states are kept.
func AssignmentTarget(current OrderStatus) (OrderStatus, error) {
	if !acceptable(current) {
		return "", &InvalidTransitionError{From: current, To: OrderConfirmed}
	}
	if current == OrderPending {
		return OrderConfirmed, nil
	}
	return current, nil
}

var statusMessages = map[OrderStatus]string{
	OrderPending:   "تم استلام طلبك وهو قيد المراجعة",
	OrderConfirmed: "تم تأكيد طلبك",
	OrderPreparing: "جاري تحضير طلبك",
	OrderReady:     "طلبك جاهز للاستلام",
	OrderOnWay:     "السائق في الطريق إليك",
	OrderDelivered: "تم توصيل طلبك بنجاح",
	OrderCancelled: "تم إلغاء طلبك",
}

// Message is the customer-facing text recorded for a status.
func (s OrderStatus) Message() string {
	if m, ok := statusMessages[s]; ok {
		return m
	}
	return string(s)
}
