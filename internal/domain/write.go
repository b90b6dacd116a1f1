package domain

import "time"

// Assignment claims an unassigned order for a driver. Stores apply it only
// while the order has no driver, its status is one of From and the driver is
// active and available. The new status comes from AssignmentTarget and is
// stamped on Event.
type Assignment struct {
	OrderID       string
	DriverID      string
	From          []OrderStatus
	Event         TrackingEvent
	Notifications []Notification
	At            time.Time
}

// Transition moves an order from one status to another. Stores apply it only
// while the order is still at ExpectedVersion.
type Transition struct {
	OrderID         string
	ExpectedVersion int64
	From            OrderStatus
	To              OrderStatus
	Event           TrackingEvent
	Notifications   []Notification
	CreditDriverID  string
	Credit          Money
	At              time.Time
}
