package domain

import "time"

type ActorType string

const (
	ActorSystem     ActorType = "system"
	ActorRestaurant ActorType = "restaurant"
	ActorDriver     ActorType = "driver"
	ActorAdmin      ActorType = "admin"
)

func (a ActorType) Valid() bool {
	switch a {
	case ActorSystem, ActorRestaurant, ActorDriver, ActorAdmin:
		return true
	}
	return false
}

// Actor identifies who caused a write.
type Actor struct {
	ID   string
	Type ActorType
}

var SystemActor = Actor{ID: "system", Type: ActorSystem}

type TrackingEvent struct {
	ID            string      `json:"id"`
	OrderID       string      `json:"orderId"`
	Status        OrderStatus `json:"status"`
	Message       string      `json:"message"`
	CreatedBy     string      `json:"createdBy"`
	CreatedByType ActorType   `json:"createdByType"`
	CreatedAt     time.Time   `json:"createdAt"`
}

const DriverAssignedMessage = "تم تعيين سائق لطلبك"
