package domain

import "time"

type NotificationType string

const (
	NotifyOrderCreated   NotificationType = "order_created"
	NotifyOrderStatus    NotificationType = "order_status"
	NotifyDriverAssigned NotificationType = "driver_assigned"
)

type RecipientType string

const (
	RecipientCustomer RecipientType = "customer"
	RecipientDriver   RecipientType = "driver"
	RecipientAdmin    RecipientType = "admin"
)

func (r RecipientType) Valid() bool {
	switch r {
	case RecipientCustomer, RecipientDriver, RecipientAdmin:
		return true
	}
	return false
}

type Notification struct {
	ID            string           `json:"id"`
	Type          NotificationType `json:"type"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	RecipientType RecipientType    `json:"recipientType"`
	RecipientID   string           `json:"recipientId,omitempty"`
	OrderID       string           `json:"orderId,omitempty"`
	IsRead        bool             `json:"isRead"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Recipient narrows a notification write to one addressee. The zero value
// matches every notification.
type Recipient struct {
	Type RecipientType
	ID   string
}

type NotificationFilter struct {
	RecipientType RecipientType
	RecipientID   string
	UnreadOnly    bool
	Limit         int
}
