package domain

import (
	"fmt"
	"time"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

type OrderItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    Money  `json:"price"`
}

type Order struct {
	ID              string        `json:"id"`
	OrderNumber     string        `json:"orderNumber"`
	CustomerName    string        `json:"customerName"`
	CustomerPhone   string        `json:"customerPhone"`
	DeliveryAddress string        `json:"deliveryAddress"`
	RestaurantID    string        `json:"restaurantId,omitempty"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
	Notes           string        `json:"notes,omitempty"`
	Items           []OrderItem   `json:"items"`
	Subtotal        Money         `json:"subtotal"`
	DeliveryFee     Money         `json:"deliveryFee"`
	Total           Money         `json:"total"`
	DriverEarnings  Money         `json:"driverEarnings"`
	Status          OrderStatus   `json:"status"`
	DriverID        *string       `json:"driverId"`
	Version         int64         `json:"version"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func (o *Order) Assigned() bool {
	return o.DriverID != nil && *o.DriverID != ""
}

func (o *Order) AssignedTo(driverID string) bool {
	return o.Assigned() && *o.DriverID == driverID
}

// ItemsSubtotal sums quantity*price over the order lines.
func ItemsSubtotal(items []OrderItem) (Money, error) {
	var sum Money
	for i, it := range items {
		line, err := it.Price.Mul(it.Quantity)
		if err != nil {
			return 0, fmt.Errorf("item %d: %w", i+1, err)
		}
		if sum, err = sum.Add(line); err != nil {
			return 0, fmt.Errorf("items subtotal: %w", err)
		}
	}
	return sum, nil
}

type OrderFilter struct {
	DriverID   string
	Statuses   []OrderStatus
	Unassigned bool
	Limit      int
	Offset     int
}
