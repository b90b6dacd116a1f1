package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Driver struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	IsAvailable     bool      `json:"isAvailable"`
	IsActive        bool      `json:"isActive"`
	CurrentLocation string    `json:"currentLocation,omitempty"`
	Earnings        Money     `json:"earnings"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// CanTakeOrders reports whether the driver may see and accept open orders.
func (d *Driver) CanTakeOrders() bool {
	return d.IsActive && d.IsAvailable
}

type DriverFilter struct {
	Available *bool
	Active    *bool
	Phone     string
}

type DriverPatch struct {
	Name            *string
	Phone           *string
	IsAvailable     *bool
	IsActive        *bool
	CurrentLocation *string
}

func (p DriverPatch) Apply(d *Driver) {
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.Phone != nil {
		d.Phone = *p.Phone
	}
	if p.IsAvailable != nil {
		d.IsAvailable = *p.IsAvailable
	}
	if p.IsActive != nil {
		d.IsActive = *p.IsActive
	}
	if p.CurrentLocation != nil {
		d.CurrentLocation = *p.CurrentLocation
	}
}

// ValidateLocation checks a "lat,lng" pair. An empty string clears the location.
func ValidateLocation(s string) error {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return fmt.Errorf("location must be \"lat,lng\"")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || lat < -90 || lat > 90 {
		return fmt.Errorf("invalid latitude %q", parts[0])
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || lng < -180 || lng > 180 {
		return fmt.Errorf("invalid longitude %q", parts[1])
	}
	return nil
}
