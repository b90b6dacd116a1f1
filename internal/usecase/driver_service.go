package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"dispatch-backend/internal/domain"
)

type CreateDriverInput struct {
	Name            string
	Phone           string
	CurrentLocation string
	IsAvailable     bool
	IsActive        *bool
}

type DriverService struct {
	Repo DriverRepo
	Log  *slog.Logger
}

func (s *DriverService) Create(ctx context.Context, in CreateDriverInput) (*domain.Driver, error) {
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)
	if name == "" {
		return nil, ErrBadRequest("name required")
	}
	if phone == "" {
		return nil, ErrBadRequest("phone required")
	}
	if err := domain.ValidateLocation(in.CurrentLocation); err != nil {
		return nil, ErrBadRequest(err.Error())
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	now := time.Now().UTC()
	d := &domain.Driver{
		ID:              newID(),
		Name:            name,
		Phone:           phone,
		IsAvailable:     in.IsAvailable,
		IsActive:        active,
		CurrentLocation: in.CurrentLocation,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Repo.CreateDriver(ctx, d); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, ErrPhoneTaken
		}
		return nil, err
	}
	s.logger().Info("driver created", "driver_id", d.ID)
	return d, nil
}

func (s *DriverService) Get(ctx context.Context, id string) (*domain.Driver, error) {
	d, err := s.Repo.GetDriver(ctx, id)
	if err != nil {
		return nil, notFound(err, "driver")
	}
	return d, nil
}

func (s *DriverService) List(ctx context.Context, f domain.DriverFilter) ([]domain.Driver, error) {
	return s.Repo.ListDrivers(ctx, f)
}

func (s *DriverService) Update(ctx context.Context, id string, p domain.DriverPatch) (*domain.Driver, error) {
	if p.Name != nil {
		v := strings.TrimSpace(*p.Name)
		if v == "" {
			return nil, ErrBadRequest("name must not be empty")
		}
		p.Name = &v
	}
	if p.Phone != nil {
		v := strings.TrimSpace(*p.Phone)
		if v == "" {
			return nil, ErrBadRequest("phone must not be empty")
		}
		p.Phone = &v
	}
	if p.CurrentLocation != nil {
		if err := domain.ValidateLocation(*p.CurrentLocation); err != nil {
			return nil, ErrBadRequest(err.Error())
		}
	}
	d, err := s.Repo.UpdateDriver(ctx, id, p)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, ErrPhoneTaken
		}
		return nil, notFound(err, "driver")
	}
	return d, nil
}

// SetAvailability flips the driver's availability flag. Unavailable drivers
// are hidden from the open-orders listing and cannot accept orders.
func (s *DriverService) SetAvailability(ctx context.Context, id string, available bool) (*domain.Driver, error) {
	d, err := s.Update(ctx, id, domain.DriverPatch{IsAvailable: &available})
	if err != nil {
		return nil, err
	}
	s.logger().Info("driver availability changed", "driver_id", id, "available", available)
	return d, nil
}

// ByPhone finds a driver by phone number.
func (s *DriverService) ByPhone(ctx context.Context, phone string) (*domain.Driver, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, ErrBadRequest("phone required")
	}
	ds, err := s.Repo.ListDrivers(ctx, domain.DriverFilter{Phone: phone})
	if err != nil {
		return nil, err
	}
	if len(ds) == 0 {
		return nil, ErrNotFound("driver")
	}
	return &ds[0], nil
}

func (s *DriverService) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}
