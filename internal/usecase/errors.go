package usecase

import (
	"errors"

	"dispatch-backend/internal/domain"
)

type ErrNotFound string

func (e ErrNotFound) Error() string { return string(e) + " not found" }

type ErrConflict string

func (e ErrConflict) Error() string { return string(e) }

type ErrBadRequest string

func (e ErrBadRequest) Error() string { return string(e) }

type ErrForbidden string

func (e ErrForbidden) Error() string { return string(e) }

type ErrUnauthorized string

func (e ErrUnauthorized) Error() string { return string(e) }

const (
	ErrDriverUnavailable ErrConflict = "driver is not available"
	ErrDriverRequired    ErrConflict = "order has no assigned driver"
	ErrBusy              ErrConflict = "order is being updated concurrently, retry"
	ErrPhoneTaken        ErrConflict = "phone already registered"
)

// notFound maps a store miss onto the usecase error for kind and passes other errors through.
func notFound(err error, kind string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return ErrNotFound(kind)
	}
	return err
}
