package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation              = errors.New("validation error")
	ErrNotEligible             = errors.New("account not eligible")
	ErrInviteNotFound          = errors.New("invite not found")
	ErrForbidden               = errors.New("forbidden")
	ErrInvalidSignature        = errors.New("invalid signature")
	ErrProviderUnavailable     = errors.New("payment provider unavailable")
	ErrSlugAllocationExhausted = errors.New("slug allocation exhausted")
	ErrPersistence             = errors.New("persistence error")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrRSVPNotFound            = errors.New("rsvp not found")
	ErrRateLimited             = errors.New("rate limited")
	ErrRequestInProgress       = errors.New("request in progress")
)

// IsRetryable reports whether the caller may retry the same request
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrPersistence) ||
		errors.Is(err, ErrRequestInProgress)
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
