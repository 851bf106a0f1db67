package scheduling

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed caller input. It is always wrapped with detail.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a doctor, service or appointment does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSlotTaken is returned when the doctor already has an active
	// appointment at the requested instant.
	ErrSlotTaken = errors.New("slot is already taken")
	// ErrIllegalState is returned when an appointment is no longer scheduled
	// or confirmed.
	ErrIllegalState = errors.New("appointment is not active")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
