package appointment

import (
	"errors"
	"fmt"
)

// Booking rejections. Callers match them with errors.Is.
var (
	ErrInvalidVisitType         = errors.New("visit type is unknown or inactive")
	ErrInvalidVisitTypeDuration = errors.New("visit duration must be a positive multiple of 15 minutes")
	ErrExcludedDay              = errors.New("day is excluded by vacation or holiday")
	ErrSlotUnavailable          = errors.New("requested window is not covered by free contiguous slots")
	ErrWindowConflict           = errors.New("requested window overlaps an existing appointment")
	ErrPatientBlocked           = errors.New("patient is blocked from booking")
	ErrPaymentMethodRequired    = errors.New("visit type requires online payment with a supported method")
	ErrInvalidTransition        = errors.New("appointment status does not allow this operation")
	ErrCancellationNotAllowed   = errors.New("cancellation not allowed")
	ErrInvalidDateRange         = errors.New("date range start is after its end")
	ErrBookingBusy              = errors.New("another booking for this doctor is in progress")
	ErrInvalidPatient           = errors.New("invalid patient details")
)

// CancellationError carries the human readable reason a cancel was refused.
type CancellationError struct {
	Reason string
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancellation not allowed: %s", e.Reason)
}

func (e *CancellationError) Is(target error) bool {
	return target == ErrCancellationNotAllowed
}
