package appointment

import (
	"fmt"
	"time"
)

// CancelDecision is the result of checking a patient self-cancel.
type CancelDecision struct {
	Allowed bool
	Reason  string
}

// CanPatientCancel applies the self-cancel rules in order: the booking must
// still be scheduled, a confirmation must have reached the patient, the visit
// must be in the future and at least leadTime away.
func CanPatientCancel(a Appointment, now time.Time, leadTime time.Duration) CancelDecision {
	switch {
	case a.Status == StatusCancelled:
		return CancelDecision{Reason: "appointment is already cancelled"}
	case a.Status != StatusScheduled:
		return CancelDecision{Reason: "only scheduled appointments can be cancelled"}
	case a.ConfirmationSentAt == nil:
		return CancelDecision{Reason: "appointment has not been confirmed yet"}
	case !a.Start.After(now):
		return CancelDecision{Reason: "appointment has already started"}
	case a.Start.Sub(now) < leadTime:
		return CancelDecision{Reason: fmt.Sprintf("appointments can only be cancelled at least %s in advance", formatLead(leadTime))}
	}
	return CancelDecision{Allowed: true}
}

func formatLead(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return d.String()
}
