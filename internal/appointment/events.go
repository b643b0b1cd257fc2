package appointment

import (
	"context"
	"time"
)

// Event log types written in the same transaction as the state change.
const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentMoved     = "APPOINTMENT_MOVED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentPaid      = "APPOINTMENT_PAID"
	EventPaymentExpired       = "PAYMENT_EXPIRED"
	EventScheduleGenerated    = "SCHEDULE_GENERATED"
	EventVacationSaved        = "VACATION_SAVED"
)

type EventType string

// Domain events delivered to notifiers after commit.
const (
	TypeCreated   EventType = "appointment.created"
	TypeMoved     EventType = "appointment.moved"
	TypeCancelled EventType = "appointment.cancelled"
	TypeCompleted EventType = "appointment.completed"
	TypePaid      EventType = "appointment.paid"
	TypeReminder  EventType = "appointment.reminder"
)

type Event struct {
	Type        EventType
	Appointment Appointment
	// Previous holds the appointment before a move.
	Previous *Appointment
	Actor    Actor
	// AwaitingPayment is set when confirmation waits for an online payment.
	AwaitingPayment bool
	Payment         *Payment
	OccurredAt      time.Time
}

// EventPublisher receives committed domain events. Implementations must not block.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}
