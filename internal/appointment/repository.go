package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrVisitTypeNotFound      = errors.New("visit type not found")
	ErrSlotNotFound           = errors.New("slot not found")
	ErrAppointmentNotFound    = errors.New("appointment not found")
	ErrVacationNotFound       = errors.New("vacation not found")
	ErrBlacklistEntryNotFound = errors.New("blacklist entry not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrDuplicateVisitType     = errors.New("visit type code already exists")
)

type VisitTypeStore interface {
	GetVisitTypeByCode(ctx context.Context, code string) (*VisitType, error)
	ListVisitTypes(ctx context.Context, activeOnly bool) ([]VisitType, error)
	InsertVisitType(ctx context.Context, vt *VisitType) error
	UpdateVisitType(ctx context.Context, vt *VisitType) error
}

// SlotStore holds the 15 minute availability grid.
// Range queries select slots whose start lies in [from, to), ordered by start.
type SlotStore interface {
	ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time, activeOnly bool) ([]Slot, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	SetSlotActive(ctx context.Context, id uuid.UUID, active bool) (*Slot, error)
	DeactivateSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int64, error)
	DeleteSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int64, error)
	InsertSlots(ctx context.Context, slots []Slot) (int64, error)
}

type AppointmentStore interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentByCancelToken(ctx context.Context, token string) (*Appointment, error)
	// ListAppointments returns appointments overlapping [from, to), any status, ordered by start.
	ListAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	// HasConflict reports whether a scheduled or completed appointment overlaps [start, end).
	HasConflict(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (bool, error)
	InsertAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointmentWindow(ctx context.Context, id uuid.UUID, start, end time.Time) (*Appointment, error)
	// UpdateAppointmentStatus only applies when the current status equals from.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, actor Actor, at time.Time) (*Appointment, error)
	MarkConfirmationSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateCalendarSync(ctx context.Context, id uuid.UUID, eventID *string, status SyncStatus, at time.Time) error
	// ListReminderCandidates returns scheduled patient bookings starting in [from, to) without a reminder.
	ListReminderCandidates(ctx context.Context, from, to time.Time) ([]Appointment, error)
}

type VacationStore interface {
	// ListVacations returns vacations whose date range intersects [from, to]; zero times mean unbounded.
	ListVacations(ctx context.Context, doctorID uuid.UUID, from, to time.Time, activeOnly bool) ([]Vacation, error)
	GetVacation(ctx context.Context, id uuid.UUID) (*Vacation, error)
	InsertVacation(ctx context.Context, v *Vacation) error
	UpdateVacation(ctx context.Context, v *Vacation) error
	DeleteVacation(ctx context.Context, id uuid.UUID) error
}

type BlacklistStore interface {
	IsBlacklisted(ctx context.Context, doctorID uuid.UUID, phone string) (bool, error)
	ListBlacklist(ctx context.Context, doctorID uuid.UUID) ([]BlacklistEntry, error)
	GetBlacklistEntry(ctx context.Context, id uuid.UUID) (*BlacklistEntry, error)
	InsertBlacklistEntry(ctx context.Context, e *BlacklistEntry) error
	SetBlacklistActive(ctx context.Context, id uuid.UUID, active bool) (*BlacklistEntry, error)
	DeleteBlacklistEntry(ctx context.Context, id uuid.UUID) error
}

type PaymentStore interface {
	InsertPayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetPaymentBySession(ctx context.Context, sessionID string) (*Payment, error)
	ListPaymentsForAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error
	// FindStalePayments returns open payments of provider created before olderThan.
	FindStalePayments(ctx context.Context, provider PaymentProvider, olderThan time.Time) ([]Payment, error)
}

type EventStore interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Repository contains all DB interactions needed by the booking engine.
type Repository interface {
	VisitTypeStore
	SlotStore
	AppointmentStore
	VacationStore
	BlacklistStore
	PaymentStore
	EventStore

	// InTx runs fn inside one transaction. Nested calls reuse the outer one.
	InTx(ctx context.Context, fn func(tx Repository) error) error
}
