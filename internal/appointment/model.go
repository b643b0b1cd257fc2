package appointment

import (
	"time"

	"github.com/google/uuid"
)

// SlotLength is the fixed length of every bookable slot.
const SlotLength = 15 * time.Minute

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Blocking reports whether an appointment in this status occupies its window.
func (s Status) Blocking() bool {
	return s == StatusScheduled || s == StatusCompleted
}

type Actor string

const (
	ActorPatient Actor = "patient"
	ActorDoctor  Actor = "doctor"
	ActorSystem  Actor = "system"
)

type SyncStatus string

const (
	SyncNever   SyncStatus = "never"
	SyncSynced  SyncStatus = "synced"
	SyncDeleted SyncStatus = "deleted"
	SyncError   SyncStatus = "error"
)

type Slot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Start     time.Time
	End       time.Time
	Active    bool
	CreatedAt time.Time
}

type VisitType struct {
	ID                 uuid.UUID
	Code               string
	Name               string
	Description        string
	DurationMinutes    int
	PriceMinor         *int64
	Color              string
	DisplayOrder       int
	DisplayOrderDoctor int
	Active             bool
	OnlyOnlinePayment  bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (v VisitType) Duration() time.Duration {
	return time.Duration(v.DurationMinutes) * time.Minute
}

// RequiredSlots is the number of consecutive slots a visit of this type needs.
func (v VisitType) RequiredSlots() int {
	return int(v.Duration() / SlotLength)
}

// Payable reports whether the visit type has a positive price.
func (v VisitType) Payable() bool {
	return v.PriceMinor != nil && *v.PriceMinor > 0
}

type Patient struct {
	FirstName string
	LastName  string
	Phone     string
	Email     *string
}

func (p Patient) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

type Appointment struct {
	ID                 uuid.UUID
	DoctorID           uuid.UUID
	Start              time.Time
	End                time.Time
	DurationMinutes    int
	VisitType          string
	Status             Status
	CreatedBy          Actor
	CancelToken        string
	Patient            Patient
	ClientIP           *string
	CancelledAt        *time.Time
	CancelledBy        *Actor
	ConfirmationSentAt *time.Time
	ReminderSentAt     *time.Time
	GoogleEventID      *string
	GoogleSyncStatus   SyncStatus
	GoogleLastSyncAt   *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Overlaps reports whether the appointment blocks any part of [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.Status.Blocking() && a.Start.Before(end) && start.Before(a.End)
}

// Vacation covers whole calendar days From..To inclusive.
type Vacation struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	From          time.Time
	To            time.Time
	Description   string
	Active        bool
	GoogleEventID *string
	CreatedAt     time.Time
}

// Covers reports whether an active vacation includes the civil date of day.
func (v Vacation) Covers(day time.Time) bool {
	if !v.Active {
		return false
	}
	key := DayKey(day)
	return DayKey(v.From) <= key && key <= DayKey(v.To)
}

type BlacklistEntry struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	FirstName   string
	LastName    string
	Phone       string
	Email       *string
	Description string
	Active      bool
	BlockedAt   time.Time
}

type PaymentProvider string

const (
	ProviderPrzelewy24     PaymentProvider = "przelewy24"
	ProviderManualTransfer PaymentProvider = "manual_transfer"
)

type PaymentStatus string

const (
	PaymentInit    PaymentStatus = "init"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Open reports whether the payment can still complete.
func (s PaymentStatus) Open() bool {
	return s == PaymentInit || s == PaymentPending
}

type Payment struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Provider      PaymentProvider
	SessionID     string
	OrderID       *string
	Token         *string
	AmountMinor   int64
	Currency      string
	Status        PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PaidAt        *time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Actor         Actor
	Payload       []byte
	CreatedAt     time.Time
}
