// Package memstore is an in-memory appointment.Repository for tests and
// local simulations. It mirrors the Postgres semantics the engine relies on,
// including the no-overlap constraint on blocking appointments.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

type Store struct {
	mu sync.Mutex
	// txMu serializes transactions the way row locks and the exclusion
	// constraint would.
	txMu sync.Mutex

	visitTypes   map[string]appointment.VisitType
	slots        map[uuid.UUID]appointment.Slot
	appointments map[uuid.UUID]appointment.Appointment
	vacations    map[uuid.UUID]appointment.Vacation
	blacklist    map[uuid.UUID]appointment.BlacklistEntry
	payments     map[uuid.UUID]appointment.Payment
	events       []appointment.EventLog

	now func() time.Time
}

func New() *Store {
	return &Store{
		visitTypes:   map[string]appointment.VisitType{},
		slots:        map[uuid.UUID]appointment.Slot{},
		appointments: map[uuid.UUID]appointment.Appointment{},
		vacations:    map[uuid.UUID]appointment.Vacation{},
		blacklist:    map[uuid.UUID]appointment.BlacklistEntry{},
		payments:     map[uuid.UUID]appointment.Payment{},
		now:          time.Now,
	}
}

// SetClock controls created_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// InTx runs fn against a snapshot and commits it only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx appointment.Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()

	if err := fn(&txStore{Store: s}); err != nil {
		s.mu.Lock()
		s.restore(snap)
		s.mu.Unlock()
		return err
	}
	return nil
}

// txStore is the Repository handed to transaction callbacks. Nested InTx
// calls run inline.
type txStore struct {
	*Store
}

func (t *txStore) InTx(ctx context.Context, fn func(tx appointment.Repository) error) error {
	return fn(t)
}

type snapshot struct {
	visitTypes   map[string]appointment.VisitType
	slots        map[uuid.UUID]appointment.Slot
	appointments map[uuid.UUID]appointment.Appointment
	vacations    map[uuid.UUID]appointment.Vacation
	blacklist    map[uuid.UUID]appointment.BlacklistEntry
	payments     map[uuid.UUID]appointment.Payment
	events       int
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		visitTypes:   cloneMap(s.visitTypes),
		slots:        cloneMap(s.slots),
		appointments: cloneMap(s.appointments),
		vacations:    cloneMap(s.vacations),
		blacklist:    cloneMap(s.blacklist),
		payments:     cloneMap(s.payments),
		events:       len(s.events),
	}
}

func (s *Store) restore(snap snapshot) {
	s.visitTypes = snap.visitTypes
	s.slots = snap.slots
	s.appointments = snap.appointments
	s.vacations = snap.vacations
	s.blacklist = snap.blacklist
	s.payments = snap.payments
	s.events = s.events[:snap.events]
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Visit types

func (s *Store) GetVisitTypeByCode(ctx context.Context, code string) (*appointment.VisitType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vt, ok := s.visitTypes[code]
	if !ok {
		return nil, appointment.ErrVisitTypeNotFound
	}
	return &vt, nil
}

func (s *Store) ListVisitTypes(ctx context.Context, activeOnly bool) ([]appointment.VisitType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.VisitType
	for _, vt := range s.visitTypes {
		if activeOnly && !vt.Active {
			continue
		}
		out = append(out, vt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) InsertVisitType(ctx context.Context, vt *appointment.VisitType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.visitTypes[vt.Code]; exists {
		return appointment.ErrDuplicateVisitType
	}
	vt.CreatedAt, vt.UpdatedAt = s.now(), s.now()
	s.visitTypes[vt.Code] = *vt
	return nil
}

func (s *Store) UpdateVisitType(ctx context.Context, vt *appointment.VisitType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code, existing := range s.visitTypes {
		if existing.ID == vt.ID {
			vt.UpdatedAt = s.now()
			s.visitTypes[code] = *vt
			return nil
		}
	}
	return appointment.ErrVisitTypeNotFound
}

// Slots

func (s *Store) ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time, activeOnly bool) ([]appointment.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Slot
	for _, sl := range s.slots {
		if sl.DoctorID != doctorID || sl.Start.Before(from) || !sl.Start.Before(to) {
			continue
		}
		if activeOnly && !sl.Active {
			continue
		}
		out = append(out, sl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Store) GetSlot(ctx context.Context, id uuid.UUID) (*appointment.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		return nil, appointment.ErrSlotNotFound
	}
	return &sl, nil
}

func (s *Store) SetSlotActive(ctx context.Context, id uuid.UUID, active bool) (*appointment.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		return nil, appointment.ErrSlotNotFound
	}
	sl.Active = active
	s.slots[id] = sl
	return &sl, nil
}

func (s *Store) DeactivateSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sl := range s.slots {
		if sl.DoctorID == doctorID && sl.Active && !sl.Start.Before(from) && sl.Start.Before(to) {
			sl.Active = false
			s.slots[id] = sl
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sl := range s.slots {
		if sl.DoctorID == doctorID && !sl.Start.Before(from) && sl.Start.Before(to) {
			delete(s.slots, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertSlots(ctx context.Context, slots []appointment.Slot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sl := range slots {
		if sl.CreatedAt.IsZero() {
			sl.CreatedAt = s.now()
		}
		s.slots[sl.ID] = sl
	}
	return int64(len(slots)), nil
}

// Appointments

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *Store) GetAppointmentByCancelToken(ctx context.Context, token string) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appointments {
		if a.CancelToken == token {
			return &a, nil
		}
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (s *Store) ListAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range s.appointments {
		if a.DoctorID == doctorID && a.Start.Before(to) && from.Before(a.End) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Store) HasConflict(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflictLocked(doctorID, start, end, exclude), nil
}

func (s *Store) conflictLocked(doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) bool {
	for _, a := range s.appointments {
		if a.DoctorID != doctorID || (exclude != nil && a.ID == *exclude) {
			continue
		}
		if a.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (s *Store) InsertAppointment(ctx context.Context, a *appointment.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Status.Blocking() && s.conflictLocked(a.DoctorID, a.Start, a.End, nil) {
		return appointment.ErrWindowConflict
	}
	a.CreatedAt, a.UpdatedAt = s.now(), s.now()
	s.appointments[a.ID] = *a
	return nil
}

func (s *Store) UpdateAppointmentWindow(ctx context.Context, id uuid.UUID, start, end time.Time) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if a.Status.Blocking() && s.conflictLocked(a.DoctorID, start, end, &id) {
		return nil, appointment.ErrWindowConflict
	}
	a.Start, a.End, a.UpdatedAt = start, end, s.now()
	s.appointments[id] = a
	return &a, nil
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to appointment.Status, actor appointment.Actor, at time.Time) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok || a.Status != from {
		return nil, appointment.ErrAppointmentNotFound
	}
	a.Status = to
	if to == appointment.StatusCancelled {
		at, actor := at, actor
		a.CancelledAt = &at
		a.CancelledBy = &actor
	}
	a.UpdatedAt = s.now()
	s.appointments[id] = a
	return &a, nil
}

func (s *Store) MarkConfirmationSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.updateAppointment(id, func(a *appointment.Appointment) {
		if a.ConfirmationSentAt == nil {
			a.ConfirmationSentAt = &at
		}
	})
}

func (s *Store) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.updateAppointment(id, func(a *appointment.Appointment) { a.ReminderSentAt = &at })
}

func (s *Store) UpdateCalendarSync(ctx context.Context, id uuid.UUID, eventID *string, status appointment.SyncStatus, at time.Time) error {
	return s.updateAppointment(id, func(a *appointment.Appointment) {
		a.GoogleEventID = eventID
		a.GoogleSyncStatus = status
		a.GoogleLastSyncAt = &at
	})
}

func (s *Store) updateAppointment(id uuid.UUID, fn func(a *appointment.Appointment)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return appointment.ErrAppointmentNotFound
	}
	fn(&a)
	a.UpdatedAt = s.now()
	s.appointments[id] = a
	return nil
}

func (s *Store) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range s.appointments {
		if a.Status != appointment.StatusScheduled || a.CreatedBy != appointment.ActorPatient || a.ReminderSentAt != nil {
			continue
		}
		if a.Start.Before(from) || !a.Start.Before(to) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Vacations

func (s *Store) ListVacations(ctx context.Context, doctorID uuid.UUID, from, to time.Time, activeOnly bool) ([]appointment.Vacation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Vacation
	for _, v := range s.vacations {
		if v.DoctorID != doctorID || (activeOnly && !v.Active) {
			continue
		}
		if !from.IsZero() && appointment.DayKey(v.To) < appointment.DayKey(from) {
			continue
		}
		if !to.IsZero() && appointment.DayKey(v.From) > appointment.DayKey(to) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From.After(out[j].From) })
	return out, nil
}

func (s *Store) GetVacation(ctx context.Context, id uuid.UUID) (*appointment.Vacation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vacations[id]
	if !ok {
		return nil, appointment.ErrVacationNotFound
	}
	return &v, nil
}

func (s *Store) InsertVacation(ctx context.Context, v *appointment.Vacation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.CreatedAt = s.now()
	s.vacations[v.ID] = *v
	return nil
}

func (s *Store) UpdateVacation(ctx context.Context, v *appointment.Vacation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vacations[v.ID]; !ok {
		return appointment.ErrVacationNotFound
	}
	s.vacations[v.ID] = *v
	return nil
}

func (s *Store) DeleteVacation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vacations[id]; !ok {
		return appointment.ErrVacationNotFound
	}
	delete(s.vacations, id)
	return nil
}

// Blacklist

func (s *Store) IsBlacklisted(ctx context.Context, doctorID uuid.UUID, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.blacklist {
		if e.DoctorID == doctorID && e.Active && e.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListBlacklist(ctx context.Context, doctorID uuid.UUID) ([]appointment.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.BlacklistEntry
	for _, e := range s.blacklist {
		if e.DoctorID == doctorID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockedAt.After(out[j].BlockedAt) })
	return out, nil
}

func (s *Store) GetBlacklistEntry(ctx context.Context, id uuid.UUID) (*appointment.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.blacklist[id]
	if !ok {
		return nil, appointment.ErrBlacklistEntryNotFound
	}
	return &e, nil
}

func (s *Store) InsertBlacklistEntry(ctx context.Context, e *appointment.BlacklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.BlockedAt = s.now()
	s.blacklist[e.ID] = *e
	return nil
}

func (s *Store) SetBlacklistActive(ctx context.Context, id uuid.UUID, active bool) (*appointment.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.blacklist[id]
	if !ok {
		return nil, appointment.ErrBlacklistEntryNotFound
	}
	e.Active = active
	s.blacklist[id] = e
	return &e, nil
}

func (s *Store) DeleteBlacklistEntry(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blacklist[id]; !ok {
		return appointment.ErrBlacklistEntryNotFound
	}
	delete(s.blacklist, id)
	return nil
}

// Payments

func (s *Store) InsertPayment(ctx context.Context, p *appointment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.CreatedAt, p.UpdatedAt = s.now(), s.now()
	s.payments[p.ID] = *p
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*appointment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, appointment.ErrPaymentNotFound
	}
	return &p, nil
}

func (s *Store) GetPaymentBySession(ctx context.Context, sessionID string) (*appointment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.SessionID == sessionID {
			return &p, nil
		}
	}
	return nil, appointment.ErrPaymentNotFound
}

func (s *Store) ListPaymentsForAppointment(ctx context.Context, appointmentID uuid.UUID) ([]appointment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Payment
	for _, p := range s.payments {
		if p.AppointmentID == appointmentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdatePayment(ctx context.Context, p *appointment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; !ok {
		return appointment.ErrPaymentNotFound
	}
	p.UpdatedAt = s.now()
	s.payments[p.ID] = *p
	return nil
}

func (s *Store) FindStalePayments(ctx context.Context, provider appointment.PaymentProvider, olderThan time.Time) ([]appointment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Payment
	for _, p := range s.payments {
		if p.Provider == provider && p.Status.Open() && p.CreatedAt.Before(olderThan) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Events

func (s *Store) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of the event log.
func (s *Store) Events() []appointment.EventLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]appointment.EventLog(nil), s.events...)
}

// Appointments returns every stored appointment ordered by start.
func (s *Store) Appointments() []appointment.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]appointment.Appointment, 0, len(s.appointments))
	for _, a := range s.appointments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// SetPaymentCreatedAt backdates a payment.
func (s *Store) SetPaymentCreatedAt(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[id]; ok {
		p.CreatedAt = at
		s.payments[id] = p
	}
}

// SetConfirmationSent stamps confirmation_sent_at directly.
func (s *Store) SetConfirmationSent(id uuid.UUID, at time.Time) {
	_ = s.updateAppointment(id, func(a *appointment.Appointment) { a.ConfirmationSentAt = &at })
}

var _ appointment.Repository = (*Store)(nil)
