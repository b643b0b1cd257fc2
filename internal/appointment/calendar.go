package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CalendarSlot is a grid slot as the doctor sees it.
type CalendarSlot struct {
	Slot
	OnVacation bool
}

type Holiday struct {
	Day  time.Time
	Name string
}

// CalendarView is everything the doctor calendar renders for a range.
type CalendarView struct {
	From         time.Time
	To           time.Time
	Slots        []CalendarSlot
	Appointments []Appointment
	Vacations    []Vacation
	Holidays     []Holiday
}

// ListCalendar assembles the doctor calendar for [from, to). Slots covered
// by a blocking appointment are left out since the appointment is shown instead.
func (s *Service) ListCalendar(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (*CalendarView, error) {
	if !from.Before(to) {
		return nil, ErrInvalidDateRange
	}

	slots, err := s.repo.ListSlots(ctx, doctorID, from, to, false)
	if err != nil {
		return nil, fmt.Errorf("list calendar slots: %w", err)
	}
	appts, err := s.repo.ListAppointments(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list calendar: %w", err)
	}
	lastDay := to.Add(-time.Nanosecond)
	vacations, err := s.repo.ListVacations(ctx, doctorID, CivilDate(from, s.loc), CivilDate(lastDay, s.loc), false)
	if err != nil {
		return nil, fmt.Errorf("list calendar vacations: %w", err)
	}
	exclusions := &ExclusionSet{vacations: vacations, holidays: s.holidays}

	view := &CalendarView{From: from, To: to, Appointments: appts, Vacations: vacations}
	for _, sl := range slots {
		if overlapsAny(appts, sl.Start, sl.End, nil) {
			continue
		}
		reason, _ := exclusions.Reason(StartOfDay(sl.Start, s.loc))
		view.Slots = append(view.Slots, CalendarSlot{Slot: sl, OnVacation: reason == ExclusionVacation})
	}

	named, _ := s.holidays.(interface {
		Name(time.Time) (string, bool)
	})
	for day := StartOfDay(from, s.loc); day.Before(to); day = day.AddDate(0, 0, 1) {
		if named == nil {
			break
		}
		if name, ok := named.Name(day); ok {
			view.Holidays = append(view.Holidays, Holiday{Day: day, Name: name})
		}
	}
	return view, nil
}
