package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type DaysQuery struct {
	DoctorID      uuid.UUID
	VisitTypeCode string
	Year          int
	Month         time.Month
	// Audience decides whether patient restrictions apply. Doctors see
	// excluded and near-term days so they can override them.
	Audience Actor
}

type HoursQuery struct {
	DoctorID      uuid.UUID
	VisitTypeCode string
	Day           time.Time
	Audience      Actor
}

// ListBookableDays returns the days of a month that contain at least one
// bookable window for the visit type, as midnights in the clinic zone.
// Unknown or inactive visit types yield an empty list.
func (s *Service) ListBookableDays(ctx context.Context, q DaysQuery) ([]time.Time, error) {
	ctx, span := tracer.Start(ctx, "appointment.ListBookableDays")
	defer span.End()
	started := time.Now()
	defer func() { s.metrics.ObserveAvailability("days", time.Since(started).Seconds()) }()

	vt, err := s.activeVisitType(ctx, s.repo, q.VisitTypeCode)
	if err != nil {
		if errors.Is(err, ErrInvalidVisitType) {
			return nil, nil
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("visit_type", vt.Code), attribute.Int("month", int(q.Month)))

	from, to := MonthRange(q.Year, q.Month, s.loc)
	starts, err := s.freeStarts(ctx, q.DoctorID, from, to, vt.Duration())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	exclusions, err := LoadExclusions(ctx, s.repo, s.holidays, q.DoctorID, from, to.AddDate(0, 0, -1), s.loc)
	if err != nil {
		return nil, err
	}

	earliest := s.earliestDay(q.Audience)
	now := s.clock()
	var days []time.Time
	seen := make(map[string]bool)
	for _, start := range starts {
		day := StartOfDay(start, s.loc)
		key := DayKey(day)
		if seen[key] {
			continue
		}
		if q.Audience != ActorDoctor {
			if !start.After(now) || day.Before(earliest) || exclusions.IsExcluded(day) {
				continue
			}
		}
		seen[key] = true
		days = append(days, day)
	}
	return days, nil
}

// ListBookableHours returns up to MaxHourSuggestions start times on day,
// chosen by the configured ranker and sorted chronologically.
func (s *Service) ListBookableHours(ctx context.Context, q HoursQuery) ([]time.Time, error) {
	ctx, span := tracer.Start(ctx, "appointment.ListBookableHours")
	defer span.End()
	started := time.Now()
	defer func() { s.metrics.ObserveAvailability("hours", time.Since(started).Seconds()) }()

	vt, err := s.activeVisitType(ctx, s.repo, q.VisitTypeCode)
	if err != nil {
		if errors.Is(err, ErrInvalidVisitType) {
			return nil, nil
		}
		return nil, err
	}

	day := StartOfDay(q.Day, s.loc)
	if q.Audience != ActorDoctor {
		if day.Before(s.earliestDay(q.Audience)) {
			return nil, nil
		}
		excluded, err := s.IsExcludedDay(ctx, q.DoctorID, day)
		if err != nil {
			return nil, err
		}
		if excluded {
			return nil, nil
		}
	}

	next := day.AddDate(0, 0, 1)
	starts, err := s.freeStarts(ctx, q.DoctorID, day, next, vt.Duration())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if q.Audience != ActorDoctor {
		now := s.clock()
		kept := starts[:0]
		for _, st := range starts {
			if st.After(now) {
				kept = append(kept, st)
			}
		}
		starts = kept
	}
	if len(starts) == 0 {
		return nil, nil
	}

	appts, err := s.repo.ListAppointments(ctx, q.DoctorID, day, next)
	if err != nil {
		return nil, fmt.Errorf("load day appointments: %w", err)
	}
	blocking := appts[:0]
	for _, a := range appts {
		if a.Status.Blocking() {
			blocking = append(blocking, a)
		}
	}

	return s.ranker.Rank(starts, RankContext{
		Duration:     vt.Duration(),
		Appointments: blocking,
		Location:     s.loc,
	}), nil
}

// freeStarts returns every start in [from, to) whose window of length d is
// covered by active contiguous slots and overlaps no blocking appointment.
// Slots and appointments are loaded once for the whole range.
func (s *Service) freeStarts(ctx context.Context, doctorID uuid.UUID, from, to time.Time, d time.Duration) ([]time.Time, error) {
	required := int(d / SlotLength)
	if required <= 0 {
		return nil, ErrInvalidVisitTypeDuration
	}

	slots, err := s.repo.ListSlots(ctx, doctorID, from, to.Add(d), true)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	appts, err := s.repo.ListAppointments(ctx, doctorID, from, to.Add(d))
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	var starts []time.Time
	for i := 0; i+required <= len(slots); i++ {
		window := slots[i : i+required]
		start := window[0].Start
		if !start.Before(to) {
			break
		}
		if !contiguous(window) {
			continue
		}
		if overlapsAny(appts, start, window[len(window)-1].End, nil) {
			continue
		}
		starts = append(starts, start)
	}
	return starts, nil
}

// checkWindow is the commit-time validation: the window must be exactly
// covered by active contiguous slots and must not conflict.
func (s *Service) checkWindow(ctx context.Context, tx Repository, doctorID uuid.UUID, start time.Time, d time.Duration, exclude *uuid.UUID) error {
	required := int(d / SlotLength)
	if required <= 0 || d%SlotLength != 0 {
		return ErrInvalidVisitTypeDuration
	}
	end := start.Add(d)

	slots, err := tx.ListSlots(ctx, doctorID, start, end, true)
	if err != nil {
		return fmt.Errorf("load window slots: %w", err)
	}
	if len(slots) != required ||
		!slots[0].Start.Equal(start) ||
		!slots[len(slots)-1].End.Equal(end) ||
		!contiguous(slots) {
		return ErrSlotUnavailable
	}

	conflict, err := tx.HasConflict(ctx, doctorID, start, end, exclude)
	if err != nil {
		return err
	}
	if conflict {
		return ErrWindowConflict
	}
	return nil
}

func contiguous(slots []Slot) bool {
	for i := 1; i < len(slots); i++ {
		if !slots[i].Start.Equal(slots[i-1].End) {
			return false
		}
	}
	return true
}

func overlapsAny(appts []Appointment, start, end time.Time, exclude *uuid.UUID) bool {
	for _, a := range appts {
		if exclude != nil && a.ID == *exclude {
			continue
		}
		if a.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (s *Service) earliestDay(audience Actor) time.Time {
	today := StartOfDay(s.clock(), s.loc)
	if audience == ActorDoctor {
		return today
	}
	return today.AddDate(0, 0, s.cfg.BookingMinLeadDays)
}

func (s *Service) activeVisitType(ctx context.Context, store VisitTypeStore, code string) (*VisitType, error) {
	vt, err := store.GetVisitTypeByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrVisitTypeNotFound) {
			return nil, ErrInvalidVisitType
		}
		return nil, fmt.Errorf("load visit type: %w", err)
	}
	if !vt.Active || vt.RequiredSlots() <= 0 {
		return nil, ErrInvalidVisitType
	}
	return vt, nil
}
