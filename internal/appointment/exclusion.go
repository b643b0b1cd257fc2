package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ExclusionReason string

const (
	ExclusionNone     ExclusionReason = ""
	ExclusionVacation ExclusionReason = "vacation"
	ExclusionHoliday  ExclusionReason = "holiday"
)

// ExclusionSet answers exclusion questions for a preloaded date range.
type ExclusionSet struct {
	vacations []Vacation
	holidays  HolidayCalendar
}

// LoadExclusions reads the active vacations intersecting [from, to] once
// so callers can test many days without further queries.
func LoadExclusions(ctx context.Context, store VacationStore, holidays HolidayCalendar, doctorID uuid.UUID, from, to time.Time, loc *time.Location) (*ExclusionSet, error) {
	vacations, err := store.ListVacations(ctx, doctorID, CivilDate(from, loc), CivilDate(to, loc), true)
	if err != nil {
		return nil, fmt.Errorf("load vacations: %w", err)
	}
	return &ExclusionSet{vacations: vacations, holidays: holidays}, nil
}

// Reason reports why day is excluded. Vacations win over holidays.
func (e *ExclusionSet) Reason(day time.Time) (ExclusionReason, *Vacation) {
	for i := range e.vacations {
		if e.vacations[i].Covers(day) {
			return ExclusionVacation, &e.vacations[i]
		}
	}
	if e.holidays != nil && e.holidays.IsHoliday(day) {
		return ExclusionHoliday, nil
	}
	return ExclusionNone, nil
}

func (e *ExclusionSet) IsExcluded(day time.Time) bool {
	reason, _ := e.Reason(day)
	return reason != ExclusionNone
}

// DayStatus describes whether a calendar day is closed for booking.
type DayStatus struct {
	Day         time.Time
	Excluded    bool
	Reason      ExclusionReason
	Description string
	// Vacation is set when an active vacation closes the day.
	Vacation *Vacation
}

// IsExcludedDay reports whether day is covered by an active vacation or a public holiday.
func (s *Service) IsExcludedDay(ctx context.Context, doctorID uuid.UUID, day time.Time) (bool, error) {
	status, err := s.DayStatus(ctx, doctorID, day)
	if err != nil {
		return false, err
	}
	return status.Excluded, nil
}

// DayStatus is the vacation status lookup exposed to the patient calendar.
func (s *Service) DayStatus(ctx context.Context, doctorID uuid.UUID, day time.Time) (DayStatus, error) {
	return s.dayStatus(ctx, s.repo, doctorID, day)
}

func (s *Service) dayStatus(ctx context.Context, store VacationStore, doctorID uuid.UUID, day time.Time) (DayStatus, error) {
	day = StartOfDay(day, s.loc)
	set, err := LoadExclusions(ctx, store, s.holidays, doctorID, day, day, s.loc)
	if err != nil {
		return DayStatus{}, err
	}

	reason, vacation := set.Reason(day)
	status := DayStatus{Day: day, Excluded: reason != ExclusionNone, Reason: reason}
	switch {
	case vacation != nil:
		status.Description = vacation.Description
		status.Vacation = vacation
	case reason == ExclusionHoliday:
		if named, ok := s.holidays.(interface {
			Name(time.Time) (string, bool)
		}); ok {
			status.Description, _ = named.Name(day)
		}
	}
	return status, nil
}
