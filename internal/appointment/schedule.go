package appointment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WeeklyTemplate maps a weekday to the hours whose slots are generated active.
// Weekdays missing from the template get no slots at all.
type WeeklyTemplate map[time.Weekday][]int

var weekdayKeys = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// ParseWeeklyTemplate reads {"mon": ["09", "10:00"], ...}.
func ParseWeeklyTemplate(raw map[string][]string) (WeeklyTemplate, error) {
	tmpl := make(WeeklyTemplate, len(raw))
	for key, hours := range raw {
		wd, ok := weekdayKeys[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", key)
		}
		for _, h := range hours {
			hour, err := parseHour(h)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			tmpl[wd] = append(tmpl[wd], hour)
		}
		if _, ok := tmpl[wd]; !ok {
			tmpl[wd] = []int{}
		}
	}
	return tmpl, nil
}

func parseHour(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		if strings.Trim(raw[i+1:], "0") != "" {
			return 0, fmt.Errorf("hour %q must be on the hour", raw)
		}
		raw = raw[:i]
	}
	h, err := strconv.Atoi(raw)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour %q", raw)
	}
	return h, nil
}

func (t WeeklyTemplate) activeAt(wd time.Weekday, hour int) bool {
	for _, h := range t[wd] {
		if h == hour {
			return true
		}
	}
	return false
}

type GenerateResult struct {
	From        time.Time
	To          time.Time
	Deleted     int64
	Created     int64
	Active      int64
	SkippedDays int
}

// GenerateSchedule rebuilds the slot grid of a month from today onward.
// Existing slots in the range are replaced, excluded days and weekdays absent
// from the template get no slots, and ticks in the past are never created.
// Running it twice with the same inputs yields the same grid.
func (s *Service) GenerateSchedule(ctx context.Context, doctorID uuid.UUID, year int, month time.Month, tmpl WeeklyTemplate) (GenerateResult, error) {
	ctx, span := tracer.Start(ctx, "appointment.GenerateSchedule")
	defer span.End()

	now := s.clock()
	monthStart, monthEnd := MonthRange(year, month, s.loc)
	from := monthStart
	if today := StartOfDay(now, s.loc); today.After(from) {
		from = today
	}

	result := GenerateResult{From: from, To: monthEnd}
	if !from.Before(monthEnd) {
		return result, nil
	}

	err := s.withDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			deleted, err := tx.DeleteSlots(lockCtx, doctorID, from, monthEnd)
			if err != nil {
				return err
			}
			result.Deleted = deleted

			exclusions, err := LoadExclusions(lockCtx, tx, s.holidays, doctorID, from, monthEnd.AddDate(0, 0, -1), s.loc)
			if err != nil {
				return err
			}

			var slots []Slot
			for day := from; day.Before(monthEnd); day = day.AddDate(0, 0, 1) {
				if exclusions.IsExcluded(day) {
					result.SkippedDays++
					continue
				}
				if _, ok := tmpl[day.Weekday()]; !ok {
					continue
				}
				slots = append(slots, s.daySlots(doctorID, day, tmpl, now)...)
			}

			created, err := tx.InsertSlots(lockCtx, slots)
			if err != nil {
				return err
			}
			result.Created = created
			for _, sl := range slots {
				if sl.Active {
					result.Active++
				}
			}

			return s.logEvent(lockCtx, tx, nil, ActorDoctor, EventScheduleGenerated, map[string]any{
				"doctor_id": doctorID,
				"from":      DayKey(from),
				"to":        DayKey(monthEnd.AddDate(0, 0, -1)),
				"deleted":   result.Deleted,
				"created":   result.Created,
			})
		})
	})
	if err != nil {
		span.RecordError(err)
		return GenerateResult{}, err
	}

	s.logger.Info("schedule generated",
		"doctor_id", doctorID,
		"year", year,
		"month", int(month),
		"deleted", result.Deleted,
		"created", result.Created,
		"active", result.Active,
		"skipped_days", result.SkippedDays,
	)
	return result, nil
}

func (s *Service) daySlots(doctorID uuid.UUID, day time.Time, tmpl WeeklyTemplate, now time.Time) []Slot {
	open := time.Date(day.Year(), day.Month(), day.Day(), s.cfg.OpeningHour, 0, 0, 0, s.loc)
	closeAt := time.Date(day.Year(), day.Month(), day.Day(), s.cfg.ClosingHour, 0, 0, 0, s.loc)

	var slots []Slot
	for tick := open; tick.Before(closeAt); tick = tick.Add(SlotLength) {
		if tick.Before(now) {
			continue
		}
		slots = append(slots, Slot{
			ID:       uuid.New(),
			DoctorID: doctorID,
			Start:    tick,
			End:      tick.Add(SlotLength),
			Active:   tmpl.activeAt(day.Weekday(), tick.Hour()),
		})
	}
	return slots
}
