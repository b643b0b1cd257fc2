package appointment_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

// grid returns every 15 minute start on 4 March 2026 in [fromHour, toHour).
func grid(fromHour, toHour int) []time.Time {
	var out []time.Time
	for t := at(2026, time.March, 4, fromHour, 0); t.Before(at(2026, time.March, 4, toHour, 0)); t = t.Add(appointment.SlotLength) {
		out = append(out, t)
	}
	return out
}

func booked(h, m, minutes int) appointment.Appointment {
	start := at(2026, time.March, 4, h, m)
	return appointment.Appointment{
		Start:  start,
		End:    start.Add(time.Duration(minutes) * time.Minute),
		Status: appointment.StatusScheduled,
	}
}

func TestGapRankerHourVisitsStartOnTheHour(t *testing.T) {
	r := appointment.GapRanker{Limit: 5}
	got := r.Rank(grid(13, 18), appointment.RankContext{Duration: time.Hour, Location: warsaw})
	assert.Equal(t, []string{"13:00", "14:00", "15:00", "16:00", "17:00"}, clock(got))
}

func TestGapRankerFortyFiveMinuteOffsets(t *testing.T) {
	r := appointment.GapRanker{Limit: 10}
	got := r.Rank(grid(13, 15), appointment.RankContext{Duration: 45 * time.Minute, Location: warsaw})
	assert.Equal(t, []string{"13:00", "13:15", "14:00", "14:15"}, clock(got))
}

func TestGapRankerFallsBackToOddStarts(t *testing.T) {
	r := appointment.GapRanker{Limit: 5}
	odd := []time.Time{at(2026, time.March, 4, 13, 15), at(2026, time.March, 4, 13, 45)}
	got := r.Rank(odd, appointment.RankContext{Duration: time.Hour, Location: warsaw})
	assert.Equal(t, []string{"13:15", "13:45"}, clock(got))
}

func TestGapRankerPrefersAdjacency(t *testing.T) {
	r := appointment.GapRanker{Limit: 2}
	appts := []appointment.Appointment{booked(14, 0, 30)}

	got := r.Rank(grid(13, 16), appointment.RankContext{
		Duration:     30 * time.Minute,
		Appointments: appts,
		Location:     warsaw,
	})
	// 14:30 follows the visit, 13:30 leads into it
	assert.Equal(t, []string{"13:30", "14:30"}, clock(got))
}

func TestGapRankerIgnoresCancelledVisits(t *testing.T) {
	r := appointment.GapRanker{Limit: 1}
	cancelled := booked(14, 0, 30)
	cancelled.Status = appointment.StatusCancelled

	got := r.Rank(grid(13, 16), appointment.RankContext{
		Duration:     time.Hour,
		Appointments: []appointment.Appointment{cancelled},
		Location:     warsaw,
	})
	assert.Equal(t, []string{"13:00"}, clock(got))
}

func TestGapRankerSpreadsSmallDay(t *testing.T) {
	r := appointment.GapRanker{}
	starts := []time.Time{at(2026, time.March, 4, 9, 0), at(2026, time.March, 4, 9, 30)}
	got := r.Rank(starts, appointment.RankContext{Duration: 30 * time.Minute, Location: warsaw})
	assert.Equal(t, []string{"09:00", "09:30"}, clock(got))
}

func TestGapRankerEmpty(t *testing.T) {
	r := appointment.GapRanker{}
	assert.Empty(t, r.Rank(nil, appointment.RankContext{Duration: time.Hour}))
}
