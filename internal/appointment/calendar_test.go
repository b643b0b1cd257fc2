package appointment_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

func TestListCalendar(t *testing.T) {
	f := newFixture(t, withHolidays("PL"))
	f.addVisitType("consult", 30)
	f.addSlots(day(2026, time.November, 10), 9, 10)
	f.addSlots(day(2026, time.November, 12), 9, 10)
	f.setNow(at(2026, time.November, 2, 10, 0))

	a := f.mustBook("consult", at(2026, time.November, 10, 9, 0), appointment.ActorPatient)
	_, err := f.svc.DeclareVacation(f.ctx, doctorID, appointment.VacationInput{
		From: day(2026, time.November, 12), To: day(2026, time.November, 12), Description: "conference",
	})
	require.NoError(t, err)

	view, err := f.svc.ListCalendar(f.ctx, doctorID, day(2026, time.November, 9), day(2026, time.November, 16))
	require.NoError(t, err)

	require.Len(t, view.Appointments, 1)
	assert.Equal(t, a.ID, view.Appointments[0].ID)

	// two free slots on the 10th, four on the 12th
	assert.Len(t, view.Slots, 6)
	for _, sl := range view.Slots {
		assert.False(t, sl.OnVacation, "inactive vacations do not flag slots")
	}

	require.Len(t, view.Vacations, 1)
	assert.Equal(t, "conference", view.Vacations[0].Description)

	require.Len(t, view.Holidays, 1)
	assert.Equal(t, "2026-11-11", appointment.DayKey(view.Holidays[0].Day))

	_, err = f.svc.ListCalendar(f.ctx, doctorID, day(2026, time.November, 16), day(2026, time.November, 9))
	assert.ErrorIs(t, err, appointment.ErrInvalidDateRange)
}

func TestDayStatusReportsVacationRange(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.DeclareVacation(f.ctx, doctorID, appointment.VacationInput{
		From: day(2026, time.March, 10), To: day(2026, time.March, 13), Active: true,
	})
	require.NoError(t, err)

	status, err := f.svc.DayStatus(f.ctx, doctorID, day(2026, time.March, 11))
	require.NoError(t, err)
	assert.True(t, status.Excluded)
	require.NotNil(t, status.Vacation)
	assert.Equal(t, "2026-03-10", appointment.DayKey(status.Vacation.From))
	assert.Equal(t, "2026-03-13", appointment.DayKey(status.Vacation.To))

	status, err = f.svc.DayStatus(f.ctx, doctorID, day(2026, time.March, 14))
	require.NoError(t, err)
	assert.False(t, status.Excluded)
	assert.Nil(t, status.Vacation)
}
