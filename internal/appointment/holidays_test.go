package appointment_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

func TestPolishHolidays(t *testing.T) {
	h, err := appointment.NewPublicHolidays("pl")
	require.NoError(t, err)

	assert.True(t, h.IsHoliday(day(2026, time.November, 11)))
	assert.True(t, h.IsHoliday(day(2026, time.April, 6)), "Easter Monday")
	assert.True(t, h.IsHoliday(day(2027, time.January, 1)))
	assert.False(t, h.IsHoliday(day(2026, time.March, 4)))

	name, ok := h.Name(day(2026, time.May, 3))
	assert.True(t, ok)
	assert.NotEmpty(t, name)
}

func TestNoHolidays(t *testing.T) {
	h, err := appointment.NewPublicHolidays("NONE")
	require.NoError(t, err)
	assert.False(t, h.IsHoliday(day(2026, time.December, 25)))
}

func TestUnknownHolidayCountry(t *testing.T) {
	_, err := appointment.NewPublicHolidays("XX")
	assert.Error(t, err)
}
