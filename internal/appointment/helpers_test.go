package appointment_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/appointment/memstore"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

var warsaw = mustLoad("Europe/Warsaw")

var doctorID = uuid.MustParse("0b8f3f5e-6a7d-4c1b-9d0e-1f2a3b4c5d6e")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func at(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, warsaw)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, warsaw)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []appointment.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt appointment.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []appointment.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]appointment.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) last() appointment.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	svc      *appointment.Service
	store    *memstore.Store
	pub      *recordingPublisher
	cfg      config.Config
	mu       sync.Mutex
	now      time.Time
	holidays appointment.HolidayCalendar
}

func testConfig() config.Config {
	return config.Config{
		Location:           warsaw,
		PhoneRegion:        "PL",
		OpeningHour:        8,
		ClosingHour:        19,
		CancelLeadTime:     48 * time.Hour,
		PaymentExpiry:      30 * time.Minute,
		ReminderLead:       48 * time.Hour,
		ReminderWindow:     20 * time.Minute,
		BookingMinLeadDays: 1,
		DoctorID:           doctorID,
	}
}

// Monday 2 March 2026, 10:00 in Warsaw.
var defaultNow = at(2026, time.March, 2, 10, 0)

func newFixture(t *testing.T, opts ...func(*fixture)) *fixture {
	t.Helper()

	holidays, err := appointment.NewPublicHolidays("NONE")
	require.NoError(t, err)

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    memstore.New(),
		pub:      &recordingPublisher{},
		cfg:      testConfig(),
		now:      defaultNow,
		holidays: holidays,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.store.SetClock(f.clock)
	f.svc = appointment.NewService(f.store, memstore.NewLocker(), f.holidays, f.cfg,
		appointment.WithClock(f.clock),
		appointment.WithPublisher(f.pub),
		appointment.WithLogger(logging.NewWithWriter("error", io.Discard)),
	)
	return f
}

func withHolidays(country string) func(*fixture) {
	return func(f *fixture) {
		h, err := appointment.NewPublicHolidays(country)
		require.NoError(f.t, err)
		f.holidays = h
	}
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func price(v int64) *int64 { return &v }

func (f *fixture) addVisitType(code string, minutes int, mods ...func(*appointment.VisitType)) appointment.VisitType {
	f.t.Helper()
	vt := appointment.VisitType{
		ID:              uuid.New(),
		Code:            code,
		Name:            code,
		DurationMinutes: minutes,
		PriceMinor:      price(20000),
		Color:           "1",
		Active:          true,
	}
	for _, m := range mods {
		m(&vt)
	}
	require.NoError(f.t, f.store.InsertVisitType(f.ctx, &vt))
	return vt
}

// addSlots creates active 15 minute slots on d covering [fromHour, toHour).
func (f *fixture) addSlots(d time.Time, fromHour, toHour int) {
	f.t.Helper()
	var slots []appointment.Slot
	start := time.Date(d.Year(), d.Month(), d.Day(), fromHour, 0, 0, 0, warsaw)
	end := time.Date(d.Year(), d.Month(), d.Day(), toHour, 0, 0, 0, warsaw)
	for tick := start; tick.Before(end); tick = tick.Add(appointment.SlotLength) {
		slots = append(slots, appointment.Slot{
			ID:       uuid.New(),
			DoctorID: doctorID,
			Start:    tick,
			End:      tick.Add(appointment.SlotLength),
			Active:   true,
		})
	}
	_, err := f.store.InsertSlots(f.ctx, slots)
	require.NoError(f.t, err)
}

func (f *fixture) slotAt(start time.Time) appointment.Slot {
	f.t.Helper()
	slots, err := f.store.ListSlots(f.ctx, doctorID, start, start.Add(appointment.SlotLength), false)
	require.NoError(f.t, err)
	require.Len(f.t, slots, 1)
	return slots[0]
}

func patient() appointment.Patient {
	email := "jan.kowalski@example.com"
	return appointment.Patient{
		FirstName: "Jan",
		LastName:  "Kowalski",
		Phone:     "600 700 800",
		Email:     &email,
	}
}

func (f *fixture) book(code string, start time.Time, by appointment.Actor) (*appointment.Appointment, error) {
	return f.svc.CreateAppointment(f.ctx, appointment.CreateRequest{
		DoctorID:      doctorID,
		VisitTypeCode: code,
		Start:         start,
		Patient:       patient(),
		CreatedBy:     by,
	})
}

func (f *fixture) mustBook(code string, start time.Time, by appointment.Actor) *appointment.Appointment {
	f.t.Helper()
	a, err := f.book(code, start, by)
	require.NoError(f.t, err)
	return a
}
