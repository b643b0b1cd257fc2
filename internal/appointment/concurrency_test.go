package appointment_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

func TestConcurrentBookingsOfSameWindow(t *testing.T) {
	f := newFixture(t)
	f.addVisitType("consult", 30)
	f.addSlots(day(2026, time.March, 4), 9, 12)

	const workers = 20
	start := at(2026, time.March, 4, 9, 0)

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.book("consult", start, appointment.ActorPatient)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, appointment.ErrWindowConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func TestConcurrentOverlappingWindows(t *testing.T) {
	f := newFixture(t)
	f.addVisitType("consult", 30)
	f.addVisitType("long", 60)
	f.addSlots(day(2026, time.March, 4), 9, 12)

	// every request covers 9:45-10:00
	starts := []struct {
		code  string
		start time.Time
	}{
		{"long", at(2026, time.March, 4, 9, 0)},
		{"long", at(2026, time.March, 4, 9, 15)},
		{"consult", at(2026, time.March, 4, 9, 30)},
		{"long", at(2026, time.March, 4, 9, 30)},
		{"consult", at(2026, time.March, 4, 9, 45)},
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for round := 0; round < 4; round++ {
		for _, s := range starts {
			wg.Add(1)
			go func(code string, start time.Time) {
				defer wg.Done()
				if _, err := f.book(code, start, appointment.ActorPatient); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}(s.code, s.start)
		}
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assertNoOverlaps(t, f.store.Appointments())
}

// Random creates, moves and cancels from several goroutines must never leave
// two blocking appointments overlapping.
func TestRandomOperationsKeepWindowsDisjoint(t *testing.T) {
	f := newFixture(t)
	codes := []string{"q15", "q30", "q45", "q60"}
	f.addVisitType("q15", 15)
	f.addVisitType("q30", 30)
	f.addVisitType("q45", 45)
	f.addVisitType("q60", 60)
	for d := 3; d <= 6; d++ {
		f.addSlots(day(2026, time.March, d), 8, 19)
	}

	const workers = 8
	const opsPerWorker = 60

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			faker := gofakeit.New(seed)
			var mine []*appointment.Appointment

			randomStart := func() time.Time {
				return at(2026, time.March, faker.Number(3, 6), faker.Number(8, 18), 15*faker.Number(0, 3))
			}

			for i := 0; i < opsPerWorker; i++ {
				switch op := faker.Number(0, 9); {
				case op < 6 || len(mine) == 0:
					email := faker.Email()
					a, err := f.svc.CreateAppointment(f.ctx, appointment.CreateRequest{
						DoctorID:      doctorID,
						VisitTypeCode: codes[faker.Number(0, len(codes)-1)],
						Start:         randomStart(),
						Patient: appointment.Patient{
							FirstName: faker.FirstName(),
							LastName:  faker.LastName(),
							Phone:     "600700800",
							Email:     &email,
						},
						CreatedBy: appointment.ActorDoctor,
					})
					if err == nil {
						mine = append(mine, a)
					} else if !isBookingRejection(err) {
						t.Errorf("unexpected create error: %v", err)
					}
				case op < 8:
					target := mine[faker.Number(0, len(mine)-1)]
					moved, err := f.svc.MoveAppointment(f.ctx, target.ID, randomStart(), appointment.ActorDoctor)
					if err == nil {
						*target = *moved
					} else if !isBookingRejection(err) && !errors.Is(err, appointment.ErrInvalidTransition) {
						t.Errorf("unexpected move error: %v", err)
					}
				default:
					idx := faker.Number(0, len(mine)-1)
					if _, err := f.svc.CancelAppointment(f.ctx, mine[idx].ID, appointment.ActorDoctor); err != nil {
						t.Errorf("cancel %s: %v", mine[idx].ID, err)
					}
					mine = append(mine[:idx], mine[idx+1:]...)
				}
			}
		}(uint64(w + 1))
	}
	wg.Wait()

	appts := f.store.Appointments()
	require.NotEmpty(t, appts)
	assertNoOverlaps(t, appts)
}

func isBookingRejection(err error) bool {
	return errors.Is(err, appointment.ErrWindowConflict) || errors.Is(err, appointment.ErrSlotUnavailable)
}

func assertNoOverlaps(t *testing.T, appts []appointment.Appointment) {
	t.Helper()
	var blocking []appointment.Appointment
	for _, a := range appts {
		if a.Status.Blocking() {
			blocking = append(blocking, a)
		}
	}
	for i := range blocking {
		for j := i + 1; j < len(blocking); j++ {
			if blocking[i].Overlaps(blocking[j].Start, blocking[j].End) {
				t.Errorf("appointments %s [%s, %s) and %s [%s, %s) overlap",
					blocking[i].ID, blocking[i].Start, blocking[i].End,
					blocking[j].ID, blocking[j].Start, blocking[j].End)
			}
		}
	}
}
