package notify

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

func quietLogger() *logging.Logger {
	return logging.NewWithWriter("error", io.Discard)
}

type recordingNotifier struct {
	name string
	fn   func(ctx context.Context, evt appointment.Event) error

	mu     sync.Mutex
	events []appointment.Event
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(ctx context.Context, evt appointment.Event) error {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(ctx, evt)
	}
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func event(t appointment.EventType) appointment.Event {
	return appointment.Event{Type: t, Appointment: appointment.Appointment{ID: uuid.New()}}
}

func TestDispatcherDeliversToEveryNotifier(t *testing.T) {
	a := &recordingNotifier{name: "a"}
	b := &recordingNotifier{name: "b"}
	d := NewDispatcher([]Notifier{a, b}, DispatcherOptions{Workers: 3}, nil, quietLogger())
	d.Start(context.Background())

	for i := 0; i < 20; i++ {
		d.Publish(context.Background(), event(appointment.TypeCreated))
	}
	d.Close()

	assert.Equal(t, 20, a.count())
	assert.Equal(t, 20, b.count())
}

func TestDispatcherSurvivesPanicsAndTimeouts(t *testing.T) {
	panicky := &recordingNotifier{name: "panicky", fn: func(context.Context, appointment.Event) error {
		panic("boom")
	}}
	var sawDeadline bool
	slow := &recordingNotifier{name: "slow", fn: func(ctx context.Context, _ appointment.Event) error {
		_, sawDeadline = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	}}
	last := &recordingNotifier{name: "last"}

	d := NewDispatcher([]Notifier{panicky, slow, last}, DispatcherOptions{Workers: 1, Timeout: 20 * time.Millisecond}, nil, quietLogger())
	d.Start(context.Background())
	d.Publish(context.Background(), event(appointment.TypeReminder))
	d.Close()

	assert.Equal(t, 1, panicky.count())
	assert.Equal(t, 1, slow.count())
	assert.Equal(t, 1, last.count())
	assert.True(t, sawDeadline)
}

func TestDispatcherDropsWhenQueueIsFull(t *testing.T) {
	n := &recordingNotifier{name: "n"}
	d := NewDispatcher([]Notifier{n}, DispatcherOptions{QueueSize: 2}, nil, quietLogger())

	for i := 0; i < 5; i++ {
		d.Publish(context.Background(), event(appointment.TypeCreated))
	}
	d.Close()
	assert.Equal(t, 2, n.count())

	d.Publish(context.Background(), event(appointment.TypeCreated))
	assert.Equal(t, 2, n.count(), "publishing after close is dropped")
}

func TestDispatcherIgnoresCallerCancellation(t *testing.T) {
	var deliveredErr error
	n := &recordingNotifier{name: "n", fn: func(ctx context.Context, _ appointment.Event) error {
		deliveredErr = ctx.Err()
		return nil
	}}
	d := NewDispatcher([]Notifier{n}, DispatcherOptions{Workers: 1}, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()

	reqCtx, reqCancel := context.WithCancel(context.Background())
	d.Publish(reqCtx, event(appointment.TypeCreated))
	reqCancel()
	d.Close()

	require.Equal(t, 1, n.count())
	assert.NoError(t, deliveredErr)
}

func TestDispatcherKeepsOrderPerAppointment(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[uuid.UUID][]appointment.EventType)
	n := &recordingNotifier{name: "calendar", fn: func(_ context.Context, evt appointment.Event) error {
		// uneven work so unpinned workers would overtake each other
		if evt.Type == appointment.TypeCreated {
			time.Sleep(time.Millisecond)
		}
		mu.Lock()
		seen[evt.Appointment.ID] = append(seen[evt.Appointment.ID], evt.Type)
		mu.Unlock()
		return nil
	}}
	d := NewDispatcher([]Notifier{n}, DispatcherOptions{Workers: 4}, nil, quietLogger())
	d.Start(context.Background())

	lifecycle := []appointment.EventType{appointment.TypeCreated, appointment.TypeMoved, appointment.TypeCancelled}
	ids := make([]uuid.UUID, 12)
	for i := range ids {
		ids[i] = uuid.New()
	}
	for _, typ := range lifecycle {
		for _, id := range ids {
			d.Publish(context.Background(), appointment.Event{Type: typ, Appointment: appointment.Appointment{ID: id}})
		}
	}
	d.Close()

	require.Len(t, seen, len(ids))
	for _, id := range ids {
		assert.Equal(t, lifecycle, seen[id], "appointment %s", id)
	}
}

func TestDispatcherQueueBoundSpansWorkers(t *testing.T) {
	n := &recordingNotifier{name: "n"}
	d := NewDispatcher([]Notifier{n}, DispatcherOptions{Workers: 4, QueueSize: 3}, nil, quietLogger())

	for i := 0; i < 10; i++ {
		d.Publish(context.Background(), event(appointment.TypeCreated))
	}
	d.Close()
	assert.Equal(t, 3, n.count())
}
