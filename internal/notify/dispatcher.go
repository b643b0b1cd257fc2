// Package notify delivers committed appointment events to the patient
// channels (SMS, email) and the doctor's calendar.
package notify

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/observability/metrics"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

// Notifier reacts to one appointment event. Returning nil for events it does
// not care about is expected.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, evt appointment.Event) error
}

type DispatcherOptions struct {
	Workers   int
	QueueSize int
	// Timeout bounds a single notifier call.
	Timeout time.Duration
}

func (o *DispatcherOptions) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
}

// Dispatcher fans events out to notifiers on a fixed worker pool. Each
// appointment is pinned to one worker, so its events arrive in publish order.
// Publish never blocks: once QueueSize events are pending the event is dropped
// and counted.
type Dispatcher struct {
	notifiers []Notifier
	opts      DispatcherOptions
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger

	shards  []chan appointment.Event
	pending atomic.Int64
	wg      sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

func NewDispatcher(notifiers []Notifier, opts DispatcherOptions, m *metrics.BookingMetrics, logger *logging.Logger) *Dispatcher {
	opts.applyDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	shards := make([]chan appointment.Event, opts.Workers)
	for i := range shards {
		shards[i] = make(chan appointment.Event, opts.QueueSize)
	}
	return &Dispatcher{
		notifiers: notifiers,
		opts:      opts,
		metrics:   m,
		logger:    logger,
		shards:    shards,
	}
}

// Start launches the workers. Deliveries keep the values of ctx but not its
// cancellation, so Close drains what is already queued.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	base := context.WithoutCancel(ctx)
	for _, shard := range d.shards {
		d.wg.Add(1)
		go func(queue <-chan appointment.Event) {
			defer d.wg.Done()
			for evt := range queue {
				d.pending.Add(-1)
				d.deliver(base, evt)
			}
		}(shard)
	}
}

func (d *Dispatcher) Publish(_ context.Context, evt appointment.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("dispatcher closed, dropping event",
			"event_type", evt.Type, "appointment_id", evt.Appointment.ID)
		d.metrics.ObserveNotification("dispatcher", string(evt.Type), "dropped")
		return
	}

	if d.pending.Add(1) > int64(d.opts.QueueSize) {
		d.pending.Add(-1)
		d.logger.Warn("notification queue full, dropping event",
			"event_type", evt.Type, "appointment_id", evt.Appointment.ID)
		d.metrics.ObserveNotification("dispatcher", string(evt.Type), "dropped")
		return
	}
	// every shard holds QueueSize events, so this send never blocks
	d.shardFor(evt) <- evt
}

func (d *Dispatcher) shardFor(evt appointment.Event) chan appointment.Event {
	id := evt.Appointment.ID
	return d.shards[binary.BigEndian.Uint64(id[8:])%uint64(len(d.shards))]
}

// Close stops accepting events and waits for queued ones to be delivered.
// Without a prior Start the queue is drained on the calling goroutine.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	started := d.started
	for _, shard := range d.shards {
		close(shard)
	}
	d.mu.Unlock()

	if !started {
		for _, shard := range d.shards {
			for evt := range shard {
				d.pending.Add(-1)
				d.deliver(context.Background(), evt)
			}
		}
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, evt appointment.Event) {
	for _, n := range d.notifiers {
		err := d.call(ctx, n, evt)
		status := "ok"
		if err != nil {
			status = "error"
			d.logger.Error("notifier failed",
				"notifier", n.Name(),
				"event_type", evt.Type,
				"appointment_id", evt.Appointment.ID,
				"error", err,
			)
		}
		d.metrics.ObserveNotification(n.Name(), string(evt.Type), status)
	}
}

func (d *Dispatcher) call(ctx context.Context, n Notifier, evt appointment.Event) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier %s panicked: %v", n.Name(), r)
		}
	}()
	return n.Notify(ctx, evt)
}
