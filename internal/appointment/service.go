package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/observability/metrics"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

var tracer = otel.Tracer("github.com/hackgods/clinic-booking/internal/appointment")

type Service struct {
	repo      Repository
	locker    redisclient.Locker
	cfg       config.Config
	loc       *time.Location
	holidays  HolidayCalendar
	ranker    HourRanker
	publisher EventPublisher
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithRanker(r HourRanker) Option {
	return func(s *Service) { s.ranker = r }
}

func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, locker redisclient.Locker, holidays HolidayCalendar, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		locker:    locker,
		cfg:       cfg,
		loc:       cfg.Location,
		holidays:  holidays,
		ranker:    GapRanker{Limit: MaxHourSuggestions},
		publisher: nopPublisher{},
		now:       time.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	return s
}

// Location is the clinic time zone all day arithmetic runs in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Repository exposes the store for collaborators that share its transactions.
func (s *Service) Repository() Repository {
	return s.repo
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

// withDoctorLock runs fn under the per doctor lock and maps contention to ErrBookingBusy.
func (s *Service) withDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	err := s.locker.WithDoctorLock(ctx, doctorID, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrBookingBusy
	}
	return err
}

func (s *Service) logEvent(ctx context.Context, store EventStore, appointmentID *uuid.UUID, actor Actor, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Actor:         actor,
		Payload:       data,
		CreatedAt:     s.clock(),
	}

	if err := store.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("log %s: %w", eventType, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, evt Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = s.clock()
	}
	s.publisher.Publish(ctx, evt)
}

// outcome turns an operation error into a metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidVisitType):
		return "invalid_visit_type"
	case errors.Is(err, ErrExcludedDay):
		return "excluded_day"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrWindowConflict):
		return "window_conflict"
	case errors.Is(err, ErrPatientBlocked):
		return "patient_blocked"
	case errors.Is(err, ErrPaymentMethodRequired):
		return "payment_method_required"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrCancellationNotAllowed):
		return "cancellation_not_allowed"
	case errors.Is(err, ErrInvalidPatient):
		return "invalid_patient"
	case errors.Is(err, ErrBookingBusy):
		return "busy"
	case errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// GetAppointment loads one appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}
