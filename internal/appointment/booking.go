package appointment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/clinic-booking/internal/phone"
)

type PaymentFlow string

const (
	FlowReserve PaymentFlow = "reserve"
	FlowOnline  PaymentFlow = "online"
)

type PaymentMethod string

const (
	MethodP24         PaymentMethod = "p24"
	MethodTraditional PaymentMethod = "traditional"
)

const DefaultCurrency = "PLN"

type CreateRequest struct {
	DoctorID      uuid.UUID
	VisitTypeCode string
	Start         time.Time
	Patient       Patient
	CreatedBy     Actor
	ClientIP      *string
	PaymentFlow   PaymentFlow
	PaymentMethod PaymentMethod
}

// CreateAppointment books a window for a patient or on behalf of the doctor.
// All checks and the insert run in one transaction under the per doctor lock,
// so two requests for overlapping windows cannot both commit.
func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.CreateAppointment")
	defer span.End()
	span.SetAttributes(
		attribute.String("doctor_id", req.DoctorID.String()),
		attribute.String("visit_type", req.VisitTypeCode),
		attribute.String("created_by", string(req.CreatedBy)),
	)

	created, awaitingPayment, err := s.createAppointment(ctx, req)
	s.metrics.ObserveDecision("create", outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("appointment created",
		"appointment_id", created.ID,
		"doctor_id", created.DoctorID,
		"start", created.Start,
		"visit_type", created.VisitType,
		"created_by", created.CreatedBy,
	)
	s.publish(ctx, Event{
		Type:            TypeCreated,
		Appointment:     *created,
		Actor:           req.CreatedBy,
		AwaitingPayment: awaitingPayment,
	})
	return created, nil
}

func (s *Service) createAppointment(ctx context.Context, req CreateRequest) (*Appointment, bool, error) {
	if req.CreatedBy != ActorPatient && req.CreatedBy != ActorDoctor {
		return nil, false, fmt.Errorf("unsupported creator %q", req.CreatedBy)
	}
	patient, err := s.normalizePatient(req.Patient)
	if err != nil {
		return nil, false, err
	}

	vt, err := s.activeVisitType(ctx, s.repo, req.VisitTypeCode)
	if err != nil {
		return nil, false, err
	}

	start := req.Start.In(s.loc)
	if req.CreatedBy == ActorPatient {
		if !start.After(s.clock()) || start.Before(s.earliestDay(ActorPatient)) {
			return nil, false, ErrSlotUnavailable
		}
	}

	var created *Appointment
	var awaitingPayment bool

	err = s.withDoctorLock(ctx, req.DoctorID, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			if err := s.checkExclusion(lockCtx, tx, req.DoctorID, start, req.CreatedBy, "create"); err != nil {
				return err
			}

			if err := s.checkWindow(lockCtx, tx, req.DoctorID, start, vt.Duration(), nil); err != nil {
				return err
			}

			if req.CreatedBy == ActorPatient {
				blocked, err := tx.IsBlacklisted(lockCtx, req.DoctorID, patient.Phone)
				if err != nil {
					return err
				}
				if blocked {
					return ErrPatientBlocked
				}
				if err := checkPaymentChoice(*vt, req.PaymentFlow, req.PaymentMethod); err != nil {
					return err
				}
			}

			token, err := newCancelToken()
			if err != nil {
				return err
			}

			appt := &Appointment{
				ID:               uuid.New(),
				DoctorID:         req.DoctorID,
				Start:            start,
				End:              start.Add(vt.Duration()),
				DurationMinutes:  vt.DurationMinutes,
				VisitType:        vt.Code,
				Status:           StatusScheduled,
				CreatedBy:        req.CreatedBy,
				CancelToken:      token,
				Patient:          patient,
				ClientIP:         req.ClientIP,
				GoogleSyncStatus: SyncNever,
			}
			if err := tx.InsertAppointment(lockCtx, appt); err != nil {
				return err
			}

			payload := map[string]any{
				"start":      appt.Start,
				"end":        appt.End,
				"visit_type": appt.VisitType,
			}

			if req.CreatedBy == ActorPatient && req.PaymentFlow == FlowOnline {
				awaitingPayment = true
				payload["payment_method"] = req.PaymentMethod
				// Card payments open with the booking; an abandoned checkout still expires.
				p := &Payment{
					ID:            uuid.New(),
					AppointmentID: appt.ID,
					Provider:      ProviderPrzelewy24,
					SessionID:     uuid.NewString(),
					AmountMinor:   *vt.PriceMinor,
					Currency:      DefaultCurrency,
					Status:        PaymentInit,
				}
				if req.PaymentMethod == MethodTraditional {
					p.Provider = ProviderManualTransfer
					p.SessionID = "manual-" + appt.ID.String()
					p.Status = PaymentPending
				}
				if err := tx.InsertPayment(lockCtx, p); err != nil {
					return err
				}
				s.metrics.ObservePayment(string(p.Provider), string(p.Status))
			}

			if err := s.logEvent(lockCtx, tx, &appt.ID, req.CreatedBy, EventAppointmentCreated, payload); err != nil {
				return err
			}

			created = appt
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return created, awaitingPayment, nil
}

// checkExclusion blocks patients on excluded days. Doctors may book them,
// which is logged as a manual override.
func (s *Service) checkExclusion(ctx context.Context, tx Repository, doctorID uuid.UUID, start time.Time, actor Actor, op string) error {
	status, err := s.dayStatus(ctx, tx, doctorID, start)
	if err != nil {
		return err
	}
	if !status.Excluded {
		return nil
	}
	if actor != ActorDoctor {
		return ErrExcludedDay
	}
	s.logger.Warn("manual override on excluded day",
		"override", "excluded_day",
		"operation", op,
		"doctor_id", doctorID,
		"day", DayKey(status.Day),
		"reason", status.Reason,
	)
	return nil
}

func checkPaymentChoice(vt VisitType, flow PaymentFlow, method PaymentMethod) error {
	if vt.OnlyOnlinePayment && flow != FlowOnline {
		return ErrPaymentMethodRequired
	}
	if flow != FlowOnline {
		return nil
	}
	if method != MethodP24 && method != MethodTraditional {
		return ErrPaymentMethodRequired
	}
	if !vt.Payable() {
		return ErrPaymentMethodRequired
	}
	return nil
}

func (s *Service) normalizePatient(p Patient) (Patient, error) {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" || p.LastName == "" {
		return Patient{}, fmt.Errorf("%w: patient name is required", ErrInvalidPatient)
	}
	normalized, err := phone.Normalize(p.Phone, s.cfg.PhoneRegion)
	if err != nil {
		return Patient{}, fmt.Errorf("%w: %v", ErrInvalidPatient, err)
	}
	p.Phone = normalized
	if p.Email != nil {
		email := strings.TrimSpace(*p.Email)
		if email == "" {
			p.Email = nil
		} else {
			p.Email = &email
		}
	}
	return p, nil
}

// MoveAppointment shifts a scheduled appointment to a new start, keeping its length.
// The appointment's own current window does not count as a conflict.
func (s *Service) MoveAppointment(ctx context.Context, id uuid.UUID, newStart time.Time, actor Actor) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.MoveAppointment")
	defer span.End()

	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		s.metrics.ObserveDecision("move", outcome(err))
		return nil, err
	}

	var previous, moved *Appointment
	err = s.withDoctorLock(ctx, current.DoctorID, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			appt, err := tx.GetAppointment(lockCtx, id)
			if err != nil {
				return err
			}
			if appt.Status != StatusScheduled {
				return ErrInvalidTransition
			}

			start := newStart.In(s.loc)
			if actor == ActorPatient && !start.After(s.clock()) {
				return ErrSlotUnavailable
			}
			if err := s.checkExclusion(lockCtx, tx, appt.DoctorID, start, actor, "move"); err != nil {
				return err
			}
			d := time.Duration(appt.DurationMinutes) * time.Minute
			if err := s.checkWindow(lockCtx, tx, appt.DoctorID, start, d, &appt.ID); err != nil {
				return err
			}

			updated, err := tx.UpdateAppointmentWindow(lockCtx, appt.ID, start, start.Add(d))
			if err != nil {
				return err
			}
			if err := s.logEvent(lockCtx, tx, &appt.ID, actor, EventAppointmentMoved, map[string]any{
				"from": appt.Start,
				"to":   updated.Start,
			}); err != nil {
				return err
			}
			previous, moved = appt, updated
			return nil
		})
	})
	s.metrics.ObserveDecision("move", outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("appointment moved", "appointment_id", id, "from", previous.Start, "to", moved.Start, "actor", actor)
	s.publish(ctx, Event{Type: TypeMoved, Appointment: *moved, Previous: previous, Actor: actor})
	return moved, nil
}

// CancelAppointment is the doctor or system cancel. It is allowed only from scheduled.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		s.metrics.ObserveDecision("cancel", outcome(err))
		return nil, err
	}
	switch appt.Status {
	case StatusCancelled:
		err = &CancellationError{Reason: "appointment is already cancelled"}
	case StatusCompleted:
		err = ErrInvalidTransition
	}
	if err != nil {
		s.metrics.ObserveDecision("cancel", outcome(err))
		return nil, err
	}
	return s.cancel(ctx, appt, actor, nil)
}

// CheckCancelToken resolves a cancel link and evaluates the self-cancel policy
// without changing anything.
func (s *Service) CheckCancelToken(ctx context.Context, token string) (*Appointment, CancelDecision, error) {
	appt, err := s.repo.GetAppointmentByCancelToken(ctx, token)
	if err != nil {
		return nil, CancelDecision{}, err
	}
	return appt, CanPatientCancel(*appt, s.clock(), s.cfg.CancelLeadTime), nil
}

// CancelByToken is the patient self-cancel through the emailed/SMS link.
func (s *Service) CancelByToken(ctx context.Context, token string) (*Appointment, error) {
	appt, decision, err := s.CheckCancelToken(ctx, token)
	if err != nil {
		s.metrics.ObserveDecision("cancel_token", outcome(err))
		return nil, err
	}
	if !decision.Allowed {
		err := &CancellationError{Reason: decision.Reason}
		s.metrics.ObserveDecision("cancel_token", outcome(err))
		return nil, err
	}
	return s.cancel(ctx, appt, ActorPatient, nil)
}

// cancel flips scheduled to cancelled. extra runs in the same transaction.
func (s *Service) cancel(ctx context.Context, appt *Appointment, actor Actor, extra func(ctx context.Context, tx Repository) error) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.cancel")
	defer span.End()

	var cancelled *Appointment
	err := s.repo.InTx(ctx, func(tx Repository) error {
		updated, err := tx.UpdateAppointmentStatus(ctx, appt.ID, StatusScheduled, StatusCancelled, actor, s.clock())
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return ErrInvalidTransition
			}
			return err
		}
		if extra != nil {
			if err := extra(ctx, tx); err != nil {
				return err
			}
		}
		if err := s.logEvent(ctx, tx, &appt.ID, actor, EventAppointmentCancelled, map[string]any{
			"start": appt.Start,
		}); err != nil {
			return err
		}
		cancelled = updated
		return nil
	})
	op := "cancel"
	if actor == ActorPatient {
		op = "cancel_token"
	}
	s.metrics.ObserveDecision(op, outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("appointment cancelled", "appointment_id", appt.ID, "actor", actor)
	s.publish(ctx, Event{Type: TypeCancelled, Appointment: *cancelled, Actor: actor})
	return cancelled, nil
}

// CompleteAppointment marks a scheduled visit as done. Completed visits keep blocking their window.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var completed *Appointment
	err := s.repo.InTx(ctx, func(tx Repository) error {
		updated, err := tx.UpdateAppointmentStatus(ctx, id, StatusScheduled, StatusCompleted, ActorDoctor, s.clock())
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				if _, getErr := tx.GetAppointment(ctx, id); getErr != nil {
					return getErr
				}
				return ErrInvalidTransition
			}
			return err
		}
		if err := s.logEvent(ctx, tx, &id, ActorDoctor, EventAppointmentCompleted, nil); err != nil {
			return err
		}
		completed = updated
		return nil
	})
	s.metrics.ObserveDecision("complete", outcome(err))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, Event{Type: TypeCompleted, Appointment: *completed, Actor: ActorDoctor})
	return completed, nil
}

func newCancelToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate cancel token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
