package appointment

import (
	"context"
	"errors"
	"fmt"
)

// ExpireUnpaidAppointments cancels bookings whose Przelewy24 payment stayed
// open longer than the configured expiry. The payment is marked failed in the
// same transaction. Failures on one item are logged and the sweep continues.
func (s *Service) ExpireUnpaidAppointments(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "appointment.ExpireUnpaidAppointments")
	defer span.End()

	cutoff := s.clock().Add(-s.cfg.PaymentExpiry)
	stale, err := s.repo.FindStalePayments(ctx, ProviderPrzelewy24, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale payments: %w", err)
	}

	expired := 0
	for _, p := range stale {
		cancelled, err := s.expirePayment(ctx, p)
		switch {
		case errors.Is(err, errPaymentClosed):
			s.metrics.ObserveSweep("expiry", "skipped")
			continue
		case err != nil:
			s.logger.Error("failed to expire unpaid appointment",
				"payment_id", p.ID,
				"appointment_id", p.AppointmentID,
				"error", err,
			)
			s.metrics.ObserveSweep("expiry", "error")
			continue
		}
		if cancelled {
			expired++
			s.metrics.ObserveSweep("expiry", "cancelled")
		} else {
			s.metrics.ObserveSweep("expiry", "failed_only")
		}
	}
	return expired, nil
}

// expirePayment fails p and cancels its appointment if still scheduled.
func (s *Service) expirePayment(ctx context.Context, p Payment) (bool, error) {
	appt, err := s.repo.GetAppointment(ctx, p.AppointmentID)
	if err != nil {
		return false, err
	}

	failPayment := func(ctx context.Context, tx Repository) error {
		current, err := tx.GetPayment(ctx, p.ID)
		if err != nil {
			return err
		}
		if !current.Status.Open() {
			return errPaymentClosed
		}
		current.Status = PaymentFailed
		if err := tx.UpdatePayment(ctx, current); err != nil {
			return err
		}
		return s.logEvent(ctx, tx, &p.AppointmentID, ActorSystem, EventPaymentExpired, map[string]any{
			"payment_id": p.ID,
			"session_id": p.SessionID,
		})
	}

	if appt.Status != StatusScheduled {
		if err := s.repo.InTx(ctx, func(tx Repository) error { return failPayment(ctx, tx) }); err != nil {
			return false, err
		}
		s.metrics.ObservePayment(string(p.Provider), string(PaymentFailed))
		return false, nil
	}

	if _, err := s.cancel(ctx, appt, ActorSystem, failPayment); err != nil {
		return false, err
	}
	s.metrics.ObservePayment(string(p.Provider), string(PaymentFailed))
	return true, nil
}

// SendDueReminders publishes a reminder for each patient booking starting in
// [now+lead, now+lead+window) and stamps it so it is reminded at most once.
func (s *Service) SendDueReminders(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "appointment.SendDueReminders")
	defer span.End()

	now := s.clock()
	from := now.Add(s.cfg.ReminderLead)
	to := from.Add(s.cfg.ReminderWindow)

	due, err := s.repo.ListReminderCandidates(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list reminder candidates: %w", err)
	}

	sent := 0
	for _, a := range due {
		if err := s.repo.MarkReminderSent(ctx, a.ID, now); err != nil {
			s.logger.Error("failed to stamp reminder", "appointment_id", a.ID, "error", err)
			s.metrics.ObserveSweep("reminder", "error")
			continue
		}
		a.ReminderSentAt = &now
		s.publish(ctx, Event{Type: TypeReminder, Appointment: a, Actor: ActorSystem})
		s.metrics.ObserveSweep("reminder", "sent")
		sent++
	}
	return sent, nil
}
