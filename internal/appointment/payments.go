package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrPaymentMismatch = errors.New("payment amount or currency does not match")
	ErrPaymentNotOpen  = errors.New("payment is no longer open")
	ErrNothingToPay    = errors.New("appointment has nothing to pay")
	errPaymentClosed   = errors.New("payment changed before expiry")
)

// StartOnlinePayment returns the open Przelewy24 payment for a scheduled
// appointment, creating it when none exists.
func (s *Service) StartOnlinePayment(ctx context.Context, appointmentID uuid.UUID) (*Payment, *Appointment, error) {
	var payment *Payment
	var appt *Appointment

	err := s.repo.InTx(ctx, func(tx Repository) error {
		a, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if a.Status != StatusScheduled {
			return ErrInvalidTransition
		}

		existing, err := tx.ListPaymentsForAppointment(ctx, a.ID)
		if err != nil {
			return err
		}
		for i := range existing {
			p := existing[i]
			if p.Status == PaymentPaid {
				return ErrNothingToPay
			}
			if p.Provider == ProviderPrzelewy24 && p.Status.Open() {
				payment, appt = &p, a
				return nil
			}
		}

		vt, err := tx.GetVisitTypeByCode(ctx, a.VisitType)
		if err != nil {
			return err
		}
		if !vt.Payable() {
			return ErrNothingToPay
		}

		p := &Payment{
			ID:            uuid.New(),
			AppointmentID: a.ID,
			Provider:      ProviderPrzelewy24,
			SessionID:     uuid.NewString(),
			AmountMinor:   *vt.PriceMinor,
			Currency:      DefaultCurrency,
			Status:        PaymentInit,
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		payment, appt = p, a
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.metrics.ObservePayment(string(payment.Provider), string(payment.Status))
	return payment, appt, nil
}

// AttachPaymentToken stores the gateway token and moves the payment to pending.
func (s *Service) AttachPaymentToken(ctx context.Context, paymentID uuid.UUID, token string) (*Payment, error) {
	p, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.Status.Open() {
		return nil, ErrPaymentNotOpen
	}
	p.Token = &token
	p.Status = PaymentPending
	if err := s.repo.UpdatePayment(ctx, p); err != nil {
		return nil, err
	}
	s.metrics.ObservePayment(string(p.Provider), string(p.Status))
	return p, nil
}

// GetPaymentBySession looks a payment up by its gateway session id.
func (s *Service) GetPaymentBySession(ctx context.Context, sessionID string) (*Payment, error) {
	return s.repo.GetPaymentBySession(ctx, sessionID)
}

// PaymentsForAppointment lists every payment attempt of an appointment.
func (s *Service) PaymentsForAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Payment, error) {
	return s.repo.ListPaymentsForAppointment(ctx, appointmentID)
}

// MarkPaymentPaid settles a payment after the gateway verified it.
// Repeated notifications for an already paid session are no-ops.
func (s *Service) MarkPaymentPaid(ctx context.Context, sessionID, orderID string, amountMinor int64, currency string) (*Payment, error) {
	var paid *Payment
	var appt *Appointment
	alreadyPaid := false

	err := s.repo.InTx(ctx, func(tx Repository) error {
		p, err := tx.GetPaymentBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		if p.Status == PaymentPaid {
			paid, alreadyPaid = p, true
			return nil
		}
		if p.AmountMinor != amountMinor || (currency != "" && p.Currency != currency) {
			return ErrPaymentMismatch
		}
		return s.settlePayment(ctx, tx, p, orderID, func(a *Appointment) { paid, appt = p, a })
	})
	if err != nil {
		return nil, err
	}
	if alreadyPaid {
		return paid, nil
	}
	s.afterPaid(ctx, paid, appt)
	return paid, nil
}

// ConfirmManualPayment records a traditional transfer the doctor has received.
func (s *Service) ConfirmManualPayment(ctx context.Context, paymentID uuid.UUID) (*Payment, error) {
	var paid *Payment
	var appt *Appointment

	err := s.repo.InTx(ctx, func(tx Repository) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Provider != ProviderManualTransfer || !p.Status.Open() {
			return ErrPaymentNotOpen
		}
		return s.settlePayment(ctx, tx, p, "", func(a *Appointment) { paid, appt = p, a })
	})
	if err != nil {
		return nil, err
	}
	s.afterPaid(ctx, paid, appt)
	return paid, nil
}

func (s *Service) settlePayment(ctx context.Context, tx Repository, p *Payment, orderID string, done func(*Appointment)) error {
	now := s.clock()
	if orderID != "" {
		p.OrderID = &orderID
	}
	p.Status = PaymentPaid
	p.PaidAt = &now
	if err := tx.UpdatePayment(ctx, p); err != nil {
		return err
	}

	a, err := tx.GetAppointment(ctx, p.AppointmentID)
	if err != nil {
		return err
	}
	if err := s.logEvent(ctx, tx, &a.ID, ActorSystem, EventAppointmentPaid, map[string]any{
		"payment_id": p.ID,
		"provider":   p.Provider,
		"amount":     p.AmountMinor,
	}); err != nil {
		return err
	}
	done(a)
	return nil
}

func (s *Service) afterPaid(ctx context.Context, p *Payment, appt *Appointment) {
	s.metrics.ObservePayment(string(p.Provider), string(p.Status))
	if appt.Status != StatusScheduled {
		s.logger.Warn("payment settled for appointment that is no longer scheduled",
			"appointment_id", appt.ID,
			"payment_id", p.ID,
			"status", appt.Status,
		)
		return
	}
	s.logger.Info("appointment paid", "appointment_id", appt.ID, "payment_id", p.ID, "provider", p.Provider)
	s.publish(ctx, Event{Type: TypePaid, Appointment: *appt, Actor: ActorSystem, Payment: p})
}

// MarkPaymentFailed closes an open payment reported as failed by the gateway.
func (s *Service) MarkPaymentFailed(ctx context.Context, sessionID string) (*Payment, error) {
	p, err := s.repo.GetPaymentBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !p.Status.Open() {
		return p, nil
	}
	p.Status = PaymentFailed
	if err := s.repo.UpdatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("fail payment: %w", err)
	}
	s.metrics.ObservePayment(string(p.Provider), string(p.Status))
	return p, nil
}
