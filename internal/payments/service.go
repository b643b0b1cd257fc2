package payments

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

var (
	ErrInvalidSignature    = errors.New("invalid payment signature")
	ErrInvalidNotification = errors.New("invalid payment notification")
	ErrNotConfigured       = errors.New("online payments are not configured")
)

// Gateway is the part of Przelewy24 the checkout flow depends on.
type Gateway interface {
	Register(ctx context.Context, req RegisterRequest) (string, error)
	Verify(ctx context.Context, req VerifyRequest) error
	StatusSign(sessionID, orderID string, amountMinor int64, currency string) string
	RedirectURL(token string) string
}

// Ledger is the engine side of a payment: appointment.Service implements it.
type Ledger interface {
	StartOnlinePayment(ctx context.Context, appointmentID uuid.UUID) (*appointment.Payment, *appointment.Appointment, error)
	AttachPaymentToken(ctx context.Context, paymentID uuid.UUID, token string) (*appointment.Payment, error)
	GetPaymentBySession(ctx context.Context, sessionID string) (*appointment.Payment, error)
	MarkPaymentPaid(ctx context.Context, sessionID, orderID string, amountMinor int64, currency string) (*appointment.Payment, error)
	MarkPaymentFailed(ctx context.Context, sessionID string) (*appointment.Payment, error)
}

type Checkout struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	SessionID   string    `json:"session_id"`
	RedirectURL string    `json:"redirect_url"`
}

// StatusNotification is what Przelewy24 posts to urlStatus.
type StatusNotification struct {
	SessionID   string
	OrderID     string
	AmountMinor int64
	Currency    string
	Sign        string
}

type Service struct {
	ledger       Ledger
	gateway      Gateway
	fallbackMail string
	location     *time.Location
	logger       *logging.Logger
}

// NewService wires the checkout flow. gateway may be nil when Przelewy24 is
// not configured; every call then fails with ErrNotConfigured.
func NewService(ledger Ledger, gateway Gateway, fallbackMail string, loc *time.Location, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{ledger: ledger, gateway: gateway, fallbackMail: fallbackMail, location: loc, logger: logger}
}

// Init opens (or reuses) the online payment of an appointment without
// contacting the gateway.
func (s *Service) Init(ctx context.Context, appointmentID uuid.UUID) (*appointment.Payment, error) {
	if s.gateway == nil {
		return nil, ErrNotConfigured
	}
	p, _, err := s.ledger.StartOnlinePayment(ctx, appointmentID)
	return p, err
}

// Checkout registers the payment with Przelewy24 and returns where to send
// the patient. A payment already registered keeps its token.
func (s *Service) Checkout(ctx context.Context, appointmentID uuid.UUID) (*Checkout, error) {
	if s.gateway == nil {
		return nil, ErrNotConfigured
	}
	p, appt, err := s.ledger.StartOnlinePayment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if p.Status == appointment.PaymentPending && p.Token != nil {
		return &Checkout{PaymentID: p.ID, SessionID: p.SessionID, RedirectURL: s.gateway.RedirectURL(*p.Token)}, nil
	}

	email := s.fallbackMail
	if appt.Patient.Email != nil && *appt.Patient.Email != "" {
		email = *appt.Patient.Email
	}
	token, err := s.gateway.Register(ctx, RegisterRequest{
		SessionID:   p.SessionID,
		AmountMinor: p.AmountMinor,
		Currency:    p.Currency,
		Description: "Wizyta " + appt.Start.In(s.location).Format("02.01.2006 15:04"),
		Email:       email,
	})
	if err != nil {
		s.logger.Error("p24 register failed", "appointment_id", appointmentID, "payment_id", p.ID, "error", err)
		return nil, err
	}

	p, err = s.ledger.AttachPaymentToken(ctx, p.ID, token)
	if err != nil {
		return nil, err
	}
	return &Checkout{PaymentID: p.ID, SessionID: p.SessionID, RedirectURL: s.gateway.RedirectURL(token)}, nil
}

// HandleStatus processes a gateway status notification: amount and sign are
// checked locally, then the transaction is verified with the gateway before
// the payment is marked paid. Any rejection fails the payment.
func (s *Service) HandleStatus(ctx context.Context, n StatusNotification) (*appointment.Payment, error) {
	if s.gateway == nil {
		return nil, ErrNotConfigured
	}
	if n.SessionID == "" || n.OrderID == "" || n.Currency == "" || n.Sign == "" {
		return nil, ErrInvalidNotification
	}
	orderID, err := strconv.ParseInt(n.OrderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: order id %q", ErrInvalidNotification, n.OrderID)
	}

	p, err := s.ledger.GetPaymentBySession(ctx, n.SessionID)
	if err != nil {
		return nil, err
	}
	if p.Provider != appointment.ProviderPrzelewy24 {
		return nil, appointment.ErrPaymentNotFound
	}
	if p.Status == appointment.PaymentPaid {
		return p, nil
	}

	log := s.logger.With("payment_id", p.ID, "session_id", p.SessionID, "order_id", n.OrderID)

	if p.AmountMinor != n.AmountMinor || p.Currency != n.Currency {
		log.Warn("p24 notification amount mismatch", "expected", p.AmountMinor, "got", n.AmountMinor)
		s.fail(ctx, p.SessionID)
		return nil, appointment.ErrPaymentMismatch
	}

	expected := s.gateway.StatusSign(n.SessionID, n.OrderID, n.AmountMinor, n.Currency)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(n.Sign)) != 1 {
		log.Warn("p24 notification sign mismatch")
		s.fail(ctx, p.SessionID)
		return nil, ErrInvalidSignature
	}

	if err := s.gateway.Verify(ctx, VerifyRequest{
		SessionID:   p.SessionID,
		OrderID:     orderID,
		AmountMinor: p.AmountMinor,
		Currency:    p.Currency,
	}); err != nil {
		log.Error("p24 verify failed", "error", err)
		s.fail(ctx, p.SessionID)
		return nil, err
	}

	return s.ledger.MarkPaymentPaid(ctx, p.SessionID, n.OrderID, n.AmountMinor, n.Currency)
}

// Status reports the payment of a session, used by the browser return page.
func (s *Service) Status(ctx context.Context, sessionID string) (*appointment.Payment, error) {
	return s.ledger.GetPaymentBySession(ctx, sessionID)
}

func (s *Service) fail(ctx context.Context, sessionID string) {
	if _, err := s.ledger.MarkPaymentFailed(ctx, sessionID); err != nil {
		s.logger.Error("failed to mark payment failed", "session_id", sessionID, "error", err)
	}
}
