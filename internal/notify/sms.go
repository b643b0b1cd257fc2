package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/settings"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

// ConfirmationMarker stamps confirmation_sent_at once a patient was told.
type ConfirmationMarker interface {
	MarkConfirmationSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// SMSNotifier texts patients through SMSAPI. It is a no-op while sms_enabled
// is off or no API token is configured.
type SMSNotifier struct {
	sender   SMSSender
	log      SMSLog
	appts    ConfirmationMarker
	settings *settings.Service
	texts    Texts
	logger   *logging.Logger
	now      func() time.Time
}

func NewSMSNotifier(sender SMSSender, log SMSLog, appts ConfirmationMarker, st *settings.Service, texts Texts, logger *logging.Logger) *SMSNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &SMSNotifier{
		sender:   sender,
		log:      log,
		appts:    appts,
		settings: st,
		texts:    texts,
		logger:   logger,
		now:      time.Now,
	}
}

func (n *SMSNotifier) Name() string { return "sms" }

func (n *SMSNotifier) Notify(ctx context.Context, evt appointment.Event) error {
	kind := kindFor(evt)
	if kind == "" || evt.Appointment.Patient.Phone == "" {
		return nil
	}
	if !n.settings.Bool(ctx, settings.SMSEnabled) {
		return nil
	}
	if kind == KindReminder && !n.settings.Bool(ctx, settings.SMSRemindersEnabled) {
		return nil
	}
	token := n.settings.String(ctx, settings.SMSAPIToken)
	if token == "" {
		n.logger.Warn("sms enabled without an api token", "appointment_id", evt.Appointment.ID)
		return nil
	}

	appt := evt.Appointment
	apptID := appt.ID
	msg := &SMSMessage{
		ID:            uuid.New(),
		AppointmentID: &apptID,
		Kind:          kind,
		Phone:         appt.Patient.Phone,
		Body:          n.texts.SMS(kind, appt),
		Status:        SMSPending,
		CreatedAt:     n.now(),
	}
	if err := n.log.InsertSMS(ctx, msg); err != nil {
		return err
	}

	providerID, sendErr := n.sender.Send(ctx, token, n.settings.String(ctx, settings.SMSAPISender), msg.Phone, msg.Body)
	if sendErr != nil {
		reason := sendErr.Error()
		msg.Status = SMSFailed
		msg.Error = &reason
	} else {
		sentAt := n.now()
		msg.Status = SMSSent
		msg.ProviderID = &providerID
		msg.SentAt = &sentAt
	}
	if err := n.log.UpdateSMS(ctx, msg); err != nil {
		n.logger.Error("failed to record sms result", "sms_id", msg.ID, "error", err)
	}
	if sendErr != nil {
		return sendErr
	}

	n.logger.Info("sms sent", "appointment_id", appt.ID, "kind", kind, "provider_id", providerID)
	if kind == KindConfirmation {
		return n.appts.MarkConfirmationSent(ctx, appt.ID, *msg.SentAt)
	}
	return nil
}
