// Package gcal mirrors appointments into the doctor's Google Calendar.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/settings"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

var ErrNotConnected = errors.New("google calendar is not connected")

const defaultColorID = "1"

// Store is the slice of the appointment repository the sync needs.
type Store interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error)
	GetVisitTypeByCode(ctx context.Context, code string) (*appointment.VisitType, error)
	UpdateCalendarSync(ctx context.Context, id uuid.UUID, eventID *string, status appointment.SyncStatus, at time.Time) error
}

type Option func(*Notifier)

// WithClientOptions replaces the OAuth token source when building the API client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(n *Notifier) { n.clientOpts = opts }
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

func NewOAuthConfig(cfg config.GoogleConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarScope},
	}
}

// Notifier keeps calendar events in step with appointment changes. The
// connection state lives in the settings table so the doctor can link and
// unlink an account at runtime.
type Notifier struct {
	oauth      *oauth2.Config
	store      Store
	settings   *settings.Service
	loc        *time.Location
	logger     *logging.Logger
	clientOpts []option.ClientOption
	now        func() time.Time
}

func New(oauthCfg *oauth2.Config, store Store, st *settings.Service, loc *time.Location, logger *logging.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	n := &Notifier{
		oauth:    oauthCfg,
		store:    store,
		settings: st,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) Name() string { return "google_calendar" }

func (n *Notifier) Notify(ctx context.Context, evt appointment.Event) error {
	if !n.Connected(ctx) {
		return nil
	}
	id := evt.Appointment.ID
	switch evt.Type {
	case appointment.TypeCreated:
		if evt.AwaitingPayment {
			return nil
		}
		return n.Sync(ctx, id, false)
	case appointment.TypePaid:
		return n.Sync(ctx, id, false)
	case appointment.TypeMoved:
		return n.Sync(ctx, id, true)
	case appointment.TypeCancelled:
		return n.Remove(ctx, id)
	}
	return nil
}

func (n *Notifier) Connected(ctx context.Context) bool {
	return n.settings.String(ctx, settings.GoogleConnected) == "1" &&
		n.settings.String(ctx, settings.GoogleRefreshToken) != ""
}

func (n *Notifier) calendarID(ctx context.Context) string {
	if id := n.settings.String(ctx, settings.GoogleCalendarID); id != "" {
		return id
	}
	return "primary"
}

func (n *Notifier) service(ctx context.Context) (*calendar.Service, error) {
	if !n.Connected(ctx) {
		return nil, ErrNotConnected
	}
	tok := &oauth2.Token{RefreshToken: n.settings.String(ctx, settings.GoogleRefreshToken)}
	return n.newService(ctx, tok)
}

func (n *Notifier) newService(ctx context.Context, tok *oauth2.Token) (*calendar.Service, error) {
	opts := n.clientOpts
	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithTokenSource(n.oauth.TokenSource(ctx, tok))}
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcal: create service: %w", err)
	}
	return svc, nil
}

func (n *Notifier) buildEvent(ctx context.Context, appt *appointment.Appointment) *calendar.Event {
	color := defaultColorID
	if vt, err := n.store.GetVisitTypeByCode(ctx, appt.VisitType); err == nil && vt.Color != "" {
		color = vt.Color
	}
	return &calendar.Event{
		Summary:     fmt.Sprintf("Wizyta: %s %s", appt.Patient.FirstName, appt.Patient.LastName),
		Description: "Telefon: " + appt.Patient.Phone,
		Start: &calendar.EventDateTime{
			DateTime: appt.Start.In(n.loc).Format(time.RFC3339),
			TimeZone: n.loc.String(),
		},
		End: &calendar.EventDateTime{
			DateTime: appt.End.In(n.loc).Format(time.RFC3339),
			TimeZone: n.loc.String(),
		},
		ColorId: color,
	}
}

// Sync creates or updates the event of one appointment. Without force an
// already synced appointment is left alone.
func (n *Notifier) Sync(ctx context.Context, id uuid.UUID, force bool) error {
	svc, err := n.service(ctx)
	if err != nil {
		return err
	}
	appt, err := n.store.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if !appt.Status.Blocking() {
		return nil
	}
	if appt.GoogleSyncStatus == appointment.SyncSynced && !force {
		return nil
	}

	calID := n.calendarID(ctx)
	ev := n.buildEvent(ctx, appt)

	var eventID string
	if appt.GoogleEventID != nil {
		eventID = *appt.GoogleEventID
		_, err = svc.Events.Update(calID, eventID, ev).Context(ctx).Do()
	} else {
		var created *calendar.Event
		created, err = svc.Events.Insert(calID, ev).Context(ctx).Do()
		if err == nil {
			eventID = created.Id
		}
	}
	if err != nil {
		n.markError(ctx, appt)
		return fmt.Errorf("gcal: sync appointment %s: %w", appt.ID, err)
	}
	return n.store.UpdateCalendarSync(ctx, appt.ID, &eventID, appointment.SyncSynced, n.now())
}

// ForceAdd always inserts a new event, even if one is already linked.
func (n *Notifier) ForceAdd(ctx context.Context, id uuid.UUID) error {
	svc, err := n.service(ctx)
	if err != nil {
		return err
	}
	appt, err := n.store.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	created, err := svc.Events.Insert(n.calendarID(ctx), n.buildEvent(ctx, appt)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gcal: add appointment %s: %w", appt.ID, err)
	}
	n.logger.Warn("calendar event added manually", "override", "force_add", "appointment_id", appt.ID, "event_id", created.Id)
	return n.store.UpdateCalendarSync(ctx, appt.ID, &created.Id, appointment.SyncSynced, n.now())
}

// Remove deletes the linked event. A failed delete is logged and the link is
// dropped anyway.
func (n *Notifier) Remove(ctx context.Context, id uuid.UUID) error {
	appt, err := n.store.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if appt.GoogleEventID == nil {
		return nil
	}
	svc, err := n.service(ctx)
	if err != nil {
		return err
	}

	err = svc.Events.Delete(n.calendarID(ctx), *appt.GoogleEventID).Context(ctx).Do()
	if err != nil && !isGone(err) {
		n.logger.Warn("calendar delete skipped", "appointment_id", appt.ID, "event_id", *appt.GoogleEventID, "error", err)
	}
	return n.store.UpdateCalendarSync(ctx, appt.ID, nil, appointment.SyncDeleted, n.now())
}

type BatchResult struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Limit   int `json:"limit"`
}

// SyncPending pushes scheduled appointments in [from, to) that are not in
// sync yet, at most limit of them.
func (n *Notifier) SyncPending(ctx context.Context, doctorID uuid.UUID, from, to time.Time, limit int) (BatchResult, error) {
	res := BatchResult{Limit: limit}
	if !n.Connected(ctx) {
		return res, ErrNotConnected
	}
	appts, err := n.store.ListAppointments(ctx, doctorID, from, to)
	if err != nil {
		return res, err
	}
	for _, a := range appts {
		if res.Synced+res.Skipped >= limit {
			break
		}
		if a.Status != appointment.StatusScheduled || a.GoogleSyncStatus == appointment.SyncSynced {
			continue
		}
		if err := n.Sync(ctx, a.ID, true); err != nil {
			n.logger.Warn("batch sync skipped appointment", "appointment_id", a.ID, "error", err)
			res.Skipped++
			continue
		}
		res.Synced++
	}
	return res, nil
}

func (n *Notifier) markError(ctx context.Context, appt *appointment.Appointment) {
	if err := n.store.UpdateCalendarSync(ctx, appt.ID, appt.GoogleEventID, appointment.SyncError, n.now()); err != nil {
		n.logger.Error("failed to record calendar sync error", "appointment_id", appt.ID, "error", err)
	}
}

func isGone(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
	}
	return false
}
