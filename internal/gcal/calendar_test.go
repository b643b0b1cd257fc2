package gcal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/appointment/memstore"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/settings"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

var warsaw = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		panic(err)
	}
	return loc
}()

var doctorID = uuid.MustParse("0b8f3f5e-6a7d-4c1b-9d0e-1f2a3b4c5d6e")

type apiCall struct {
	Method string
	Path   string
	Body   map[string]any
}

type fakeCalendarAPI struct {
	mu         sync.Mutex
	calls      []apiCall
	failInsert bool
	deleteCode int
}

func (f *fakeCalendarAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	call := apiCall{Method: r.Method, Path: r.URL.Path}
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &call.Body)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	failInsert, deleteCode := f.failInsert, f.deleteCode
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && failInsert:
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend error"}}`))
	case r.Method == http.MethodPost:
		_, _ = w.Write([]byte(`{"id":"evt-1"}`))
	case r.Method == http.MethodPut:
		parts := strings.Split(r.URL.Path, "/")
		_, _ = w.Write([]byte(`{"id":"` + parts[len(parts)-1] + `"}`))
	case r.Method == http.MethodDelete:
		if deleteCode != 0 {
			w.WriteHeader(deleteCode)
			_, _ = w.Write([]byte(`{"error":{"code":410,"message":"gone"}}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet:
		_, _ = w.Write([]byte(`{"id":"doctor@example.pl"}`))
	}
}

func (f *fakeCalendarAPI) recorded() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

type fixture struct {
	ctx   context.Context
	api   *fakeCalendarAPI
	store *memstore.Store
	st    *settings.Service
	n     *Notifier
}

func newFixture(t *testing.T, values map[string]string) *fixture {
	t.Helper()
	api := &fakeCalendarAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	logger := logging.NewWithWriter("error", io.Discard)
	store := memstore.New()
	st := settings.NewService(settings.NewMemoryStore(values), time.Minute, logger)
	now := time.Date(2026, time.March, 2, 10, 0, 0, 0, warsaw)

	n := New(NewOAuthConfig(config.GoogleConfig{ClientID: "id", ClientSecret: "secret"}), store, st, warsaw, logger,
		WithClientOptions(option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client())),
		WithClock(func() time.Time { return now }),
	)
	return &fixture{ctx: context.Background(), api: api, store: store, st: st, n: n}
}

func connected() map[string]string {
	return map[string]string{
		settings.GoogleConnected:    "1",
		settings.GoogleRefreshToken: "refresh",
		settings.GoogleCalendarID:   "clinic",
	}
}

func (f *fixture) insert(t *testing.T, mods ...func(a *appointment.Appointment)) appointment.Appointment {
	t.Helper()
	a := appointment.Appointment{
		ID:               uuid.New(),
		DoctorID:         doctorID,
		Start:            time.Date(2026, time.March, 4, 9, 0, 0, 0, warsaw),
		End:              time.Date(2026, time.March, 4, 9, 30, 0, 0, warsaw),
		DurationMinutes:  30,
		VisitType:        "consult",
		Status:           appointment.StatusScheduled,
		CreatedBy:        appointment.ActorPatient,
		CancelToken:      uuid.NewString(),
		Patient:          appointment.Patient{FirstName: "Anna", LastName: "Nowak", Phone: "+48600100200"},
		GoogleSyncStatus: appointment.SyncNever,
	}
	for _, m := range mods {
		m(&a)
	}
	require.NoError(t, f.store.InsertAppointment(f.ctx, &a))
	return a
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *appointment.Appointment {
	t.Helper()
	a, err := f.store.GetAppointment(f.ctx, id)
	require.NoError(t, err)
	return a
}

func TestNotifyCreatesEvent(t *testing.T) {
	f := newFixture(t, connected())
	require.NoError(t, f.store.InsertVisitType(f.ctx, &appointment.VisitType{ID: uuid.New(), Code: "consult", DurationMinutes: 30, Color: "5", Active: true}))
	a := f.insert(t)

	require.NoError(t, f.n.Notify(f.ctx, appointment.Event{Type: appointment.TypeCreated, Appointment: a}))

	calls := f.api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "/calendars/clinic/events", calls[0].Path)
	assert.Equal(t, "Wizyta: Anna Nowak", calls[0].Body["summary"])
	assert.Equal(t, "Telefon: +48600100200", calls[0].Body["description"])
	assert.Equal(t, "5", calls[0].Body["colorId"])
	start := calls[0].Body["start"].(map[string]any)
	assert.Equal(t, "2026-03-04T09:00:00+01:00", start["dateTime"])
	assert.Equal(t, "Europe/Warsaw", start["timeZone"])

	got := f.reload(t, a.ID)
	assert.Equal(t, appointment.SyncSynced, got.GoogleSyncStatus)
	require.NotNil(t, got.GoogleEventID)
	assert.Equal(t, "evt-1", *got.GoogleEventID)

	// a second created event does not duplicate the calendar entry
	require.NoError(t, f.n.Notify(f.ctx, appointment.Event{Type: appointment.TypeCreated, Appointment: *got}))
	assert.Len(t, f.api.recorded(), 1)
}

func TestNotifyMovedUpdatesEvent(t *testing.T) {
	f := newFixture(t, connected())
	eventID := "evt-9"
	a := f.insert(t, func(a *appointment.Appointment) {
		a.GoogleEventID = &eventID
		a.GoogleSyncStatus = appointment.SyncSynced
	})

	require.NoError(t, f.n.Notify(f.ctx, appointment.Event{Type: appointment.TypeMoved, Appointment: a}))

	calls := f.api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPut, calls[0].Method)
	assert.Equal(t, "/calendars/clinic/events/evt-9", calls[0].Path)
	assert.Equal(t, defaultColorID, calls[0].Body["colorId"], "unknown visit type falls back to the default color")
}

func TestNotifyCancelledDeletesEvent(t *testing.T) {
	for _, code := range []int{0, http.StatusGone} {
		f := newFixture(t, connected())
		f.api.deleteCode = code
		eventID := "evt-3"
		a := f.insert(t, func(a *appointment.Appointment) {
			a.GoogleEventID = &eventID
			a.GoogleSyncStatus = appointment.SyncSynced
			a.Status = appointment.StatusCancelled
		})

		require.NoError(t, f.n.Notify(f.ctx, appointment.Event{Type: appointment.TypeCancelled, Appointment: a}))

		calls := f.api.recorded()
		require.Len(t, calls, 1)
		assert.Equal(t, http.MethodDelete, calls[0].Method)

		got := f.reload(t, a.ID)
		assert.Equal(t, appointment.SyncDeleted, got.GoogleSyncStatus)
		assert.Nil(t, got.GoogleEventID)
	}
}

func TestNotifySkipsWhenDisconnectedOrAwaitingPayment(t *testing.T) {
	f := newFixture(t, nil)
	a := f.insert(t)
	require.NoError(t, f.n.Notify(f.ctx, appointment.Event{Type: appointment.TypeCreated, Appointment: a}))
	assert.Empty(t, f.api.recorded())

	err := f.n.Sync(f.ctx, a.ID, true)
	assert.ErrorIs(t, err, ErrNotConnected)

	f = newFixture(t, connected())
	a = f.insert(t)
	require.NoError(t, f.n.Notify(f.ctx, appointment.Event{Type: appointment.TypeCreated, Appointment: a, AwaitingPayment: true}))
	assert.Empty(t, f.api.recorded())

	require.NoError(t, f.n.Notify(f.ctx, appointment.Event{Type: appointment.TypePaid, Appointment: a}))
	assert.Len(t, f.api.recorded(), 1)
}

func TestSyncFailureMarksError(t *testing.T) {
	f := newFixture(t, connected())
	f.api.failInsert = true
	a := f.insert(t)

	err := f.n.Sync(f.ctx, a.ID, false)
	require.Error(t, err)
	assert.Equal(t, appointment.SyncError, f.reload(t, a.ID).GoogleSyncStatus)
}

func TestForceAddAlwaysInserts(t *testing.T) {
	f := newFixture(t, connected())
	eventID := "evt-old"
	a := f.insert(t, func(a *appointment.Appointment) {
		a.GoogleEventID = &eventID
		a.GoogleSyncStatus = appointment.SyncSynced
	})

	require.NoError(t, f.n.ForceAdd(f.ctx, a.ID))
	calls := f.api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "evt-1", *f.reload(t, a.ID).GoogleEventID)
}

func TestSyncPending(t *testing.T) {
	f := newFixture(t, connected())
	f.insert(t)
	f.insert(t, func(a *appointment.Appointment) {
		a.Start = a.Start.Add(time.Hour)
		a.End = a.End.Add(time.Hour)
	})
	f.insert(t, func(a *appointment.Appointment) {
		a.Start = a.Start.Add(2 * time.Hour)
		a.End = a.End.Add(2 * time.Hour)
		a.GoogleSyncStatus = appointment.SyncSynced
	})
	f.insert(t, func(a *appointment.Appointment) {
		a.Start = a.Start.Add(3 * time.Hour)
		a.End = a.End.Add(3 * time.Hour)
		a.Status = appointment.StatusCancelled
	})

	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, warsaw)
	res, err := f.n.SyncPending(f.ctx, doctorID, from, from.AddDate(0, 1, 0), 1)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Synced: 1, Limit: 1}, res)

	res, err = f.n.SyncPending(f.ctx, doctorID, from, from.AddDate(0, 1, 0), 20)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Synced: 1, Limit: 20}, res)
	assert.Len(t, f.api.recorded(), 2)
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t, connected())
	require.True(t, f.n.Connected(f.ctx))
	require.NoError(t, f.n.Disconnect(f.ctx))
	assert.False(t, f.n.Connected(f.ctx))
	assert.Equal(t, "primary", f.n.calendarID(f.ctx))
}

func TestAuthCodeURL(t *testing.T) {
	f := newFixture(t, nil)
	u := f.n.AuthCodeURL("state-1")
	assert.Contains(t, u, "access_type=offline")
	assert.Contains(t, u, "state=state-1")
	assert.Contains(t, u, "client_id=id")
}
