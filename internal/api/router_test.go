package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/appointment/memstore"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/payments"
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

type stubGateway struct {
	*payments.P24Client
}

func (stubGateway) Register(context.Context, payments.RegisterRequest) (string, error) {
	return "TOKEN-1", nil
}

func (stubGateway) Verify(context.Context, payments.VerifyRequest) error { return nil }

type testServer struct {
	t        *testing.T
	ctx      context.Context
	store    *memstore.Store
	settings *settings.Service
	gateway  stubGateway
	auth     *DoctorAuth
	handler  http.Handler
	token    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, time.March, 2, 10, 0, 0, 0, warsaw)
	clock := func() time.Time { return now }
	logger := logging.NewWithWriter("error", io.Discard)

	holidays, err := appointment.NewPublicHolidays("NONE")
	require.NoError(t, err)

	store := memstore.New()
	store.SetClock(clock)
	svc := appointment.NewService(store, memstore.NewLocker(), holidays, config.Config{
		Location:           warsaw,
		PhoneRegion:        "PL",
		OpeningHour:        8,
		ClosingHour:        19,
		CancelLeadTime:     48 * time.Hour,
		PaymentExpiry:      30 * time.Minute,
		BookingMinLeadDays: 1,
		DoctorID:           doctorID,
	}, appointment.WithClock(clock), appointment.WithLogger(logger))

	price := int64(20000)
	require.NoError(t, store.InsertVisitType(ctx, &appointment.VisitType{
		ID: uuid.New(), Code: "consult", Name: "Konsultacja", DurationMinutes: 30, PriceMinor: &price, Active: true,
	}))
	var slots []appointment.Slot
	for _, d := range []int{4, 5} {
		for tick := time.Date(2026, time.March, d, 9, 0, 0, 0, warsaw); tick.Hour() < 11; tick = tick.Add(appointment.SlotLength) {
			slots = append(slots, appointment.Slot{ID: uuid.New(), DoctorID: doctorID, Start: tick, End: tick.Add(appointment.SlotLength), Active: true})
		}
	}
	_, err = store.InsertSlots(ctx, slots)
	require.NoError(t, err)

	st := settings.NewService(settings.NewMemoryStore(nil), time.Minute, logger)
	gateway := stubGateway{P24Client: payments.NewP24Client(config.P24Config{
		MerchantID:  11111,
		PosID:       11111,
		APIKey:      "api-key",
		CRC:         "crc-secret",
		RedirectURL: "https://sandbox.przelewy24.pl/trnRequest",
	}, nil)}
	auth := NewDoctorAuth("test-secret", doctorID)
	token, err := auth.IssueToken(time.Hour)
	require.NoError(t, err)

	handler := NewRouter(RouterConfig{
		Service:  svc,
		Payments: payments.NewService(svc, gateway, "kontakt@example.pl", warsaw, logger),
		Settings: st,
		Auth:     auth,
		Health:   NewHealthHandler(PingFunc(func(context.Context) error { return nil }), nil, "test", "v0"),
		DoctorID: doctorID,
		Location: warsaw,
		Logger:   logger,
	})

	return &testServer{t: t, ctx: ctx, store: store, settings: st, gateway: gateway, auth: auth, handler: handler, token: token}
}

func (s *testServer) do(method, path string, body any, doctor bool) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if doctor {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) book(start string, flow, method string) AppointmentResponse {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/appointments", CreateAppointmentRequest{
		VisitType:     "consult",
		Start:         start,
		FirstName:     "Jan",
		LastName:      "Kowalski",
		Phone:         "600700800",
		PaymentFlow:   flow,
		PaymentMethod: method,
	}, false)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[BookingResponse](s.t, rec).Appointment
}

func TestPublicBookingFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/visit-types", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	types := decode[[]VisitTypeResponse](t, rec)
	require.Len(t, types, 1)
	assert.Equal(t, "consult", types[0].Code)

	rec = s.do(http.MethodGet, "/api/days?visit_type=consult&year=2026&month=3", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[DaysResponse](t, rec).Days, "2026-03-04")

	rec = s.do(http.MethodGet, "/api/hours?visit_type=consult&day=2026-03-04", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	hours := decode[HoursResponse](t, rec).Hours
	require.NotEmpty(t, hours)

	start := "2026-03-04T" + hours[0]
	appt := s.book(start, "", "")
	assert.Equal(t, "scheduled", appt.Status)
	assert.Equal(t, "patient", appt.CreatedBy)
	assert.Equal(t, "+48600700800", appt.Patient.Phone)

	stored, err := s.store.GetAppointment(s.ctx, appt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ClientIP)

	rec = s.do(http.MethodPost, "/api/appointments", CreateAppointmentRequest{
		VisitType: "consult", Start: start, FirstName: "Anna", LastName: "Nowak", Phone: "600111222",
	}, false)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateAppointmentValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/appointments", map[string]string{"visit_type": "consult"}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/appointments", map[string]string{"unexpected": "x"}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decode[ErrorResponse](t, rec).Error)

	rec = s.do(http.MethodPost, "/api/appointments", CreateAppointmentRequest{
		VisitType: "missing", Start: "2026-03-04T09:00", FirstName: "Jan", LastName: "K", Phone: "600700800",
	}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_visit_type", decode[ErrorResponse](t, rec).Error)

	rec = s.do(http.MethodGet, "/api/days?visit_type=consult&year=2026&month=13", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlacklistedPatientIsRejected(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/doctor/blacklist", BlacklistRequest{
		FirstName: "Jan", LastName: "Kowalski", Phone: "600 700 800", Description: "no-show",
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/appointments", CreateAppointmentRequest{
		VisitType: "consult", Start: "2026-03-04T09:00", FirstName: "Jan", LastName: "Kowalski", Phone: "+48600700800",
	}, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "patient_blocked", decode[ErrorResponse](t, rec).Error)
}

func TestDoctorRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/doctor/calendar?from=2026-03-04&to=2026-03-05", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/doctor/calendar?from=2026-03-04&to=2026-03-05", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	bad := httptest.NewRecorder()
	s.handler.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	rec = s.do(http.MethodGet, "/api/doctor/calendar?from=2026-03-04&to=2026-03-05", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[CalendarResponse](t, rec)
	assert.Len(t, view.Slots, 16)
	assert.Empty(t, view.Appointments)
}

func TestDoctorAppointmentLifecycle(t *testing.T) {
	s := newTestServer(t)
	appt := s.book("2026-03-04T09:00", "", "")

	rec := s.do(http.MethodPost, "/api/doctor/appointments/"+appt.ID.String()+"/move", MoveAppointmentRequest{Start: "2026-03-05T10:00"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[AppointmentResponse](t, rec)
	assert.True(t, moved.Start.Equal(time.Date(2026, time.March, 5, 10, 0, 0, 0, warsaw)))

	rec = s.do(http.MethodPost, "/api/doctor/appointments/"+appt.ID.String()+"/complete", nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "completed", decode[AppointmentResponse](t, rec).Status)

	rec = s.do(http.MethodPost, "/api/doctor/appointments/"+appt.ID.String()+"/cancel", nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[ErrorResponse](t, rec).Error)

	rec = s.do(http.MethodGet, "/api/doctor/appointments/"+uuid.NewString(), nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/doctor/appointments/not-a-uuid", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelLink(t *testing.T) {
	s := newTestServer(t)
	appt := s.book("2026-03-05T10:00", "", "")
	stored, err := s.store.GetAppointment(s.ctx, appt.ID)
	require.NoError(t, err)
	path := "/c/" + stored.CancelToken

	rec := s.do(http.MethodGet, path, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[CancelInfoResponse](t, rec)
	assert.False(t, info.CanCancel)
	assert.Equal(t, "appointment has not been confirmed yet", info.Reason)

	rec = s.do(http.MethodPost, path, nil, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "cancellation_not_allowed", decode[ErrorResponse](t, rec).Error)

	s.store.SetConfirmationSent(appt.ID, time.Date(2026, time.March, 2, 10, 0, 0, 0, warsaw))

	rec = s.do(http.MethodGet, path, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[CancelInfoResponse](t, rec).CanCancel)

	rec = s.do(http.MethodPost, path, nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode[CancelInfoResponse](t, rec).Status)

	rec = s.do(http.MethodGet, "/c/unknown-token", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOnlinePaymentCallback(t *testing.T) {
	s := newTestServer(t)
	appt := s.book("2026-03-04T09:00", "online", "p24")

	rec := s.do(http.MethodPost, "/payments/register", PaymentRegisterRequest{AppointmentID: appt.ID.String()}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	co := decode[payments.Checkout](t, rec)
	assert.Equal(t, "https://sandbox.przelewy24.pl/trnRequest/TOKEN-1", co.RedirectURL)

	notify := func(sign string) *httptest.ResponseRecorder {
		body := map[string]any{
			"merchantId": 11111,
			"posId":      11111,
			"sessionId":  co.SessionID,
			"amount":     20000,
			"currency":   "PLN",
			"orderId":    987654,
			"sign":       sign,
		}
		return s.do(http.MethodPost, "/payments/status", body, false)
	}

	rec = notify("deadbeef")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_signature", decode[ErrorResponse](t, rec).Error)

	// a failed notification closes the payment, so checkout starts a new one
	rec = s.do(http.MethodPost, "/payments/register", PaymentRegisterRequest{AppointmentID: appt.ID.String()}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	co = decode[payments.Checkout](t, rec)

	rec = notify(s.gateway.StatusSign(co.SessionID, "987654", 20000, "PLN"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "OK", rec.Body.String())

	rec = s.do(http.MethodGet, "/payments/return?session_id="+co.SessionID, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paid", decode[PaymentResponse](t, rec).Status)

	rec = s.do(http.MethodGet, "/api/doctor/appointments/"+appt.ID.String()+"/payments", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PaymentResponse](t, rec), 2)
}

func TestPaymentStatusAcceptsForm(t *testing.T) {
	s := newTestServer(t)
	appt := s.book("2026-03-04T09:00", "online", "p24")
	rec := s.do(http.MethodPost, "/payments/register", PaymentRegisterRequest{AppointmentID: appt.ID.String()}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	co := decode[payments.Checkout](t, rec)

	form := "sessionId=" + co.SessionID + "&orderId=42&amount=20000&currency=PLN&sign=" + s.gateway.StatusSign(co.SessionID, "42", 20000, "PLN")
	req := httptest.NewRequest(http.MethodPost, "/payments/status", bytes.NewBufferString(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	out := httptest.NewRecorder()
	s.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusOK, out.Code, out.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/payments/status", bytes.NewBufferString("sessionId=x&amount=abc"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	out = httptest.NewRecorder()
	s.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestManualPaymentConfirmation(t *testing.T) {
	s := newTestServer(t)
	appt := s.book("2026-03-04T09:00", "online", "traditional")

	rec := s.do(http.MethodGet, "/api/doctor/appointments/"+appt.ID.String()+"/payments", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]PaymentResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "manual_transfer", list[0].Provider)
	assert.Equal(t, "pending", list[0].Status)

	rec = s.do(http.MethodPost, "/api/doctor/payments/"+list[0].ID.String()+"/confirm", nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "paid", decode[PaymentResponse](t, rec).Status)
}

func TestVacationsCloseDays(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/doctor/vacations", VacationRequest{From: "2026-03-05", To: "2026-03-06", Description: "Urlop"}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	vac := decode[VacationResponse](t, rec)
	assert.True(t, vac.Active)

	rec = s.do(http.MethodGet, "/api/vacation-status?day=2026-03-05", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[DayStatusResponse](t, rec)
	assert.True(t, status.Excluded)
	assert.Equal(t, "vacation", status.Reason)

	rec = s.do(http.MethodGet, "/api/days?visit_type=consult&year=2026&month=3", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decode[DaysResponse](t, rec).Days, "2026-03-05")

	rec = s.do(http.MethodPost, "/api/doctor/vacations/"+vac.ID.String()+"/toggle", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[VacationResponse](t, rec).Active)

	rec = s.do(http.MethodDelete, "/api/doctor/vacations/"+vac.ID.String(), nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodPost, "/api/doctor/vacations", VacationRequest{From: "2026-03-06", To: "2026-03-05"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date_range", decode[ErrorResponse](t, rec).Error)
}

func TestSlotToggleAndSchedule(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/doctor/slots?from=2026-03-04&to=2026-03-04", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[[]SlotResponse](t, rec)
	require.Len(t, slots, 8)

	rec = s.do(http.MethodPost, "/api/doctor/slots/"+slots[0].ID.String()+"/toggle", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[SlotResponse](t, rec).Active)

	active := true
	rec = s.do(http.MethodPut, "/api/doctor/slots/"+slots[0].ID.String(), SlotActiveRequest{Active: &active}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[SlotResponse](t, rec).Active)

	rec = s.do(http.MethodPost, "/api/doctor/schedule/generate", GenerateScheduleRequest{
		Year: 2026, Month: 4, Template: map[string][]string{"mon": {"09", "10"}},
	}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[GenerateScheduleResponse](t, rec)
	assert.Positive(t, res.Created)

	rec = s.do(http.MethodPost, "/api/doctor/schedule/generate", GenerateScheduleRequest{
		Year: 2026, Month: 4, Template: map[string][]string{"funday": {"09"}},
	}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_template", decode[ErrorResponse](t, rec).Error)
}

func TestVisitTypeManagement(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/doctor/visit-types", VisitTypeRequest{Code: "usg", Name: "USG", DurationMinutes: 45}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, decode[VisitTypeResponse](t, rec).Active)

	rec = s.do(http.MethodPost, "/api/doctor/visit-types", VisitTypeRequest{Code: "bad", Name: "Bad", DurationMinutes: 20}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_visit_type_duration", decode[ErrorResponse](t, rec).Error)

	inactive := false
	rec = s.do(http.MethodPut, "/api/doctor/visit-types/usg", VisitTypeRequest{Name: "USG", DurationMinutes: 45, Active: &inactive}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/visit-types", nil, false)
	assert.Len(t, decode[[]VisitTypeResponse](t, rec), 1)
	rec = s.do(http.MethodGet, "/api/doctor/visit-types", nil, true)
	assert.Len(t, decode[[]VisitTypeResponse](t, rec), 2)
}

func TestSettingsEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPut, "/api/doctor/settings", map[string]string{
		settings.SMSEnabled:  "1",
		settings.SMSAPIToken: "secret-token",
	}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snapshot := decode[map[string]string](t, rec)
	assert.Equal(t, "1", snapshot[settings.SMSEnabled])
	assert.Equal(t, "********", snapshot[settings.SMSAPIToken])
	assert.Equal(t, "secret-token", s.settings.String(s.ctx, settings.SMSAPIToken))

	rec = s.do(http.MethodPut, "/api/doctor/settings", map[string]string{settings.GoogleRefreshToken: "x"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_setting", decode[ErrorResponse](t, rec).Error)
}

func TestGoogleRoutesWithoutCalendar(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/doctor/google", nil, true)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = s.do(http.MethodGet, "/oauth/google/callback?code=abc", nil, false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health/live", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[LivenessResponse](t, rec).Status)

	rec = s.do(http.MethodGet, "/health/ready", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
