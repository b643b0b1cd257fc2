package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

func TestDoctorAuthTokens(t *testing.T) {
	auth := NewDoctorAuth("secret", doctorID)
	now := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return now }

	access, err := auth.IssueToken(time.Hour)
	require.NoError(t, err)
	id, err := auth.parse(access, purposeAccess)
	require.NoError(t, err)
	assert.Equal(t, doctorID, id)

	// an access token is not a valid oauth state and vice versa
	assert.Error(t, auth.VerifyState(access))
	state, err := auth.IssueState()
	require.NoError(t, err)
	require.NoError(t, auth.VerifyState(state))
	_, err = auth.parse(state, purposeAccess)
	assert.Error(t, err)

	other := NewDoctorAuth("secret", uuid.New())
	other.now = auth.now
	_, err = other.parse(access, purposeAccess)
	assert.Error(t, err, "tokens of another doctor are rejected")

	wrongKey := NewDoctorAuth("other-secret", doctorID)
	wrongKey.now = auth.now
	_, err = wrongKey.parse(access, purposeAccess)
	assert.Error(t, err)

	now = now.Add(2 * time.Hour)
	_, err = auth.parse(access, purposeAccess)
	assert.Error(t, err, "expired")
}

func TestDoctorAuthWithoutSecret(t *testing.T) {
	auth := NewDoctorAuth("", doctorID)
	_, err := auth.IssueToken(time.Hour)
	assert.Error(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("handler must not run")
	})).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWriteServiceError(t *testing.T) {
	logger := logging.NewWithWriter("error", io.Discard)
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"wrapped conflict", fmt.Errorf("create: %w", appointment.ErrWindowConflict), http.StatusConflict, "window_conflict"},
		{"cancellation reason", &appointment.CancellationError{Reason: "too late"}, http.StatusForbidden, "cancellation_not_allowed"},
		{"not found", appointment.ErrVacationNotFound, http.StatusNotFound, "vacation_not_found"},
		{"busy", appointment.ErrBookingBusy, http.StatusConflict, "booking_busy"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, logger, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error)
		})
	}

	rec := httptest.NewRecorder()
	writeServiceError(rec, logger, &appointment.CancellationError{Reason: "too late"})
	assert.Equal(t, "too late", decode[ErrorResponse](t, rec).Details)
}

func TestReadinessStatuses(t *testing.T) {
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("down") })

	tests := []struct {
		name     string
		postgres Pinger
		redis    Pinger
		code     int
		status   string
	}{
		{"all up", up, up, http.StatusOK, "ok"},
		{"redis down", up, down, http.StatusOK, "degraded"},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.postgres, tt.redis, "test", "v0").Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.status, decode[ReadinessResponse](t, rec).Status)
		})
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
