package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/gcal"
	"github.com/hackgods/clinic-booking/internal/payments"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{appointment.ErrInvalidVisitType, http.StatusBadRequest, "invalid_visit_type"},
	{appointment.ErrInvalidVisitTypeDuration, http.StatusBadRequest, "invalid_visit_type_duration"},
	{appointment.ErrInvalidPatient, http.StatusBadRequest, "invalid_patient"},
	{appointment.ErrInvalidDateRange, http.StatusBadRequest, "invalid_date_range"},
	{appointment.ErrPaymentMethodRequired, http.StatusBadRequest, "payment_method_required"},
	{appointment.ErrPaymentMismatch, http.StatusBadRequest, "payment_mismatch"},
	{payments.ErrInvalidSignature, http.StatusBadRequest, "invalid_signature"},
	{payments.ErrInvalidNotification, http.StatusBadRequest, "invalid_notification"},
	{appointment.ErrPatientBlocked, http.StatusForbidden, "patient_blocked"},
	{appointment.ErrCancellationNotAllowed, http.StatusForbidden, "cancellation_not_allowed"},
	{appointment.ErrVisitTypeNotFound, http.StatusNotFound, "visit_type_not_found"},
	{appointment.ErrSlotNotFound, http.StatusNotFound, "slot_not_found"},
	{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
	{appointment.ErrVacationNotFound, http.StatusNotFound, "vacation_not_found"},
	{appointment.ErrBlacklistEntryNotFound, http.StatusNotFound, "blacklist_entry_not_found"},
	{appointment.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{appointment.ErrExcludedDay, http.StatusConflict, "excluded_day"},
	{appointment.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
	{appointment.ErrWindowConflict, http.StatusConflict, "window_conflict"},
	{appointment.ErrBookingBusy, http.StatusConflict, "booking_busy"},
	{appointment.ErrInvalidTransition, http.StatusConflict, "invalid_status_transition"},
	{appointment.ErrDuplicateVisitType, http.StatusConflict, "duplicate_visit_type"},
	{appointment.ErrPaymentNotOpen, http.StatusConflict, "payment_not_open"},
	{appointment.ErrNothingToPay, http.StatusConflict, "nothing_to_pay"},
	{gcal.ErrNotConnected, http.StatusConflict, "google_not_connected"},
	{payments.ErrGateway, http.StatusBadGateway, "payment_provider_error"},
	{payments.ErrNotConfigured, http.StatusServiceUnavailable, "payments_not_configured"},
}

// writeServiceError maps domain errors to a stable code; anything unknown is
// logged and reported as a 500 without details.
func writeServiceError(w http.ResponseWriter, logger *logging.Logger, err error) {
	var cancelErr *appointment.CancellationError
	if errors.As(err, &cancelErr) {
		writeError(w, http.StatusForbidden, "cancellation_not_allowed", cancelErr.Reason)
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
