package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/gcal"
	"github.com/hackgods/clinic-booking/internal/payments"
	"github.com/hackgods/clinic-booking/internal/settings"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

// CalendarSync is the Google Calendar surface the doctor panel drives.
type CalendarSync interface {
	Connected(ctx context.Context) bool
	AuthCodeURL(state string) string
	Connect(ctx context.Context, code string) (string, error)
	Disconnect(ctx context.Context) error
	Sync(ctx context.Context, id uuid.UUID, force bool) error
	ForceAdd(ctx context.Context, id uuid.UUID) error
	SyncPending(ctx context.Context, doctorID uuid.UUID, from, to time.Time, limit int) (gcal.BatchResult, error)
}

type handler struct {
	svc      *appointment.Service
	payments *payments.Service
	calendar CalendarSync
	settings *settings.Service
	auth     *DoctorAuth
	doctorID uuid.UUID
	loc      *time.Location
	logger   *logging.Logger
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeServiceError(w, h.logger.With("request_id", GetRequestID(r.Context()), "path", r.URL.Path), err)
}

func (h *handler) listVisitTypes(activeOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := h.svc.ListVisitTypes(r.Context(), activeOnly)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		out := make([]VisitTypeResponse, 0, len(types))
		for _, v := range types {
			out = append(out, toVisitTypeResponse(v))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (h *handler) listDays(audience appointment.Actor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		code := q.Get("visit_type")
		year, errY := strconv.Atoi(q.Get("year"))
		month, errM := strconv.Atoi(q.Get("month"))
		if code == "" || errY != nil || errM != nil || month < 1 || month > 12 {
			writeError(w, http.StatusBadRequest, "invalid_query", "visit_type, year and month are required")
			return
		}

		days, err := h.svc.ListBookableDays(r.Context(), appointment.DaysQuery{
			DoctorID:      h.doctorID,
			VisitTypeCode: code,
			Year:          year,
			Month:         time.Month(month),
			Audience:      audience,
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}

		resp := DaysResponse{VisitType: code, Year: year, Month: month, Days: make([]string, 0, len(days))}
		for _, d := range days {
			resp.Days = append(resp.Days, d.In(h.loc).Format(dayLayout))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *handler) listHours(audience appointment.Actor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		code := q.Get("visit_type")
		day, err := appointment.ParseDay(q.Get("day"), h.loc)
		if code == "" || err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", "visit_type and day (YYYY-MM-DD) are required")
			return
		}

		hours, err := h.svc.ListBookableHours(r.Context(), appointment.HoursQuery{
			DoctorID:      h.doctorID,
			VisitTypeCode: code,
			Day:           day,
			Audience:      audience,
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}

		resp := HoursResponse{VisitType: code, Day: day.Format(dayLayout), Hours: make([]string, 0, len(hours))}
		for _, t := range hours {
			resp.Hours = append(resp.Hours, t.In(h.loc).Format(hourLayout))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *handler) vacationStatus(w http.ResponseWriter, r *http.Request) {
	day, err := appointment.ParseDay(r.URL.Query().Get("day"), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_query", "day (YYYY-MM-DD) is required")
		return
	}
	status, err := h.svc.DayStatus(r.Context(), h.doctorID, day)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DayStatusResponse{
		Day:         day.Format(dayLayout),
		Excluded:    status.Excluded,
		Reason:      string(status.Reason),
		Description: status.Description,
	})
}

func (h *handler) createAppointment(actor appointment.Actor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		start, err := h.parseStart(req.Start)
		if err != nil || req.VisitType == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "visit_type and start are required")
			return
		}

		flow := appointment.PaymentFlow(req.PaymentFlow)
		if flow == "" {
			flow = appointment.FlowReserve
		}
		if flow != appointment.FlowReserve && flow != appointment.FlowOnline {
			writeError(w, http.StatusBadRequest, "invalid_request", "payment_flow must be reserve or online")
			return
		}

		var clientIP *string
		if ip := remoteIP(r); ip != "" {
			clientIP = &ip
		}

		appt, err := h.svc.CreateAppointment(r.Context(), appointment.CreateRequest{
			DoctorID:      h.doctorID,
			VisitTypeCode: req.VisitType,
			Start:         start,
			Patient: appointment.Patient{
				FirstName: req.FirstName,
				LastName:  req.LastName,
				Phone:     req.Phone,
				Email:     req.Email,
			},
			CreatedBy:     actor,
			ClientIP:      clientIP,
			PaymentFlow:   flow,
			PaymentMethod: appointment.PaymentMethod(req.PaymentMethod),
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookingResponse{
			Appointment:     toAppointmentResponse(*appt),
			PaymentRequired: actor == appointment.ActorPatient && flow == appointment.FlowOnline,
		})
	}
}

func (h *handler) cancelInfo(w http.ResponseWriter, r *http.Request) {
	appt, decision, err := h.svc.CheckCancelToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelInfoResponse{
		Start:     appt.Start.In(h.loc),
		VisitType: appt.VisitType,
		Status:    string(appt.Status),
		CanCancel: decision.Allowed,
		Reason:    decision.Reason,
	})
}

func (h *handler) cancelByToken(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.CancelByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelInfoResponse{
		Start:     appt.Start.In(h.loc),
		VisitType: appt.VisitType,
		Status:    string(appt.Status),
	})
}

// parseStart accepts RFC3339 or a wall clock "YYYY-MM-DDTHH:MM" in the clinic zone.
func (h *handler) parseStart(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(h.loc), nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", raw, h.loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02 15:04", raw, h.loc)
}

func (h *handler) dayRange(r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	return h.parseDayRange(q.Get("from"), q.Get("to"))
}

// parseDayRange turns inclusive from/to days into [from, to+1d).
func (h *handler) parseDayRange(rawFrom, rawTo string) (time.Time, time.Time, bool) {
	from, err := appointment.ParseDay(rawFrom, h.loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	to, err := appointment.ParseDay(rawTo, h.loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return from, to.AddDate(0, 0, 1), true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
