package api

import (
	"net/http"

	"github.com/hackgods/clinic-booking/internal/settings"
)

func (h *handler) requireCalendar(w http.ResponseWriter) bool {
	if h.calendar == nil {
		writeError(w, http.StatusServiceUnavailable, "google_not_configured", "google calendar sync is not configured")
		return false
	}
	return true
}

func (h *handler) googleStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireCalendar(w) {
		return
	}
	resp := GoogleStatusResponse{Connected: h.calendar.Connected(r.Context())}
	if resp.Connected {
		resp.CalendarID = h.settings.String(r.Context(), settings.GoogleCalendarID)
	} else {
		state, err := h.auth.IssueState()
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.AuthURL = h.calendar.AuthCodeURL(state)
	}
	writeJSON(w, http.StatusOK, resp)
}

// googleCallback completes the OAuth consent. Google redirects the browser
// here without the bearer token, so the signed state stands in for it.
func (h *handler) googleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.requireCalendar(w) {
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, "google_consent_denied", e)
		return
	}
	if err := h.auth.VerifyState(q.Get("state")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_state", "oauth state is invalid or expired")
		return
	}
	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "invalid_query", "code is required")
		return
	}
	calendarID, err := h.calendar.Connect(r.Context(), code)
	if err != nil {
		h.logger.Error("google connect failed", "error", err)
		writeError(w, http.StatusBadGateway, "google_connect_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, GoogleStatusResponse{Connected: true, CalendarID: calendarID})
}

func (h *handler) googleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !h.requireCalendar(w) {
		return
	}
	if err := h.calendar.Disconnect(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GoogleStatusResponse{Connected: false})
}

func (h *handler) googleSync(force bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireCalendar(w) {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := h.calendar.Sync(r.Context(), id, force); err != nil {
			h.fail(w, r, err)
			return
		}
		h.getAppointment(w, r)
	}
}

func (h *handler) googleForceAdd(w http.ResponseWriter, r *http.Request) {
	if !h.requireCalendar(w) {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.calendar.ForceAdd(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.getAppointment(w, r)
}

func (h *handler) googleSyncBatch(w http.ResponseWriter, r *http.Request) {
	if !h.requireCalendar(w) {
		return
	}
	var req SyncBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	from, to, ok := h.parseDayRange(req.From, req.To)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "from and to (YYYY-MM-DD) are required")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSyncBatchLimit
	}
	res, err := h.calendar.SyncPending(r.Context(), h.doctorID, from, to, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
