package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/settings"
)

const defaultSyncBatchLimit = 50

// writableSettings are the keys the doctor panel may change directly. Google
// credentials only change through the OAuth flow.
var writableSettings = map[string]bool{
	settings.SMSEnabled:            true,
	settings.EmailEnabled:          true,
	settings.SMSRemindersEnabled:   true,
	settings.EmailRemindersEnabled: true,
	settings.SMSAPIToken:           true,
	settings.SMSAPISender:          true,
	settings.GoogleCalendarID:      true,
	settings.CalendarVisibleDays:   true,
	settings.ClinicPhone:           true,
}

var secretSettings = map[string]bool{
	settings.SMSAPIToken:        true,
	settings.GoogleRefreshToken: true,
}

func (h *handler) calendarView(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dayRange(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_query", "from and to (YYYY-MM-DD) are required")
		return
	}
	view, err := h.svc.ListCalendar(r.Context(), h.doctorID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalendarResponse(view))
}

func (h *handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *handler) moveAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req MoveAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start, err := h.parseStart(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "start is required")
		return
	}
	appt, err := h.svc.MoveAppointment(r.Context(), id, start, appointment.ActorDoctor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *handler) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.svc.CancelAppointment(r.Context(), id, appointment.ActorDoctor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *handler) completeAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.svc.CompleteAppointment(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *handler) blacklistFromAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req BlacklistFromAppointmentRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.svc.BlacklistFromAppointment(r.Context(), id, req.Description)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBlacklistResponse(*entry))
}

func (h *handler) listSlots(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dayRange(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_query", "from and to (YYYY-MM-DD) are required")
		return
	}
	slots, err := h.svc.ListSlots(r.Context(), h.doctorID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) toggleSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	slot, err := h.svc.ToggleSlot(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponse(*slot))
}

func (h *handler) setSlotActive(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req SlotActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "active is required")
		return
	}
	slot, err := h.svc.SetSlotActive(r.Context(), id, *req.Active)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponse(*slot))
}

func (h *handler) generateSchedule(w http.ResponseWriter, r *http.Request) {
	var req GenerateScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Year < 2000 || req.Month < 1 || req.Month > 12 {
		writeError(w, http.StatusBadRequest, "invalid_request", "year and month are required")
		return
	}
	tmpl, err := appointment.ParseWeeklyTemplate(req.Template)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_template", err.Error())
		return
	}
	res, err := h.svc.GenerateSchedule(r.Context(), h.doctorID, req.Year, time.Month(req.Month), tmpl)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateScheduleResponse{
		From:        res.From.In(h.loc).Format(dayLayout),
		To:          res.To.In(h.loc).Format(dayLayout),
		Deleted:     res.Deleted,
		Created:     res.Created,
		Active:      res.Active,
		SkippedDays: res.SkippedDays,
	})
}

func (h *handler) vacationInput(w http.ResponseWriter, r *http.Request) (appointment.VacationInput, bool) {
	var req VacationRequest
	if !decodeJSON(w, r, &req) {
		return appointment.VacationInput{}, false
	}
	from, errF := appointment.ParseDay(req.From, h.loc)
	to, errT := appointment.ParseDay(req.To, h.loc)
	if errF != nil || errT != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "from and to (YYYY-MM-DD) are required")
		return appointment.VacationInput{}, false
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return appointment.VacationInput{From: from, To: to, Description: req.Description, Active: active}, true
}

func (h *handler) listVacations(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListVacations(r.Context(), h.doctorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]VacationResponse, 0, len(list))
	for _, v := range list {
		out = append(out, toVacationResponse(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) createVacation(w http.ResponseWriter, r *http.Request) {
	in, ok := h.vacationInput(w, r)
	if !ok {
		return
	}
	v, err := h.svc.DeclareVacation(r.Context(), h.doctorID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVacationResponse(*v))
}

func (h *handler) updateVacation(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	in, ok := h.vacationInput(w, r)
	if !ok {
		return
	}
	v, err := h.svc.UpdateVacation(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVacationResponse(*v))
}

func (h *handler) toggleVacation(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	v, err := h.svc.ToggleVacation(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVacationResponse(*v))
}

func (h *handler) deleteVacation(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteVacation(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listBlacklist(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListBlacklist(r.Context(), h.doctorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]BlacklistResponse, 0, len(list))
	for _, e := range list {
		out = append(out, toBlacklistResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) addToBlacklist(w http.ResponseWriter, r *http.Request) {
	var req BlacklistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.svc.AddToBlacklist(r.Context(), h.doctorID, appointment.BlacklistInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		Email:       req.Email,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBlacklistResponse(*entry))
}

func (h *handler) toggleBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	entry, err := h.svc.ToggleBlacklistEntry(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBlacklistResponse(*entry))
}

func (h *handler) removeFromBlacklist(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.RemoveFromBlacklist(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) createVisitType(w http.ResponseWriter, r *http.Request) {
	var req VisitTypeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "code and name are required")
		return
	}
	vt, err := h.svc.CreateVisitType(r.Context(), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVisitTypeResponse(*vt))
}

func (h *handler) updateVisitType(w http.ResponseWriter, r *http.Request) {
	var req VisitTypeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	vt, err := h.svc.UpdateVisitType(r.Context(), chi.URLParam(r, "code"), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVisitTypeResponse(*vt))
}

func (h *handler) getSettings(w http.ResponseWriter, r *http.Request) {
	snapshot := h.settings.Snapshot(r.Context())
	for key := range secretSettings {
		if snapshot[key] != "" {
			snapshot[key] = "********"
		}
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if !decodeJSON(w, r, &req) {
		return
	}
	keys := make([]string, 0, len(req))
	for key := range req {
		if !writableSettings[key] {
			writeError(w, http.StatusBadRequest, "invalid_setting", key+" cannot be changed here")
			return
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := h.settings.Set(r.Context(), key, req[key]); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	h.logger.Info("settings updated", "keys", keys)
	h.getSettings(w, r)
}
