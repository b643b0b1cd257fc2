package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/payments"
)

// p24Notification mirrors the JSON body Przelewy24 posts to urlStatus.
type p24Notification struct {
	SessionID string      `json:"sessionId"`
	OrderID   json.Number `json:"orderId"`
	Amount    int64       `json:"amount"`
	Currency  string      `json:"currency"`
	Sign      string      `json:"sign"`
}

func (h *handler) paymentAppointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req PaymentRegisterRequest
	if !decodeJSON(w, r, &req) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "appointment_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *handler) initPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paymentAppointmentID(w, r)
	if !ok {
		return
	}
	p, err := h.payments.Init(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(*p))
}

func (h *handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paymentAppointmentID(w, r)
	if !ok {
		return
	}
	co, err := h.payments.Checkout(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, co)
}

// paymentStatus is the gateway callback. It accepts the JSON body Przelewy24
// sends as well as a form post and answers a plain "OK".
func (h *handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	n, err := readNotification(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_notification", err.Error())
		return
	}
	if _, err := h.payments.HandleStatus(r.Context(), n); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func readNotification(r *http.Request) (payments.StatusNotification, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body p24Notification
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			return payments.StatusNotification{}, err
		}
		return payments.StatusNotification{
			SessionID:   body.SessionID,
			OrderID:     body.OrderID.String(),
			AmountMinor: body.Amount,
			Currency:    body.Currency,
			Sign:        body.Sign,
		}, nil
	}

	if err := r.ParseForm(); err != nil {
		return payments.StatusNotification{}, err
	}
	amount, err := strconv.ParseInt(r.PostForm.Get("amount"), 10, 64)
	if err != nil {
		return payments.StatusNotification{}, err
	}
	return payments.StatusNotification{
		SessionID:   r.PostForm.Get("sessionId"),
		OrderID:     r.PostForm.Get("orderId"),
		AmountMinor: amount,
		Currency:    r.PostForm.Get("currency"),
		Sign:        r.PostForm.Get("sign"),
	}, nil
}

// paymentReturn is where the browser lands after the gateway. The status may
// still be pending when the notification has not arrived yet.
func (h *handler) paymentReturn(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session_id")
	if session == "" {
		writeError(w, http.StatusBadRequest, "invalid_query", "session_id is required")
		return
	}
	p, err := h.payments.Status(r.Context(), session)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(*p))
}

func (h *handler) appointmentPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	list, err := h.svc.PaymentsForAppointment(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]PaymentResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) confirmManualPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.ConfirmManualPayment(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(*p))
}
