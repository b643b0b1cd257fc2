package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

const (
	dayLayout  = "2006-01-02"
	hourLayout = "15:04"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type VisitTypeResponse struct {
	Code               string `json:"code"`
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	DurationMinutes    int    `json:"duration_minutes"`
	PriceMinor         *int64 `json:"price_minor,omitempty"`
	Color              string `json:"color,omitempty"`
	DisplayOrder       int    `json:"display_order"`
	DisplayOrderDoctor int    `json:"display_order_doctor"`
	Active             bool   `json:"active"`
	OnlyOnlinePayment  bool   `json:"only_online_payment"`
}

func toVisitTypeResponse(v appointment.VisitType) VisitTypeResponse {
	return VisitTypeResponse{
		Code:               v.Code,
		Name:               v.Name,
		Description:        v.Description,
		DurationMinutes:    v.DurationMinutes,
		PriceMinor:         v.PriceMinor,
		Color:              v.Color,
		DisplayOrder:       v.DisplayOrder,
		DisplayOrderDoctor: v.DisplayOrderDoctor,
		Active:             v.Active,
		OnlyOnlinePayment:  v.OnlyOnlinePayment,
	}
}

type VisitTypeRequest struct {
	Code               string `json:"code"`
	Name               string `json:"name"`
	Description        string `json:"description"`
	DurationMinutes    int    `json:"duration_minutes"`
	PriceMinor         *int64 `json:"price_minor"`
	Color              string `json:"color"`
	DisplayOrder       int    `json:"display_order"`
	DisplayOrderDoctor int    `json:"display_order_doctor"`
	Active             *bool  `json:"active"`
	OnlyOnlinePayment  bool   `json:"only_online_payment"`
}

func (r VisitTypeRequest) input() appointment.VisitTypeInput {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return appointment.VisitTypeInput{
		Code:               r.Code,
		Name:               r.Name,
		Description:        r.Description,
		DurationMinutes:    r.DurationMinutes,
		PriceMinor:         r.PriceMinor,
		Color:              r.Color,
		DisplayOrder:       r.DisplayOrder,
		DisplayOrderDoctor: r.DisplayOrderDoctor,
		Active:             active,
		OnlyOnlinePayment:  r.OnlyOnlinePayment,
	}
}

type DaysResponse struct {
	VisitType string   `json:"visit_type"`
	Year      int      `json:"year"`
	Month     int      `json:"month"`
	Days      []string `json:"days"`
}

type HoursResponse struct {
	VisitType string   `json:"visit_type"`
	Day       string   `json:"day"`
	Hours     []string `json:"hours"`
}

type DayStatusResponse struct {
	Day         string `json:"day"`
	Excluded    bool   `json:"excluded"`
	Reason      string `json:"reason,omitempty"`
	Description string `json:"description,omitempty"`
}

type CreateAppointmentRequest struct {
	VisitType     string  `json:"visit_type"`
	Start         string  `json:"start"`
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	Phone         string  `json:"phone"`
	Email         *string `json:"email"`
	PaymentFlow   string  `json:"payment_flow"`
	PaymentMethod string  `json:"payment_method"`
}

type PatientResponse struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Phone     string  `json:"phone"`
	Email     *string `json:"email,omitempty"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID       `json:"id"`
	Start              time.Time       `json:"start"`
	End                time.Time       `json:"end"`
	DurationMinutes    int             `json:"duration_minutes"`
	VisitType          string          `json:"visit_type"`
	Status             string          `json:"status"`
	CreatedBy          string          `json:"created_by"`
	Patient            PatientResponse `json:"patient"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	ConfirmationSentAt *time.Time      `json:"confirmation_sent_at,omitempty"`
	ReminderSentAt     *time.Time      `json:"reminder_sent_at,omitempty"`
	GoogleSyncStatus   string          `json:"google_sync_status,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		Start:           a.Start,
		End:             a.End,
		DurationMinutes: a.DurationMinutes,
		VisitType:       a.VisitType,
		Status:          string(a.Status),
		CreatedBy:       string(a.CreatedBy),
		Patient: PatientResponse{
			FirstName: a.Patient.FirstName,
			LastName:  a.Patient.LastName,
			Phone:     a.Patient.Phone,
			Email:     a.Patient.Email,
		},
		CancelledAt:        a.CancelledAt,
		ConfirmationSentAt: a.ConfirmationSentAt,
		ReminderSentAt:     a.ReminderSentAt,
		GoogleSyncStatus:   string(a.GoogleSyncStatus),
	}
}

func toAppointmentResponses(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

// BookingResponse is what a patient gets back after booking. PaymentRequired
// tells the page to continue with /payments/register.
type BookingResponse struct {
	Appointment     AppointmentResponse `json:"appointment"`
	PaymentRequired bool                `json:"payment_required"`
}

// CancelInfoResponse is the landing page data of a cancel link.
type CancelInfoResponse struct {
	Start     time.Time `json:"start"`
	VisitType string    `json:"visit_type"`
	Status    string    `json:"status"`
	CanCancel bool      `json:"can_cancel"`
	Reason    string    `json:"reason,omitempty"`
}

type MoveAppointmentRequest struct {
	Start string `json:"start"`
}

type BlacklistFromAppointmentRequest struct {
	Description string `json:"description"`
}

type SlotResponse struct {
	ID         uuid.UUID `json:"id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Active     bool      `json:"active"`
	OnVacation bool      `json:"on_vacation,omitempty"`
}

func toSlotResponse(s appointment.Slot) SlotResponse {
	return SlotResponse{ID: s.ID, Start: s.Start, End: s.End, Active: s.Active}
}

type SlotActiveRequest struct {
	Active *bool `json:"active"`
}

type GenerateScheduleRequest struct {
	Year     int                 `json:"year"`
	Month    int                 `json:"month"`
	Template map[string][]string `json:"template"`
}

type GenerateScheduleResponse struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Deleted     int64  `json:"deleted"`
	Created     int64  `json:"created"`
	Active      int64  `json:"active"`
	SkippedDays int    `json:"skipped_days"`
}

type VacationRequest struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

type VacationResponse struct {
	ID          uuid.UUID `json:"id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
}

func toVacationResponse(v appointment.Vacation) VacationResponse {
	return VacationResponse{
		ID:          v.ID,
		From:        v.From.Format(dayLayout),
		To:          v.To.Format(dayLayout),
		Description: v.Description,
		Active:      v.Active,
	}
}

type BlacklistRequest struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Phone       string  `json:"phone"`
	Email       *string `json:"email"`
	Description string  `json:"description"`
}

type BlacklistResponse struct {
	ID          uuid.UUID `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Phone       string    `json:"phone"`
	Email       *string   `json:"email,omitempty"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	BlockedAt   time.Time `json:"blocked_at"`
}

func toBlacklistResponse(e appointment.BlacklistEntry) BlacklistResponse {
	return BlacklistResponse{
		ID:          e.ID,
		FirstName:   e.FirstName,
		LastName:    e.LastName,
		Phone:       e.Phone,
		Email:       e.Email,
		Description: e.Description,
		Active:      e.Active,
		BlockedAt:   e.BlockedAt,
	}
}

type CalendarResponse struct {
	From         time.Time             `json:"from"`
	To           time.Time             `json:"to"`
	Slots        []SlotResponse        `json:"slots"`
	Appointments []AppointmentResponse `json:"appointments"`
	Vacations    []VacationResponse    `json:"vacations"`
	Holidays     []HolidayResponse     `json:"holidays"`
}

type HolidayResponse struct {
	Day  string `json:"day"`
	Name string `json:"name"`
}

func toCalendarResponse(v *appointment.CalendarView) CalendarResponse {
	resp := CalendarResponse{
		From:         v.From,
		To:           v.To,
		Slots:        make([]SlotResponse, 0, len(v.Slots)),
		Appointments: toAppointmentResponses(v.Appointments),
		Vacations:    make([]VacationResponse, 0, len(v.Vacations)),
		Holidays:     make([]HolidayResponse, 0, len(v.Holidays)),
	}
	for _, s := range v.Slots {
		sr := toSlotResponse(s.Slot)
		sr.OnVacation = s.OnVacation
		resp.Slots = append(resp.Slots, sr)
	}
	for _, vac := range v.Vacations {
		resp.Vacations = append(resp.Vacations, toVacationResponse(vac))
	}
	for _, h := range v.Holidays {
		resp.Holidays = append(resp.Holidays, HolidayResponse{Day: h.Day.Format(dayLayout), Name: h.Name})
	}
	return resp
}

type PaymentResponse struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	Provider      string     `json:"provider"`
	SessionID     string     `json:"session_id"`
	OrderID       *string    `json:"order_id,omitempty"`
	AmountMinor   int64      `json:"amount_minor"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

func toPaymentResponse(p appointment.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		AppointmentID: p.AppointmentID,
		Provider:      string(p.Provider),
		SessionID:     p.SessionID,
		OrderID:       p.OrderID,
		AmountMinor:   p.AmountMinor,
		Currency:      p.Currency,
		Status:        string(p.Status),
		PaidAt:        p.PaidAt,
	}
}

type PaymentRegisterRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type SyncBatchRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Limit int    `json:"limit"`
}

type GoogleStatusResponse struct {
	Connected  bool   `json:"connected"`
	CalendarID string `json:"calendar_id,omitempty"`
	AuthURL    string `json:"auth_url,omitempty"`
}
