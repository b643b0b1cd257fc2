package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/phone"
)

// ToggleSlot flips a single slot's active flag. Appointments are untouched.
func (s *Service) ToggleSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	return s.SetSlotActive(ctx, slotID, !slot.Active)
}

func (s *Service) SetSlotActive(ctx context.Context, slotID uuid.UUID, active bool) (*Slot, error) {
	slot, err := s.repo.SetSlotActive(ctx, slotID, active)
	if err != nil {
		return nil, err
	}
	s.logger.Info("slot toggled", "slot_id", slotID, "active", active)
	return slot, nil
}

// ListSlots returns the doctor's grid for [from, to), active and inactive.
func (s *Service) ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error) {
	if !from.Before(to) {
		return nil, ErrInvalidDateRange
	}
	return s.repo.ListSlots(ctx, doctorID, from, to, false)
}

type VacationInput struct {
	From        time.Time
	To          time.Time
	Description string
	Active      bool
}

// DeclareVacation stores a vacation and, when active, deactivates every slot in it.
func (s *Service) DeclareVacation(ctx context.Context, doctorID uuid.UUID, in VacationInput) (*Vacation, error) {
	from, to := CivilDate(in.From, s.loc), CivilDate(in.To, s.loc)
	if from.After(to) {
		return nil, ErrInvalidDateRange
	}

	v := &Vacation{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		From:        from,
		To:          to,
		Description: strings.TrimSpace(in.Description),
		Active:      in.Active,
	}

	var deactivated int64
	err := s.withDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			if err := tx.InsertVacation(lockCtx, v); err != nil {
				return err
			}
			n, err := s.blockVacationSlots(lockCtx, tx, *v)
			if err != nil {
				return err
			}
			deactivated = n
			return s.logEvent(lockCtx, tx, nil, ActorDoctor, EventVacationSaved, map[string]any{
				"vacation_id": v.ID,
				"from":        DayKey(v.From),
				"to":          DayKey(v.To),
				"active":      v.Active,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("vacation declared", "vacation_id", v.ID, "from", DayKey(v.From), "to", DayKey(v.To), "slots_deactivated", deactivated)
	return v, nil
}

// UpdateVacation rewrites a vacation and deactivates slots of the new range when active.
// Slots of days no longer covered stay inactive until the schedule is regenerated.
func (s *Service) UpdateVacation(ctx context.Context, id uuid.UUID, in VacationInput) (*Vacation, error) {
	from, to := CivilDate(in.From, s.loc), CivilDate(in.To, s.loc)
	if from.After(to) {
		return nil, ErrInvalidDateRange
	}

	current, err := s.repo.GetVacation(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *current
	updated.From, updated.To = from, to
	updated.Description = strings.TrimSpace(in.Description)
	updated.Active = in.Active

	err = s.withDoctorLock(ctx, current.DoctorID, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			if err := tx.UpdateVacation(lockCtx, &updated); err != nil {
				return err
			}
			if _, err := s.blockVacationSlots(lockCtx, tx, updated); err != nil {
				return err
			}
			return s.logEvent(lockCtx, tx, nil, ActorDoctor, EventVacationSaved, map[string]any{
				"vacation_id": updated.ID,
				"from":        DayKey(updated.From),
				"to":          DayKey(updated.To),
				"active":      updated.Active,
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ToggleVacation flips the active flag, deactivating slots when it turns on.
func (s *Service) ToggleVacation(ctx context.Context, id uuid.UUID) (*Vacation, error) {
	current, err := s.repo.GetVacation(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.UpdateVacation(ctx, id, VacationInput{
		From:        AtDate(current.From, s.loc),
		To:          AtDate(current.To, s.loc),
		Description: current.Description,
		Active:      !current.Active,
	})
}

func (s *Service) DeleteVacation(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteVacation(ctx, id)
}

func (s *Service) ListVacations(ctx context.Context, doctorID uuid.UUID) ([]Vacation, error) {
	return s.repo.ListVacations(ctx, doctorID, time.Time{}, time.Time{}, false)
}

func (s *Service) blockVacationSlots(ctx context.Context, tx Repository, v Vacation) (int64, error) {
	if !v.Active {
		return 0, nil
	}
	from := AtDate(v.From, s.loc)
	to := AtDate(v.To, s.loc).AddDate(0, 0, 1)
	return tx.DeactivateSlots(ctx, v.DoctorID, from, to)
}

type BlacklistInput struct {
	FirstName   string
	LastName    string
	Phone       string
	Email       *string
	Description string
}

func (s *Service) AddToBlacklist(ctx context.Context, doctorID uuid.UUID, in BlacklistInput) (*BlacklistEntry, error) {
	normalized, err := phone.Normalize(in.Phone, s.cfg.PhoneRegion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatient, err)
	}
	e := &BlacklistEntry{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Phone:       normalized,
		Email:       in.Email,
		Description: strings.TrimSpace(in.Description),
		Active:      true,
	}
	if err := s.repo.InsertBlacklistEntry(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("patient blacklisted", "entry_id", e.ID, "doctor_id", doctorID)
	return e, nil
}

// BlacklistFromAppointment blocks the patient of an existing appointment.
func (s *Service) BlacklistFromAppointment(ctx context.Context, appointmentID uuid.UUID, description string) (*BlacklistEntry, error) {
	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if description == "" {
		description = fmt.Sprintf("blocked from appointment on %s", appt.Start.In(s.loc).Format("2006-01-02 15:04"))
	}
	return s.AddToBlacklist(ctx, appt.DoctorID, BlacklistInput{
		FirstName:   appt.Patient.FirstName,
		LastName:    appt.Patient.LastName,
		Phone:       appt.Patient.Phone,
		Email:       appt.Patient.Email,
		Description: description,
	})
}

func (s *Service) ListBlacklist(ctx context.Context, doctorID uuid.UUID) ([]BlacklistEntry, error) {
	return s.repo.ListBlacklist(ctx, doctorID)
}

func (s *Service) ToggleBlacklistEntry(ctx context.Context, id uuid.UUID) (*BlacklistEntry, error) {
	e, err := s.repo.GetBlacklistEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.repo.SetBlacklistActive(ctx, id, !e.Active)
}

func (s *Service) RemoveFromBlacklist(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteBlacklistEntry(ctx, id)
}

type VisitTypeInput struct {
	Code               string
	Name               string
	Description        string
	DurationMinutes    int
	PriceMinor         *int64
	Color              string
	DisplayOrder       int
	DisplayOrderDoctor int
	Active             bool
	OnlyOnlinePayment  bool
}

func (in VisitTypeInput) validate() error {
	if in.DurationMinutes <= 0 || in.DurationMinutes%int(SlotLength/time.Minute) != 0 {
		return ErrInvalidVisitTypeDuration
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("visit type name is required")
	}
	if in.PriceMinor != nil && *in.PriceMinor < 0 {
		return errors.New("visit type price cannot be negative")
	}
	return nil
}

func (s *Service) CreateVisitType(ctx context.Context, in VisitTypeInput) (*VisitType, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	code := strings.ToLower(strings.TrimSpace(in.Code))
	if code == "" {
		return nil, errors.New("visit type code is required")
	}
	vt := &VisitType{
		ID:                 uuid.New(),
		Code:               code,
		Name:               strings.TrimSpace(in.Name),
		Description:        in.Description,
		DurationMinutes:    in.DurationMinutes,
		PriceMinor:         in.PriceMinor,
		Color:              defaultColor(in.Color),
		DisplayOrder:       in.DisplayOrder,
		DisplayOrderDoctor: in.DisplayOrderDoctor,
		Active:             in.Active,
		OnlyOnlinePayment:  in.OnlyOnlinePayment,
	}
	if err := s.repo.InsertVisitType(ctx, vt); err != nil {
		return nil, err
	}
	return vt, nil
}

// UpdateVisitType changes a visit type. Existing appointments keep their stored duration.
func (s *Service) UpdateVisitType(ctx context.Context, code string, in VisitTypeInput) (*VisitType, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	vt, err := s.repo.GetVisitTypeByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	vt.Name = strings.TrimSpace(in.Name)
	vt.Description = in.Description
	vt.DurationMinutes = in.DurationMinutes
	vt.PriceMinor = in.PriceMinor
	vt.Color = defaultColor(in.Color)
	vt.DisplayOrder = in.DisplayOrder
	vt.DisplayOrderDoctor = in.DisplayOrderDoctor
	vt.Active = in.Active
	vt.OnlyOnlinePayment = in.OnlyOnlinePayment
	if err := s.repo.UpdateVisitType(ctx, vt); err != nil {
		return nil, err
	}
	return vt, nil
}

// ListVisitTypes returns visit types in patient display order.
func (s *Service) ListVisitTypes(ctx context.Context, activeOnly bool) ([]VisitType, error) {
	return s.repo.ListVisitTypes(ctx, activeOnly)
}

func defaultColor(c string) string {
	if c = strings.TrimSpace(c); c == "" {
		return "1"
	}
	return c
}
