package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the query surface shared by pgxpool.Pool, pgx.Tx and pgxmock.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Pool is a DBTX that can open transactions.
type Pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db   DBTX
	pool Pool // nil inside a transaction
}

func NewPgRepository(pool Pool) *PgRepository {
	return &PgRepository{db: pool, pool: pool}
}

func (r *PgRepository) InTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&PgRepository{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapWriteError(err))
	}
	return nil
}

const (
	sqlStateExclusionViolation = "23P01"
	sqlStateUniqueViolation    = "23505"
)

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == sqlStateExclusionViolation && pgErr.ConstraintName == "appointments_no_overlap":
		return ErrWindowConflict
	case pgErr.Code == sqlStateUniqueViolation && pgErr.ConstraintName == "visit_types_code_key":
		return ErrDuplicateVisitType
	}
	return err
}

// Helpers

const visitTypeColumns = `id, code, name, description, duration_minutes, price_minor, color,
	display_order, display_order_doctor, active, only_online_payment, created_at, updated_at`

func scanVisitType(row pgx.Row) (*VisitType, error) {
	var v VisitType
	err := row.Scan(
		&v.ID,
		&v.Code,
		&v.Name,
		&v.Description,
		&v.DurationMinutes,
		&v.PriceMinor,
		&v.Color,
		&v.DisplayOrder,
		&v.DisplayOrderDoctor,
		&v.Active,
		&v.OnlyOnlinePayment,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitTypeNotFound
		}
		return nil, err
	}
	return &v, nil
}

const slotColumns = `id, doctor_id, start_at, end_at, active, created_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.DoctorID, &s.Start, &s.End, &s.Active, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

const appointmentColumns = `id, doctor_id, start_at, end_at, duration_minutes, visit_type, status,
	created_by, cancel_token, patient_first_name, patient_last_name, patient_phone, patient_email,
	client_ip, cancelled_at, cancelled_by, confirmation_sent_at, reminder_sent_at,
	google_event_id, google_sync_status, google_last_sync_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status, createdBy, syncStatus string
	var cancelledBy *string

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.Start,
		&a.End,
		&a.DurationMinutes,
		&a.VisitType,
		&status,
		&createdBy,
		&a.CancelToken,
		&a.Patient.FirstName,
		&a.Patient.LastName,
		&a.Patient.Phone,
		&a.Patient.Email,
		&a.ClientIP,
		&a.CancelledAt,
		&cancelledBy,
		&a.ConfirmationSentAt,
		&a.ReminderSentAt,
		&a.GoogleEventID,
		&syncStatus,
		&a.GoogleLastSyncAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = Status(status)
	a.CreatedBy = Actor(createdBy)
	a.GoogleSyncStatus = SyncStatus(syncStatus)
	if cancelledBy != nil {
		actor := Actor(*cancelledBy)
		a.CancelledBy = &actor
	}
	return &a, nil
}

const vacationColumns = `id, doctor_id, date_from, date_to, description, active, google_event_id, created_at`

func scanVacation(row pgx.Row) (*Vacation, error) {
	var v Vacation
	err := row.Scan(&v.ID, &v.DoctorID, &v.From, &v.To, &v.Description, &v.Active, &v.GoogleEventID, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVacationNotFound
		}
		return nil, err
	}
	return &v, nil
}

const blacklistColumns = `id, doctor_id, first_name, last_name, phone, email, description, active, blocked_at`

func scanBlacklistEntry(row pgx.Row) (*BlacklistEntry, error) {
	var e BlacklistEntry
	err := row.Scan(&e.ID, &e.DoctorID, &e.FirstName, &e.LastName, &e.Phone, &e.Email, &e.Description, &e.Active, &e.BlockedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlacklistEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

const paymentColumns = `id, appointment_id, provider, session_id, order_id, token, amount_minor,
	currency, status, created_at, updated_at, paid_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var provider, status string
	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&provider,
		&p.SessionID,
		&p.OrderID,
		&p.Token,
		&p.AmountMinor,
		&p.Currency,
		&status,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	p.Provider = PaymentProvider(provider)
	p.Status = PaymentStatus(status)
	return &p, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Visit types

func (r *PgRepository) GetVisitTypeByCode(ctx context.Context, code string) (*VisitType, error) {
	row := r.db.QueryRow(ctx, `SELECT `+visitTypeColumns+` FROM visit_types WHERE code = $1`, code)
	return scanVisitType(row)
}

func (r *PgRepository) ListVisitTypes(ctx context.Context, activeOnly bool) ([]VisitType, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+visitTypeColumns+`
		FROM visit_types
		WHERE ($1 = false OR active)
		ORDER BY display_order, name
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanVisitType)
}

func (r *PgRepository) InsertVisitType(ctx context.Context, vt *VisitType) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO visit_types (id, code, name, description, duration_minutes, price_minor, color,
			display_order, display_order_doctor, active, only_online_payment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING created_at, updated_at
	`, vt.ID, vt.Code, vt.Name, vt.Description, vt.DurationMinutes, vt.PriceMinor, vt.Color,
		vt.DisplayOrder, vt.DisplayOrderDoctor, vt.Active, vt.OnlyOnlinePayment)
	if err := row.Scan(&vt.CreatedAt, &vt.UpdatedAt); err != nil {
		return fmt.Errorf("insert visit type: %w", mapWriteError(err))
	}
	return nil
}

func (r *PgRepository) UpdateVisitType(ctx context.Context, vt *VisitType) error {
	row := r.db.QueryRow(ctx, `
		UPDATE visit_types
		SET name = $2, description = $3, duration_minutes = $4, price_minor = $5, color = $6,
		    display_order = $7, display_order_doctor = $8, active = $9, only_online_payment = $10,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, vt.ID, vt.Name, vt.Description, vt.DurationMinutes, vt.PriceMinor, vt.Color,
		vt.DisplayOrder, vt.DisplayOrderDoctor, vt.Active, vt.OnlyOnlinePayment)
	if err := row.Scan(&vt.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVisitTypeNotFound
		}
		return fmt.Errorf("update visit type: %w", err)
	}
	return nil
}

// Slots

func (r *PgRepository) ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time, activeOnly bool) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE doctor_id = $1
		  AND start_at >= $2
		  AND start_at < $3
		  AND ($4 = false OR active)
		ORDER BY start_at
	`, doctorID, from, to, activeOnly)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSlot)
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
	return scanSlot(row)
}

func (r *PgRepository) SetSlotActive(ctx context.Context, id uuid.UUID, active bool) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE slots SET active = $2 WHERE id = $1
		RETURNING `+slotColumns, id, active)
	return scanSlot(row)
}

func (r *PgRepository) DeactivateSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE slots
		SET active = false
		WHERE doctor_id = $1
		  AND start_at >= $2
		  AND start_at < $3
		  AND active
	`, doctorID, from, to)
	if err != nil {
		return 0, fmt.Errorf("deactivate slots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) DeleteSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM slots
		WHERE doctor_id = $1
		  AND start_at >= $2
		  AND start_at < $3
	`, doctorID, from, to)
	if err != nil {
		return 0, fmt.Errorf("delete slots: %w", err)
	}
	return tag.RowsAffected(), nil
}

var slotCopyColumns = []string{"id", "doctor_id", "start_at", "end_at", "active"}

func (r *PgRepository) InsertSlots(ctx context.Context, slots []Slot) (int64, error) {
	if len(slots) == 0 {
		return 0, nil
	}
	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"slots"}, slotCopyColumns,
		pgx.CopyFromSlice(len(slots), func(i int) ([]any, error) {
			s := slots[i]
			return []any{s.ID, s.DoctorID, s.Start, s.End, s.Active}, nil
		}))
	if err != nil {
		return 0, fmt.Errorf("copy slots: %w", err)
	}
	return n, nil
}

// Appointments

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByCancelToken(ctx context.Context, token string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE cancel_token = $1`, token)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) HasConflict(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			  AND status IN ('scheduled', 'completed')
			  AND start_at < $3
			  AND end_at > $2
			  AND ($4::uuid IS NULL OR id <> $4)
		)
	`, doctorID, start, end, exclude).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check conflict: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) error {
	var cancelledBy *string
	if a.CancelledBy != nil {
		s := string(*a.CancelledBy)
		cancelledBy = &s
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, start_at, end_at, duration_minutes, visit_type, status,
			created_by, cancel_token, patient_first_name, patient_last_name, patient_phone, patient_email,
			client_ip, cancelled_at, cancelled_by, google_sync_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.DoctorID, a.Start, a.End, a.DurationMinutes, a.VisitType, string(a.Status),
		string(a.CreatedBy), a.CancelToken, a.Patient.FirstName, a.Patient.LastName, a.Patient.Phone,
		a.Patient.Email, a.ClientIP, a.CancelledAt, cancelledBy, string(a.GoogleSyncStatus))
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("insert appointment: %w", mapWriteError(err))
	}
	return nil
}

func (r *PgRepository) UpdateAppointmentWindow(ctx context.Context, id uuid.UUID, start, end time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET start_at = $2,
		    end_at = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, start, end)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return a, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, actor Actor, at time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancelled_at = CASE WHEN $2 = 'cancelled' THEN $4 ELSE cancelled_at END,
		    cancelled_by = CASE WHEN $2 = 'cancelled' THEN $5 ELSE cancelled_by END,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns, id, string(to), string(from), at, string(actor))
	return scanAppointment(row)
}

func (r *PgRepository) MarkConfirmationSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET confirmation_sent_at = COALESCE(confirmation_sent_at, $2), updated_at = now()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark confirmation sent: %w", err)
	}
	return nil
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE appointments SET reminder_sent_at = $2, updated_at = now() WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateCalendarSync(ctx context.Context, id uuid.UUID, eventID *string, status SyncStatus, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET google_event_id = $2,
		    google_sync_status = $3,
		    google_last_sync_at = $4,
		    updated_at = now()
		WHERE id = $1
	`, id, eventID, string(status), at)
	if err != nil {
		return fmt.Errorf("update calendar sync: %w", err)
	}
	return nil
}

func (r *PgRepository) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND created_by = 'patient'
		  AND reminder_sent_at IS NULL
		  AND start_at >= $1
		  AND start_at < $2
		ORDER BY start_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

// Vacations

func (r *PgRepository) ListVacations(ctx context.Context, doctorID uuid.UUID, from, to time.Time, activeOnly bool) ([]Vacation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+vacationColumns+`
		FROM vacations
		WHERE doctor_id = $1
		  AND ($2::date IS NULL OR date_to >= $2)
		  AND ($3::date IS NULL OR date_from <= $3)
		  AND ($4 = false OR active)
		ORDER BY date_from DESC
	`, doctorID, nullableTime(from), nullableTime(to), activeOnly)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanVacation)
}

func (r *PgRepository) GetVacation(ctx context.Context, id uuid.UUID) (*Vacation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+vacationColumns+` FROM vacations WHERE id = $1`, id)
	return scanVacation(row)
}

func (r *PgRepository) InsertVacation(ctx context.Context, v *Vacation) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO vacations (id, doctor_id, date_from, date_to, description, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING created_at
	`, v.ID, v.DoctorID, v.From, v.To, v.Description, v.Active)
	if err := row.Scan(&v.CreatedAt); err != nil {
		return fmt.Errorf("insert vacation: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateVacation(ctx context.Context, v *Vacation) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE vacations
		SET date_from = $2, date_to = $3, description = $4, active = $5, google_event_id = $6
		WHERE id = $1
	`, v.ID, v.From, v.To, v.Description, v.Active, v.GoogleEventID)
	if err != nil {
		return fmt.Errorf("update vacation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVacationNotFound
	}
	return nil
}

func (r *PgRepository) DeleteVacation(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM vacations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete vacation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVacationNotFound
	}
	return nil
}

// Blacklist

func (r *PgRepository) IsBlacklisted(ctx context.Context, doctorID uuid.UUID, phone string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blacklist_entries
			WHERE doctor_id = $1 AND phone = $2 AND active
		)
	`, doctorID, phone).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) ListBlacklist(ctx context.Context, doctorID uuid.UUID) ([]BlacklistEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+blacklistColumns+`
		FROM blacklist_entries
		WHERE doctor_id = $1
		ORDER BY blocked_at DESC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBlacklistEntry)
}

func (r *PgRepository) GetBlacklistEntry(ctx context.Context, id uuid.UUID) (*BlacklistEntry, error) {
	row := r.db.QueryRow(ctx, `SELECT `+blacklistColumns+` FROM blacklist_entries WHERE id = $1`, id)
	return scanBlacklistEntry(row)
}

func (r *PgRepository) InsertBlacklistEntry(ctx context.Context, e *BlacklistEntry) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO blacklist_entries (id, doctor_id, first_name, last_name, phone, email, description, active, blocked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING blocked_at
	`, e.ID, e.DoctorID, e.FirstName, e.LastName, e.Phone, e.Email, e.Description, e.Active)
	if err := row.Scan(&e.BlockedAt); err != nil {
		return fmt.Errorf("insert blacklist entry: %w", err)
	}
	return nil
}

func (r *PgRepository) SetBlacklistActive(ctx context.Context, id uuid.UUID, active bool) (*BlacklistEntry, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE blacklist_entries SET active = $2 WHERE id = $1
		RETURNING `+blacklistColumns, id, active)
	return scanBlacklistEntry(row)
}

func (r *PgRepository) DeleteBlacklistEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM blacklist_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete blacklist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlacklistEntryNotFound
	}
	return nil
}

// Payments

func (r *PgRepository) InsertPayment(ctx context.Context, p *Payment) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO payments (id, appointment_id, provider, session_id, order_id, token, amount_minor,
			currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING created_at, updated_at
	`, p.ID, p.AppointmentID, string(p.Provider), p.SessionID, p.OrderID, p.Token, p.AmountMinor,
		p.Currency, string(p.Status))
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

func (r *PgRepository) GetPaymentBySession(ctx context.Context, sessionID string) (*Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE session_id = $1`, sessionID)
	return scanPayment(row)
}

func (r *PgRepository) ListPaymentsForAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE appointment_id = $1
		ORDER BY created_at
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPayment)
}

func (r *PgRepository) UpdatePayment(ctx context.Context, p *Payment) error {
	row := r.db.QueryRow(ctx, `
		UPDATE payments
		SET order_id = $2, token = $3, status = $4, paid_at = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, p.ID, p.OrderID, p.Token, string(p.Status), p.PaidAt)
	if err := row.Scan(&p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPaymentNotFound
		}
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

func (r *PgRepository) FindStalePayments(ctx context.Context, provider PaymentProvider, olderThan time.Time) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE provider = $1
		  AND status IN ('init', 'pending')
		  AND created_at < $2
		ORDER BY created_at
	`, string(provider), olderThan)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPayment)
}

// Events

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, string(ev.Actor), payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
