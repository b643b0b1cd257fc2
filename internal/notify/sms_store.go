package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type SMSStatus string

const (
	SMSPending SMSStatus = "pending"
	SMSSent    SMSStatus = "sent"
	SMSFailed  SMSStatus = "failed"
)

// SMSMessage is one outbound text as recorded in sms_messages.
type SMSMessage struct {
	ID            uuid.UUID
	AppointmentID *uuid.UUID
	Kind          string
	Phone         string
	Body          string
	Status        SMSStatus
	ProviderID    *string
	Error         *string
	CreatedAt     time.Time
	SentAt        *time.Time
}

type SMSLog interface {
	InsertSMS(ctx context.Context, m *SMSMessage) error
	UpdateSMS(ctx context.Context, m *SMSMessage) error
}

type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgSMSLog struct {
	db DBTX
}

func NewPgSMSLog(db DBTX) *PgSMSLog {
	return &PgSMSLog{db: db}
}

func (l *PgSMSLog) InsertSMS(ctx context.Context, m *SMSMessage) error {
	_, err := l.db.Exec(ctx, `
INSERT INTO sms_messages (id, appointment_id, kind, phone, body, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.AppointmentID, m.Kind, m.Phone, m.Body, string(m.Status), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert sms message: %w", err)
	}
	return nil
}

func (l *PgSMSLog) UpdateSMS(ctx context.Context, m *SMSMessage) error {
	_, err := l.db.Exec(ctx, `
UPDATE sms_messages
SET status = $2, provider_id = $3, error = $4, sent_at = $5
WHERE id = $1`,
		m.ID, string(m.Status), m.ProviderID, m.Error, m.SentAt)
	if err != nil {
		return fmt.Errorf("update sms message: %w", err)
	}
	return nil
}

// MemorySMSLog keeps messages in memory; used by tests and local runs.
type MemorySMSLog struct {
	mu   sync.Mutex
	msgs []SMSMessage
}

func NewMemorySMSLog() *MemorySMSLog {
	return &MemorySMSLog{}
}

func (l *MemorySMSLog) InsertSMS(_ context.Context, m *SMSMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, *m)
	return nil
}

func (l *MemorySMSLog) UpdateSMS(_ context.Context, m *SMSMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.msgs {
		if l.msgs[i].ID == m.ID {
			l.msgs[i] = *m
			return nil
		}
	}
	return fmt.Errorf("sms message %s not found", m.ID)
}

func (l *MemorySMSLog) Messages() []SMSMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]SMSMessage(nil), l.msgs...)
}
