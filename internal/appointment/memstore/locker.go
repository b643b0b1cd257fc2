package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

// Locker is an in-process per doctor lock with the same contract as the
// Redis locker. TryOnly makes contention fail fast with ErrLockNotAcquired.
type Locker struct {
	TryOnly bool

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewLocker() *Locker {
	return &Locker{locks: map[uuid.UUID]*sync.Mutex{}}
}

func (l *Locker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[doctorID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[doctorID] = m
	}
	l.mu.Unlock()

	if l.TryOnly {
		if !m.TryLock() {
			return redisclient.ErrLockNotAcquired
		}
	} else {
		m.Lock()
	}
	defer m.Unlock()

	return fn(ctx)
}

var _ redisclient.Locker = (*Locker)(nil)
