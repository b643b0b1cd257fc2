// Package settings exposes the runtime toggles stored in the settings table
// through typed accessors with code-level defaults.
package settings

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hackgods/clinic-booking/pkg/logging"
)

const (
	SMSEnabled            = "sms_enabled"
	EmailEnabled          = "email_enabled"
	SMSRemindersEnabled   = "sms_reminders_enabled"
	EmailRemindersEnabled = "email_reminders_enabled"
	SMSAPIToken           = "smsapi_token"
	SMSAPISender          = "smsapi_sender"
	GoogleConnected       = "google_connected"
	GoogleCalendarID      = "google_calendar_id"
	GoogleRefreshToken    = "google_refresh_token"
	CalendarVisibleDays   = "calendar_visible_days"
	ClinicPhone           = "clinic_phone"
)

// Defaults apply to keys missing from the store.
var Defaults = map[string]string{
	SMSEnabled:            "0",
	EmailEnabled:          "0",
	SMSRemindersEnabled:   "1",
	EmailRemindersEnabled: "1",
	SMSAPISender:          "SMSAPI",
	GoogleConnected:       "0",
	GoogleCalendarID:      "primary",
	CalendarVisibleDays:   "mon,tue,wed,thu,fri",
}

// Service caches the settings table and refreshes it after ttl.
type Service struct {
	store  Store
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time

	mu       sync.RWMutex
	values   map[string]string
	loadedAt time.Time
}

func NewService(store Store, ttl time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, ttl: ttl, logger: logger, now: time.Now}
}

// Refresh reloads every value from the store.
func (s *Service) Refresh(ctx context.Context) error {
	values, err := s.store.All(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.values = values
	s.loadedAt = s.now()
	s.mu.Unlock()
	return nil
}

func (s *Service) lookup(ctx context.Context, key string) (string, bool) {
	s.mu.RLock()
	stale := s.values == nil || s.now().Sub(s.loadedAt) >= s.ttl
	s.mu.RUnlock()

	if stale {
		if err := s.Refresh(ctx); err != nil {
			s.logger.Warn("failed to refresh settings, using cached values", "error", err)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v, true
	}
	v, ok := Defaults[key]
	return v, ok
}

func (s *Service) String(ctx context.Context, key string) string {
	v, _ := s.lookup(ctx, key)
	return strings.TrimSpace(v)
}

// Bool treats 1/true/yes/on as true.
func (s *Service) Bool(ctx context.Context, key string) bool {
	switch strings.ToLower(s.String(ctx, key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Int returns def when the value is missing or not a number.
func (s *Service) Int(ctx context.Context, key string, def int) int {
	n, err := strconv.Atoi(s.String(ctx, key))
	if err != nil {
		return def
	}
	return n
}

// List accepts a JSON array or a comma separated value.
func (s *Service) List(ctx context.Context, key string) []string {
	raw := s.String(ctx, key)
	if raw == "" {
		return nil
	}
	var out []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out
		}
	}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Set writes through to the store and updates the cache.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if err := s.store.Set(ctx, key, value); err != nil {
		return err
	}
	s.mu.Lock()
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

// Snapshot returns the effective values, defaults included.
func (s *Service) Snapshot(ctx context.Context) map[string]string {
	s.lookup(ctx, "")

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(Defaults)+len(s.values))
	for k, v := range Defaults {
		out[k] = v
	}
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
