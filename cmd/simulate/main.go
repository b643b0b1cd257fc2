// Command simulate hammers a running api-server with concurrent bookings for
// the same windows and checks afterwards that the calendar holds no overlaps.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

type SimConfig struct {
	APIBaseURL   string
	DoctorToken  string
	VisitType    string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	Months       int
}

// window is one bookable start time as offered by /api/hours.
type window struct {
	Day  string
	Hour string
}

type DataPool struct {
	Windows []window

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) TakeRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	idx := rng.Intn(len(dp.appointments))
	id := dp.appointments[idx]
	dp.appointments = append(dp.appointments[:idx], dp.appointments[idx+1:]...)
	return id, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking OperationMetrics
	Hours   OperationMetrics
	Cancel  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *logging.Logger
	metrics Metrics
}

func main() {
	_ = godotenv.Load()
	logger := logging.New(getEnv("LOG_LEVEL", "info")).With("service", "simulate")

	cfg := loadConfig()
	if cfg.Workers <= 0 || cfg.Duration <= 0 || cfg.VisitType == "" {
		logger.Error("SIM_WORKERS, SIM_DURATION and SIM_VISIT_TYPE must be set")
		os.Exit(1)
	}
	logger.Info("simulator starting", "duration", cfg.Duration, "workers", cfg.Workers, "visit_type", cfg.VisitType)

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{},
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := sim.loadWindows(ctx)
	cancel()
	if err != nil {
		logger.Error("load windows", "error", err)
		os.Exit(1)
	}
	logger.Info("windows loaded", "count", len(sim.pool.Windows))

	sim.Run()
	sim.PrintReport()

	if cfg.DoctorToken != "" {
		if err := sim.verifyNoOverlaps(context.Background()); err != nil {
			logger.Error("calendar check failed", "error", err)
			os.Exit(1)
		}
		logger.Info("calendar check passed: no overlapping appointments")
	}
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		DoctorToken:  os.Getenv("SIM_DOCTOR_TOKEN"),
		VisitType:    getEnv("SIM_VISIT_TYPE", "konsultacja"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		Months:       getInt("SIM_MONTHS", 2),
	}
	if cfg.DoctorToken == "" {
		cfg.CancelRatio = 0
	}
	return cfg
}

// loadWindows collects every bookable start offered to patients.
func (s *Simulator) loadWindows(ctx context.Context) error {
	now := time.Now()
	for i := 0; i < s.config.Months; i++ {
		month := now.AddDate(0, i, 0)
		var days api.DaysResponse
		q := url.Values{"visit_type": {s.config.VisitType}, "year": {strconv.Itoa(month.Year())}, "month": {strconv.Itoa(int(month.Month()))}}
		if _, err := s.getJSON(ctx, "/api/days?"+q.Encode(), false, &days); err != nil {
			return err
		}
		for _, d := range days.Days {
			hours, _, err := s.hours(ctx, d)
			if err != nil {
				return err
			}
			for _, h := range hours {
				s.pool.Windows = append(s.pool.Windows, window{Day: d, Hour: h})
			}
		}
	}
	if len(s.pool.Windows) == 0 {
		return fmt.Errorf("no bookable windows for %q, run seed first", s.config.VisitType)
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	faker := gofakeit.New(uint64(time.Now().UnixNano()) + uint64(workerID))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng, faker)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			w := s.pool.Windows[rng.Intn(len(s.pool.Windows))]
			start := time.Now()
			_, status, err := s.hours(ctx, w.Day)
			s.metrics.Hours.Record(time.Since(start), err == nil && status == http.StatusOK, false)
		}
	}
}

// doBooking picks from a small set of hot windows so workers collide often.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	hot := len(s.pool.Windows)
	if hot > 20 {
		hot = 20
	}
	w := s.pool.Windows[rng.Intn(hot)]

	body := api.CreateAppointmentRequest{
		VisitType: s.config.VisitType,
		Start:     w.Day + "T" + w.Hour,
		FirstName: faker.FirstName(),
		LastName:  faker.LastName(),
		Phone:     fmt.Sprintf("+48%d", faker.Number(500000000, 899999999)),
	}
	start := time.Now()
	var resp api.BookingResponse
	status, err := s.postJSON(ctx, "/api/appointments", false, body, &resp)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	switch {
	case err == nil && status == http.StatusCreated:
		s.pool.AddAppointment(resp.Appointment.ID)
		s.metrics.Booking.Record(latency, true, false)
	case status == http.StatusConflict:
		s.metrics.Booking.Record(latency, false, true)
	default:
		s.logger.Debug("booking failed", "status", status, "error", err)
		s.metrics.Booking.Record(latency, false, false)
	}
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.TakeRandomAppointment(rng)
	if !ok {
		return
	}
	start := time.Now()
	status, err := s.postJSON(ctx, "/api/doctor/appointments/"+id.String()+"/cancel", true, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Cancel.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) hours(ctx context.Context, day string) ([]string, int, error) {
	var out api.HoursResponse
	q := url.Values{"visit_type": {s.config.VisitType}, "day": {day}}
	status, err := s.getJSON(ctx, "/api/hours?"+q.Encode(), false, &out)
	return out.Hours, status, err
}

// verifyNoOverlaps reads the doctor calendar for the simulated range and
// fails when two blocking appointments intersect.
func (s *Simulator) verifyNoOverlaps(ctx context.Context) error {
	days := make([]string, 0, len(s.pool.Windows))
	for _, w := range s.pool.Windows {
		days = append(days, w.Day)
	}
	sort.Strings(days)
	q := url.Values{"from": {days[0]}, "to": {days[len(days)-1]}}

	var view api.CalendarResponse
	if _, err := s.getJSON(ctx, "/api/doctor/calendar?"+q.Encode(), true, &view); err != nil {
		return err
	}
	var blocking []api.AppointmentResponse
	for _, a := range view.Appointments {
		if a.Status != "cancelled" {
			blocking = append(blocking, a)
		}
	}
	sort.Slice(blocking, func(i, j int) bool { return blocking[i].Start.Before(blocking[j].Start) })
	for i := 1; i < len(blocking); i++ {
		if blocking[i].Start.Before(blocking[i-1].End) {
			return fmt.Errorf("appointments %s and %s overlap", blocking[i-1].ID, blocking[i].ID)
		}
	}
	return nil
}

func (s *Simulator) getJSON(ctx context.Context, path string, doctor bool, out any) (int, error) {
	return s.do(ctx, http.MethodGet, path, doctor, nil, out)
}

func (s *Simulator) postJSON(ctx context.Context, path string, doctor bool, body, out any) (int, error) {
	return s.do(ctx, http.MethodPost, path, doctor, body, out)
}

func (s *Simulator) do(ctx context.Context, method, path string, doctor bool, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if doctor {
		req.Header.Set("Authorization", "Bearer "+s.config.DoctorToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 72))
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Hours lookup", &s.metrics.Hours)
	printOperationReport("Doctor cancel", &s.metrics.Cancel)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	avg, p50, p95, max := om.Stats()
	fmt.Printf("\n%s\n", name)
	fmt.Printf("  total=%d success=%d conflict=%d error=%d\n",
		total, atomic.LoadInt64(&om.Success), atomic.LoadInt64(&om.Conflict), atomic.LoadInt64(&om.Error))
	fmt.Printf("  latency avg=%s p50=%s p95=%s max=%s\n", avg, p50, p95, max)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}

func getInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return def
}
