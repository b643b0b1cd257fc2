package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/app"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

func price(minor int64) *int64 { return &minor }

var visitTypes = []appointment.VisitTypeInput{
	{Code: "konsultacja", Name: "Konsultacja", DurationMinutes: 30, PriceMinor: price(25000), DisplayOrder: 10, DisplayOrderDoctor: 10, Color: "9", Active: true},
	{Code: "kontrola", Name: "Wizyta kontrolna", DurationMinutes: 15, PriceMinor: price(15000), DisplayOrder: 20, DisplayOrderDoctor: 20, Color: "2", Active: true},
	{Code: "usg", Name: "Badanie USG", DurationMinutes: 45, PriceMinor: price(35000), DisplayOrder: 30, DisplayOrderDoctor: 30, Color: "5", Active: true, OnlyOnlinePayment: true},
	{Code: "recepta", Name: "Przedłużenie recepty", DurationMinutes: 15, DisplayOrder: 40, DisplayOrderDoctor: 5, Color: "8", Active: true},
}

var weekdays = map[string][]string{
	"mon": {"09", "10", "11", "12", "13", "14", "15", "16"},
	"tue": {"09", "10", "11", "12", "13", "14", "15", "16"},
	"wed": {"12", "13", "14", "15", "16", "17", "18"},
	"thu": {"09", "10", "11", "12", "13", "14", "15", "16"},
	"fri": {"09", "10", "11", "12", "13"},
}

func main() {
	appointments := flag.Int("appointments", 40, "number of fake doctor bookings to create")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "lifetime of the printed doctor token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel).With("service", "seed")

	if err := db.MigrateUp(cfg.PostgresDSN); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := run(ctx, a, *appointments); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}

	if cfg.DoctorJWTSecret != "" {
		token, err := api.NewDoctorAuth(cfg.DoctorJWTSecret, cfg.DoctorID).IssueToken(*tokenTTL)
		if err != nil {
			logger.Error("issue doctor token", "error", err)
			os.Exit(1)
		}
		fmt.Printf("doctor token (valid %s):\n%s\n", *tokenTTL, token)
	}
	logger.Info("seed complete")
}

func run(ctx context.Context, a *app.App, bookings int) error {
	cfg := a.Config
	logger := a.Logger

	gofakeit.Seed(time.Now().UnixNano())

	if _, err := a.Pool.Exec(ctx, `
		INSERT INTO doctors (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, cfg.DoctorID, "dr "+gofakeit.Name()); err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}

	for _, vt := range visitTypes {
		if _, err := a.Service.CreateVisitType(ctx, vt); err != nil {
			if errors.Is(err, appointment.ErrDuplicateVisitType) {
				continue
			}
			return fmt.Errorf("visit type %s: %w", vt.Code, err)
		}
		logger.Info("visit type created", "code", vt.Code)
	}

	tmpl, err := appointment.ParseWeeklyTemplate(weekdays)
	if err != nil {
		return err
	}
	now := time.Now().In(cfg.Location)
	for i := 0; i < 2; i++ {
		month := now.AddDate(0, i, 0)
		res, err := a.Service.GenerateSchedule(ctx, cfg.DoctorID, month.Year(), month.Month(), tmpl)
		if err != nil {
			return fmt.Errorf("generate %s: %w", month.Format("2006-01"), err)
		}
		logger.Info("schedule generated", "month", month.Format("2006-01"), "created", res.Created, "active", res.Active)
	}

	if err := seedBlacklist(ctx, a); err != nil {
		return err
	}
	return seedBookings(ctx, a, bookings)
}

func seedBlacklist(ctx context.Context, a *app.App) error {
	existing, err := a.Service.ListBlacklist(ctx, a.Config.DoctorID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	_, err = a.Service.AddToBlacklist(ctx, a.Config.DoctorID, appointment.BlacklistInput{
		FirstName:   gofakeit.FirstName(),
		LastName:    gofakeit.LastName(),
		Phone:       "+48500000001",
		Description: "no-show x3",
	})
	if err != nil {
		return fmt.Errorf("blacklist: %w", err)
	}
	return nil
}

// seedBookings books random free hours on behalf of the doctor so the
// calendar has something to show.
func seedBookings(ctx context.Context, a *app.App, count int) error {
	cfg := a.Config
	created := 0
	for attempt := 0; created < count && attempt < count*5; attempt++ {
		vt := visitTypes[gofakeit.Number(0, len(visitTypes)-1)]
		day := time.Now().In(cfg.Location).AddDate(0, 0, gofakeit.Number(1, 40))
		hours, err := a.Service.ListBookableHours(ctx, appointment.HoursQuery{
			DoctorID:      cfg.DoctorID,
			VisitTypeCode: vt.Code,
			Day:           appointment.StartOfDay(day, cfg.Location),
			Audience:      appointment.ActorPatient,
		})
		if err != nil {
			return err
		}
		if len(hours) == 0 {
			continue
		}

		email := gofakeit.Email()
		_, err = a.Service.CreateAppointment(ctx, appointment.CreateRequest{
			DoctorID:      cfg.DoctorID,
			VisitTypeCode: vt.Code,
			Start:         hours[gofakeit.Number(0, len(hours)-1)],
			Patient: appointment.Patient{
				FirstName: gofakeit.FirstName(),
				LastName:  gofakeit.LastName(),
				Phone:     fmt.Sprintf("+48%d", gofakeit.Number(500000000, 899999999)),
				Email:     &email,
			},
			CreatedBy:   appointment.ActorDoctor,
			PaymentFlow: appointment.FlowReserve,
		})
		switch {
		case err == nil:
			created++
		case errors.Is(err, appointment.ErrWindowConflict), errors.Is(err, appointment.ErrSlotUnavailable):
		default:
			return fmt.Errorf("book: %w", err)
		}
	}
	a.Logger.Info("appointments seeded", "count", created)
	return nil
}
