package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebridge/scheduling/internal/config"
	"github.com/carebridge/scheduling/internal/db"
	redisclient "github.com/carebridge/scheduling/internal/redis"
	"github.com/carebridge/scheduling/internal/scheduling"
)

const (
	practitionerCount = 5
	guardianCount     = 3
	patientsPerGuard  = 2
)

// seed publishes demo availability and guardian links so the API has data to
// serve. Identities are bare UUIDs; the record system that owns names and
// credentials is external to this core.
func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	repo := scheduling.NewPgRepository(pool)
	svc := scheduling.NewService(repo, redisclient.NoopLocker{}, cfg, logger)

	dayStart := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour) // tomorrow 00:00

	var firstSlotOwner uuid.UUID
	for i := 0; i < practitionerCount; i++ {
		practitionerID := uuid.New()
		if i == 0 {
			firstSlotOwner = practitionerID
		}
		principal := scheduling.Principal{ID: practitionerID, Role: scheduling.RolePractitioner}

		window := scheduling.Window{
			Start: dayStart.Add(9 * time.Hour),
			End:   dayStart.Add(17 * time.Hour),
		}
		created, err := svc.PublishAvailability(ctx, principal, practitionerID, window, 30*time.Minute)
		if err != nil {
			logger.Fatal().Err(err).Msg("publish availability")
		}

		// Lunch PTO on top of the open day.
		pto := scheduling.Window{
			Start: dayStart.Add(48*time.Hour + 12*time.Hour),
			End:   dayStart.Add(48*time.Hour + 13*time.Hour),
		}
		if _, err := svc.PublishTimeOff(ctx, principal, practitionerID, pto); err != nil {
			logger.Fatal().Err(err).Msg("publish time off")
		}

		logger.Info().Str("practitioner_id", practitionerID.String()).Int("slots", created).Msg("seeded practitioner")
	}

	for i := 0; i < guardianCount; i++ {
		guardianID := uuid.New()
		for j := 0; j < patientsPerGuard; j++ {
			patientID := uuid.New()
			if err := svc.LinkPatient(ctx, guardianID, patientID); err != nil {
				logger.Fatal().Err(err).Msg("link patient")
			}
			if err := svc.AssignPractitioner(ctx, guardianID, patientID, firstSlotOwner); err != nil {
				logger.Fatal().Err(err).Msg("assign practitioner")
			}
		}
		logger.Info().Str("guardian_id", guardianID.String()).Int("patients", patientsPerGuard).Msg("seeded guardian")
	}

	// Book a couple of slots so merged schedules show status boundaries.
	slots, err := svc.SearchFreeSlots(ctx, dayStart, dayStart.Add(7*24*time.Hour))
	if err != nil {
		logger.Fatal().Err(err).Msg("search free slots")
	}
	booked := 0
	for _, slot := range slots {
		if booked >= 3 {
			break
		}
		patientID := uuid.New()
		_, err := svc.Book(ctx, scheduling.BookingRequest{
			SlotID:         slot.ID,
			PatientID:      patientID,
			Principal:      scheduling.Principal{ID: patientID, Role: scheduling.RolePatient},
			Reason:         gofakeit.Sentence(6),
			IdempotencyKey: uuid.NewString(),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("book seed slot")
		}
		booked++
	}

	logger.Info().Int("booked", booked).Msg("seed complete")
}
