package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/hms-appointments/internal/db"
	"github.com/hackgods/hms-appointments/internal/logger"
)

const (
	entityCount     = 8
	staffPerEntity  = 6
	ownerCount      = 3000
	ownerlessPets   = 40
	ownerBatchSize  = 500
	maxPetsPerOwner = 3
)

var (
	species = map[string][]string{
		"Dog":    {"Labrador Retriever", "German Shepherd", "Beagle", "Indie", "Golden Retriever", "Pug"},
		"Cat":    {"Persian", "Siamese", "Maine Coon", "Domestic Shorthair"},
		"Rabbit": {"Holland Lop", "Netherland Dwarf"},
		"Bird":   {"Budgerigar", "Cockatiel"},
	}
	speciesNames = []string{"Dog", "Cat", "Rabbit", "Bird"}

	jobTitles = []string{"Veterinarian", "Senior Veterinarian", "Veterinary Surgeon", "Dermatology Specialist", "Dental Specialist"}
	durations = []int{15, 20, 30}
)

func main() {
	logg, err := logger.New(os.Getenv("APP_ENV"), "info")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logg.Sync() }()
	logg.Info("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logg.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logg.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if _, err := db.Migrate(context.Background(), pool); err != nil {
		logg.Fatal("migrate", zap.Error(err))
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	entityIDs, err := seedEntities(context.Background(), pool, faker, entityCount)
	if err != nil {
		logg.Fatal("seed entities", zap.Error(err))
	}
	logg.Info("entities seeded", zap.Int("count", len(entityIDs)))

	staff, err := seedStaff(context.Background(), pool, faker, entityIDs)
	if err != nil {
		logg.Fatal("seed staff", zap.Error(err))
	}
	logg.Info("staff seeded", zap.Int("count", staff))

	pets, err := seedOwnersAndPets(context.Background(), pool, faker, logg, ownerCount)
	if err != nil {
		logg.Fatal("seed owners and pets", zap.Error(err))
	}
	logg.Info("owners and pets seeded", zap.Int("owners", ownerCount), zap.Int("pets", pets))

	logg.Info("seed complete")
}

func seedEntities(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]string, error) {
	ids := make([]string, 0, count)
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := fmt.Sprintf("ENT-%04d", i+1)
			city := faker.City()
			name := fmt.Sprintf("%s Veterinary Hospital", city)

			_, err := tx.Exec(ctx, `
				INSERT INTO hospital_master (entity_platform_id, entity_name, city)
				VALUES ($1, $2, $3)
				ON CONFLICT (entity_platform_id) DO UPDATE
				SET entity_name = EXCLUDED.entity_name, city = EXCLUDED.city, updated_at = now()
			`, id, name, city)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

func seedStaff(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, entityIDs []string) (int, error) {
	count := 0
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for e, entityID := range entityIDs {
			for i := 0; i < staffPerEntity; i++ {
				first, last := faker.FirstName(), faker.LastName()
				n := e*staffPerEntity + i + 1
				email := fmt.Sprintf("%s.%s@hospital.example", first, last)

				_, err := tx.Exec(ctx, `
					INSERT INTO staff_assignments (
						assignment_id, employee_id, user_platform_id, entity_platform_id,
						full_name, job_title, role_type, slot_duration_minutes, professional_email
					)
					VALUES ($1, $2, $3, $4, $5, $6, 'doctor', $7, $8)
					ON CONFLICT (assignment_id) DO NOTHING
				`,
					fmt.Sprintf("ASG-%05d", n),
					fmt.Sprintf("EMP-%05d", n),
					fmt.Sprintf("U-STAFF-%05d", n),
					entityID,
					"Dr. "+first+" "+last,
					jobTitles[faker.Number(0, len(jobTitles)-1)],
					durations[faker.Number(0, len(durations)-1)],
					email,
				)
				if err != nil {
					return err
				}
				count++
			}
		}
		return nil
	})
	return count, err
}

func seedOwnersAndPets(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logg *zap.Logger, count int) (int, error) {
	pets := 0
	for offset := 0; offset < count; offset += ownerBatchSize {
		end := min(offset+ownerBatchSize, count)

		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				ownerID := fmt.Sprintf("U-OWNER-%06d", i+1)
				_, err := tx.Exec(ctx, `
					INSERT INTO profiles (user_platform_id, first_name, last_name, email, phone)
					VALUES ($1, $2, $3, $4, $5)
					ON CONFLICT (user_platform_id) DO NOTHING
				`, ownerID, faker.FirstName(), faker.LastName(), faker.Email(), faker.Phone())
				if err != nil {
					return err
				}

				n := faker.Number(1, maxPetsPerOwner)
				for p := 0; p < n; p++ {
					if err := insertPet(ctx, tx, faker, fmt.Sprintf("PET-%06d-%d", i+1, p+1), &ownerID); err != nil {
						return err
					}
					pets++
				}
			}
			return nil
		})
		if err != nil {
			return pets, err
		}
		logg.Info("owners seeded", zap.Int("done", end), zap.Int("total", count))
	}

	// Pets imported without a resolvable owner show up in search but cannot be booked.
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < ownerlessPets; i++ {
			if err := insertPet(ctx, tx, faker, fmt.Sprintf("PET-STRAY-%04d", i+1), nil); err != nil {
				return err
			}
			pets++
		}
		return nil
	})
	return pets, err
}

func insertPet(ctx context.Context, tx pgx.Tx, faker *gofakeit.Faker, petID string, ownerID *string) error {
	kind := speciesNames[faker.Number(0, len(speciesNames)-1)]
	breeds := species[kind]

	_, err := tx.Exec(ctx, `
		INSERT INTO pet_master (pet_platform_id, user_platform_id, name, species, breed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pet_platform_id) DO NOTHING
	`, petID, ownerID, faker.PetName(), kind, breeds[faker.Number(0, len(breeds)-1)])
	return err
}
