package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heraldhq/herald/internal/civil"
	"github.com/heraldhq/herald/internal/config"
	"github.com/heraldhq/herald/internal/idgen"
	"github.com/heraldhq/herald/internal/models"
	"github.com/heraldhq/herald/internal/userstore"
)

var seedTimezones = []string{
	"America/New_York",
	"America/Los_Angeles",
	"America/Sao_Paulo",
	"Europe/London",
	"Europe/Berlin",
	"Asia/Kolkata",
	"Asia/Tokyo",
	"Australia/Sydney",
	"Pacific/Auckland",
	"UTC",
}

func seed(ctx context.Context, configPath string, count int, birthdayToday bool) error {
	cfg, err := config.Parse(config.ParseOptions{YAMLPath: configPath})
	if err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("creating postgres pool: %w", err)
	}
	defer pool.Close()

	store := userstore.New(pool)
	created := 0
	for i := 0; i < count; i++ {
		user := fakeUser(birthdayToday)
		if err := store.Create(ctx, user); err != nil {
			if err == userstore.ErrEmailTaken {
				continue
			}
			return err
		}
		created++
	}
	fmt.Printf("seeded %d user(s)\n", created)
	return nil
}

func fakeUser(birthdayToday bool) *models.User {
	timezone := seedTimezones[gofakeit.Number(0, len(seedTimezones)-1)]

	var birthday string
	if birthdayToday {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			loc = time.UTC
		}
		today := civil.Today(time.Now(), loc)
		// Fixed leap birth year so a Feb 29 run still yields a valid date;
		// recurrence only reads month and day.
		birthday = civil.Date{Year: 2000, Month: today.Month, Day: today.Day}.String()
	} else {
		birthday = gofakeit.DateRange(
			time.Date(1950, time.January, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2005, time.December, 31, 0, 0, 0, 0, time.UTC),
		).Format(civil.DateLayout)
	}

	user := &models.User{
		ID:        idgen.NewUserID(),
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Email:     gofakeit.Email(),
		Birthday:  birthday,
		Timezone:  timezone,
		IsActive:  true,
	}
	if gofakeit.Bool() {
		anniversary := gofakeit.DateRange(
			time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
			time.Now(),
		).Format(civil.DateLayout)
		user.Anniversary = &anniversary
	}
	return user
}
