package repository

import (
	"context"
	"time"

	"github.com/sakif/mealtrack/internal/model"
)

// MealFilter narrows a meal query. A nil Day means "every day".
type MealFilter struct {
	Day *time.Time // any instant on the wanted UTC calendar day
}

// DayRange returns the half-open UTC range [start, end) covering day.
func DayRange(day time.Time) (start, end time.Time) {
	d := day.UTC()
	start = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	// FindUserByCredentials matches lastName case-insensitively and birthdate
	// exactly. Returns apperror.ErrNotFound when nothing matches.
	FindUserByCredentials(ctx context.Context, lastName string, birthdate time.Time) (*model.User, error)
	ListUsersByLastName(ctx context.Context, lastName string) ([]model.User, error)
}

type MealRepository interface {
	CreateMeal(ctx context.Context, meal *model.Meal) error
	// GetMealForUser returns apperror.ErrNotFound for a meal that is missing
	// OR owned by someone else.
	GetMealForUser(ctx context.Context, mealID, userID int64) (*model.Meal, error)
	// ListMeals returns the user's meals newest-first with their readings attached.
	ListMeals(ctx context.Context, userID int64, filter MealFilter) ([]model.Meal, error)
	DailyStats(ctx context.Context, userID int64, day time.Time) (*model.DailyStats, error)
}

type GlucoseRepository interface {
	CreateReading(ctx context.Context, reading *model.GlucoseReading) error
}

// Store is everything the server needs from a database backend.
// Both sqlite.DB and postgres.DB implement it.
type Store interface {
	UserRepository
	MealRepository
	GlucoseRepository
	Ping(ctx context.Context) error
	Close() error
}
