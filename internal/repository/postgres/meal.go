package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/mealtrack/internal/apperror"
	"github.com/sakif/mealtrack/internal/dates"
	"github.com/sakif/mealtrack/internal/model"
	"github.com/sakif/mealtrack/internal/repository"
)

var (
	_ repository.MealRepository    = (*DB)(nil)
	_ repository.GlucoseRepository = (*DB)(nil)
)

func (db *DB) CreateMeal(ctx context.Context, meal *model.Meal) error {
	if meal.Date.IsZero() {
		meal.Date = time.Now()
	}
	meal.Date = meal.Date.UTC()

	err := db.pool.QueryRow(ctx,
		`INSERT INTO meals (user_id, date, image, calories, protein, high_confidence)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		meal.UserID, meal.Date, meal.Image, meal.Calories, meal.Protein, meal.HighConfidence,
	).Scan(&meal.ID)
	if err != nil {
		return fmt.Errorf("postgres: creating meal for user %d: %w", meal.UserID, err)
	}
	meal.GlucoseReadings = []model.GlucoseReading{}
	return nil
}

func (db *DB) GetMealForUser(ctx context.Context, mealID, userID int64) (*model.Meal, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, user_id, date, image, calories, protein, high_confidence
		 FROM meals
		 WHERE id = $1 AND user_id = $2`,
		mealID, userID,
	)

	m, err := scanMeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("Meal")
		}
		return nil, fmt.Errorf("postgres: getting meal %d: %w", mealID, err)
	}
	return m, nil
}

// ListMeals loads meals then their readings in a second query, like the SQLite
// version. The pool has many connections, so the row sets could overlap, but
// keeping the two implementations shaped alike makes them easier to compare.
func (db *DB) ListMeals(ctx context.Context, userID int64, filter repository.MealFilter) ([]model.Meal, error) {
	where, args := mealWhere(userID, filter)

	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, date, image, calories, protein, high_confidence
		 FROM meals m
		 WHERE `+where+`
		 ORDER BY m.date DESC, m.id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing meals: %w", err)
	}

	meals := []model.Meal{}
	for rows.Next() {
		m, err := scanMeal(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scanning meal row: %w", err)
		}
		meals = append(meals, *m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating meals: %w", err)
	}
	if len(meals) == 0 {
		return meals, nil
	}

	byID := make(map[int64]*model.Meal, len(meals))
	for i := range meals {
		byID[meals[i].ID] = &meals[i]
	}

	readings, err := db.pool.Query(ctx,
		`SELECT r.id, r.meal_id, r.timestamp, r.value
		 FROM glucose_readings r
		 JOIN meals m ON m.id = r.meal_id
		 WHERE `+where+`
		 ORDER BY r.timestamp, r.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing glucose readings: %w", err)
	}
	defer readings.Close()

	for readings.Next() {
		var r model.GlucoseReading
		if err := readings.Scan(&r.ID, &r.MealID, &r.Timestamp, &r.Value); err != nil {
			return nil, fmt.Errorf("postgres: scanning glucose reading row: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		if m, ok := byID[r.MealID]; ok {
			m.GlucoseReadings = append(m.GlucoseReadings, r)
		}
	}
	if err := readings.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating glucose readings: %w", err)
	}

	return meals, nil
}

func (db *DB) DailyStats(ctx context.Context, userID int64, day time.Time) (*model.DailyStats, error) {
	start, end := repository.DayRange(day)

	stats := &model.DailyStats{Date: dates.FormatDay(start)}
	err := db.pool.QueryRow(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN high_confidence THEN calories ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN high_confidence THEN 0 ELSE calories END), 0),
			COALESCE(SUM(protein), 0),
			COUNT(*)
		 FROM meals
		 WHERE user_id = $1 AND date >= $2 AND date < $3`,
		userID, start, end,
	).Scan(
		&stats.HighConfidenceCalories,
		&stats.LowConfidenceCalories,
		&stats.TotalProtein,
		&stats.MealCount,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: computing daily stats for user %d: %w", userID, err)
	}
	return stats, nil
}

func (db *DB) CreateReading(ctx context.Context, reading *model.GlucoseReading) error {
	reading.Timestamp = reading.Timestamp.UTC()

	err := db.pool.QueryRow(ctx,
		`INSERT INTO glucose_readings (meal_id, timestamp, value)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		reading.MealID, reading.Timestamp, reading.Value,
	).Scan(&reading.ID)
	if err != nil {
		return fmt.Errorf("postgres: creating glucose reading for meal %d: %w", reading.MealID, err)
	}
	return nil
}

func mealWhere(userID int64, filter repository.MealFilter) (string, []any) {
	if filter.Day == nil {
		return "m.user_id = $1", []any{userID}
	}
	start, end := repository.DayRange(*filter.Day)
	return "m.user_id = $1 AND m.date >= $2 AND m.date < $3", []any{userID, start, end}
}

func scanMeal(row pgx.Row) (*model.Meal, error) {
	var m model.Meal
	if err := row.Scan(
		&m.ID, &m.UserID, &m.Date, &m.Image,
		&m.Calories, &m.Protein, &m.HighConfidence,
	); err != nil {
		return nil, err
	}
	m.Date = m.Date.UTC()
	m.GlucoseReadings = []model.GlucoseReading{}
	return &m, nil
}
