package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/mealtrack/internal/apperror"
	"github.com/sakif/mealtrack/internal/dates"
	"github.com/sakif/mealtrack/internal/model"
	"github.com/sakif/mealtrack/internal/repository"
)

var _ repository.MealRepository = (*DB)(nil)

// CreateMeal inserts a meal. A zero Date defaults to "now".
// After the call meal.ID is set and meal.GlucoseReadings is an empty slice.
func (db *DB) CreateMeal(ctx context.Context, meal *model.Meal) error {
	if meal.Date.IsZero() {
		meal.Date = time.Now()
	}
	meal.Date = meal.Date.UTC()

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO meals (user_id, date, image, calories, protein, high_confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		meal.UserID,
		meal.Date,
		meal.Image,
		meal.Calories,
		meal.Protein,
		meal.HighConfidence,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating meal for user %d: %w", meal.UserID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new meal id: %w", err)
	}
	meal.ID = id
	meal.GlucoseReadings = []model.GlucoseReading{}

	return nil
}

// GetMealForUser fetches a meal only if userID owns it.
//
// OWNERSHIP IN THE WHERE CLAUSE:
// Filtering on both id AND user_id means "doesn't exist" and "belongs to
// someone else" produce the same sql.ErrNoRows, so callers can't tell them apart.
func (db *DB) GetMealForUser(ctx context.Context, mealID, userID int64) (*model.Meal, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, date, image, calories, protein, high_confidence
		 FROM meals
		 WHERE id = ? AND user_id = ?`,
		mealID, userID,
	)

	m, err := scanMeal(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("Meal")
		}
		return nil, fmt.Errorf("sqlite: getting meal %d: %w", mealID, err)
	}
	return m, nil
}

// ListMeals returns the user's meals, newest first, each with its glucose readings.
//
// TWO QUERIES, NOT N+1:
// One query loads the meals, a second loads every reading for those meals in
// one go; the readings are then attached in Go. The meal rows are closed before
// the second query starts. With a single pooled connection, an open *sql.Rows
// would block it forever.
func (db *DB) ListMeals(ctx context.Context, userID int64, filter repository.MealFilter) ([]model.Meal, error) {
	where, args := mealWhere(userID, filter)

	meals, err := db.queryMeals(ctx,
		`SELECT id, user_id, date, image, calories, protein, high_confidence
		 FROM meals m
		 WHERE `+where+`
		 ORDER BY m.date DESC, m.id DESC`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	if len(meals) == 0 {
		return meals, nil
	}

	byID := make(map[int64]*model.Meal, len(meals))
	for i := range meals {
		byID[meals[i].ID] = &meals[i]
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT r.id, r.meal_id, r.timestamp, r.value
		 FROM glucose_readings r
		 JOIN meals m ON m.id = r.meal_id
		 WHERE `+where+`
		 ORDER BY r.timestamp, r.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing glucose readings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r model.GlucoseReading
		if err := rows.Scan(&r.ID, &r.MealID, &r.Timestamp, &r.Value); err != nil {
			return nil, fmt.Errorf("sqlite: scanning glucose reading row: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		if m, ok := byID[r.MealID]; ok {
			m.GlucoseReadings = append(m.GlucoseReadings, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating glucose readings: %w", err)
	}

	return meals, nil
}

// DailyStats sums the day's calories split by confidence, plus total protein.
// COALESCE turns the NULL that SUM returns for zero rows into 0.
func (db *DB) DailyStats(ctx context.Context, userID int64, day time.Time) (*model.DailyStats, error) {
	start, end := repository.DayRange(day)

	stats := &model.DailyStats{Date: dates.FormatDay(start)}
	err := db.conn.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN high_confidence THEN calories ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN high_confidence THEN 0 ELSE calories END), 0),
			COALESCE(SUM(protein), 0),
			COUNT(*)
		 FROM meals
		 WHERE user_id = ? AND date >= ? AND date < ?`,
		userID, start, end,
	).Scan(
		&stats.HighConfidenceCalories,
		&stats.LowConfidenceCalories,
		&stats.TotalProtein,
		&stats.MealCount,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: computing daily stats for user %d: %w", userID, err)
	}

	return stats, nil
}

// queryMeals runs a meal SELECT and fully drains the result set before returning.
func (db *DB) queryMeals(ctx context.Context, query string, args ...any) ([]model.Meal, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing meals: %w", err)
	}
	defer rows.Close()

	meals := []model.Meal{}
	for rows.Next() {
		m, err := scanMeal(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning meal row: %w", err)
		}
		meals = append(meals, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating meals: %w", err)
	}

	return meals, nil
}

// mealWhere builds the shared WHERE clause for the meal and reading queries.
// Both queries alias the meals table as m.
func mealWhere(userID int64, filter repository.MealFilter) (string, []any) {
	if filter.Day == nil {
		return "m.user_id = ?", []any{userID}
	}
	start, end := repository.DayRange(*filter.Day)
	return "m.user_id = ? AND m.date >= ? AND m.date < ?", []any{userID, start, end}
}

func scanMeal(s scanner) (*model.Meal, error) {
	var m model.Meal
	if err := s.Scan(
		&m.ID, &m.UserID, &m.Date, &m.Image,
		&m.Calories, &m.Protein, &m.HighConfidence,
	); err != nil {
		return nil, err
	}
	m.Date = m.Date.UTC()
	m.GlucoseReadings = []model.GlucoseReading{}
	return &m, nil
}
