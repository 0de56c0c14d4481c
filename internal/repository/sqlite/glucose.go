package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/mealtrack/internal/model"
	"github.com/sakif/mealtrack/internal/repository"
)

var _ repository.GlucoseRepository = (*DB)(nil)

// CreateReading inserts a glucose reading. Ownership of the meal is the
// service's job; here the foreign key only guarantees the meal exists.
func (db *DB) CreateReading(ctx context.Context, reading *model.GlucoseReading) error {
	reading.Timestamp = reading.Timestamp.UTC()

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO glucose_readings (meal_id, timestamp, value, created_at)
		 VALUES (?, ?, ?, ?)`,
		reading.MealID,
		reading.Timestamp,
		reading.Value,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating glucose reading for meal %d: %w", reading.MealID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new glucose reading id: %w", err)
	}
	reading.ID = id

	return nil
}
