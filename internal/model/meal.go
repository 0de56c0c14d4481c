package model

import "time"

// Meal is one eaten meal with its photo and nutrition estimate.
//
// IMAGE AS []byte:
// encoding/json renders a []byte as a standard base64 string and a nil slice
// as null, which is exactly the wire format clients expect. No custom
// marshalling is needed.
//
// HighConfidence marks whether the calorie count is believed accurate or is
// a rough estimate. It only matters for the daily stats split.
type Meal struct {
	ID              int64            `json:"id"`
	UserID          int64            `json:"-"`
	Date            time.Time        `json:"date"`
	Image           []byte           `json:"image"`
	Calories        int              `json:"calories"`
	Protein         int              `json:"protein"`
	HighConfidence  bool             `json:"high_confidence"`
	GlucoseReadings []GlucoseReading `json:"glucose_readings"`
}

// GlucoseReading is a blood glucose measurement taken after a meal.
type GlucoseReading struct {
	ID        int64     `json:"id"`
	MealID    int64     `json:"meal_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}
