package model

// DailyStats is the nutrition summary of a single UTC calendar day.
// It is never stored; every request recomputes it from the meals table.
type DailyStats struct {
	Date                   string `json:"date"` // YYYY-MM-DD
	HighConfidenceCalories int    `json:"high_confidence_calories"`
	LowConfidenceCalories  int    `json:"low_confidence_calories"`
	TotalProtein           int    `json:"total_protein"`
	MealCount              int    `json:"meal_count"`
}
