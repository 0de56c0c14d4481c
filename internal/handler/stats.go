package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/mealtrack/internal/apperror"
	"github.com/sakif/mealtrack/internal/auth"
)

// HandleDailyStats returns the nutrition summary for one day.
//
// HTTP: GET /api/stats/daily[?date=2024-01-15]
//
//	GET /api/stats/daily/{date}
//
// With no date the current UTC day is used.
//
// RESPONSE:
//
//	{"date": "2024-01-15", "high_confidence_calories": 800,
//	 "low_confidence_calories": 250, "total_protein": 55, "meal_count": 3}
//
// The numbers are computed on every request; nothing is cached or stored.
func (h *MealHandler) HandleDailyStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("No token provided"))
		return
	}

	raw := chi.URLParam(r, "date")
	if raw == "" {
		raw = r.URL.Query().Get("date")
	}
	day, err := optionalDay(raw)
	if err != nil {
		badRequest(w, "Invalid date format")
		return
	}

	stats, err := h.meals.DailyStats(r.Context(), userID, day)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
