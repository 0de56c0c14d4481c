package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/mealtrack/internal/apperror"
	"github.com/sakif/mealtrack/internal/auth"
	"github.com/sakif/mealtrack/internal/dates"
	"github.com/sakif/mealtrack/internal/model"
	"github.com/sakif/mealtrack/internal/service"
)

// DefaultMaxUploadBytes caps a meal upload request body: 10 MiB.
const DefaultMaxUploadBytes int64 = 10 << 20

// multipartMemory is how much of a multipart body is held in memory before
// the rest spills to temporary files.
const multipartMemory = 8 << 20

// MealService is the part of service.MealService the handlers need.
type MealService interface {
	List(ctx context.Context, userID int64, day *time.Time) ([]model.Meal, error)
	Create(ctx context.Context, userID int64, in service.NewMeal) (*model.Meal, string, error)
	GetMeal(ctx context.Context, userID, mealID int64) (*model.Meal, error)
	AddGlucoseReading(ctx context.Context, userID, mealID int64, at time.Time, value float64) (*model.GlucoseReading, error)
	DailyStats(ctx context.Context, userID int64, day *time.Time) (*model.DailyStats, error)
}

// MealHandler serves meal listing, meal upload and glucose readings.
// Every route sits behind auth.RequireAuth.
type MealHandler struct {
	meals          MealService
	events         EventRecorder
	logger         *slog.Logger
	maxUploadBytes int64
}

// NewMealHandler creates a MealHandler. maxUploadBytes ≤ 0 means
// DefaultMaxUploadBytes; events may be nil.
func NewMealHandler(meals MealService, events EventRecorder, maxUploadBytes int64, logger *slog.Logger) *MealHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &MealHandler{
		meals:          meals,
		events:         orNoop(events),
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

type mealListResponse struct {
	Meals []model.Meal `json:"meals"`
}

// HandleList returns the caller's meals, newest first.
//
// HTTP: GET /api/meals[?date=2024-01-15]
//
// RESPONSE FORMAT:
//
//	{"meals": [
//	  {"id": 3, "date": "2024-01-15T12:30:00Z", "calories": 600, "protein": 35,
//	   "high_confidence": true, "image": "<base64>",
//	   "glucose_readings": [{"id": 9, "meal_id": 3, "timestamp": "...", "value": 132.5}]}
//	]}
func (h *MealHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("No token provided"))
		return
	}

	day, err := optionalDay(r.URL.Query().Get("date"))
	if err != nil {
		badRequest(w, "Invalid date format")
		return
	}

	meals, err := h.meals.List(r.Context(), userID, day)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, mealListResponse{Meals: meals})
}

// HandleCreate stores a new meal from a form post.
//
// HTTP: POST /api/meals
// CONTENT TYPES: multipart/form-data or application/x-www-form-urlencoded
// FIELDS:
//
//	image            file part (resized) OR text field with base64 (stored as-is)
//	calories         integer, default 0
//	protein          integer, default 0
//	high_confidence  "true" (any case) or anything else for false
//
// CHECK ORDER:
// Missing image is reported before bad numbers, and bad numbers before an
// undecodable image, so clients always see the same error for the same input.
//
// STATUS:
// Success is 200 with the stored meal, not 201. The mobile and web clients
// in use check for exactly 200. Adding a glucose reading follows suit.
//
// BODY SIZE:
// http.MaxBytesReader stops reading after maxUploadBytes. Without it a client
// could stream an arbitrarily large "photo" into memory or temp files.
func (h *MealHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("No token provided"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := parseForm(r); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			badRequest(w, "Request body too large")
			return
		}
		h.logger.Debug("unreadable meal form", slog.String("error", err.Error()))
		badRequest(w, "Invalid form data")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	in := service.NewMeal{
		ImageBase64:    r.PostForm.Get("image"),
		HighConfidence: strings.EqualFold(r.PostForm.Get("high_confidence"), "true"),
	}
	if r.MultipartForm != nil && len(r.MultipartForm.File["image"]) > 0 {
		f, err := r.MultipartForm.File["image"][0].Open()
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		defer f.Close()
		in.ImageFile = f
	}
	if in.ImageFile == nil && in.ImageBase64 == "" {
		badRequest(w, "Image is required")
		return
	}

	var err error
	if in.Calories, err = optionalInt(r, "calories"); err != nil {
		badRequest(w, "Invalid calories or protein value")
		return
	}
	if in.Protein, err = optionalInt(r, "protein"); err != nil {
		badRequest(w, "Invalid calories or protein value")
		return
	}

	meal, source, err := h.meals.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.events.MealCreated(source)
	writeJSON(w, http.StatusOK, meal)
}

// HandleAddGlucoseReading attaches a glucose reading to one of the caller's meals.
//
// HTTP: POST /api/meals/{id}/glucose
// REQUEST BODY: {"timestamp": "2024-01-15T14:30:00Z", "value": 132.5}
//
// value may be a JSON number or a numeric string ("132.5"); some clients send
// form-ish JSON. The meal is checked first: a meal the caller can't see is a
// 404 whatever the body contains.
func (h *MealHandler) HandleAddGlucoseReading(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("No token provided"))
		return
	}

	// A non-numeric id can't name any meal, so it gets the same 404.
	mealID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || mealID <= 0 {
		writeError(w, h.logger, apperror.NotFound("Meal"))
		return
	}
	if _, err := h.meals.GetMeal(r.Context(), userID, mealID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body == nil {
		badRequest(w, "Timestamp and value required")
		return
	}
	rawTS, hasTS := body["timestamp"]
	rawValue, hasValue := body["value"]
	if !hasTS || !hasValue {
		badRequest(w, "Timestamp and value required")
		return
	}

	at, value, err := parseReading(rawTS, rawValue)
	if err != nil {
		badRequest(w, "Invalid timestamp or value format")
		return
	}

	reading, err := h.meals.AddGlucoseReading(r.Context(), userID, mealID, at, value)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.events.GlucoseReadingCreated()
	writeJSON(w, http.StatusOK, reading)
}

// parseForm parses either form encoding into r.PostForm (and r.MultipartForm).
func parseForm(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(multipartMemory)
	}
	return r.ParseForm()
}

// optionalInt reads an integer form field. Absent means 0; present but not
// an integer (including empty) is an error.
func optionalInt(r *http.Request, field string) (int, error) {
	values, ok := r.PostForm[field]
	if !ok || len(values) == 0 {
		return 0, nil
	}
	return strconv.Atoi(strings.TrimSpace(values[0]))
}

var errBadReading = errors.New("bad reading")

// parseReading decodes the two raw JSON fields of a glucose reading.
// The timestamp must be a JSON string. The value must be a finite number,
// given either as a JSON number or as a string holding one.
//
// A JSON null is present but not a value. json.Unmarshal would accept it and
// leave the zero value behind, so it's rejected up front.
func parseReading(rawTS, rawValue json.RawMessage) (time.Time, float64, error) {
	if isJSONNull(rawTS) || isJSONNull(rawValue) {
		return time.Time{}, 0, errBadReading
	}

	var ts string
	if err := json.Unmarshal(rawTS, &ts); err != nil {
		return time.Time{}, 0, errBadReading
	}
	at, err := dates.ParseTimestamp(ts)
	if err != nil {
		return time.Time{}, 0, err
	}

	var value float64
	if err := json.Unmarshal(rawValue, &value); err != nil {
		var s string
		if err := json.Unmarshal(rawValue, &s); err != nil {
			return time.Time{}, 0, errBadReading
		}
		if value, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return time.Time{}, 0, err
		}
	}
	// NaN and ±Inf can't be written back out as JSON.
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return time.Time{}, 0, errBadReading
	}

	return at, value, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// optionalDay parses an optional day parameter; empty means nil.
func optionalDay(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := dates.ParseDay(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
