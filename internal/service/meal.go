// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// WHY A SEPARATE SERVICE LAYER?
//
//  1. TESTING: business rules are tested with plain Go calls and in-memory
//     fakes, no HTTP requests or database needed.
//  2. REUSE: the admin CLI registers users through UserService, the same code
//     path a future HTTP endpoint would use.
//  3. SEPARATION: handlers know about status codes and forms; services know
//     about ownership and image handling; neither knows any SQL.
//
// Services return apperror values (ValidationFailed, NotFound, ...), never
// HTTP status codes. The handler translates them.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sakif/mealtrack/internal/apperror"
	"github.com/sakif/mealtrack/internal/dates"
	"github.com/sakif/mealtrack/internal/imaging"
	"github.com/sakif/mealtrack/internal/model"
	"github.com/sakif/mealtrack/internal/repository"
)

// Image sources, as reported by MealService.Create. Also used as metric labels.
const (
	ImageSourceUpload = "upload"
	ImageSourceBase64 = "base64"
)

// NewMeal is the input for MealService.Create.
//
// Exactly one image source is used: ImageFile wins when both are set.
// ImageFile is shrunk and re-encoded; ImageBase64 is decoded and stored as-is.
type NewMeal struct {
	ImageFile      io.Reader
	ImageBase64    string
	Calories       int
	Protein        int
	HighConfidence bool
	Date           time.Time // zero means now
}

func (m NewMeal) hasImage() bool {
	return m.ImageFile != nil || m.ImageBase64 != ""
}

// MealService handles meals and their glucose readings.
type MealService struct {
	meals    repository.MealRepository
	readings repository.GlucoseRepository
	logger   *slog.Logger
	maxDim   int
	now      func() time.Time
}

// NewMealService creates a MealService. maxImageDimension ≤ 0 means
// imaging.DefaultMaxDimension.
func NewMealService(
	meals repository.MealRepository,
	readings repository.GlucoseRepository,
	maxImageDimension int,
	logger *slog.Logger,
) *MealService {
	if maxImageDimension <= 0 {
		maxImageDimension = imaging.DefaultMaxDimension
	}
	return &MealService{
		meals:    meals,
		readings: readings,
		logger:   logger,
		maxDim:   maxImageDimension,
		now:      time.Now,
	}
}

// List returns the user's meals newest-first. A nil day means every day.
func (s *MealService) List(ctx context.Context, userID int64, day *time.Time) ([]model.Meal, error) {
	meals, err := s.meals.ListMeals(ctx, userID, repository.MealFilter{Day: day})
	if err != nil {
		return nil, fmt.Errorf("listing meals: %w", err)
	}
	return meals, nil
}

// Create stores a new meal for userID and reports which image source was used.
//
// IMAGE HANDLING:
//
//	ImageFile   → imaging.Shrink   bad file   → "Invalid image file"
//	ImageBase64 → imaging.DecodeBase64 bad text → "Invalid image data"
//	neither     →                              "Image is required"
func (s *MealService) Create(ctx context.Context, userID int64, in NewMeal) (*model.Meal, string, error) {
	if !in.hasImage() {
		return nil, "", apperror.ValidationFailed("image", "Image is required")
	}

	var (
		image  []byte
		source string
		err    error
	)
	if in.ImageFile != nil {
		source = ImageSourceUpload
		image, err = imaging.Shrink(in.ImageFile, s.maxDim)
		if err != nil {
			if errors.Is(err, imaging.ErrInvalidImage) {
				return nil, "", apperror.ValidationFailed("image", "Invalid image file")
			}
			return nil, "", fmt.Errorf("processing uploaded image: %w", err)
		}
	} else {
		source = ImageSourceBase64
		image, err = imaging.DecodeBase64(in.ImageBase64)
		if err != nil {
			return nil, "", apperror.ValidationFailed("image", "Invalid image data")
		}
	}

	date := in.Date
	if date.IsZero() {
		date = s.now()
	}

	meal := &model.Meal{
		UserID:         userID,
		Date:           date.UTC(),
		Image:          image,
		Calories:       in.Calories,
		Protein:        in.Protein,
		HighConfidence: in.HighConfidence,
	}
	if err := s.meals.CreateMeal(ctx, meal); err != nil {
		s.logger.Error("failed to create meal",
			slog.Int64("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, "", fmt.Errorf("creating meal: %w", err)
	}

	s.logger.Info("meal created",
		slog.Int64("id", meal.ID),
		slog.Int64("userID", userID),
		slog.String("imageSource", source),
		slog.Int("imageBytes", len(image)),
	)
	return meal, source, nil
}

// GetMeal returns the meal if userID owns it, else apperror.ErrNotFound.
func (s *MealService) GetMeal(ctx context.Context, userID, mealID int64) (*model.Meal, error) {
	return s.meals.GetMealForUser(ctx, mealID, userID)
}

// AddGlucoseReading records a reading against one of the user's meals.
//
// OWNERSHIP:
// A meal that belongs to someone else is reported exactly like a meal that
// doesn't exist, so the endpoint can't be used to discover other users' ids.
func (s *MealService) AddGlucoseReading(ctx context.Context, userID, mealID int64, at time.Time, value float64) (*model.GlucoseReading, error) {
	if _, err := s.meals.GetMealForUser(ctx, mealID, userID); err != nil {
		return nil, err
	}

	reading := &model.GlucoseReading{
		MealID:    mealID,
		Timestamp: at.UTC(),
		Value:     value,
	}
	if err := s.readings.CreateReading(ctx, reading); err != nil {
		s.logger.Error("failed to create glucose reading",
			slog.Int64("mealID", mealID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating glucose reading: %w", err)
	}

	s.logger.Info("glucose reading added",
		slog.Int64("id", reading.ID),
		slog.Int64("mealID", mealID),
	)
	return reading, nil
}

// DailyStats summarises one day. A nil day means today (UTC).
func (s *MealService) DailyStats(ctx context.Context, userID int64, day *time.Time) (*model.DailyStats, error) {
	d := dates.Today(s.now())
	if day != nil {
		d = *day
	}

	stats, err := s.meals.DailyStats(ctx, userID, d)
	if err != nil {
		return nil, fmt.Errorf("computing daily stats: %w", err)
	}
	return stats, nil
}
