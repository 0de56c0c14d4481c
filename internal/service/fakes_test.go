package service

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sakif/mealtrack/internal/apperror"
	"github.com/sakif/mealtrack/internal/model"
	"github.com/sakif/mealtrack/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory implementation of the user, meal and glucose
// repositories. A hand-written fake (not a mock framework) keeps the tests
// easy to read: you can see exactly what it does.
//
// Set one of the *Err fields to simulate a database failure.
type fakeStore struct {
	users    []model.User
	meals    []model.Meal
	readings []model.GlucoseReading
	nextID   int64

	findErr   error
	createErr error
	listErr   error
}

var (
	_ repository.UserRepository    = (*fakeStore)(nil)
	_ repository.MealRepository    = (*fakeStore)(nil)
	_ repository.GlucoseRepository = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore { return &fakeStore{} }

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	u.ID = f.id()
	u.CreatedAt = time.Now()
	f.users = append(f.users, *u)
	return nil
}

func (f *fakeStore) FindUserByCredentials(_ context.Context, lastName string, birthdate time.Time) (*model.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.users {
		if strings.EqualFold(u.LastName, lastName) && u.BirthdateString() == birthdate.Format(model.DayLayout) {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("User")
}

func (f *fakeStore) ListUsersByLastName(_ context.Context, lastName string) ([]model.User, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.User{}
	for _, u := range f.users {
		if strings.EqualFold(u.LastName, lastName) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateMeal(_ context.Context, m *model.Meal) error {
	if f.createErr != nil {
		return f.createErr
	}
	m.ID = f.id()
	m.GlucoseReadings = []model.GlucoseReading{}
	f.meals = append(f.meals, *m)
	return nil
}

func (f *fakeStore) GetMealForUser(_ context.Context, mealID, userID int64) (*model.Meal, error) {
	for _, m := range f.meals {
		if m.ID == mealID && m.UserID == userID {
			return &m, nil
		}
	}
	return nil, apperror.NotFound("Meal")
}

func (f *fakeStore) ListMeals(_ context.Context, userID int64, filter repository.MealFilter) ([]model.Meal, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.Meal{}
	for _, m := range f.meals {
		if m.UserID != userID {
			continue
		}
		if filter.Day != nil {
			start, end := repository.DayRange(*filter.Day)
			if m.Date.Before(start) || !m.Date.Before(end) {
				continue
			}
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (f *fakeStore) DailyStats(_ context.Context, userID int64, day time.Time) (*model.DailyStats, error) {
	start, _ := repository.DayRange(day)
	meals, err := f.ListMeals(context.Background(), userID, repository.MealFilter{Day: &start})
	if err != nil {
		return nil, err
	}
	s := &model.DailyStats{Date: start.Format(model.DayLayout)}
	for _, m := range meals {
		if m.HighConfidence {
			s.HighConfidenceCalories += m.Calories
		} else {
			s.LowConfidenceCalories += m.Calories
		}
		s.TotalProtein += m.Protein
		s.MealCount++
	}
	return s, nil
}

func (f *fakeStore) CreateReading(_ context.Context, r *model.GlucoseReading) error {
	if f.createErr != nil {
		return f.createErr
	}
	r.ID = f.id()
	f.readings = append(f.readings, *r)
	return nil
}

// addUser seeds a user directly, bypassing the service.
func (f *fakeStore) addUser(lastName, birthdate string) model.User {
	d, err := time.Parse(model.DayLayout, birthdate)
	if err != nil {
		panic(err)
	}
	u := model.User{ID: f.id(), LastName: lastName, Birthdate: d}
	f.users = append(f.users, u)
	return u
}

// testLogger discards everything below Error so test output stays readable.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
