package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sakif/mealtrack/internal/apperror"
	"github.com/sakif/mealtrack/internal/model"
	"github.com/sakif/mealtrack/internal/repository"
)

// DRIVER FAILURES:
// A real SQLite file almost never fails mid-query, so the error branches are
// exercised against go-sqlmock instead. The DB struct only holds a *sql.DB,
// which lets a mock connection slot straight in.
func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &DB{conn: conn}, mock
}

var errDiskIO = errors.New("disk I/O error")

func assertWrapped(t *testing.T, err error, prefix string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if !errors.Is(err, errDiskIO) {
		t.Errorf("error %v does not wrap the driver error", err)
	}
	if errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("driver failure %v must not look like ErrNotFound", err)
	}
	if !strings.HasPrefix(err.Error(), prefix) {
		t.Errorf("error = %q, want prefix %q", err, prefix)
	}
}

func TestCreateMeal_DriverError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO meals").WillReturnError(errDiskIO)

	err := db.CreateMeal(context.Background(), &model.Meal{UserID: 1})

	assertWrapped(t, err, "sqlite: creating meal")
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateUser_DriverError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO users").WillReturnError(errDiskIO)

	err := db.CreateUser(context.Background(), &model.User{LastName: "Scott"})

	assertWrapped(t, err, "sqlite: inserting user")
}

func TestCreateReading_DriverError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO glucose_readings").WillReturnError(errDiskIO)

	err := db.CreateReading(context.Background(), &model.GlucoseReading{MealID: 1, Timestamp: time.Now()})

	assertWrapped(t, err, "sqlite: creating glucose reading")
}

func TestGetMealForUser_DriverError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT (.+) FROM meals").WillReturnError(errDiskIO)

	_, err := db.GetMealForUser(context.Background(), 1, 1)

	assertWrapped(t, err, "sqlite: getting meal")
}

func TestFindUserByCredentials_DriverError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT (.+) FROM users").WillReturnError(errDiskIO)

	_, err := db.FindUserByCredentials(context.Background(), "Scott", time.Now())

	assertWrapped(t, err, "sqlite: finding user")
}

// The meal query succeeds but the follow-up readings query fails; the whole
// call must fail rather than return meals with silently missing readings.
func TestListMeals_ReadingsQueryError(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "user_id", "date", "image", "calories", "protein", "high_confidence"}).
		AddRow(int64(1), int64(7), time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC), []byte{1}, int64(300), int64(10), true)
	mock.ExpectQuery("SELECT (.+) FROM meals m").WithArgs(int64(7)).WillReturnRows(rows)
	mock.ExpectQuery("SELECT (.+) FROM glucose_readings r").WillReturnError(errDiskIO)

	meals, err := db.ListMeals(context.Background(), 7, repository.MealFilter{})

	assertWrapped(t, err, "sqlite: listing glucose readings")
	if meals != nil {
		t.Errorf("meals = %v, want nil on error", meals)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// With no meals there is nothing to attach, so the readings query is skipped.
func TestListMeals_NoMealsSkipsReadingsQuery(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "user_id", "date", "image", "calories", "protein", "high_confidence"})
	mock.ExpectQuery("SELECT (.+) FROM meals m").WillReturnRows(rows)

	meals, err := db.ListMeals(context.Background(), 7, repository.MealFilter{})
	if err != nil {
		t.Fatalf("ListMeals() error = %v", err)
	}
	if len(meals) != 0 {
		t.Errorf("len = %d, want 0", len(meals))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDailyStats_DriverError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("FROM meals").WillReturnError(errDiskIO)

	_, err := db.DailyStats(context.Background(), 1, time.Now())

	assertWrapped(t, err, "sqlite: computing daily stats")
}

func TestPing_DriverError(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	db := &DB{conn: conn}

	mock.ExpectPing().WillReturnError(errDiskIO)

	assertWrapped(t, db.Ping(context.Background()), "sqlite: ping")
}
